package pgstore

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/fystack/draw-engine/pkg/common/constant"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/fystack/draw-engine/pkg/store"
	"github.com/fystack/draw-engine/pkg/store/storetest"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against TEST_POSTGRES_URL; every subtest truncates the schema.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_URL not set")
	}
	s, err := Open(context.Background(), dsn, constant.EnvProduction)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	// TRUNCATE does not fire row-level triggers
	require.NoError(t, s.DB().Exec(`TRUNCATE draw_results, bets, settlement_records, members, agents,
		ledger_entries, control_directives, rebate_records, commission_payments`).Error)
	return s
}

func TestStoreBehaviour(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return openTestStore(t) })
}

func TestDrawResultsAreImmutable(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := types.MustPeriod("20260315001")
	_, _, err := s.PersistOutcome(ctx, types.DrawResult{
		Period:  p,
		Outcome: types.Outcome{3, 9, 1, 7, 2, 8, 6, 4, 10, 5},
		Mode:    "uniform",
	})
	require.NoError(t, err)

	err = s.DB().Exec("UPDATE draw_results SET outcome = ? WHERE period = ?", "1,2,3,4,5,6,7,8,9,10", p).Error
	require.Error(t, err)
	err = s.DB().Exec("DELETE FROM draw_results WHERE period = ?", p).Error
	require.Error(t, err)
}

func TestSettleBusyWhileLocked(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := types.MustPeriod("20260315001")

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Settle(ctx, p, func(tx store.SettlementTx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err := s.Settle(ctx, p, func(tx store.SettlementTx) error { return nil })
	assert.ErrorIs(t, err, types.ErrPeriodBusy)
	close(release)
	require.NoError(t, <-done)
}

func TestWrapError(t *testing.T) {
	assert.ErrorIs(t, wrapError(&pgconn.PgError{Code: uniqueViolation}), store.ErrDuplicate)
	assert.ErrorIs(t, wrapError(&pgconn.PgError{Code: serializationFailure}), types.ErrTxConflict)
	assert.ErrorIs(t, wrapError(&pgconn.PgError{Code: checkViolation}), types.ErrInsufficientFunds)
	other := errors.New("boom")
	assert.Equal(t, other, wrapError(other))
	assert.NoError(t, wrapError(nil))
}

func TestWrapErrorSingleActiveDirective(t *testing.T) {
	err := wrapError(&pgconn.PgError{Code: uniqueViolation, ConstraintName: singleActiveIndex})
	assert.ErrorIs(t, err, types.ErrDirectiveConflict)
}
