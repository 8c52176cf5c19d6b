package badgerstore

import (
	"context"
	"testing"

	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/fystack/draw-engine/pkg/store"
	"github.com/fystack/draw-engine/pkg/store/storetest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Options{InMemory: true, Prefix: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreBehaviour(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newTestStore(t) })
}

func TestSettleConflictOnConcurrentCommit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := types.MustPeriod("20260315001")

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Settle(ctx, p, func(tx store.SettlementTx) error {
			if _, err := tx.RecordExists(); err != nil {
				return err
			}
			close(started)
			<-release
			return tx.InsertRecord(types.SettlementRecord{Period: p})
		})
	}()

	<-started
	require.NoError(t, s.Settle(ctx, p, func(tx store.SettlementTx) error {
		return tx.InsertRecord(types.SettlementRecord{Period: p})
	}))
	close(release)

	assert.ErrorIs(t, <-done, types.ErrTxConflict)
}

func TestKeysCarryPrefix(t *testing.T) {
	s := newTestStore(t)
	assert.Equal(t, "test/result/20260315001", string(s.key(nsResult, "20260315001")))
	assert.Equal(t, "test/bet/", string(s.prefixKey(nsBet)))

	bare, err := New(Options{InMemory: true})
	require.NoError(t, err)
	defer bare.Close()
	assert.Equal(t, "result/x", string(bare.key(nsResult, "x")))
}

func TestLedgerOrderSurvivesManyEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateMember(ctx, types.Member{ID: "m1", Market: "A"}))

	// sequence numbers are zero padded, so entry 10 sorts after entry 9
	for i := 0; i < 12; i++ {
		_, err := s.Adjust(ctx, enum.ActorMember, "m1", decimal.NewFromInt(int64(i+1)), enum.LedgerManualAdjustment, "")
		require.NoError(t, err)
	}
	entries, err := s.Ledger(ctx, enum.ActorMember, "m1")
	require.NoError(t, err)
	require.Len(t, entries, 12)
	for i, e := range entries {
		assert.True(t, e.Amount.Equal(decimal.NewFromInt(int64(i+1))))
	}
	bal, err := store.VerifyLedger(ctx, s, enum.ActorMember, "m1")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(78)))
}
