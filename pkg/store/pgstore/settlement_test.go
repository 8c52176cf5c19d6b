package pgstore

import (
	"testing"

	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// dryRunDB builds statements without a server.
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost dbname=draw"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		// MarkBets runs inside an open tx in production; don't let gorm
		// begin a default write transaction (which dials the server).
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return db
}

func TestClaimPendingQuerySkipsLockedRows(t *testing.T) {
	period := types.MustPeriod("20260301001")
	stmt := claimPendingQuery(dryRunDB(t), period).Find(&[]betRow{}).Statement
	sql := stmt.SQL.String()

	assert.Contains(t, sql, `FROM "bets"`)
	assert.Contains(t, sql, "period = $1 AND status = $2")
	assert.Contains(t, sql, "ORDER BY id")
	assert.Contains(t, sql, "FOR UPDATE SKIP LOCKED")
	require.Len(t, stmt.Vars, 2)
	assert.Equal(t, enum.BetStatusPending, stmt.Vars[1])
}

func TestClaimPendingBetsMapsRows(t *testing.T) {
	db := dryRunDB(t)
	tx := &settlementTx{s: New(db), tx: db, period: types.MustPeriod("20260301001")}

	bets, err := tx.ClaimPendingBets()
	require.NoError(t, err)
	assert.Empty(t, bets)
}

func TestMarkBetsReportsConflictWhenNothingUpdated(t *testing.T) {
	db := dryRunDB(t)
	tx := &settlementTx{s: New(db), tx: db, period: types.MustPeriod("20260301001")}

	// a dry run affects no rows, which is what a bet settled elsewhere looks like
	err := tx.MarkBets([]types.BetSettlement{{
		BetID:  "b1",
		Status: enum.BetStatusSettled,
		Won:    true,
		Payout: decimal.RequireFromString("198.50"),
	}})
	assert.ErrorIs(t, err, types.ErrTxConflict)
	assert.ErrorContains(t, err, "b1")
}
