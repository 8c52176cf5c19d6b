// Package storetest holds the behavioural checks every store.Store backend
// must pass.
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/fystack/draw-engine/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) store.Store

var (
	period  = types.MustPeriod("20260315001")
	period2 = types.MustPeriod("20260315002")
	outcome = types.Outcome{3, 9, 1, 7, 2, 8, 6, 4, 10, 5}
)

func Run(t *testing.T, newStore Factory) {
	t.Run("PersistOutcomeOnce", func(t *testing.T) { testPersistOutcomeOnce(t, newStore(t)) })
	t.Run("PersistOutcomeConcurrent", func(t *testing.T) { testPersistOutcomeConcurrent(t, newStore(t)) })
	t.Run("PlaceBet", func(t *testing.T) { testPlaceBet(t, newStore(t)) })
	t.Run("SettleTransaction", func(t *testing.T) { testSettleTransaction(t, newStore(t)) })
	t.Run("UnsettledPeriods", func(t *testing.T) { testUnsettledPeriods(t, newStore(t)) })
	t.Run("SingleActiveDirective", func(t *testing.T) { testSingleActiveDirective(t, newStore(t)) })
	t.Run("AgentChain", func(t *testing.T) { testAgentChain(t, newStore(t)) })
	t.Run("ApplyRebateOnce", func(t *testing.T) { testApplyRebateOnce(t, newStore(t)) })
	t.Run("LedgerReplay", func(t *testing.T) { testLedgerReplay(t, newStore(t)) })
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seedMember(t *testing.T, s store.Store, id, agentID, balance string) {
	t.Helper()
	require.NoError(t, s.CreateMember(context.Background(), types.Member{
		ID:      id,
		AgentID: agentID,
		Market:  "D",
		Balance: dec(balance),
	}))
}

func bet(id, member string, p types.Period, stake string) types.Bet {
	return types.Bet{
		ID:       id,
		MemberID: member,
		Period:   p,
		Family:   enum.BetFamilyNumber,
		Selector: "3",
		Position: 1,
		Stake:    dec(stake),
		Odds:     dec("9.85"),
	}
}

func testPersistOutcomeOnce(t *testing.T, s store.Store) {
	ctx := context.Background()
	first := types.DrawResult{Period: period, Outcome: outcome, Sum: outcome.Sum(), Mode: "uniform"}
	stored, existed, err := s.PersistOutcome(ctx, first)
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Equal(t, outcome, stored.Outcome)

	second := first
	second.Outcome = types.Outcome{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	stored, existed, err = s.PersistOutcome(ctx, second)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, outcome, stored.Outcome)

	got, err := s.GetOutcome(ctx, period)
	require.NoError(t, err)
	assert.Equal(t, outcome, got.Outcome)
	assert.Equal(t, 12, got.Sum)

	_, err = s.GetOutcome(ctx, period2)
	assert.ErrorIs(t, err, types.ErrNotFound)

	bad := first
	bad.Period = period2
	bad.Outcome = types.Outcome{1, 1, 3, 4, 5, 6, 7, 8, 9, 10}
	_, _, err = s.PersistOutcome(ctx, bad)
	assert.ErrorIs(t, err, types.ErrInvalidOutcome)
}

func testPersistOutcomeConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	const writers = 8
	results := make([]types.Outcome, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o := types.Outcome{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
			o[0], o[i+1] = o[i+1], o[0]
			stored, _, err := s.PersistOutcome(ctx, types.DrawResult{Period: period, Outcome: o, Mode: "uniform"})
			if assert.NoError(t, err) {
				results[i] = stored.Outcome
			}
		}(i)
	}
	wg.Wait()

	got, err := s.GetOutcome(ctx, period)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, got.Outcome, r)
	}
}

func testPlaceBet(t *testing.T, s store.Store) {
	ctx := context.Background()
	seedMember(t, s, "m1", "", "100")

	entry, err := s.PlaceBet(ctx, bet("b1", "m1", period, "30"))
	require.NoError(t, err)
	assert.True(t, entry.Amount.Equal(dec("-30")))
	assert.True(t, entry.BalanceAfter.Equal(dec("70")))

	_, err = s.PlaceBet(ctx, bet("b1", "m1", period, "10"))
	assert.ErrorIs(t, err, store.ErrDuplicate)

	_, err = s.PlaceBet(ctx, bet("b2", "m1", period, "80"))
	assert.ErrorIs(t, err, types.ErrInsufficientFunds)

	bal, err := s.Balance(ctx, enum.ActorMember, "m1")
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("70")), bal.String())

	_, _, err = s.PersistOutcome(ctx, types.DrawResult{Period: period, Outcome: outcome, Mode: "uniform"})
	require.NoError(t, err)
	_, err = s.PlaceBet(ctx, bet("b3", "m1", period, "10"))
	assert.ErrorIs(t, err, types.ErrPeriodClosed)

	open, err := s.OpenBets(ctx, period)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, enum.BetStatusPending, open[0].Status)
}

func testSettleTransaction(t *testing.T, s store.Store) {
	ctx := context.Background()
	seedMember(t, s, "m1", "", "100")
	_, err := s.PlaceBet(ctx, bet("b1", "m1", period, "10"))
	require.NoError(t, err)
	_, err = s.PlaceBet(ctx, bet("b2", "m1", period, "5"))
	require.NoError(t, err)

	err = s.Settle(ctx, period, func(tx store.SettlementTx) error {
		exists, err := tx.RecordExists()
		require.NoError(t, err)
		assert.False(t, exists)

		bets, err := tx.ClaimPendingBets()
		require.NoError(t, err)
		require.Len(t, bets, 2)

		if _, err := tx.Credit("m1", dec("98.50"), enum.LedgerPayout, "settle"); err != nil {
			return err
		}
		if err := tx.MarkBets([]types.BetSettlement{
			{BetID: "b1", MemberID: "m1", Status: enum.BetStatusSettled, Won: true, Payout: dec("98.50")},
			{BetID: "b2", MemberID: "m1", Status: enum.BetStatusSettled},
		}); err != nil {
			return err
		}
		return tx.InsertRecord(types.SettlementRecord{
			Period:       period,
			SettledCount: 2,
			TotalStake:   dec("15"),
			TotalPayout:  dec("98.50"),
		})
	})
	require.NoError(t, err)

	rec, err := s.GetSettlementRecord(ctx, period)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.SettledCount)

	bal, err := s.Balance(ctx, enum.ActorMember, "m1")
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("183.50")), bal.String())

	open, err := s.OpenBets(ctx, period)
	require.NoError(t, err)
	assert.Empty(t, open)

	// a failing body leaves nothing behind
	err = s.Settle(ctx, period2, func(tx store.SettlementTx) error {
		if _, err := tx.Credit("m1", dec("1"), enum.LedgerPayout, "x"); err != nil {
			return err
		}
		return tx.MarkBets([]types.BetSettlement{{BetID: "b1", Status: enum.BetStatusSettled}})
	})
	require.Error(t, err)
	bal, err = s.Balance(ctx, enum.ActorMember, "m1")
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("183.50")), bal.String())

	err = s.Settle(ctx, period2, func(tx store.SettlementTx) error {
		_, err := tx.Credit("ghost", dec("1"), enum.LedgerPayout, "x")
		return err
	})
	assert.ErrorIs(t, err, types.ErrBalanceUnavailable)

	pending, err := s.PendingRebates(ctx, period)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].Turnover.Equal(dec("15")))
}

func testUnsettledPeriods(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, p := range []types.Period{period, period2} {
		_, _, err := s.PersistOutcome(ctx, types.DrawResult{Period: p, Outcome: outcome, Mode: "uniform"})
		require.NoError(t, err)
	}
	got, err := s.UnsettledPeriods(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []types.Period{period, period2}, got)

	require.NoError(t, s.Settle(ctx, period, func(tx store.SettlementTx) error {
		return tx.InsertRecord(types.SettlementRecord{Period: period})
	}))
	got, err = s.UnsettledPeriods(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []types.Period{period2}, got)

	got, err = s.UnsettledPeriods(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []types.Period{period2}, got)
}

func testSingleActiveDirective(t *testing.T, s store.Store) {
	ctx := context.Background()
	d1 := types.ControlDirective{ID: "d1", Scope: enum.ControlScopeGlobal, Direction: enum.ControlDirectionLoss, Strength: 40, Active: true}
	d2 := types.ControlDirective{ID: "d2", Scope: enum.ControlScopeMember, TargetID: "m1", Direction: enum.ControlDirectionWin, Strength: 80, Active: true}
	require.NoError(t, s.SaveDirective(ctx, d1))
	require.NoError(t, s.SaveDirective(ctx, d2))

	active, err := s.ActiveDirective(ctx)
	require.NoError(t, err)
	assert.Equal(t, "d2", active.ID)

	require.NoError(t, s.SetDirectiveActive(ctx, "d1", true))
	all, err := s.ListDirectives(ctx)
	require.NoError(t, err)
	activeCount := 0
	for _, d := range all {
		if d.Active {
			activeCount++
			assert.Equal(t, "d1", d.ID)
		}
	}
	assert.Equal(t, 1, activeCount)

	require.NoError(t, s.SetDirectiveActive(ctx, "d1", false))
	_, err = s.ActiveDirective(ctx)
	assert.ErrorIs(t, err, types.ErrNotFound)

	assert.ErrorIs(t, s.SetDirectiveActive(ctx, "nope", true), types.ErrNotFound)
	bad := d1
	bad.Strength = 101
	assert.ErrorIs(t, s.SaveDirective(ctx, bad), types.ErrInvalidDirective)
}

func testAgentChain(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.UpsertAgent(ctx, types.Agent{ID: "root", Mode: enum.RebateModeTakeAllRemaining}))
	require.NoError(t, s.UpsertAgent(ctx, types.Agent{ID: "mid", ParentID: "root", Mode: enum.RebateModeTakeFixed, RebateRate: dec("0.01")}))
	require.NoError(t, s.UpsertAgent(ctx, types.Agent{ID: "leaf", ParentID: "mid", Mode: enum.RebateModePassThrough}))
	require.NoError(t, s.UpsertAgent(ctx, types.Agent{ID: "orphan", ParentID: "gone", Mode: enum.RebateModeTakeFixed, RebateRate: dec("0.005")}))
	seedMember(t, s, "m1", "leaf", "0")
	seedMember(t, s, "m2", "orphan", "0")

	chain, err := s.AgentChain(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, chain.Broken)
	require.Len(t, chain.Agents, 3)
	assert.Equal(t, "leaf", chain.Agents[0].ID)
	assert.Equal(t, "root", chain.Agents[2].ID)
	assert.Equal(t, "D", chain.Market)

	chain, err = s.AgentChain(ctx, "m2")
	require.NoError(t, err)
	assert.True(t, chain.Broken)
	assert.Equal(t, "gone", chain.BrokenAt)
	require.Len(t, chain.Agents, 1)

	_, err = s.AgentChain(ctx, "nobody")
	assert.ErrorIs(t, err, types.ErrNotFound)

	members, err := s.MembersUnder(ctx, "mid")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, members)

	// credit, then upsert: the balance survives
	_, err = s.Adjust(ctx, enum.ActorAgent, "mid", dec("5"), enum.LedgerManualAdjustment, "seed")
	require.NoError(t, err)
	require.NoError(t, s.UpsertAgent(ctx, types.Agent{ID: "mid", ParentID: "root", Mode: enum.RebateModeTakeFixed, RebateRate: dec("0.02")}))
	a, err := s.GetAgent(ctx, "mid")
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(dec("5")))
	assert.True(t, a.RebateRate.Equal(dec("0.02")))
}

func testApplyRebateOnce(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.UpsertAgent(ctx, types.Agent{ID: "a1", Mode: enum.RebateModeTakeAllRemaining}))
	rec := types.RebateRecord{
		Period:      period,
		MemberID:    "m1",
		Turnover:    dec("100"),
		PoolRate:    dec("0.041"),
		PoolAmount:  dec("4.10"),
		Distributed: dec("4.10"),
		Retained:    decimal.Zero,
	}
	payments := []types.CommissionPayment{{Period: period, MemberID: "m1", AgentID: "a1", Rate: dec("0.041"), Amount: dec("4.10")}}

	applied, err := s.ApplyRebate(ctx, rec, payments)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = s.ApplyRebate(ctx, rec, payments)
	require.NoError(t, err)
	assert.False(t, applied)

	bal, err := s.Balance(ctx, enum.ActorAgent, "a1")
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("4.10")), bal.String())

	got, err := s.GetRebateRecord(ctx, period, "m1")
	require.NoError(t, err)
	assert.True(t, got.PoolAmount.Equal(dec("4.10")))

	comms, err := s.ListCommissions(ctx, period)
	require.NoError(t, err)
	assert.Len(t, comms, 1)
}

func testLedgerReplay(t *testing.T, s store.Store) {
	ctx := context.Background()
	seedMember(t, s, "m1", "", "50")
	_, err := s.PlaceBet(ctx, bet("b1", "m1", period, "20"))
	require.NoError(t, err)
	_, err = s.Adjust(ctx, enum.ActorMember, "m1", dec("7.25"), enum.LedgerManualAdjustment, "bonus")
	require.NoError(t, err)

	entries, err := s.Ledger(ctx, enum.ActorMember, "m1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, enum.LedgerManualAdjustment, entries[0].Type)
	assert.Equal(t, enum.LedgerBetStake, entries[1].Type)

	bal, err := store.VerifyLedger(ctx, s, enum.ActorMember, "m1")
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("37.25")), bal.String())
}
