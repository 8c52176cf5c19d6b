package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/fystack/draw-engine/pkg/cache"
	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/fystack/draw-engine/pkg/store/badgerstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 15, 10, 0, 30, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *badgerstore.Store) {
	t.Helper()
	st, err := badgerstore.New(badgerstore.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	c, err := cache.NewMemory(1000, 1<<20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	clock, err := types.NewPeriodClock(90*time.Second, time.UTC)
	require.NoError(t, err)

	svc := NewService(st, c, time.Minute, clock)
	svc.now = func() time.Time { return now }
	return svc, st
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDeductAndCredit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.CreateMember(ctx, types.Member{ID: "m1", Market: "A", Balance: d("10")}))

	entry, err := svc.Deduct(ctx, "m1", d("4.50"), "fee")
	require.NoError(t, err)
	assert.True(t, entry.BalanceAfter.Equal(d("5.50")))

	_, err = svc.Deduct(ctx, "m1", d("6"), "too much")
	assert.ErrorIs(t, err, types.ErrInsufficientFunds)

	entry, err = svc.Credit(ctx, "m1", d("1.25"), "refund")
	require.NoError(t, err)
	assert.True(t, entry.BalanceAfter.Equal(d("6.75")))

	_, err = svc.Credit(ctx, "m1", d("0.001"), "dust")
	assert.Error(t, err)
	_, err = svc.Deduct(ctx, "m1", d("-1"), "negative")
	assert.Error(t, err)
}

func TestPlaceBet(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.CreateMember(ctx, types.Member{ID: "m1", Market: "D", Balance: d("100")}))
	open := svc.clock.At(now)

	bet, entry, err := svc.PlaceBet(ctx, types.Bet{
		MemberID: "m1",
		Period:   open,
		Family:   enum.BetFamilySumValue,
		Selector: "11",
		Stake:    d("10"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, bet.ID)
	assert.True(t, bet.Odds.IsPositive(), "default odds applied")
	assert.Equal(t, enum.LedgerBetStake, entry.Type)
	assert.True(t, entry.BalanceAfter.Equal(d("90")))

	bets, err := st.OpenBets(ctx, open)
	require.NoError(t, err)
	assert.Len(t, bets, 1)

	_, _, err = svc.PlaceBet(ctx, types.Bet{
		MemberID: "m1",
		Period:   svc.clock.Previous(open),
		Family:   enum.BetFamilyNumber,
		Selector: "3",
		Position: 1,
		Stake:    d("1"),
	})
	assert.ErrorIs(t, err, types.ErrPeriodClosed)

	_, _, err = svc.PlaceBet(ctx, types.Bet{
		MemberID: "m1",
		Period:   open,
		Family:   enum.BetFamilyNumber,
		Selector: "11",
		Position: 1,
		Stake:    d("1"),
	})
	assert.ErrorIs(t, err, types.ErrMalformedBet)
}

func TestAgentChainCacheInvalidation(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.UpsertAgent(ctx, types.Agent{ID: "top", Mode: enum.RebateModeTakeAllRemaining}))
	require.NoError(t, svc.UpsertAgent(ctx, types.Agent{ID: "sub", ParentID: "top", Mode: enum.RebateModeTakeFixed, RebateRate: d("0.01")}))
	require.NoError(t, svc.CreateMember(ctx, types.Member{ID: "m1", AgentID: "sub", Market: "D"}))

	chain, err := svc.GetAgentChain(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, chain.Agents, 2)

	// written behind the service: the cached snapshot still wins
	require.NoError(t, st.UpsertAgent(ctx, types.Agent{ID: "sub", ParentID: "top", Mode: enum.RebateModeTakeFixed, RebateRate: d("0.02")}))
	chain, err = svc.GetAgentChain(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, chain.Agents[0].RebateRate.Equal(d("0.01")))

	// through the service the line is invalidated
	require.NoError(t, svc.UpsertAgent(ctx, types.Agent{ID: "top", Mode: enum.RebateModeTakeAllRemaining}))
	chain, err = svc.GetAgentChain(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, chain.Agents[0].RebateRate.Equal(d("0.02")))
}

func TestBrokenChainNotCached(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.CreateMember(ctx, types.Member{ID: "m1", AgentID: "late", Market: "A"}))

	chain, err := svc.GetAgentChain(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, chain.Broken)

	require.NoError(t, svc.UpsertAgent(ctx, types.Agent{ID: "late", Mode: enum.RebateModeTakeAllRemaining}))
	chain, err = svc.GetAgentChain(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, chain.Broken)
	assert.Len(t, chain.Agents, 1)
}

func TestUpsertAgentValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	assert.Error(t, svc.UpsertAgent(ctx, types.Agent{ID: "a", Mode: "bogus"}))
	assert.Error(t, svc.UpsertAgent(ctx, types.Agent{ID: "a", Mode: enum.RebateModeTakeFixed, RebateRate: d("1.5")}))
	assert.Error(t, svc.UpsertAgent(ctx, types.Agent{ID: "a", ParentID: "a", Mode: enum.RebateModePassThrough}))
}
