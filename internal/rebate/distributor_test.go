package rebate

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/fystack/draw-engine/internal/wallet"
	"github.com/fystack/draw-engine/pkg/cache"
	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/fystack/draw-engine/pkg/infra"
	"github.com/fystack/draw-engine/pkg/store/badgerstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPeriod = types.MustPeriod("20260315007")

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func agent(id string, mode enum.RebateMode, rate string) types.Agent {
	return types.Agent{ID: id, Mode: mode, RebateRate: d(rate)}
}

func amounts(p Plan) map[string]string {
	out := make(map[string]string, len(p.Payments))
	for _, pay := range p.Payments {
		out[pay.AgentID] = pay.Amount.StringFixed(2)
	}
	return out
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name     string
		chain    types.AgentChain
		turnover string
		rate     string
		want     map[string]string
		retained string
		broken   bool
	}{
		{
			name: "fixed then take all",
			chain: types.AgentChain{Agents: []types.Agent{
				agent("leaf", enum.RebateModeTakeFixed, "0.01"),
				agent("mid", enum.RebateModePassThrough, "0"),
				agent("top", enum.RebateModeTakeFixed, "0.02"),
				agent("root", enum.RebateModeTakeAllRemaining, "0"),
			}},
			turnover: "1000",
			rate:     "0.041",
			want:     map[string]string{"leaf": "10.00", "top": "20.00", "root": "11.00"},
			retained: "0",
		},
		{
			name: "fixed rates capped by remaining rate",
			chain: types.AgentChain{Agents: []types.Agent{
				agent("a", enum.RebateModeTakeFixed, "0.03"),
				agent("b", enum.RebateModeTakeFixed, "0.03"),
				agent("c", enum.RebateModeTakeFixed, "0.03"),
			}},
			turnover: "1000",
			rate:     "0.041",
			want:     map[string]string{"a": "30.00", "b": "11.00"},
			retained: "0",
		},
		{
			name: "remainder retained after root",
			chain: types.AgentChain{Agents: []types.Agent{
				agent("a", enum.RebateModeTakeFixed, "0.005"),
			}},
			turnover: "200",
			rate:     "0.011",
			want:     map[string]string{"a": "1.00"},
			retained: "1.20",
		},
		{
			name: "take all stops the walk",
			chain: types.AgentChain{Agents: []types.Agent{
				agent("a", enum.RebateModeTakeAllRemaining, "0"),
				agent("b", enum.RebateModeTakeFixed, "0.01"),
			}},
			turnover: "100",
			rate:     "0.041",
			want:     map[string]string{"a": "4.10"},
			retained: "0",
		},
		{
			name: "broken chain keeps the rest",
			chain: types.AgentChain{
				Agents:   []types.Agent{agent("a", enum.RebateModeTakeFixed, "0.01")},
				Broken:   true,
				BrokenAt: "ghost",
			},
			turnover: "1000",
			rate:     "0.041",
			want:     map[string]string{"a": "10.00"},
			retained: "31.00",
			broken:   true,
		},
		{
			name:     "no agents",
			turnover: "50",
			rate:     "0.041",
			want:     map[string]string{},
			retained: "2.05",
		},
		{
			name: "rounding never overdraws the pool",
			chain: types.AgentChain{Agents: []types.Agent{
				agent("a", enum.RebateModeTakeFixed, "0.005"),
				agent("b", enum.RebateModeTakeFixed, "0.006"),
			}},
			turnover: "33.33",
			rate:     "0.011",
			// pool 0.37; a 0.17; b min(0.20, 0.20)
			want:     map[string]string{"a": "0.17", "b": "0.20"},
			retained: "0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Split(testPeriod, tt.chain, d(tt.turnover), d(tt.rate))
			assert.Equal(t, tt.want, amounts(plan))
			assert.True(t, plan.Retained.Equal(d(tt.retained)), "retained %s", plan.Retained)
			if tt.broken {
				assert.ErrorIs(t, plan.Warnings, types.ErrBrokenChain)
			} else {
				assert.NoError(t, plan.Warnings)
			}
		})
	}
}

func TestSplitConservesPool(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	modes := []enum.RebateMode{enum.RebateModeTakeFixed, enum.RebateModeTakeFixed, enum.RebateModePassThrough, enum.RebateModeTakeAllRemaining}
	rates := []decimal.Decimal{d("0.011"), d("0.041")}

	for i := 0; i < 2000; i++ {
		var chain types.AgentChain
		for j := rng.IntN(7); j > 0; j-- {
			chain.Agents = append(chain.Agents, types.Agent{
				ID:         string(rune('a' + j)),
				Mode:       modes[rng.IntN(len(modes))],
				RebateRate: decimal.New(int64(rng.IntN(50)), -3),
			})
		}
		chain.Broken = rng.IntN(5) == 0
		turnover := decimal.New(int64(rng.IntN(10_000_000)), -2)
		rate := rates[rng.IntN(len(rates))]

		plan := Split(testPeriod, chain, turnover, rate)
		sum := decimal.Zero
		for _, p := range plan.Payments {
			require.True(t, p.Amount.IsPositive())
			sum = sum.Add(p.Amount)
		}
		require.False(t, plan.Retained.IsNegative(), "case %d", i)
		require.True(t, sum.Add(plan.Retained).Equal(plan.Pool), "case %d: %s + %s != %s", i, sum, plan.Retained, plan.Pool)
		require.True(t, plan.Pool.Equal(turnover.Mul(rate).Round(2)))
	}
}

type fixture struct {
	store *badgerstore.Store
	dist  *Distributor
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st, err := badgerstore.New(badgerstore.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	c, err := cache.NewMemory(1000, 1<<20)
	require.NoError(t, err)
	clock, err := types.NewPeriodClock(90*time.Second, time.UTC)
	require.NoError(t, err)
	w := wallet.NewService(st, c, time.Minute, clock)

	ctx := context.Background()
	require.NoError(t, w.UpsertAgent(ctx, types.Agent{ID: "root", Mode: enum.RebateModeTakeAllRemaining}))
	require.NoError(t, w.UpsertAgent(ctx, types.Agent{ID: "leaf", ParentID: "root", Mode: enum.RebateModeTakeFixed, RebateRate: d("0.01")}))
	require.NoError(t, w.CreateMember(ctx, types.Member{ID: "m1", AgentID: "leaf", Market: "A"}))
	require.NoError(t, w.CreateMember(ctx, types.Member{ID: "m2", AgentID: "leaf", Market: "unknown"}))

	cfg := Config{Markets: map[string]decimal.Decimal{"A": d("0.011"), "D": d("0.041")}, DefaultMarket: "D"}
	return fixture{store: st, dist: NewDistributor(st, w, nil, cfg)}
}

func agentBalance(t *testing.T, f fixture, id string) decimal.Decimal {
	b, err := f.store.Balance(context.Background(), enum.ActorAgent, id)
	require.NoError(t, err)
	return b
}

func TestDistributeOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	payments, err := f.dist.Distribute(ctx, testPeriod, "m1", d("1000"))
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.True(t, agentBalance(t, f, "leaf").Equal(d("10")))
	assert.True(t, agentBalance(t, f, "root").Equal(d("1")))

	rec, err := f.store.GetRebateRecord(ctx, testPeriod, "m1")
	require.NoError(t, err)
	assert.True(t, rec.PoolAmount.Equal(d("11")))
	assert.True(t, rec.Retained.IsZero())

	payments, err = f.dist.Distribute(ctx, testPeriod, "m1", d("1000"))
	require.NoError(t, err)
	assert.Empty(t, payments)
	assert.True(t, agentBalance(t, f, "leaf").Equal(d("10")))
}

func TestDistributeDefaultMarket(t *testing.T) {
	f := newFixture(t)
	_, err := f.dist.Distribute(context.Background(), testPeriod, "m2", d("100"))
	require.NoError(t, err)
	rec, err := f.store.GetRebateRecord(context.Background(), testPeriod, "m2")
	require.NoError(t, err)
	assert.True(t, rec.PoolRate.Equal(d("0.041")))
	assert.True(t, rec.PoolAmount.Equal(d("4.10")))
}

func TestHandle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.dist.Handle(ctx, []byte("{")), infra.ErrPermanent)
	assert.ErrorIs(t, f.dist.Handle(ctx, []byte(`{"member_id":"m1"}`)), infra.ErrPermanent)
	assert.ErrorIs(t, f.dist.Handle(ctx, []byte(`{"period":"20260315007","member_id":"nobody","turnover":"5"}`)), infra.ErrPermanent)

	require.NoError(t, f.dist.Handle(ctx, []byte(`{"period":"20260315007","member_id":"m1","turnover":"200"}`)))
	assert.True(t, agentBalance(t, f, "leaf").Equal(d("2")))
}
