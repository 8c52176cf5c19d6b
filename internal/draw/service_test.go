package draw

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/fystack/draw-engine/internal/generator"
	"github.com/fystack/draw-engine/pkg/cache"
	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/fystack/draw-engine/pkg/events"
	"github.com/fystack/draw-engine/pkg/store/badgerstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEmitter struct {
	events.Nop
	mu     sync.Mutex
	draws  int
	alarms []string
}

func (e *recordingEmitter) EmitDraw(context.Context, types.DrawResult) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.draws++
	return nil
}

func (e *recordingEmitter) EmitAlarm(_ context.Context, _ types.Period, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alarms = append(e.alarms, reason)
	return nil
}

type fixture struct {
	store   *badgerstore.Store
	svc     *Service
	emitter *recordingEmitter
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st, err := badgerstore.New(badgerstore.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	c, err := cache.NewMemory(1000, 1<<20)
	require.NoError(t, err)
	gen := generator.New(generator.DefaultConfig(), generator.WithRand(rand.New(rand.NewPCG(42, 7))))
	em := &recordingEmitter{}
	return fixture{store: st, svc: NewService(st, gen, c, time.Minute, em), emitter: em}
}

func (f fixture) member(t *testing.T, id, agentID string) {
	t.Helper()
	require.NoError(t, f.store.CreateMember(context.Background(), types.Member{
		ID: id, AgentID: agentID, Market: "D", Balance: decimal.NewFromInt(100000),
	}))
}

func (f fixture) bet(t *testing.T, p types.Period, id, member string, family enum.BetFamily, sel string, pos int) {
	t.Helper()
	_, err := f.store.PlaceBet(context.Background(), types.Bet{
		ID: id, MemberID: member, Period: p, Family: family, Selector: sel, Position: pos,
		Stake: decimal.NewFromInt(10), Odds: decimal.RequireFromString("9.85"),
	})
	require.NoError(t, err)
}

func period(seq int) types.Period {
	p, err := types.NewPeriod(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), seq)
	if err != nil {
		panic(err)
	}
	return p
}

func TestTriggerDrawPersistsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := period(1)

	first, err := f.svc.TriggerDraw(ctx, p, nil)
	require.NoError(t, err)
	require.NoError(t, first.Outcome.Validate())
	assert.Equal(t, string(generator.ModeUniform), first.Mode)
	assert.False(t, first.Controlled)
	assert.Equal(t, first.Outcome.Sum(), first.Sum)

	again, err := f.svc.TriggerDraw(ctx, p, nil)
	require.NoError(t, err)
	assert.Equal(t, first.Outcome, again.Outcome)
	assert.Equal(t, 1, f.emitter.draws)

	_, err = f.svc.TriggerDraw(ctx, types.Period{}, nil)
	assert.ErrorIs(t, err, types.ErrInvalidPeriod)
}

func TestConcurrentTriggerDrawAgrees(t *testing.T) {
	f := newFixture(t)
	p := period(2)
	results := make([]types.Outcome, 8)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := f.svc.TriggerDraw(context.Background(), p, nil)
			if assert.NoError(t, err) {
				results[i] = r.Outcome
			}
		}(i)
	}
	wg.Wait()
	for _, o := range results[1:] {
		assert.Equal(t, results[0], o)
	}
}

func TestMemberWinDirectiveSteersOutcome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.member(t, "vip", "")
	require.NoError(t, f.svc.SaveDirective(ctx, types.ControlDirective{
		ID: "boost", Scope: enum.ControlScopeMember, TargetID: "vip",
		Direction: enum.ControlDirectionWin, Strength: 100, Active: true,
	}))

	const draws = 50
	hits := 0
	for i := 1; i <= draws; i++ {
		p := period(i)
		f.bet(t, p, fmt.Sprintf("b%d", i), "vip", enum.BetFamilyNumber, "3", 1)
		r, err := f.svc.TriggerDraw(ctx, p, nil)
		require.NoError(t, err)
		assert.True(t, r.Controlled)
		assert.Equal(t, "boost", r.DirectiveID)
		if r.Outcome.At(1) == 3 {
			hits++
		}
	}
	assert.GreaterOrEqual(t, hits, 45)
}

func TestDirectiveForOtherMemberLeavesDrawUniform(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.member(t, "m1", "")
	p := period(3)
	f.bet(t, p, "b1", "m1", enum.BetFamilyNumber, "3", 1)

	r, err := f.svc.TriggerDraw(ctx, p, &types.ControlDirective{
		ID: "other", Scope: enum.ControlScopeMember, TargetID: "someone-else",
		Direction: enum.ControlDirectionLoss, Strength: 90, Active: true,
	})
	require.NoError(t, err)
	assert.False(t, r.Controlled)
	assert.Equal(t, string(generator.ModeUniform), r.Mode)
}

func TestAgentLineTargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.UpsertAgent(ctx, types.Agent{ID: "top", Mode: enum.RebateModeTakeAllRemaining}))
	require.NoError(t, f.store.UpsertAgent(ctx, types.Agent{ID: "sub", ParentID: "top", Mode: enum.RebateModePassThrough}))
	f.member(t, "m1", "sub")
	f.member(t, "m2", "")

	targets, err := f.svc.targets(ctx, &types.ControlDirective{Scope: enum.ControlScopeAgentLine, TargetID: "top"})
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"m1": {}}, targets.Members)
	assert.False(t, targets.All)

	targets, err = f.svc.targets(ctx, &types.ControlDirective{Scope: enum.ControlScopeGlobal})
	require.NoError(t, err)
	assert.True(t, targets.All)
}

func TestCoverageFallbackRaisesAlarm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.member(t, "m1", "")
	p := period(4)
	f.bet(t, p, "big", "m1", enum.BetFamilyPositionTwoSides, "big", 1)
	f.bet(t, p, "small", "m1", enum.BetFamilyPositionTwoSides, "small", 1)

	r, err := f.svc.TriggerDraw(ctx, p, &types.ControlDirective{
		ID: "all-lose", Scope: enum.ControlScopeGlobal,
		Direction: enum.ControlDirectionLoss, Strength: 80, Active: true,
	})
	require.NoError(t, err)
	require.NoError(t, r.Outcome.Validate())
	assert.Equal(t, string(generator.ModeFallback), r.Mode)
	require.Len(t, f.emitter.alarms, 1)
	assert.Contains(t, f.emitter.alarms[0], string(generator.StateCoverage))
}

func TestActiveDirectiveCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.activeDirective(ctx)
	require.NoError(t, err)
	assert.Nil(t, d)

	// a write that bypasses the service is not seen until invalidation
	require.NoError(t, f.store.SaveDirective(ctx, types.ControlDirective{
		ID: "d1", Scope: enum.ControlScopeGlobal, Direction: enum.ControlDirectionWin, Strength: 10, Active: true,
	}))
	d, err = f.svc.activeDirective(ctx)
	require.NoError(t, err)
	assert.Nil(t, d)

	require.NoError(t, f.svc.SetDirectiveActive(ctx, "d1", true))
	d, err = f.svc.activeDirective(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "d1", d.ID)

	require.NoError(t, f.svc.SetDirectiveActive(ctx, "d1", false))
	d, err = f.svc.activeDirective(ctx)
	require.NoError(t, err)
	assert.Nil(t, d)
}
