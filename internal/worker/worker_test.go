package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fystack/draw-engine/internal/engine"
	"github.com/fystack/draw-engine/internal/evaluator"
	"github.com/fystack/draw-engine/internal/settlement"
	"github.com/fystack/draw-engine/pkg/common/config"
	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.Engine.Timezone = "UTC"
	cfg.Engine.SettleRetry = config.RetryCfg{InitialInterval: 5 * time.Millisecond, MaxElapsedTime: 100 * time.Millisecond}
	cfg.Storage.Badger.InMemory = true
	return cfg
}

func openEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New(context.Background(), testConfig())
	require.NoError(t, err)
	return e
}

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e := openEngine(t)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// seedBet stores a pending bet directly, bypassing the betting window so
// tests can bet on periods that already closed.
func seedBet(t *testing.T, e *engine.Engine, period types.Period) types.Bet {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.Wallet.UpsertAgent(ctx, types.Agent{ID: "root", Mode: enum.RebateModeTakeAllRemaining}))
	require.NoError(t, e.Wallet.CreateMember(ctx, types.Member{ID: "m1", AgentID: "root", Market: "D", Balance: decimal.NewFromInt(1000)}))
	bet := types.Bet{
		ID:       uuid.NewString(),
		MemberID: "m1",
		Period:   period,
		Family:   enum.BetFamilySumTwoSides,
		Selector: evaluator.SelectorOdd,
		Stake:    decimal.NewFromInt(100),
	}
	bet.Odds = evaluator.DefaultOdds(evaluator.SelectorOf(bet))
	_, err := e.Store.PlaceBet(ctx, bet)
	require.NoError(t, err)
	return bet
}

func TestPeriodScheduleFiresAfterClose(t *testing.T) {
	clock, err := types.NewPeriodClock(90*time.Second, time.UTC)
	require.NoError(t, err)
	s := periodSchedule{clock: clock}

	t0 := time.Date(2026, 3, 1, 10, 0, 30, 0, time.UTC)
	_, end := clock.Window(clock.At(t0))
	next := s.Next(t0)
	assert.Equal(t, end.Add(closeGrace), next)
	assert.True(t, next.After(t0))

	after := s.Next(next)
	assert.Equal(t, 90*time.Second, after.Sub(next))
	// fired inside the grace window, the closed period is the one before
	assert.Equal(t, clock.At(t0), clock.Previous(clock.At(next)))
}

func TestPeriodScheduleCrossesMidnight(t *testing.T) {
	clock, err := types.NewPeriodClock(90*time.Second, time.UTC)
	require.NoError(t, err)
	s := periodSchedule{clock: clock}

	late := time.Date(2026, 3, 1, 23, 59, 59, 0, time.UTC)
	next := s.Next(late)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC).Add(closeGrace), next)
}

func TestDrawWorkerTickDrawsAndSettlesClosedPeriod(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	now := time.Now()
	closed := e.Clock.Previous(e.Clock.At(now))
	seedBet(t, e, closed)

	dw := NewDrawWorker(ctx, e)
	dw.tick(now)

	result, err := e.Store.GetOutcome(ctx, closed)
	require.NoError(t, err)
	require.NoError(t, result.Outcome.Validate())

	rec, err := e.GetSettlementRecord(ctx, closed)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.SettledCount)

	// a second tick for the same period changes nothing
	dw.tick(now)
	again, err := e.Store.GetOutcome(ctx, closed)
	require.NoError(t, err)
	assert.Equal(t, result.Outcome, again.Outcome)
	rec2, err := e.GetSettlementRecord(ctx, closed)
	require.NoError(t, err)
	assert.Equal(t, rec.SettledCount, rec2.SettledCount)
	assert.True(t, rec.TotalPayout.Equal(rec2.TotalPayout))
}

func TestDrawWorkerStartStop(t *testing.T) {
	e := newTestEngine(t)
	dw := NewDrawWorker(context.Background(), e)
	dw.Start()

	stopped := make(chan struct{})
	go func() {
		dw.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("draw worker did not stop")
	}
}

func TestSweeperSettlesDrawnPeriods(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	closed := e.Clock.Previous(e.Clock.At(time.Now()))
	seedBet(t, e, closed)

	_, err := e.TriggerDraw(ctx, closed, nil)
	require.NoError(t, err)
	_, err = e.GetSettlementRecord(ctx, closed)
	require.ErrorIs(t, err, types.ErrNotFound)

	sw := NewSweeperWorker(ctx, e, config.WorkerItem{Lookback: 10})
	require.NoError(t, sw.sweep())

	rec, err := e.GetSettlementRecord(ctx, closed)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.SettledCount)

	periods, err := e.Store.UnsettledPeriods(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, periods)
}

func TestSweeperRequeuesPendingRebates(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	closed := e.Clock.Previous(e.Clock.At(time.Now()))
	seedBet(t, e, closed)

	_, err := e.TriggerDraw(ctx, closed, nil)
	require.NoError(t, err)
	// settle without a job queue so no rebate is distributed
	bare := settlement.NewExecutor(e.Store, nil, nil, settlement.Config{})
	_, err = bare.Settle(ctx, closed)
	require.NoError(t, err)
	_, err = e.Store.GetRebateRecord(ctx, closed, "m1")
	require.ErrorIs(t, err, types.ErrNotFound)

	sw := NewSweeperWorker(ctx, e, config.WorkerItem{Lookback: 5})
	require.NoError(t, sw.sweep())

	rec, err := e.Store.GetRebateRecord(ctx, closed, "m1")
	require.NoError(t, err)
	assert.True(t, rec.PoolAmount.Equal(decimal.RequireFromString("4.10")), rec.PoolAmount.String())

	// nothing left to requeue
	n, err := e.Settlement.EnqueuePendingRebates(ctx, closed)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweeperDefaults(t *testing.T) {
	e := newTestEngine(t)
	sw := NewSweeperWorker(context.Background(), e, config.WorkerItem{})
	assert.Equal(t, defaultSweepInterval, sw.interval)
	assert.Equal(t, defaultSweepLookback, sw.lookback)
}

func TestRebateWorkerWithoutNATSExits(t *testing.T) {
	e := newTestEngine(t)
	rw := NewRebateWorker(context.Background(), e)
	rw.Start()

	select {
	case <-rw.done:
	case <-time.After(time.Second):
		t.Fatal("rebate worker should exit without nats")
	}
	rw.Stop()
}

type fakeWorker struct {
	started, stopped atomic.Int32
}

func (f *fakeWorker) Start() { f.started.Add(1) }
func (f *fakeWorker) Stop()  { f.stopped.Add(1) }

func TestManagerStartStop(t *testing.T) {
	e := openEngine(t)
	m := NewManager(context.Background(), e)
	a, b := &fakeWorker{}, &fakeWorker{}
	m.AddWorkers(a, b)

	m.Start()
	m.Stop()

	for _, w := range []*fakeWorker{a, b} {
		assert.EqualValues(t, 1, w.started.Load())
		assert.EqualValues(t, 1, w.stopped.Load())
	}
	// the engine's store is closed with the manager
	_, err := e.Store.GetMember(context.Background(), "m1")
	assert.Error(t, err)
}

func TestManagerFromConfig(t *testing.T) {
	e := newTestEngine(t)
	cfg := config.WorkerCfg{
		Draw:    config.WorkerItem{Enabled: true},
		Sweeper: config.WorkerItem{Enabled: true, Interval: time.Second},
	}
	m := NewManagerFromConfig(context.Background(), e, cfg)
	require.Len(t, m.workers, 2)
	assert.IsType(t, &DrawWorker{}, m.workers[0])
	assert.IsType(t, &SweeperWorker{}, m.workers[1])
}

func TestManagerStopWithoutEngine(t *testing.T) {
	m := NewManager(context.Background(), nil)
	w := &fakeWorker{}
	m.AddWorkers(w)
	assert.NotPanics(t, m.Stop)
	assert.EqualValues(t, 1, w.stopped.Load())
}
