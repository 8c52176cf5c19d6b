package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fystack/draw-engine/internal/engine"
	"github.com/fystack/draw-engine/internal/settlement"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/fystack/draw-engine/pkg/retry"
	"github.com/robfig/cron/v3"
)

// closeGrace delays each draw slightly past the period boundary so bets
// placed on the closing edge have landed.
const closeGrace = time.Second

// periodSchedule fires once per period, closeGrace after it closes.
type periodSchedule struct {
	clock types.PeriodClock
}

func (s periodSchedule) Next(t time.Time) time.Time {
	_, end := s.clock.Window(s.clock.At(t))
	return end.Add(closeGrace)
}

// DrawWorker draws every period as soon as it closes and settles it.
type DrawWorker struct {
	BaseWorker
	cron  *cron.Cron
	retry retry.ExponentialConfig
	wg    sync.WaitGroup
}

func NewDrawWorker(ctx context.Context, e *engine.Engine) *DrawWorker {
	dw := &DrawWorker{BaseWorker: newBaseWorker(ctx, NameDraw, e)}
	log := cronLogger{dw.logger}
	dw.cron = cron.New(
		cron.WithLocation(e.Clock.Location()),
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)

	rc := e.Config.Engine.SettleRetry
	dw.retry = retry.ExponentialConfig{
		InitialInterval: rc.InitialInterval,
		MaxElapsedTime:  rc.MaxElapsedTime,
		Retryable:       types.Retryable,
	}
	if dw.retry.InitialInterval <= 0 {
		dw.retry.InitialInterval = retry.DefaultInterval
	}
	return dw
}

func (dw *DrawWorker) Start() {
	dw.cron.Schedule(periodSchedule{clock: dw.engine.Clock}, cron.FuncJob(func() {
		dw.tick(time.Now())
	}))
	dw.cron.Start()

	// the period that closed while the process was down
	dw.wg.Add(1)
	go func() {
		defer dw.wg.Done()
		dw.tick(time.Now())
	}()

	go func() {
		<-dw.ctx.Done()
		<-dw.cron.Stop().Done()
		dw.wg.Wait()
		close(dw.done)
	}()
	dw.logger.Info("Draw worker started", "interval", dw.engine.Clock.Interval().String())
}

// tick draws and settles the period that closed most recently before now.
func (dw *DrawWorker) tick(now time.Time) {
	period := dw.engine.Clock.Previous(dw.engine.Clock.At(now))
	if err := dw.drawAndSettle(period); err != nil {
		dw.logger.Error("Draw cycle failed, sweeper will retry settlement",
			"period", period.String(), "err", err)
	}
}

func (dw *DrawWorker) drawAndSettle(period types.Period) error {
	var result types.DrawResult
	err := retry.Exponential(dw.ctx, func() error {
		var err error
		result, err = dw.engine.TriggerDraw(dw.ctx, period, nil)
		return err
	}, dw.retryConfig("draw", period))
	if err != nil {
		return fmt.Errorf("draw: %w", err)
	}

	var res settlement.Result
	err = retry.Exponential(dw.ctx, func() error {
		var err error
		res, err = dw.engine.Settle(dw.ctx, period)
		return err
	}, dw.retryConfig("settle", period))
	if err != nil {
		return fmt.Errorf("settle: %w", err)
	}
	dw.logger.Info("Period closed",
		"period", period.String(),
		"outcome", result.Outcome.String(),
		"settled", res.Settled,
		"failed", res.Failed,
		"already_settled", res.AlreadySettled,
		"contended", res.Contended,
	)
	return nil
}

func (dw *DrawWorker) retryConfig(step string, period types.Period) retry.ExponentialConfig {
	cfg := dw.retry
	cfg.OnRetry = func(err error, next time.Duration) {
		dw.logger.Warn("Retrying "+step, "period", period.String(), "err", err, "next", next.String())
	}
	return cfg
}

// cronLogger adapts the worker's slog logger to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
