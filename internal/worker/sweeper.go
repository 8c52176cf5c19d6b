package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/fystack/draw-engine/internal/engine"
	"github.com/fystack/draw-engine/pkg/common/config"
	"github.com/fystack/draw-engine/pkg/common/types"
)

const (
	defaultSweepInterval = time.Minute
	defaultSweepLookback = 50
)

// SweeperWorker settles drawn periods the draw worker left unsettled and
// re-enqueues rebate jobs for settled turnover that has no rebate record.
type SweeperWorker struct {
	BaseWorker
	interval time.Duration
	lookback int
	now      func() time.Time
}

func NewSweeperWorker(ctx context.Context, e *engine.Engine, cfg config.WorkerItem) *SweeperWorker {
	sw := &SweeperWorker{
		BaseWorker: newBaseWorker(ctx, NameSweeper, e),
		interval:   cfg.Interval,
		lookback:   cfg.Lookback,
		now:        time.Now,
	}
	if sw.interval <= 0 {
		sw.interval = defaultSweepInterval
	}
	if sw.lookback <= 0 {
		sw.lookback = defaultSweepLookback
	}
	return sw
}

func (sw *SweeperWorker) Start() {
	sw.logger.Info("Sweeper started", "interval", sw.interval.String(), "lookback", sw.lookback)
	go sw.run(sw.interval, sw.sweep)
}

func (sw *SweeperWorker) sweep() error {
	var errs types.MultiError
	if err := sw.settleMissing(); err != nil {
		errs.Add(err)
	}
	if err := sw.requeueRebates(); err != nil {
		errs.Add(err)
	}
	return errs.ErrOrNil()
}

func (sw *SweeperWorker) settleMissing() error {
	periods, err := sw.engine.Store.UnsettledPeriods(sw.ctx, sw.lookback)
	if err != nil {
		return fmt.Errorf("list unsettled periods: %w", err)
	}
	var errs types.MultiError
	for _, p := range periods {
		res, err := sw.engine.Settle(sw.ctx, p)
		if err != nil {
			errs.Add(fmt.Errorf("settle %s: %w", p, err))
			continue
		}
		if res.Contended || res.AlreadySettled {
			continue
		}
		sw.logger.Info("Swept unsettled period",
			"period", p.String(), "settled", res.Settled, "failed", res.Failed)
	}
	return errs.ErrOrNil()
}

// requeueRebates walks back lookback periods from the one open now.
func (sw *SweeperWorker) requeueRebates() error {
	var errs types.MultiError
	p := sw.engine.Clock.At(sw.now())
	for range sw.lookback {
		p = sw.engine.Clock.Previous(p)
		n, err := sw.engine.Settlement.EnqueuePendingRebates(sw.ctx, p)
		if err != nil {
			errs.Add(fmt.Errorf("requeue rebates %s: %w", p, err))
		}
		if n > 0 {
			sw.logger.Info("Requeued pending rebates", "period", p.String(), "jobs", n)
		}
	}
	return errs.ErrOrNil()
}
