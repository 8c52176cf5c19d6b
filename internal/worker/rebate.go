package worker

import (
	"context"

	"github.com/fystack/draw-engine/internal/engine"
	"github.com/fystack/draw-engine/pkg/infra"
	"github.com/fystack/draw-engine/pkg/retry"
)

// RebateWorker consumes rebate jobs from the JetStream work queue. Jobs the
// distributor rejects as permanent are terminated; anything else is
// redelivered on the consumer's backoff schedule.
type RebateWorker struct {
	BaseWorker
}

func NewRebateWorker(ctx context.Context, e *engine.Engine) *RebateWorker {
	return &RebateWorker{BaseWorker: newBaseWorker(ctx, NameRebate, e)}
}

func (rw *RebateWorker) Start() {
	go func() {
		defer close(rw.done)

		subject := rw.engine.RebateSubject()
		if subject == "" {
			rw.logger.Warn("NATS not configured, rebate jobs are distributed inline")
			return
		}

		var mq infra.MessageQueue
		err := retry.Constant(rw.ctx, func() error {
			var err error
			mq, err = rw.engine.RebateConsumer(rw.ctx)
			return err
		}, retry.DefaultInterval, retry.DefaultMaxAttempts)
		if err != nil {
			rw.logger.Error("Open rebate consumer failed", "err", err)
			return
		}
		defer mq.Close()

		if err := mq.Dequeue(subject, func(message []byte) error {
			return rw.engine.Rebate.Handle(rw.ctx, message)
		}); err != nil {
			rw.logger.Error("Consume rebate jobs failed", "subject", subject, "err", err)
			return
		}
		rw.logger.Info("Rebate worker consuming", "subject", subject)
		<-rw.ctx.Done()
	}()
}
