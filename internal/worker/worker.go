package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/fystack/draw-engine/internal/engine"
	"github.com/fystack/draw-engine/pkg/common/logger"
)

type WorkerName string

const (
	NameDraw    WorkerName = "draw"
	NameSweeper WorkerName = "sweeper"
	NameRebate  WorkerName = "rebate"
)

const maxConsecutiveErrors = 5

type Worker interface {
	Start()
	Stop()
}

// BaseWorker is the common structure for any worker type
type BaseWorker struct {
	name   WorkerName
	engine *engine.Engine
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	logger *slog.Logger
}

func newBaseWorker(ctx context.Context, name WorkerName, e *engine.Engine) BaseWorker {
	ctx, cancel := context.WithCancel(ctx)
	return BaseWorker{
		name:   name,
		engine: e,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: logger.With(slog.String("worker", string(name))),
	}
}

// Stop cancels the worker and waits for its loop to return.
func (bw *BaseWorker) Stop() {
	bw.cancel()
	<-bw.done
	bw.logger.Info("Worker stopped")
}

// run executes job every interval until the worker is stopped. After
// maxConsecutiveErrors failures in a row it sits out one extra interval.
func (bw *BaseWorker) run(interval time.Duration, job func() error) {
	defer close(bw.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	errorCount := 0
	for {
		select {
		case <-bw.ctx.Done():
			bw.logger.Info("Context done, exiting run loop")
			return
		case <-ticker.C:
			if err := job(); err != nil {
				errorCount++
				bw.logger.Error("Job failed", "error", err, "consecutive_errors", errorCount)
				if errorCount >= maxConsecutiveErrors {
					bw.logger.Warn("Too many consecutive errors, backing off", "interval", interval)
					select {
					case <-bw.ctx.Done():
						return
					case <-time.After(interval):
					}
					errorCount = 0
				}
				continue
			}
			errorCount = 0
		}
	}
}
