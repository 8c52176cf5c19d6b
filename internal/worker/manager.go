package worker

import (
	"context"
	"sync"
	"time"

	"github.com/fystack/draw-engine/internal/engine"
	"github.com/fystack/draw-engine/pkg/common/config"
	"github.com/fystack/draw-engine/pkg/common/logger"
)

const defaultShutdownTimeout = 30 * time.Second

type Manager struct {
	ctx     context.Context
	engine  *engine.Engine
	workers []Worker
	timeout time.Duration
}

func NewManager(ctx context.Context, e *engine.Engine) *Manager {
	return &Manager{
		ctx:     ctx,
		engine:  e,
		timeout: defaultShutdownTimeout,
	}
}

// NewManagerFromConfig builds a manager running every worker cfg enables.
func NewManagerFromConfig(ctx context.Context, e *engine.Engine, cfg config.WorkerCfg) *Manager {
	m := NewManager(ctx, e)
	if cfg.Draw.Enabled {
		m.AddWorkers(NewDrawWorker(ctx, e))
	}
	if cfg.Sweeper.Enabled {
		m.AddWorkers(NewSweeperWorker(ctx, e, cfg.Sweeper))
	}
	if cfg.Rebate.Enabled {
		m.AddWorkers(NewRebateWorker(ctx, e))
	}
	return m
}

// Start launches all injected workers
func (m *Manager) Start() {
	for _, w := range m.workers {
		w.Start()
	}
	logger.Info("Workers started", "count", len(m.workers))
}

// Stop shuts down all workers concurrently with a timeout, then closes the engine.
func (m *Manager) Stop() {
	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, w := range m.workers {
			if w != nil {
				wg.Add(1)
				go func(w Worker) {
					defer wg.Done()
					w.Stop()
				}(w)
			}
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("All workers stopped")
	case <-time.After(m.timeout):
		logger.Warn("Worker shutdown timed out, proceeding with resource cleanup",
			"timeout", m.timeout)
	}

	if m.engine != nil {
		m.closeResource("engine", m.engine.Close)
	}
	logger.Info("Manager stopped")
}

func (m *Manager) closeResource(name string, closer func() error) {
	if err := closer(); err != nil {
		logger.Error("Failed to close "+name, "err", err)
	}
}

func (m *Manager) AddWorkers(workers ...Worker) {
	m.workers = append(m.workers, workers...)
}
