// Package engine wires the store, cache, messaging and domain services from
// configuration and exposes the draw, settle and record operations.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fystack/draw-engine/internal/draw"
	"github.com/fystack/draw-engine/internal/evaluator"
	"github.com/fystack/draw-engine/internal/generator"
	"github.com/fystack/draw-engine/internal/rebate"
	"github.com/fystack/draw-engine/internal/settlement"
	"github.com/fystack/draw-engine/internal/wallet"
	"github.com/fystack/draw-engine/pkg/cache"
	"github.com/fystack/draw-engine/pkg/common/config"
	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/logger"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/fystack/draw-engine/pkg/events"
	"github.com/fystack/draw-engine/pkg/infra"
	"github.com/fystack/draw-engine/pkg/store"
	"github.com/fystack/draw-engine/pkg/store/badgerstore"
	"github.com/fystack/draw-engine/pkg/store/pgstore"
	"github.com/nats-io/nats.go"
)

const rebateJobToken = "job"

type Engine struct {
	Config     config.Config
	Clock      types.PeriodClock
	Store      store.Store
	Cache      cache.Cache
	Emitter    events.Emitter
	Wallet     *wallet.Service
	Draw       *draw.Service
	Settlement *settlement.Executor
	Rebate     *rebate.Distributor

	nc     *nats.Conn
	queues *infra.NATSQueueManager
	logger *slog.Logger
}

// Option overrides a component that New would otherwise build from config.
type Option func(*options)

type options struct {
	store store.Store
	cache cache.Cache
	gen   *generator.Generator
}

func WithStore(s store.Store) Option { return func(o *options) { o.store = s } }
func WithCache(c cache.Cache) Option { return func(o *options) { o.cache = c } }
func WithGenerator(g *generator.Generator) Option { return func(o *options) { o.gen = g } }

func New(ctx context.Context, cfg config.Config, opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	clock, err := types.NewPeriodClock(cfg.Engine.DrawInterval, loc)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		Config: cfg,
		Clock:  clock,
		logger: logger.With(slog.String("component", "engine")),
	}
	ok := false
	defer func() {
		if !ok {
			_ = e.Close()
		}
	}()

	e.Store = o.store
	if e.Store == nil {
		if e.Store, err = OpenStore(ctx, cfg.Storage, cfg.Environment); err != nil {
			return nil, err
		}
	}
	e.Cache = o.cache
	if e.Cache == nil {
		if e.Cache, err = cache.NewFromConfig(cfg.Cache, cfg.Environment); err != nil {
			return nil, err
		}
	}

	e.Emitter = events.Nop{}
	if cfg.NATS.URL != "" {
		if e.nc, err = infra.NewNATSConnection(cfg.NATS, cfg.Environment); err != nil {
			return nil, err
		}
		if e.queues, err = infra.NewNATSQueueManager(ctx, cfg.NATS.Stream, e.nc); err != nil {
			return nil, err
		}
		e.Emitter = events.NewEmitter(e.queues.Publisher(), cfg.NATS.SubjectPrefix)
	}

	gen := o.gen
	if gen == nil {
		gen = generator.New(generator.ConfigFrom(cfg.Control))
	}
	e.Wallet = wallet.NewService(e.Store, e.Cache, cfg.Cache.TTL, clock)
	e.Draw = draw.NewService(e.Store, gen, e.Cache, cfg.Cache.TTL, e.Emitter)
	e.Rebate = rebate.NewDistributor(e.Store, e.Wallet, e.Emitter, rebate.ConfigFrom(cfg.Rebate))
	e.Settlement = settlement.NewExecutor(e.Store, e.jobQueue(), e.Emitter, settlement.Config{
		MaxConflictRetries: cfg.Engine.MaxConflictRetries,
		Policy:             evaluator.Policy{DragonTigerTie: cfg.Evaluation.DragonTigerTie},
	})

	ok = true
	logger.Info("Engine ready",
		"store", e.Store.Name(),
		"interval", cfg.Engine.DrawInterval.String(),
		"timezone", loc.String(),
		"nats", e.queues != nil,
	)
	return e, nil
}

// OpenStore opens the configured store backend.
func OpenStore(ctx context.Context, cfg config.StorageCfg, environment string) (store.Store, error) {
	switch cfg.Type {
	case enum.StoreTypeBadger:
		return badgerstore.New(badgerstore.Options{
			Directory: cfg.Badger.Directory,
			Prefix:    cfg.Badger.Prefix,
			InMemory:  cfg.Badger.InMemory,
		})
	case enum.StoreTypePostgres:
		return pgstore.Open(ctx, cfg.Postgres.URL, environment)
	}
	return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
}

// jobQueue publishes rebate jobs to JetStream when NATS is configured and
// distributes them inline otherwise.
func (e *Engine) jobQueue() settlement.JobQueue {
	if e.queues == nil {
		return inlineJobs{dist: e.Rebate}
	}
	return rebate.NewQueue(e.queues.Publisher(), e.RebateSubject())
}

func (e *Engine) RebateSubject() string {
	if e.queues == nil {
		return ""
	}
	return e.queues.Subject(e.Config.Rebate.Consumer, rebateJobToken)
}

// RebateConsumer opens the durable JetStream consumer the rebate worker reads.
func (e *Engine) RebateConsumer(ctx context.Context) (infra.MessageQueue, error) {
	if e.queues == nil {
		return nil, errors.New("rebate consumer needs nats")
	}
	return e.queues.NewMessageQueueWithBackoff(ctx, e.Config.Rebate.Consumer, e.Config.Rebate.Backoff, e.Config.Rebate.MaxDeliver)
}

type inlineJobs struct {
	dist *rebate.Distributor
}

func (j inlineJobs) EnqueueRebate(ctx context.Context, job types.RebateJob) error {
	_, err := j.dist.Distribute(ctx, job.Period, job.MemberID, job.Turnover)
	return err
}

func (e *Engine) TriggerDraw(ctx context.Context, period types.Period, override *types.ControlDirective) (types.DrawResult, error) {
	return e.Draw.TriggerDraw(ctx, period, override)
}

func (e *Engine) Settle(ctx context.Context, period types.Period) (settlement.Result, error) {
	return e.Settlement.Settle(ctx, period)
}

func (e *Engine) GetSettlementRecord(ctx context.Context, period types.Period) (types.SettlementRecord, error) {
	return e.Settlement.GetSettlementRecord(ctx, period)
}

// DrawAndSettle draws period and settles it right away.
func (e *Engine) DrawAndSettle(ctx context.Context, period types.Period) (types.DrawResult, settlement.Result, error) {
	result, err := e.TriggerDraw(ctx, period, nil)
	if err != nil {
		return result, settlement.Result{}, err
	}
	res, err := e.Settle(ctx, period)
	return result, res, err
}

func (e *Engine) Close() error {
	var errs types.MultiError
	if e.Emitter != nil {
		e.Emitter.Close()
	}
	if e.nc != nil {
		if err := e.nc.Drain(); err != nil {
			errs.Add(fmt.Errorf("drain nats: %w", err))
		}
	}
	if e.Cache != nil {
		if err := e.Cache.Close(); err != nil {
			errs.Add(fmt.Errorf("close cache: %w", err))
		}
	}
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			errs.Add(fmt.Errorf("close store: %w", err))
		}
	}
	return errs.ErrOrNil()
}
