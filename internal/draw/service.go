// Package draw turns a period into its persisted outcome: it loads open
// bets and the applicable control directive, runs the generator and stores
// the result once.
package draw

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fystack/draw-engine/internal/generator"
	"github.com/fystack/draw-engine/pkg/cache"
	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/logger"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/fystack/draw-engine/pkg/events"
	"github.com/fystack/draw-engine/pkg/store"
)

const activeDirectiveKey = "directive:active"

type Store interface {
	store.Results
	store.Bets
	store.Directives
	MembersUnder(ctx context.Context, agentID string) ([]string, error)
}

type Service struct {
	store     Store
	generator *generator.Generator
	cache     cache.Cache
	ttl       time.Duration
	emitter   events.Emitter
	now       func() time.Time
	logger    *slog.Logger
}

func NewService(st Store, gen *generator.Generator, c cache.Cache, ttl time.Duration, emitter events.Emitter) *Service {
	if emitter == nil {
		emitter = events.Nop{}
	}
	return &Service{
		store:     st,
		generator: gen,
		cache:     c,
		ttl:       ttl,
		emitter:   emitter,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With(slog.String("component", "draw")),
	}
}

// TriggerDraw draws period. When the period already has an outcome it is
// returned unchanged. override, when set, replaces the stored directive for
// this draw only.
func (s *Service) TriggerDraw(ctx context.Context, period types.Period, override *types.ControlDirective) (types.DrawResult, error) {
	if period.IsZero() {
		return types.DrawResult{}, types.ErrInvalidPeriod
	}
	existing, err := s.store.GetOutcome(ctx, period)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return types.DrawResult{}, fmt.Errorf("read outcome: %w", err)
	}

	bets, err := s.store.OpenBets(ctx, period)
	if err != nil {
		return types.DrawResult{}, fmt.Errorf("load open bets: %w", err)
	}

	directive := override
	if directive != nil {
		if err := directive.Validate(); err != nil {
			return types.DrawResult{}, err
		}
	} else if directive, err = s.activeDirective(ctx); err != nil {
		return types.DrawResult{}, err
	}

	req := generator.Request{Period: period, Bets: bets}
	if directive != nil && directive.Applies(period) {
		targets, err := s.targets(ctx, directive)
		if err != nil {
			return types.DrawResult{}, err
		}
		req.Directive, req.Targets = directive, targets
	}

	outcome, report := s.generator.Generate(req)
	result := types.DrawResult{
		Period:     period,
		Outcome:    outcome,
		Sum:        outcome.Sum(),
		Controlled: report.Mode == generator.ModeBiased,
		Mode:       string(report.Mode),
		DrawnAt:    s.now(),
	}
	if req.Directive != nil {
		result.DirectiveID = req.Directive.ID
	}
	if report.Mode == generator.ModeFallback {
		s.alarm(ctx, period, report)
	}

	stored, existed, err := s.store.PersistOutcome(ctx, result)
	if err != nil {
		return types.DrawResult{}, fmt.Errorf("persist outcome: %w", err)
	}
	if existed {
		s.logger.Info("Period was drawn concurrently, keeping the stored outcome", "period", period.String())
		return stored, nil
	}

	s.logger.Info("Period drawn",
		"period", period.String(),
		"outcome", stored.Outcome.String(),
		"mode", stored.Mode,
		"bets", len(bets),
		"claims", len(report.Claims),
	)
	if err := s.emitter.EmitDraw(ctx, stored); err != nil {
		s.logger.Warn("Emit draw event failed", "period", period.String(), "err", err)
	}
	return stored, nil
}

func (s *Service) alarm(ctx context.Context, period types.Period, report generator.Report) {
	reasons := make([]string, len(report.Fallbacks))
	for i, f := range report.Fallbacks {
		reasons[i] = fmt.Sprintf("%s %s: %s", f.State, f.Slice, f.Reason)
	}
	reason := strings.Join(reasons, "; ")
	s.logger.Warn("Control directive fell back", "period", period.String(), "reason", reason)
	if err := s.emitter.EmitAlarm(ctx, period, reason); err != nil {
		s.logger.Warn("Emit alarm failed", "period", period.String(), "err", err)
	}
}

func (s *Service) targets(ctx context.Context, d *types.ControlDirective) (generator.Targeting, error) {
	switch d.Scope {
	case enum.ControlScopeGlobal:
		return generator.Targeting{All: true}, nil
	case enum.ControlScopeMember:
		return generator.Targeting{Members: map[string]struct{}{d.TargetID: {}}}, nil
	case enum.ControlScopeAgentLine:
		members, err := s.store.MembersUnder(ctx, d.TargetID)
		if err != nil {
			return generator.Targeting{}, fmt.Errorf("resolve agent line %s: %w", d.TargetID, err)
		}
		set := make(map[string]struct{}, len(members))
		for _, m := range members {
			set[m] = struct{}{}
		}
		return generator.Targeting{Members: set}, nil
	}
	return generator.Targeting{}, fmt.Errorf("%w: scope %q", types.ErrInvalidDirective, d.Scope)
}

type cachedDirective struct {
	Directive *types.ControlDirective `json:"directive"`
}

func (s *Service) activeDirective(ctx context.Context) (*types.ControlDirective, error) {
	var cached cachedDirective
	found, err := s.cache.Get(ctx, activeDirectiveKey, &cached)
	if err != nil {
		s.logger.Warn("Directive cache read failed", "err", err)
	}
	if found && err == nil {
		return cached.Directive, nil
	}

	d, err := s.store.ActiveDirective(ctx)
	switch {
	case errors.Is(err, types.ErrNotFound):
		cached.Directive = nil
	case err != nil:
		return nil, fmt.Errorf("load active directive: %w", err)
	default:
		cached.Directive = &d
	}
	if err := s.cache.Set(ctx, activeDirectiveKey, cached, s.ttl); err != nil {
		s.logger.Warn("Directive cache write failed", "err", err)
	}
	return cached.Directive, nil
}

// SaveDirective stores d and invalidates the cached active directive.
func (s *Service) SaveDirective(ctx context.Context, d types.ControlDirective) error {
	if err := s.store.SaveDirective(ctx, d); err != nil {
		return err
	}
	return s.cache.Delete(ctx, activeDirectiveKey)
}

func (s *Service) SetDirectiveActive(ctx context.Context, id string, active bool) error {
	if err := s.store.SetDirectiveActive(ctx, id, active); err != nil {
		return err
	}
	return s.cache.Delete(ctx, activeDirectiveKey)
}
