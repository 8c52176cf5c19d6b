// Package rebate splits a member's per-period rebate pool up the agent
// chain.
package rebate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fystack/draw-engine/pkg/common/config"
	"github.com/fystack/draw-engine/pkg/common/constant"
	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/logger"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/fystack/draw-engine/pkg/events"
	"github.com/fystack/draw-engine/pkg/store"
	"github.com/shopspring/decimal"
)

type ChainSource interface {
	GetAgentChain(ctx context.Context, memberID string) (types.AgentChain, error)
}

type Config struct {
	// Markets maps a market tier to its pool rate as a fraction of turnover.
	Markets       map[string]decimal.Decimal
	DefaultMarket string
}

func ConfigFrom(c config.RebateCfg) Config {
	markets := make(map[string]decimal.Decimal, len(c.Markets))
	for k, v := range c.Markets {
		markets[k] = decimal.NewFromFloat(v)
	}
	return Config{Markets: markets, DefaultMarket: c.DefaultMarket}
}

func (c Config) poolRate(market string) (decimal.Decimal, error) {
	if r, ok := c.Markets[market]; ok {
		return r, nil
	}
	if r, ok := c.Markets[c.DefaultMarket]; ok {
		return r, nil
	}
	return decimal.Zero, fmt.Errorf("no pool rate for market %q", market)
}

type Distributor struct {
	store   store.Rebates
	chains  ChainSource
	emitter events.Emitter
	cfg     Config
	now     func() time.Time
	logger  *slog.Logger
}

func NewDistributor(st store.Rebates, chains ChainSource, emitter events.Emitter, cfg Config) *Distributor {
	if emitter == nil {
		emitter = events.Nop{}
	}
	return &Distributor{
		store:   st,
		chains:  chains,
		emitter: emitter,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.With(slog.String("component", "rebate")),
	}
}

// Plan is the computed split of one pool. Payments plus Retained always sum
// to Pool.
type Plan struct {
	Pool     decimal.Decimal
	Payments []types.CommissionPayment
	Retained decimal.Decimal
	// Warnings collects chain problems that cut the walk short.
	Warnings error
}

// Split walks chain from the member's direct agent upwards. Fixed-rate agents
// take turnover × their rate, limited by what is left of both the pool rate
// and the pool amount; a take-all agent takes the rest and ends the walk;
// pass-through agents take nothing. Whatever is left is retained.
func Split(period types.Period, chain types.AgentChain, turnover, poolRate decimal.Decimal) Plan {
	pool := turnover.Mul(poolRate).Round(constant.MoneyPlaces)
	plan := Plan{Pool: pool}
	remaining := pool
	remainingRate := poolRate
	var warnings types.MultiError

walk:
	for _, a := range chain.Agents {
		if !remaining.IsPositive() {
			break
		}
		var rate, amount decimal.Decimal
		switch a.Mode {
		case enum.RebateModePassThrough:
			continue
		case enum.RebateModeTakeAllRemaining:
			rate, amount = remainingRate, remaining
		case enum.RebateModeTakeFixed:
			rate = decimal.Min(a.RebateRate, remainingRate)
			amount = decimal.Min(turnover.Mul(rate).Round(constant.MoneyPlaces), remaining)
		default:
			warnings.Add(fmt.Errorf("agent %s: unknown rebate mode %q", a.ID, a.Mode))
			break walk
		}
		if amount.IsPositive() {
			plan.Payments = append(plan.Payments, types.CommissionPayment{
				Period:   period,
				MemberID: chain.MemberID,
				AgentID:  a.ID,
				Rate:     rate,
				Amount:   amount,
			})
			remaining = remaining.Sub(amount)
		}
		remainingRate = remainingRate.Sub(rate)
		if a.Mode == enum.RebateModeTakeAllRemaining {
			break
		}
	}
	if chain.Broken {
		warnings.Add(fmt.Errorf("%w: member %s, missing agent %s", types.ErrBrokenChain, chain.MemberID, chain.BrokenAt))
	}
	plan.Retained = remaining
	plan.Warnings = warnings.ErrOrNil()
	return plan
}

// Distribute pays out the rebate pool for (period, memberID). A pool that was
// already distributed is left alone and nil is returned.
func (d *Distributor) Distribute(ctx context.Context, period types.Period, memberID string, turnover decimal.Decimal) ([]types.CommissionPayment, error) {
	if turnover.IsNegative() {
		return nil, fmt.Errorf("negative turnover %s", turnover)
	}
	if _, err := d.store.GetRebateRecord(ctx, period, memberID); err == nil {
		return nil, nil
	} else if !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}

	chain, err := d.chains.GetAgentChain(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("agent chain for %s: %w", memberID, err)
	}
	rate, err := d.cfg.poolRate(chain.Market)
	if err != nil {
		return nil, err
	}

	plan := Split(period, chain, turnover, rate)
	if plan.Warnings != nil {
		// member payouts are never affected; the platform keeps the rest
		d.logger.Warn("Rebate chain incomplete", "period", period.String(), "member", memberID,
			"retained", plan.Retained.String(), "err", plan.Warnings)
	}

	rec := types.RebateRecord{
		Period:      period,
		MemberID:    memberID,
		Turnover:    turnover,
		PoolRate:    rate,
		PoolAmount:  plan.Pool,
		Distributed: plan.Pool.Sub(plan.Retained),
		Retained:    plan.Retained,
		CreatedAt:   d.now(),
	}
	applied, err := d.store.ApplyRebate(ctx, rec, plan.Payments)
	if err != nil {
		return nil, fmt.Errorf("apply rebate: %w", err)
	}
	if !applied {
		return nil, nil
	}
	d.logger.Info("Rebate distributed",
		"period", period.String(),
		"member", memberID,
		"pool", rec.PoolAmount.String(),
		"distributed", rec.Distributed.String(),
		"agents", len(plan.Payments),
	)
	if err := d.emitter.EmitRebate(ctx, rec); err != nil {
		d.logger.Warn("Emit rebate event failed", "period", period.String(), "member", memberID, "err", err)
	}
	return plan.Payments, nil
}
