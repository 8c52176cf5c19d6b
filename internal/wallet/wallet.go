// Package wallet is the balance service boundary used by settlement and
// rebate distribution: member debits and credits, bet placement and cached
// agent-chain snapshots.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fystack/draw-engine/internal/evaluator"
	"github.com/fystack/draw-engine/pkg/cache"
	"github.com/fystack/draw-engine/pkg/common/constant"
	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/logger"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/fystack/draw-engine/pkg/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store is the subset of store.Store the wallet needs.
type Store interface {
	store.Wallets
	store.Agents
	store.Bets
}

type Service struct {
	store  Store
	cache  cache.Cache
	ttl    time.Duration
	clock  types.PeriodClock
	now    func() time.Time
	logger *slog.Logger
}

func NewService(st Store, c cache.Cache, ttl time.Duration, clock types.PeriodClock) *Service {
	return &Service{
		store:  st,
		cache:  c,
		ttl:    ttl,
		clock:  clock,
		now:    time.Now,
		logger: logger.With(slog.String("component", "wallet")),
	}
}

func chainKey(memberID string) string { return "chain:" + memberID }

// Deduct takes amount from a member's balance.
func (s *Service) Deduct(ctx context.Context, memberID string, amount decimal.Decimal, reason string) (types.LedgerEntry, error) {
	if err := checkAmount(amount); err != nil {
		return types.LedgerEntry{}, err
	}
	return s.store.Adjust(ctx, enum.ActorMember, memberID, amount.Neg(), enum.LedgerManualAdjustment, reason)
}

// Credit adds amount to a member's balance.
func (s *Service) Credit(ctx context.Context, memberID string, amount decimal.Decimal, reason string) (types.LedgerEntry, error) {
	if err := checkAmount(amount); err != nil {
		return types.LedgerEntry{}, err
	}
	return s.store.Adjust(ctx, enum.ActorMember, memberID, amount, enum.LedgerManualAdjustment, reason)
}

// AdjustAgent moves an agent balance by a signed amount.
func (s *Service) AdjustAgent(ctx context.Context, agentID string, amount decimal.Decimal, reason string) (types.LedgerEntry, error) {
	if amount.IsZero() || amount.Exponent() < -constant.MoneyPlaces {
		return types.LedgerEntry{}, fmt.Errorf("invalid amount %s", amount)
	}
	return s.store.Adjust(ctx, enum.ActorAgent, agentID, amount, enum.LedgerManualAdjustment, reason)
}

func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", amount)
	}
	if !amount.Equal(amount.Round(constant.MoneyPlaces)) {
		return fmt.Errorf("amount %s has more than %d decimal places", amount, constant.MoneyPlaces)
	}
	return nil
}

// GetAgentChain returns the member's agent chain snapshot, from the cache
// when present.
func (s *Service) GetAgentChain(ctx context.Context, memberID string) (types.AgentChain, error) {
	var chain types.AgentChain
	found, err := s.cache.Get(ctx, chainKey(memberID), &chain)
	if err != nil {
		s.logger.Warn("Agent chain cache read failed", "member", memberID, "err", err)
	}
	if found && err == nil {
		return chain, nil
	}

	chain, err = s.store.AgentChain(ctx, memberID)
	if err != nil {
		return chain, err
	}
	// broken chains are not cached so a repaired tree is picked up at once
	if !chain.Broken {
		if err := s.cache.Set(ctx, chainKey(memberID), chain, s.ttl); err != nil {
			s.logger.Warn("Agent chain cache write failed", "member", memberID, "err", err)
		}
	}
	return chain, nil
}

func (s *Service) CreateMember(ctx context.Context, m types.Member) error {
	if m.ID == "" {
		return errors.New("member id is required")
	}
	if m.Balance.IsNegative() {
		return fmt.Errorf("opening balance %s is negative", m.Balance)
	}
	return s.store.CreateMember(ctx, m)
}

// UpsertAgent stores a and drops every cached chain that passes through it.
func (s *Service) UpsertAgent(ctx context.Context, a types.Agent) error {
	if a.ID == "" {
		return errors.New("agent id is required")
	}
	if !a.Mode.Valid() {
		return fmt.Errorf("agent %s: unknown rebate mode %q", a.ID, a.Mode)
	}
	if a.RebateRate.IsNegative() || a.RebateRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("agent %s: rebate rate %s outside [0, 1)", a.ID, a.RebateRate)
	}
	if a.ParentID == a.ID {
		return fmt.Errorf("agent %s cannot be its own parent", a.ID)
	}
	if err := s.store.UpsertAgent(ctx, a); err != nil {
		return err
	}
	return s.invalidateLine(ctx, a.ID)
}

func (s *Service) invalidateLine(ctx context.Context, agentID string) error {
	members, err := s.store.MembersUnder(ctx, agentID)
	if err != nil {
		return fmt.Errorf("list members under %s: %w", agentID, err)
	}
	if len(members) == 0 {
		return nil
	}
	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = chainKey(m)
	}
	return s.cache.Delete(ctx, keys...)
}

// PlaceBet validates bet, deducts its stake and stores it. Bets for a period
// whose betting window has ended are rejected.
func (s *Service) PlaceBet(ctx context.Context, bet types.Bet) (types.Bet, types.LedgerEntry, error) {
	if bet.ID == "" {
		bet.ID = uuid.NewString()
	}
	if err := evaluator.SelectorOf(bet).Validate(); err != nil {
		return bet, types.LedgerEntry{}, err
	}
	if err := checkAmount(bet.Stake); err != nil {
		return bet, types.LedgerEntry{}, fmt.Errorf("%w: stake: %v", types.ErrMalformedBet, err)
	}
	if bet.Odds.IsZero() {
		bet.Odds = evaluator.DefaultOdds(evaluator.SelectorOf(bet))
	}
	if !bet.Odds.IsPositive() {
		return bet, types.LedgerEntry{}, fmt.Errorf("%w: odds %s", types.ErrMalformedBet, bet.Odds)
	}
	if s.clock.Closed(bet.Period, s.now()) {
		return bet, types.LedgerEntry{}, fmt.Errorf("period %s: %w", bet.Period, types.ErrPeriodClosed)
	}
	entry, err := s.store.PlaceBet(ctx, bet)
	if err != nil {
		return bet, entry, err
	}
	bet.Status = enum.BetStatusPending
	return bet, entry, nil
}
