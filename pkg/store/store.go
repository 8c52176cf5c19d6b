// Package store defines the persistence boundary of the engine. Two backends
// implement it: an embedded Badger store and a Postgres store.
package store

import (
	"context"
	"errors"

	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/shopspring/decimal"
)

var (
	ErrDuplicate = errors.New("already exists")
	ErrKeyEmpty  = errors.New("key is empty")
)

type Store interface {
	Results
	Bets
	Settlements
	Wallets
	Agents
	Directives
	Rebates
	Name() string
	Close() error
}

// Results persists draw outcomes. An outcome is written at most once per
// period and there is no way to change it afterwards.
type Results interface {
	// PersistOutcome inserts r unless the period already has an outcome, in
	// which case the existing outcome is returned with existed set.
	PersistOutcome(ctx context.Context, r types.DrawResult) (stored types.DrawResult, existed bool, err error)
	GetOutcome(ctx context.Context, period types.Period) (types.DrawResult, error)
	// UnsettledPeriods lists drawn periods without a settlement record,
	// oldest first, looking back at most limit outcomes.
	UnsettledPeriods(ctx context.Context, limit int) ([]types.Period, error)
}

type Bets interface {
	// PlaceBet deducts the stake and stores the bet. It fails with
	// types.ErrPeriodClosed once the period has an outcome.
	PlaceBet(ctx context.Context, bet types.Bet) (types.LedgerEntry, error)
	ListBets(ctx context.Context, period types.Period) ([]types.Bet, error)
	OpenBets(ctx context.Context, period types.Period) ([]types.Bet, error)
}

type Settlements interface {
	GetSettlementRecord(ctx context.Context, period types.Period) (types.SettlementRecord, error)
	// Settle runs fn in one transaction scoped to period. Backends that can
	// lock return types.ErrPeriodBusy when another settlement of the same
	// period holds the lock; optimistic backends return types.ErrTxConflict
	// from commit instead.
	Settle(ctx context.Context, period types.Period, fn func(tx SettlementTx) error) error
}

type SettlementTx interface {
	RecordExists() (bool, error)
	// ClaimPendingBets returns the period's pending bets, skipping rows
	// another transaction holds.
	ClaimPendingBets() ([]types.Bet, error)
	// Credit adds amount to a member balance and writes one ledger entry.
	Credit(memberID string, amount decimal.Decimal, entryType enum.LedgerEntryType, reference string) (types.LedgerEntry, error)
	MarkBets(results []types.BetSettlement) error
	InsertRecord(rec types.SettlementRecord) error
}

type Wallets interface {
	CreateMember(ctx context.Context, m types.Member) error
	GetMember(ctx context.Context, id string) (types.Member, error)
	// Adjust changes the balance of a member or agent by amount and writes a
	// ledger entry. Resulting negative balances fail with
	// types.ErrInsufficientFunds.
	Adjust(ctx context.Context, kind enum.ActorKind, id string, amount decimal.Decimal, entryType enum.LedgerEntryType, reference string) (types.LedgerEntry, error)
	Balance(ctx context.Context, kind enum.ActorKind, id string) (decimal.Decimal, error)
	// Ledger returns an actor's entries in the order they were applied.
	Ledger(ctx context.Context, kind enum.ActorKind, id string) ([]types.LedgerEntry, error)
}

type Agents interface {
	UpsertAgent(ctx context.Context, a types.Agent) error
	GetAgent(ctx context.Context, id string) (types.Agent, error)
	// AgentChain materializes a member's agent chain from one consistent
	// snapshot.
	AgentChain(ctx context.Context, memberID string) (types.AgentChain, error)
	MembersUnder(ctx context.Context, agentID string) ([]string, error)
}

type Directives interface {
	// SaveDirective stores d. When d is active every other directive is
	// deactivated in the same transaction.
	SaveDirective(ctx context.Context, d types.ControlDirective) error
	SetDirectiveActive(ctx context.Context, id string, active bool) error
	ActiveDirective(ctx context.Context) (types.ControlDirective, error)
	ListDirectives(ctx context.Context) ([]types.ControlDirective, error)
}

type Rebates interface {
	// ApplyRebate credits every payment and stores rec in one transaction.
	// It returns false without changes when rec's (period, member) was
	// already applied.
	ApplyRebate(ctx context.Context, rec types.RebateRecord, payments []types.CommissionPayment) (bool, error)
	GetRebateRecord(ctx context.Context, period types.Period, memberID string) (types.RebateRecord, error)
	ListCommissions(ctx context.Context, period types.Period) ([]types.CommissionPayment, error)
	// PendingRebates lists settled turnover per member for period that has
	// no rebate record yet.
	PendingRebates(ctx context.Context, period types.Period) ([]types.RebateJob, error)
}

// Turnover sums settled stakes per member.
func Turnover(bets []types.Bet) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, b := range bets {
		if b.Status != enum.BetStatusSettled {
			continue
		}
		out[b.MemberID] = out[b.MemberID].Add(b.Stake)
	}
	return out
}
