package types

import (
	"fmt"
	"time"

	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/shopspring/decimal"
)

type Bet struct {
	ID            string          `json:"id"`
	MemberID      string          `json:"member_id"`
	Period        Period          `json:"period"`
	Family        enum.BetFamily  `json:"family"`
	Selector      string          `json:"selector"`
	Position      int             `json:"position,omitempty"`
	PairPosition  int             `json:"pair_position,omitempty"`
	Stake         decimal.Decimal `json:"stake"`
	Odds          decimal.Decimal `json:"odds"`
	Status        enum.BetStatus  `json:"status"`
	Won           bool            `json:"won"`
	Payout        decimal.Decimal `json:"payout"`
	FailureReason string          `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	SettledAt     *time.Time      `json:"settled_at,omitempty"`
}

func (b Bet) Pending() bool { return b.Status == enum.BetStatusPending }

// BetSettlement is the final state applied to one bet by a settlement run.
type BetSettlement struct {
	BetID         string
	MemberID      string
	Status        enum.BetStatus
	Won           bool
	Payout        decimal.Decimal
	FailureReason string
}

// ControlDirective asks the generator to bias outcomes toward a win or a
// loss for the targeted bets. Strength is 0..100. Zero From/To periods mean
// the range is open on that side.
type ControlDirective struct {
	ID        string                `json:"id"`
	Scope     enum.ControlScope     `json:"scope"`
	TargetID  string                `json:"target_id,omitempty"`
	Direction enum.ControlDirection `json:"direction"`
	Strength  int                   `json:"strength"`
	From      Period                `json:"from"`
	To        Period                `json:"to"`
	Active    bool                  `json:"active"`
	CreatedAt time.Time             `json:"created_at"`
}

func (d ControlDirective) Validate() error {
	if !d.Scope.Valid() {
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidDirective, d.Scope)
	}
	if !d.Direction.Valid() {
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidDirective, d.Direction)
	}
	if d.Strength < 0 || d.Strength > 100 {
		return fmt.Errorf("%w: strength %d outside 0..100", ErrInvalidDirective, d.Strength)
	}
	if d.Scope != enum.ControlScopeGlobal && d.TargetID == "" {
		return fmt.Errorf("%w: scope %s needs a target", ErrInvalidDirective, d.Scope)
	}
	if !d.From.IsZero() && !d.To.IsZero() && d.To.Before(d.From) {
		return fmt.Errorf("%w: period range %s..%s is empty", ErrInvalidDirective, d.From, d.To)
	}
	return nil
}

// Applies reports whether the directive covers period p.
func (d ControlDirective) Applies(p Period) bool {
	if !d.Active || d.Strength == 0 {
		return false
	}
	if !d.From.IsZero() && p.Before(d.From) {
		return false
	}
	if !d.To.IsZero() && d.To.Before(p) {
		return false
	}
	return true
}

type SettlementRecord struct {
	Period       Period          `json:"period"`
	SettledCount int             `json:"settled_count"`
	FailedCount  int             `json:"failed_count"`
	TotalStake   decimal.Decimal `json:"total_stake"`
	TotalPayout  decimal.Decimal `json:"total_payout"`
	SettledAt    time.Time       `json:"settled_at"`
}

type LedgerEntry struct {
	ID            string               `json:"id"`
	ActorKind     enum.ActorKind       `json:"actor_kind"`
	ActorID       string               `json:"actor_id"`
	Type          enum.LedgerEntryType `json:"type"`
	Amount        decimal.Decimal      `json:"amount"`
	BalanceBefore decimal.Decimal      `json:"balance_before"`
	BalanceAfter  decimal.Decimal      `json:"balance_after"`
	Period        Period               `json:"period"`
	Reference     string               `json:"reference,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}

type Member struct {
	ID        string          `json:"id"`
	AgentID   string          `json:"agent_id"`
	Market    string          `json:"market"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}

// Agent is one node of the agent tree. RebateRate is a fraction of
// turnover (0.011 means 1.1%).
type Agent struct {
	ID         string          `json:"id"`
	ParentID   string          `json:"parent_id,omitempty"`
	Mode       enum.RebateMode `json:"mode"`
	RebateRate decimal.Decimal `json:"rebate_rate"`
	Market     string          `json:"market"`
	Balance    decimal.Decimal `json:"balance"`
	CreatedAt  time.Time       `json:"created_at"`
}

// AgentChain is a snapshot of a member's agents from the direct agent up to
// the root. Broken is set when a parent link points at a missing agent;
// BrokenAt names the missing id.
type AgentChain struct {
	MemberID string  `json:"member_id"`
	Market   string  `json:"market"`
	Agents   []Agent `json:"agents"`
	Broken   bool    `json:"broken"`
	BrokenAt string  `json:"broken_at,omitempty"`
}

type CommissionPayment struct {
	Period    Period          `json:"period"`
	MemberID  string          `json:"member_id"`
	AgentID   string          `json:"agent_id"`
	Rate      decimal.Decimal `json:"rate"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// RebateRecord marks that the rebate pool for (Period, MemberID) has been
// distributed. Distributed + Retained always equals PoolAmount.
type RebateRecord struct {
	Period      Period          `json:"period"`
	MemberID    string          `json:"member_id"`
	Turnover    decimal.Decimal `json:"turnover"`
	PoolRate    decimal.Decimal `json:"pool_rate"`
	PoolAmount  decimal.Decimal `json:"pool_amount"`
	Distributed decimal.Decimal `json:"distributed"`
	Retained    decimal.Decimal `json:"retained"`
	CreatedAt   time.Time       `json:"created_at"`
}

// RebateJob is queued once per (period, member) after settlement commits.
type RebateJob struct {
	Period   Period          `json:"period"`
	MemberID string          `json:"member_id"`
	Turnover decimal.Decimal `json:"turnover"`
}

func (j RebateJob) Key() string {
	return j.Period.String() + ":" + j.MemberID
}
