package pgstore

import (
	"time"

	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/shopspring/decimal"
)

type drawResultRow struct {
	Period      types.Period `gorm:"primaryKey"`
	Outcome     string
	Sum         int
	Controlled  bool
	Mode        string
	DirectiveID *string
	DrawnAt     time.Time
}

func (drawResultRow) TableName() string { return "draw_results" }

func toDrawResultRow(r types.DrawResult) drawResultRow {
	return drawResultRow{
		Period:      r.Period,
		Outcome:     r.Outcome.String(),
		Sum:         r.Outcome.Sum(),
		Controlled:  r.Controlled,
		Mode:        r.Mode,
		DirectiveID: nullable(r.DirectiveID),
		DrawnAt:     r.DrawnAt,
	}
}

func (r drawResultRow) model() (types.DrawResult, error) {
	outcome, err := types.ParseOutcome(r.Outcome)
	if err != nil {
		return types.DrawResult{}, err
	}
	return types.DrawResult{
		Period:      r.Period,
		Outcome:     outcome,
		Sum:         r.Sum,
		Controlled:  r.Controlled,
		Mode:        r.Mode,
		DirectiveID: deref(r.DirectiveID),
		DrawnAt:     r.DrawnAt,
	}, nil
}

type betRow struct {
	ID            string `gorm:"primaryKey"`
	MemberID      string
	Period        types.Period
	Family        enum.BetFamily
	Selector      string
	Position      int
	PairPosition  int
	Stake         decimal.Decimal
	Odds          decimal.Decimal
	Status        enum.BetStatus
	Won           bool
	Payout        decimal.Decimal
	FailureReason *string
	CreatedAt     time.Time
	SettledAt     *time.Time
}

func (betRow) TableName() string { return "bets" }

func toBetRow(b types.Bet) betRow {
	return betRow{
		ID:            b.ID,
		MemberID:      b.MemberID,
		Period:        b.Period,
		Family:        b.Family,
		Selector:      b.Selector,
		Position:      b.Position,
		PairPosition:  b.PairPosition,
		Stake:         b.Stake,
		Odds:          b.Odds,
		Status:        b.Status,
		Won:           b.Won,
		Payout:        b.Payout,
		FailureReason: nullable(b.FailureReason),
		CreatedAt:     b.CreatedAt,
		SettledAt:     b.SettledAt,
	}
}

func (r betRow) model() types.Bet {
	return types.Bet{
		ID:            r.ID,
		MemberID:      r.MemberID,
		Period:        r.Period,
		Family:        r.Family,
		Selector:      r.Selector,
		Position:      r.Position,
		PairPosition:  r.PairPosition,
		Stake:         r.Stake,
		Odds:          r.Odds,
		Status:        r.Status,
		Won:           r.Won,
		Payout:        r.Payout,
		FailureReason: deref(r.FailureReason),
		CreatedAt:     r.CreatedAt,
		SettledAt:     r.SettledAt,
	}
}

type settlementRow struct {
	Period       types.Period `gorm:"primaryKey"`
	SettledCount int
	FailedCount  int
	TotalStake   decimal.Decimal
	TotalPayout  decimal.Decimal
	SettledAt    time.Time
}

func (settlementRow) TableName() string { return "settlement_records" }

type memberRow struct {
	ID        string `gorm:"primaryKey"`
	AgentID   *string
	Market    string
	Balance   decimal.Decimal
	CreatedAt time.Time
}

func (memberRow) TableName() string { return "members" }

func (r memberRow) model() types.Member {
	return types.Member{
		ID:        r.ID,
		AgentID:   deref(r.AgentID),
		Market:    r.Market,
		Balance:   r.Balance,
		CreatedAt: r.CreatedAt,
	}
}

type agentRow struct {
	ID         string `gorm:"primaryKey"`
	ParentID   *string
	Mode       enum.RebateMode
	RebateRate decimal.Decimal
	Market     *string
	Balance    decimal.Decimal
	CreatedAt  time.Time
}

func (agentRow) TableName() string { return "agents" }

func (r agentRow) model() types.Agent {
	return types.Agent{
		ID:         r.ID,
		ParentID:   deref(r.ParentID),
		Mode:       r.Mode,
		RebateRate: r.RebateRate,
		Market:     deref(r.Market),
		Balance:    r.Balance,
		CreatedAt:  r.CreatedAt,
	}
}

type ledgerRow struct {
	Seq           int64 `gorm:"primaryKey;autoIncrement"`
	ID            string
	ActorKind     enum.ActorKind
	ActorID       string
	Type          enum.LedgerEntryType
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Period        types.Period
	Reference     *string
	CreatedAt     time.Time
}

func (ledgerRow) TableName() string { return "ledger_entries" }

func (r ledgerRow) model() types.LedgerEntry {
	return types.LedgerEntry{
		ID:            r.ID,
		ActorKind:     r.ActorKind,
		ActorID:       r.ActorID,
		Type:          r.Type,
		Amount:        r.Amount,
		BalanceBefore: r.BalanceBefore,
		BalanceAfter:  r.BalanceAfter,
		Period:        r.Period,
		Reference:     deref(r.Reference),
		CreatedAt:     r.CreatedAt,
	}
}

type directiveRow struct {
	ID         string `gorm:"primaryKey"`
	Scope      enum.ControlScope
	TargetID   *string
	Direction  enum.ControlDirection
	Strength   int
	FromPeriod types.Period
	ToPeriod   types.Period
	Active     bool
	CreatedAt  time.Time
}

func (directiveRow) TableName() string { return "control_directives" }

func toDirectiveRow(d types.ControlDirective) directiveRow {
	return directiveRow{
		ID:         d.ID,
		Scope:      d.Scope,
		TargetID:   nullable(d.TargetID),
		Direction:  d.Direction,
		Strength:   d.Strength,
		FromPeriod: d.From,
		ToPeriod:   d.To,
		Active:     d.Active,
		CreatedAt:  d.CreatedAt,
	}
}

func (r directiveRow) model() types.ControlDirective {
	return types.ControlDirective{
		ID:        r.ID,
		Scope:     r.Scope,
		TargetID:  deref(r.TargetID),
		Direction: r.Direction,
		Strength:  r.Strength,
		From:      r.FromPeriod,
		To:        r.ToPeriod,
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
	}
}

type rebateRow struct {
	Period      types.Period `gorm:"primaryKey"`
	MemberID    string       `gorm:"primaryKey"`
	Turnover    decimal.Decimal
	PoolRate    decimal.Decimal
	PoolAmount  decimal.Decimal
	Distributed decimal.Decimal
	Retained    decimal.Decimal
	CreatedAt   time.Time
}

func (rebateRow) TableName() string { return "rebate_records" }

type commissionRow struct {
	Period    types.Period `gorm:"primaryKey"`
	MemberID  string       `gorm:"primaryKey"`
	AgentID   string       `gorm:"primaryKey"`
	Rate      decimal.Decimal
	Amount    decimal.Decimal
	CreatedAt time.Time
}

func (commissionRow) TableName() string { return "commission_payments" }

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
