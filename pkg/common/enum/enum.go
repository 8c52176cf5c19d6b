package enum

type BetFamily string
type BetStatus string
type ControlScope string
type ControlDirection string
type RebateMode string
type LedgerEntryType string
type ActorKind string
type StoreType string
type CacheType string
type TiePolicy string

const (
	BetFamilyNumber           BetFamily = "number"
	BetFamilyPositionTwoSides BetFamily = "position_two_sides"
	BetFamilySumValue         BetFamily = "sum_value"
	BetFamilySumTwoSides      BetFamily = "sum_two_sides"
	BetFamilyDragonTiger      BetFamily = "dragon_tiger"
)

const (
	BetStatusPending    BetStatus = "pending"
	BetStatusSettled    BetStatus = "settled"
	BetStatusEvalFailed BetStatus = "eval_failed"
)

const (
	ControlScopeGlobal    ControlScope = "global"
	ControlScopeMember    ControlScope = "member"
	ControlScopeAgentLine ControlScope = "agent_line"
)

const (
	ControlDirectionWin  ControlDirection = "win"
	ControlDirectionLoss ControlDirection = "loss"
)

const (
	RebateModeTakeAllRemaining RebateMode = "take_all_remaining"
	RebateModeTakeFixed        RebateMode = "take_fixed_percentage"
	RebateModePassThrough      RebateMode = "pass_through"
)

const (
	LedgerBetStake         LedgerEntryType = "bet_stake"
	LedgerPayout           LedgerEntryType = "payout"
	LedgerRebate           LedgerEntryType = "rebate"
	LedgerManualAdjustment LedgerEntryType = "manual_adjustment"
)

const (
	ActorMember ActorKind = "member"
	ActorAgent  ActorKind = "agent"
)

const (
	StoreTypeBadger   StoreType = "badger"
	StoreTypePostgres StoreType = "postgres"
)

const (
	CacheTypeRedis  CacheType = "redis"
	CacheTypeMemory CacheType = "memory"
)

const (
	TiePolicyLose   TiePolicy = "lose"
	TiePolicyRefund TiePolicy = "refund"
)

func (f BetFamily) Valid() bool {
	switch f {
	case BetFamilyNumber, BetFamilyPositionTwoSides, BetFamilySumValue, BetFamilySumTwoSides, BetFamilyDragonTiger:
		return true
	}
	return false
}

func (m RebateMode) Valid() bool {
	switch m {
	case RebateModeTakeAllRemaining, RebateModeTakeFixed, RebateModePassThrough:
		return true
	}
	return false
}

func (s ControlScope) Valid() bool {
	switch s {
	case ControlScopeGlobal, ControlScopeMember, ControlScopeAgentLine:
		return true
	}
	return false
}

func (d ControlDirection) Valid() bool {
	return d == ControlDirectionWin || d == ControlDirectionLoss
}
