// Package evaluator decides whether a bet won against a drawn outcome and
// what it pays. Everything here is pure: no I/O, no clocks, no randomness.
package evaluator

import (
	"fmt"
	"strconv"

	"github.com/fystack/draw-engine/pkg/common/constant"
	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/shopspring/decimal"
)

const (
	SelectorBig    = "big"
	SelectorSmall  = "small"
	SelectorOdd    = "odd"
	SelectorEven   = "even"
	SelectorDragon = "dragon"
	SelectorTiger  = "tiger"
)

// Selector is the part of a bet that is checked against an outcome.
type Selector struct {
	Family       enum.BetFamily
	Value        string
	Position     int
	PairPosition int
}

func SelectorOf(bet types.Bet) Selector {
	return Selector{
		Family:       bet.Family,
		Value:        bet.Selector,
		Position:     bet.Position,
		PairPosition: bet.PairPosition,
	}
}

// Key identifies selectors that win or lose together.
func (s Selector) Key() string {
	switch s.Family {
	case enum.BetFamilyNumber, enum.BetFamilyPositionTwoSides:
		return fmt.Sprintf("%s:%d:%s", s.Family, s.Position, s.Value)
	case enum.BetFamilyDragonTiger:
		return fmt.Sprintf("%s:%d-%d:%s", s.Family, s.Position, s.PairPosition, s.Value)
	}
	return fmt.Sprintf("%s:%s", s.Family, s.Value)
}

func (s Selector) Validate() error {
	switch s.Family {
	case enum.BetFamilyNumber:
		if err := checkPosition(s.Position); err != nil {
			return err
		}
		if _, err := intInRange(s.Value, 1, types.Positions); err != nil {
			return err
		}
	case enum.BetFamilyPositionTwoSides:
		if err := checkPosition(s.Position); err != nil {
			return err
		}
		return checkTwoSides(s.Value)
	case enum.BetFamilySumValue:
		if _, err := intInRange(s.Value, types.MinSum, types.MaxSum); err != nil {
			return err
		}
	case enum.BetFamilySumTwoSides:
		return checkTwoSides(s.Value)
	case enum.BetFamilyDragonTiger:
		if err := checkPosition(s.Position); err != nil {
			return err
		}
		if err := checkPosition(s.PairPosition); err != nil {
			return err
		}
		if s.Position == s.PairPosition {
			return fmt.Errorf("%w: dragon/tiger compares position %d with itself", types.ErrMalformedBet, s.Position)
		}
		if s.Value != SelectorDragon && s.Value != SelectorTiger {
			return fmt.Errorf("%w: dragon/tiger selector %q", types.ErrMalformedBet, s.Value)
		}
	default:
		return fmt.Errorf("%w: unknown family %q", types.ErrMalformedBet, s.Family)
	}
	return nil
}

// Match reports whether outcome satisfies the selector. tie is only ever set
// for dragon/tiger when both positions hold the same number.
func Match(s Selector, outcome types.Outcome) (matched bool, tie bool, err error) {
	if err := s.Validate(); err != nil {
		return false, false, err
	}
	switch s.Family {
	case enum.BetFamilyNumber:
		n, _ := strconv.Atoi(s.Value)
		return outcome.At(s.Position) == n, false, nil
	case enum.BetFamilyPositionTwoSides:
		n := outcome.At(s.Position)
		return twoSides(s.Value, types.IsBig(n), types.IsOdd(n)), false, nil
	case enum.BetFamilySumValue:
		n, _ := strconv.Atoi(s.Value)
		return outcome.Sum() == n, false, nil
	case enum.BetFamilySumTwoSides:
		sum := outcome.Sum()
		return twoSides(s.Value, types.IsSumBig(sum), types.IsOdd(sum)), false, nil
	case enum.BetFamilyDragonTiger:
		a, b := outcome.At(s.Position), outcome.At(s.PairPosition)
		if a == b {
			return false, true, nil
		}
		if s.Value == SelectorDragon {
			return a > b, false, nil
		}
		return a < b, false, nil
	}
	return false, false, fmt.Errorf("%w: unknown family %q", types.ErrMalformedBet, s.Family)
}

type Policy struct {
	DragonTigerTie enum.TiePolicy
}

type Verdict struct {
	Won    bool
	Refund bool
	Payout decimal.Decimal
}

// Evaluate settles one bet against an outcome. A winning bet pays
// stake × odds rounded to cents; a losing bet pays nothing. Malformed bets
// return an error wrapping types.ErrMalformedBet and never panic.
func Evaluate(bet types.Bet, outcome types.Outcome, policy Policy) (Verdict, error) {
	if err := outcome.Validate(); err != nil {
		return Verdict{}, err
	}
	if !bet.Stake.IsPositive() {
		return Verdict{}, fmt.Errorf("%w: stake %s", types.ErrMalformedBet, bet.Stake)
	}
	if !bet.Odds.IsPositive() {
		return Verdict{}, fmt.Errorf("%w: odds %s", types.ErrMalformedBet, bet.Odds)
	}

	matched, tie, err := Match(SelectorOf(bet), outcome)
	if err != nil {
		return Verdict{}, err
	}
	if tie {
		if policy.DragonTigerTie == enum.TiePolicyRefund {
			return Verdict{Refund: true, Payout: bet.Stake}, nil
		}
		return Verdict{Payout: decimal.Zero}, nil
	}
	if !matched {
		return Verdict{Payout: decimal.Zero}, nil
	}
	return Verdict{Won: true, Payout: Payout(bet.Stake, bet.Odds)}, nil
}

func Payout(stake, odds decimal.Decimal) decimal.Decimal {
	return stake.Mul(odds).Round(constant.MoneyPlaces)
}

func twoSides(value string, big, odd bool) bool {
	switch value {
	case SelectorBig:
		return big
	case SelectorSmall:
		return !big
	case SelectorOdd:
		return odd
	case SelectorEven:
		return !odd
	}
	return false
}

func checkPosition(p int) error {
	if p < 1 || p > types.Positions {
		return fmt.Errorf("%w: position %d", types.ErrMalformedBet, p)
	}
	return nil
}

func checkTwoSides(v string) error {
	switch v {
	case SelectorBig, SelectorSmall, SelectorOdd, SelectorEven:
		return nil
	}
	return fmt.Errorf("%w: two-sides selector %q", types.ErrMalformedBet, v)
}

func intInRange(v string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("%w: %q not in %d..%d", types.ErrMalformedBet, v, lo, hi)
	}
	return n, nil
}
