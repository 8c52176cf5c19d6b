package evaluator

import (
	"strconv"

	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/shopspring/decimal"
)

var (
	NumberOdds      = decimal.RequireFromString("9.85")
	TwoSidesOdds    = decimal.RequireFromString("1.985")
	DragonTigerOdds = decimal.RequireFromString("1.985")
)

var sumValueOdds = map[int]decimal.Decimal{
	3: decimal.RequireFromString("43"), 4: decimal.RequireFromString("21.5"),
	5: decimal.RequireFromString("14.33"), 6: decimal.RequireFromString("10.75"),
	7: decimal.RequireFromString("8.6"), 8: decimal.RequireFromString("7.16"),
	9: decimal.RequireFromString("6.14"), 10: decimal.RequireFromString("5.37"),
	11: decimal.RequireFromString("5.37"), 12: decimal.RequireFromString("6.14"),
	13: decimal.RequireFromString("7.16"), 14: decimal.RequireFromString("8.6"),
	15: decimal.RequireFromString("10.75"), 16: decimal.RequireFromString("14.33"),
	17: decimal.RequireFromString("21.5"), 18: decimal.RequireFromString("43"),
	19: decimal.RequireFromString("86"),
}

// DefaultOdds is the house odds table used when a bet arrives without odds.
func DefaultOdds(s Selector) decimal.Decimal {
	switch s.Family {
	case enum.BetFamilyNumber:
		return NumberOdds
	case enum.BetFamilyPositionTwoSides, enum.BetFamilySumTwoSides:
		return TwoSidesOdds
	case enum.BetFamilyDragonTiger:
		return DragonTigerOdds
	case enum.BetFamilySumValue:
		n, err := strconv.Atoi(s.Value)
		if err != nil {
			return decimal.Zero
		}
		return sumValueOdds[n]
	}
	return decimal.Zero
}
