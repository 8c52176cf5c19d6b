package evaluator

import (
	"testing"

	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scenario = types.Outcome{3, 9, 1, 7, 2, 8, 6, 4, 10, 5}

func bet(family enum.BetFamily, value string, pos, pair int, stake, odds string) types.Bet {
	return types.Bet{
		ID:           "b",
		MemberID:     "m",
		Family:       family,
		Selector:     value,
		Position:     pos,
		PairPosition: pair,
		Stake:        decimal.RequireFromString(stake),
		Odds:         decimal.RequireFromString(odds),
		Status:       enum.BetStatusPending,
	}
}

func TestEvaluate_Scenario(t *testing.T) {
	tests := []struct {
		name   string
		bet    types.Bet
		won    bool
		payout string
	}{
		{"number hit on position 9", bet(enum.BetFamilyNumber, "10", 9, 0, "100", "9.85"), true, "985"},
		{"number miss on position 1", bet(enum.BetFamilyNumber, "4", 1, 0, "100", "9.85"), false, "0"},
		{"champion small", bet(enum.BetFamilyPositionTwoSides, SelectorSmall, 1, 0, "10", "1.985"), true, "19.85"},
		{"champion big", bet(enum.BetFamilyPositionTwoSides, SelectorBig, 1, 0, "10", "1.985"), false, "0"},
		{"runner-up odd", bet(enum.BetFamilyPositionTwoSides, SelectorOdd, 2, 0, "10", "1.985"), true, "19.85"},
		{"runner-up even", bet(enum.BetFamilyPositionTwoSides, SelectorEven, 2, 0, "10", "1.985"), false, "0"},
		{"position 6 big", bet(enum.BetFamilyPositionTwoSides, SelectorBig, 6, 0, "3", "1.985"), true, "5.96"},
		{"sum value 12", bet(enum.BetFamilySumValue, "12", 0, 0, "10", "6.14"), true, "61.4"},
		{"sum value 11", bet(enum.BetFamilySumValue, "11", 0, 0, "10", "5.37"), false, "0"},
		{"sum 12 is big", bet(enum.BetFamilySumTwoSides, SelectorBig, 0, 0, "10", "1.985"), true, "19.85"},
		{"sum 12 is not small", bet(enum.BetFamilySumTwoSides, SelectorSmall, 0, 0, "10", "1.985"), false, "0"},
		{"sum 12 is even", bet(enum.BetFamilySumTwoSides, SelectorEven, 0, 0, "10", "1.985"), true, "19.85"},
		{"1 vs 10 tiger", bet(enum.BetFamilyDragonTiger, SelectorTiger, 1, 10, "10", "1.985"), true, "19.85"},
		{"1 vs 10 dragon", bet(enum.BetFamilyDragonTiger, SelectorDragon, 1, 10, "10", "1.985"), false, "0"},
		{"2 vs 9 dragon", bet(enum.BetFamilyDragonTiger, SelectorDragon, 2, 9, "10", "1.985"), false, "0"},
		{"4 vs 7 dragon", bet(enum.BetFamilyDragonTiger, SelectorDragon, 4, 7, "10", "1.985"), true, "19.85"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Evaluate(tt.bet, scenario, Policy{})
			require.NoError(t, err)
			assert.Equal(t, tt.won, v.Won)
			assert.True(t, decimal.RequireFromString(tt.payout).Equal(v.Payout), "payout %s", v.Payout)
		})
	}
}

func TestEvaluate_SumBoundaries(t *testing.T) {
	small := types.Outcome{5, 6, 1, 2, 3, 4, 7, 8, 9, 10} // sum 11
	big := types.Outcome{5, 7, 1, 2, 3, 4, 6, 8, 9, 10}   // sum 12

	b := bet(enum.BetFamilySumTwoSides, SelectorSmall, 0, 0, "1", "2")
	v, err := Evaluate(b, small, Policy{})
	require.NoError(t, err)
	assert.True(t, v.Won)

	v, err = Evaluate(b, big, Policy{})
	require.NoError(t, err)
	assert.False(t, v.Won)
}

func TestEvaluate_PositionBoundaries(t *testing.T) {
	o := types.Outcome{5, 6, 1, 2, 3, 4, 7, 8, 9, 10}

	v, err := Evaluate(bet(enum.BetFamilyPositionTwoSides, SelectorSmall, 1, 0, "1", "2"), o, Policy{})
	require.NoError(t, err)
	assert.True(t, v.Won, "5 is small")

	v, err = Evaluate(bet(enum.BetFamilyPositionTwoSides, SelectorBig, 2, 0, "1", "2"), o, Policy{})
	require.NoError(t, err)
	assert.True(t, v.Won, "6 is big")
}

func TestEvaluate_EveryNumberAtEveryPosition(t *testing.T) {
	for pos := 1; pos <= types.Positions; pos++ {
		winners := 0
		for n := 1; n <= types.Positions; n++ {
			v, err := Evaluate(bet(enum.BetFamilyNumber, decimal.NewFromInt(int64(n)).String(), pos, 0, "1", "9.85"), scenario, Policy{})
			require.NoError(t, err)
			if v.Won {
				winners++
				assert.Equal(t, scenario.At(pos), n)
			}
		}
		assert.Equal(t, 1, winners, "position %d", pos)
	}
}

func TestEvaluate_Malformed(t *testing.T) {
	tests := []struct {
		name string
		bet  types.Bet
	}{
		{"position 0", bet(enum.BetFamilyNumber, "3", 0, 0, "1", "9.85")},
		{"position 11", bet(enum.BetFamilyPositionTwoSides, SelectorBig, 11, 0, "1", "1.985")},
		{"number 11", bet(enum.BetFamilyNumber, "11", 1, 0, "1", "9.85")},
		{"sum 20", bet(enum.BetFamilySumValue, "20", 0, 0, "1", "2")},
		{"unknown two-sides", bet(enum.BetFamilySumTwoSides, "huge", 0, 0, "1", "2")},
		{"dragon same position", bet(enum.BetFamilyDragonTiger, SelectorDragon, 3, 3, "1", "2")},
		{"dragon bad side", bet(enum.BetFamilyDragonTiger, "phoenix", 1, 2, "1", "2")},
		{"unknown family", bet("keno", "1", 1, 0, "1", "2")},
		{"zero stake", bet(enum.BetFamilyNumber, "3", 1, 0, "0", "9.85")},
		{"zero odds", bet(enum.BetFamilyNumber, "3", 1, 0, "1", "0")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(tt.bet, scenario, Policy{})
			assert.ErrorIs(t, err, types.ErrMalformedBet)
		})
	}
}

func TestEvaluate_RejectsInvalidOutcome(t *testing.T) {
	_, err := Evaluate(bet(enum.BetFamilyNumber, "3", 1, 0, "1", "9.85"), types.Outcome{1, 1, 2, 3, 4, 5, 6, 7, 8, 9}, Policy{})
	assert.ErrorIs(t, err, types.ErrInvalidOutcome)
}

func TestMatch_DragonTigerTie(t *testing.T) {
	// Not reachable with a valid permutation; Match reports it for callers
	// that probe partial outcomes.
	o := types.Outcome{4, 4, 1, 2, 3, 5, 6, 7, 8, 9}
	matched, tie, err := Match(Selector{Family: enum.BetFamilyDragonTiger, Value: SelectorDragon, Position: 1, PairPosition: 2}, o)
	require.NoError(t, err)
	assert.False(t, matched)
	assert.True(t, tie)
}

func TestPayout_Rounding(t *testing.T) {
	assert.Equal(t, "5.96", Payout(decimal.RequireFromString("3"), decimal.RequireFromString("1.985")).StringFixed(2))
	assert.Equal(t, "0.20", Payout(decimal.RequireFromString("0.1"), decimal.RequireFromString("1.985")).StringFixed(2))
}
