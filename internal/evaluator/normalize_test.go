package evaluator

import (
	"testing"

	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		raw      RawBet
		family   enum.BetFamily
		selector string
		pos      int
		pair     int
		odds     string
	}{
		{"number with position", RawBet{BetType: "number", Value: "7", Position: "3"}, enum.BetFamilyNumber, "7", 3, 0, "9.85"},
		{"champion big chinese", RawBet{BetType: "冠軍", Value: "大"}, enum.BetFamilyPositionTwoSides, SelectorBig, 1, 0, "1.985"},
		{"tenth even", RawBet{BetType: "tenth", Value: "even"}, enum.BetFamilyPositionTwoSides, SelectorEven, 10, 0, "1.985"},
		{"runnerup number", RawBet{BetType: "runnerup", Value: "4"}, enum.BetFamilyNumber, "4", 2, 0, "9.85"},
		{"two sides", RawBet{BetType: "two_sides", Value: "5_單"}, enum.BetFamilyPositionTwoSides, SelectorOdd, 5, 0, "1.985"},
		{"sum value", RawBet{BetType: "sumValue", Value: "19"}, enum.BetFamilySumValue, "19", 0, 0, "86"},
		{"sum small chinese", RawBet{BetType: "冠亞和", Value: "小"}, enum.BetFamilySumTwoSides, SelectorSmall, 0, 0, "1.985"},
		{"dragon prefixed", RawBet{BetType: "dragonTiger", Value: "dragon_1_10"}, enum.BetFamilyDragonTiger, SelectorDragon, 1, 10, "1.985"},
		{"vs defaults to dragon", RawBet{BetType: "3_vs_8", Value: "3_vs_8"}, enum.BetFamilyDragonTiger, SelectorDragon, 3, 8, "1.985"},
		{"suffix side", RawBet{BetType: "龍虎", Value: "2_9_虎"}, enum.BetFamilyDragonTiger, SelectorTiger, 2, 9, "1.985"},
		{"explicit odds kept", RawBet{BetType: "number", Value: "1", Position: "1", Odds: "9.9"}, enum.BetFamilyNumber, "1", 1, 0, "9.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := tt.raw
			raw.MemberID = "m1"
			raw.Period = "20250716013"
			raw.Amount = "10"
			b, err := Normalize(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.family, b.Family)
			assert.Equal(t, tt.selector, b.Selector)
			assert.Equal(t, tt.pos, b.Position)
			assert.Equal(t, tt.pair, b.PairPosition)
			assert.Equal(t, tt.odds, b.Odds.String())
			assert.Equal(t, enum.BetStatusPending, b.Status)
			assert.NotEmpty(t, b.ID)
		})
	}
}

func TestNormalize_Rejects(t *testing.T) {
	base := RawBet{MemberID: "m1", Period: "20250716013", Amount: "10"}
	cases := map[string]func(r *RawBet){
		"unknown type":     func(r *RawBet) { r.BetType, r.Value = "keno", "1" },
		"bad period":       func(r *RawBet) { r.BetType, r.Value, r.Position, r.Period = "number", "1", "1", "2025-07-16" },
		"negative amount":  func(r *RawBet) { r.BetType, r.Value, r.Position, r.Amount = "number", "1", "1", "-5" },
		"number no pos":    func(r *RawBet) { r.BetType, r.Value = "number", "1" },
		"two sides no pos": func(r *RawBet) { r.BetType, r.Value = "two_sides", "big" },
		"dragon garbage":   func(r *RawBet) { r.BetType, r.Value = "dragon_tiger", "dragon" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			r := base
			mutate(&r)
			_, err := Normalize(r)
			assert.Error(t, err)
		})
	}

	r := base
	r.BetType, r.Value = "keno", "1"
	_, err := Normalize(r)
	assert.ErrorIs(t, err, types.ErrMalformedBet)
}
