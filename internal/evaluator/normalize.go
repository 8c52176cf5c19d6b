package evaluator

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RawBet is a bet as it arrives from the betting front end, with free-text
// type and value fields in English or Chinese.
type RawBet struct {
	ID       string `json:"id"`
	MemberID string `json:"member_id"`
	Period   string `json:"period"`
	BetType  string `json:"bet_type"`
	Value    string `json:"value"`
	Position string `json:"position"`
	Amount   string `json:"amount"`
	Odds     string `json:"odds"`
}

var positionNames = map[string]int{
	"冠軍": 1, "champion": 1,
	"亞軍": 2, "runnerup": 2,
	"季軍": 3, "第三名": 3, "third": 3,
	"第四名": 4, "fourth": 4,
	"第五名": 5, "fifth": 5,
	"第六名": 6, "sixth": 6,
	"第七名": 7, "seventh": 7,
	"第八名": 8, "eighth": 8,
	"第九名": 9, "ninth": 9,
	"第十名": 10, "tenth": 10,
}

var valueNames = map[string]string{
	"大": SelectorBig,
	"小": SelectorSmall,
	"單": SelectorOdd,
	"雙": SelectorEven,
	"龍": SelectorDragon,
	"虎": SelectorTiger,
}

// Normalize turns a raw bet into the closed bet variant. It is the only
// place that interprets bet type strings.
func Normalize(raw RawBet) (types.Bet, error) {
	period, err := types.ParsePeriod(raw.Period)
	if err != nil {
		return types.Bet{}, err
	}
	stake, err := decimal.NewFromString(strings.TrimSpace(raw.Amount))
	if err != nil || !stake.IsPositive() {
		return types.Bet{}, fmt.Errorf("%w: amount %q", types.ErrMalformedBet, raw.Amount)
	}

	sel, err := parseSelector(strings.TrimSpace(raw.BetType), canonicalValue(raw.Value), strings.TrimSpace(raw.Position))
	if err != nil {
		return types.Bet{}, err
	}
	if err := sel.Validate(); err != nil {
		return types.Bet{}, err
	}

	odds := DefaultOdds(sel)
	if strings.TrimSpace(raw.Odds) != "" {
		odds, err = decimal.NewFromString(strings.TrimSpace(raw.Odds))
		if err != nil || !odds.IsPositive() {
			return types.Bet{}, fmt.Errorf("%w: odds %q", types.ErrMalformedBet, raw.Odds)
		}
	}

	id := raw.ID
	if id == "" {
		id = uuid.NewString()
	}
	return types.Bet{
		ID:           id,
		MemberID:     raw.MemberID,
		Period:       period,
		Family:       sel.Family,
		Selector:     sel.Value,
		Position:     sel.Position,
		PairPosition: sel.PairPosition,
		Stake:        stake,
		Odds:         odds,
		Status:       enum.BetStatusPending,
		Payout:       decimal.Zero,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

func canonicalValue(v string) string {
	v = strings.TrimSpace(v)
	if mapped, ok := valueNames[v]; ok {
		return mapped
	}
	return strings.ToLower(v)
}

func parseSelector(betType, value, position string) (Selector, error) {
	switch {
	case betType == "number":
		p, err := strconv.Atoi(position)
		if err != nil {
			return Selector{}, fmt.Errorf("%w: number bet without position", types.ErrMalformedBet)
		}
		return Selector{Family: enum.BetFamilyNumber, Value: value, Position: p}, nil

	case positionNames[betType] > 0:
		p := positionNames[betType]
		if isDigits(value) {
			return Selector{Family: enum.BetFamilyNumber, Value: value, Position: p}, nil
		}
		return Selector{Family: enum.BetFamilyPositionTwoSides, Value: value, Position: p}, nil

	case betType == "兩面" || betType == "two_sides":
		pos, side, ok := strings.Cut(value, "_")
		p, err := strconv.Atoi(pos)
		if !ok || err != nil {
			return Selector{}, fmt.Errorf("%w: two-sides value %q", types.ErrMalformedBet, value)
		}
		return Selector{Family: enum.BetFamilyPositionTwoSides, Value: canonicalValue(side), Position: p}, nil

	case betType == "sum" || betType == "sumValue" || betType == "冠亞和":
		if isDigits(value) {
			return Selector{Family: enum.BetFamilySumValue, Value: value}, nil
		}
		return Selector{Family: enum.BetFamilySumTwoSides, Value: value}, nil

	case isDragonTigerType(betType):
		return parseDragonTiger(value)
	}
	return Selector{}, fmt.Errorf("%w: unknown bet type %q", types.ErrMalformedBet, betType)
}

func isDragonTigerType(t string) bool {
	for _, s := range []string{"dragon", "tiger", "龍", "虎", "_vs_", "對戰"} {
		if strings.Contains(t, s) {
			return true
		}
	}
	return false
}

// parseDragonTiger accepts dragon_1_10, tiger_1_10, 1_vs_10 and 1_10_tiger.
func parseDragonTiger(value string) (Selector, error) {
	var side, a, b string
	switch {
	case strings.HasPrefix(value, SelectorDragon+"_") || strings.HasPrefix(value, SelectorTiger+"_"):
		parts := strings.Split(value, "_")
		if len(parts) != 3 {
			return Selector{}, fmt.Errorf("%w: dragon/tiger value %q", types.ErrMalformedBet, value)
		}
		side, a, b = parts[0], parts[1], parts[2]
	case strings.Contains(value, "_vs_"):
		a, b, _ = strings.Cut(value, "_vs_")
		side = SelectorDragon
	default:
		parts := strings.Split(value, "_")
		if len(parts) < 2 {
			return Selector{}, fmt.Errorf("%w: dragon/tiger value %q", types.ErrMalformedBet, value)
		}
		a, b, side = parts[0], parts[1], SelectorDragon
		if len(parts) > 2 {
			side = canonicalValue(parts[2])
		}
	}
	p1, err1 := strconv.Atoi(a)
	p2, err2 := strconv.Atoi(b)
	if err1 != nil || err2 != nil {
		return Selector{}, fmt.Errorf("%w: dragon/tiger positions %q", types.ErrMalformedBet, value)
	}
	return Selector{Family: enum.BetFamilyDragonTiger, Value: side, Position: p1, PairPosition: p2}, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
