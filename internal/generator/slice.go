package generator

import (
	"fmt"

	"github.com/fystack/draw-engine/internal/evaluator"
	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/types"
)

// A slice is the random variable a selector depends on: one position, the
// champion/runner-up sum, or an ordered pair of positions. Its sample space
// is the list of equally likely partial assignments, each embedded in a full
// permutation so the evaluator can match against it.
type slice struct {
	key     string
	samples []types.Outcome
}

func sliceOf(s evaluator.Selector) slice {
	switch s.Family {
	case enum.BetFamilyNumber, enum.BetFamilyPositionTwoSides:
		return positionSlice(s.Position)
	case enum.BetFamilySumValue, enum.BetFamilySumTwoSides:
		sl := pairSlice(1, 2)
		sl.key = "sum"
		return sl
	default:
		a, b := s.Position, s.PairPosition
		if a > b {
			a, b = b, a
		}
		return pairSlice(a, b)
	}
}

func positionSlice(pos int) slice {
	sl := slice{key: fmt.Sprintf("pos:%d", pos)}
	for n := 1; n <= types.Positions; n++ {
		sl.samples = append(sl.samples, embed(map[int]int{pos: n}))
	}
	return sl
}

func pairSlice(p1, p2 int) slice {
	sl := slice{key: fmt.Sprintf("pair:%d-%d", p1, p2)}
	for a := 1; a <= types.Positions; a++ {
		for b := 1; b <= types.Positions; b++ {
			if a != b {
				sl.samples = append(sl.samples, embed(map[int]int{p1: a, p2: b}))
			}
		}
	}
	return sl
}

// embed places the fixed numbers at their positions and fills the remaining
// positions with the unused numbers in ascending order.
func embed(fixed map[int]int) types.Outcome {
	var o types.Outcome
	used := make(map[int]bool, len(fixed))
	for pos, n := range fixed {
		o[pos-1] = n
		used[n] = true
	}
	next := 1
	for i := range o {
		if o[i] != 0 {
			continue
		}
		for used[next] {
			next++
		}
		o[i] = next
		used[next] = true
	}
	return o
}

// probability is the fraction of the slice's samples matched by any of sels.
func (sl slice) probability(sels ...evaluator.Selector) float64 {
	hits := 0
	for _, o := range sl.samples {
		for _, s := range sels {
			if ok, _, _ := evaluator.Match(s, o); ok {
				hits++
				break
			}
		}
	}
	return float64(hits) / float64(len(sl.samples))
}
