package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	Positions = 10
	MinSum    = 3
	MaxSum    = 19
)

// Outcome is the ranked result of one draw: Outcome[i] is the number at
// position i+1. A valid outcome is a permutation of 1..10.
type Outcome [Positions]int

func (o Outcome) Validate() error {
	var seen [Positions + 1]bool
	for i, n := range o {
		if n < 1 || n > Positions {
			return fmt.Errorf("%w: position %d holds %d", ErrInvalidOutcome, i+1, n)
		}
		if seen[n] {
			return fmt.Errorf("%w: %d appears twice", ErrInvalidOutcome, n)
		}
		seen[n] = true
	}
	return nil
}

// At returns the number at a 1-based position.
func (o Outcome) At(position int) int {
	return o[position-1]
}

// Sum is the champion/runner-up sum, positions 1 and 2.
func (o Outcome) Sum() int {
	return o[0] + o[1]
}

func (o Outcome) String() string {
	parts := make([]string, Positions)
	for i, n := range o {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

func ParseOutcome(s string) (Outcome, error) {
	var o Outcome
	parts := strings.Split(s, ",")
	if len(parts) != Positions {
		return o, fmt.Errorf("%w: want %d numbers, got %d", ErrInvalidOutcome, Positions, len(parts))
	}
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return o, fmt.Errorf("%w: %v", ErrInvalidOutcome, err)
		}
		o[i] = n
	}
	return o, o.Validate()
}

func IsBig(n int) bool   { return n >= 6 }
func IsSmall(n int) bool { return n <= 5 }
func IsOdd(n int) bool   { return n%2 == 1 }

// SumBigThreshold is the smallest sum that counts as big.
const SumBigThreshold = 12

func IsSumBig(sum int) bool { return sum >= SumBigThreshold }

// DrawResult is the persisted outcome of one period. It is written once and
// never updated.
type DrawResult struct {
	Period      Period    `json:"period"`
	Outcome     Outcome   `json:"outcome"`
	Sum         int       `json:"sum"`
	Controlled  bool      `json:"controlled"`
	Mode        string    `json:"mode"`
	DirectiveID string    `json:"directive_id,omitempty"`
	DrawnAt     time.Time `json:"drawn_at"`
}
