package types

import (
	"errors"
	"strings"
	"sync"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrNotYetDrawn        = errors.New("period not yet drawn")
	ErrInvalidPeriod      = errors.New("invalid period")
	ErrInvalidOutcome     = errors.New("invalid outcome")
	ErrInvalidDirective   = errors.New("invalid control directive")
	ErrMalformedBet       = errors.New("malformed bet")
	ErrPeriodClosed       = errors.New("period closed for betting")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrBrokenChain        = errors.New("agent chain broken")
	ErrTxConflict         = errors.New("transaction conflict")
	ErrPeriodBusy         = errors.New("period locked by another settlement")
	ErrBalanceUnavailable = errors.New("balance service unavailable")
	ErrDirectiveConflict  = errors.New("another control directive is already active")
)

// Retryable reports whether err is transient and the operation may be
// attempted again.
func Retryable(err error) bool {
	return errors.Is(err, ErrTxConflict) ||
		errors.Is(err, ErrBalanceUnavailable) ||
		errors.Is(err, ErrPeriodBusy)
}

type MultiError struct {
	mu     sync.Mutex
	Errors []error
}

func (m *MultiError) Error() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := make([]string, len(m.Errors))
	for i, err := range m.Errors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

func (m *MultiError) Add(err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors = append(m.Errors, err)
}

func (m *MultiError) IsEmpty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Errors) == 0
}

// Unwrap lets errors.Is see through to the collected errors.
func (m *MultiError) Unwrap() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]error(nil), m.Errors...)
}

// ErrOrNil returns m when it holds at least one error.
func (m *MultiError) ErrOrNil() error {
	if m == nil || m.IsEmpty() {
		return nil
	}
	return m
}
