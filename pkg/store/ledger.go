package store

import (
	"context"
	"fmt"

	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/shopspring/decimal"
)

// VerifyLedger replays an actor's ledger from zero and checks that every
// entry chains onto the previous one and that the final balance matches the
// stored balance.
func VerifyLedger(ctx context.Context, w Wallets, kind enum.ActorKind, id string) (decimal.Decimal, error) {
	entries, err := w.Ledger(ctx, kind, id)
	if err != nil {
		return decimal.Zero, err
	}
	running := decimal.Zero
	for i, e := range entries {
		if !e.BalanceBefore.Equal(running) {
			return running, fmt.Errorf("entry %d (%s): balance_before %s, replay has %s", i, e.ID, e.BalanceBefore, running)
		}
		running = running.Add(e.Amount)
		if !e.BalanceAfter.Equal(running) {
			return running, fmt.Errorf("entry %d (%s): balance_after %s, replay has %s", i, e.ID, e.BalanceAfter, running)
		}
	}
	stored, err := w.Balance(ctx, kind, id)
	if err != nil {
		return running, err
	}
	if !stored.Equal(running) {
		return running, fmt.Errorf("stored balance %s, replay has %s", stored, running)
	}
	return running, nil
}
