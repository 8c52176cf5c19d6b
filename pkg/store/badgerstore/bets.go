package badgerstore

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/fystack/draw-engine/pkg/store"
)

func (s *Store) PlaceBet(_ context.Context, bet types.Bet) (types.LedgerEntry, error) {
	if bet.CreatedAt.IsZero() {
		bet.CreatedAt = s.now()
	}
	bet.Status = enum.BetStatusPending
	var entry types.LedgerEntry
	err := s.update(func(txn *badger.Txn) error {
		drawn, err := s.exists(txn, s.key(nsResult, bet.Period.String()))
		if err != nil {
			return err
		}
		if drawn {
			return fmt.Errorf("period %s: %w", bet.Period, types.ErrPeriodClosed)
		}
		key := s.key(nsBet, bet.Period.String(), bet.ID)
		dup, err := s.exists(txn, key)
		if err != nil {
			return err
		}
		if dup {
			return fmt.Errorf("bet %s: %w", bet.ID, store.ErrDuplicate)
		}
		entry, err = s.applyLedger(txn, ledgerChange{
			kind:      enum.ActorMember,
			id:        bet.MemberID,
			amount:    bet.Stake.Neg(),
			entryType: enum.LedgerBetStake,
			period:    bet.Period,
			reference: bet.ID,
		})
		if err != nil {
			return err
		}
		return s.set(txn, key, bet)
	})
	return entry, err
}

func (s *Store) ListBets(_ context.Context, period types.Period) ([]types.Bet, error) {
	var out []types.Bet
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		out, err = s.bets(txn, period, false)
		return err
	})
	return out, err
}

func (s *Store) OpenBets(_ context.Context, period types.Period) ([]types.Bet, error) {
	var out []types.Bet
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		out, err = s.bets(txn, period, true)
		return err
	})
	return out, err
}

func (s *Store) bets(txn *badger.Txn, period types.Period, pendingOnly bool) ([]types.Bet, error) {
	var out []types.Bet
	err := each(s, txn, s.prefixKey(nsBet, period.String()), func(b types.Bet) error {
		if !pendingOnly || b.Pending() {
			out = append(out, b)
		}
		return nil
	})
	return out, err
}
