package badgerstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/fystack/draw-engine/pkg/store"
	"github.com/shopspring/decimal"
)

func (s *Store) GetSettlementRecord(_ context.Context, period types.Period) (types.SettlementRecord, error) {
	var rec types.SettlementRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return s.get(txn, s.key(nsSettlement, period.String()), &rec)
	})
	return rec, err
}

// Settle runs fn in one optimistic transaction. Every key fn reads joins the
// conflict set, so two settlements of the same period cannot both commit.
func (s *Store) Settle(_ context.Context, period types.Period, fn func(tx store.SettlementTx) error) error {
	return s.update(func(txn *badger.Txn) error {
		return fn(&settlementTx{s: s, txn: txn, period: period})
	})
}

type settlementTx struct {
	s      *Store
	txn    *badger.Txn
	period types.Period
}

func (t *settlementTx) RecordExists() (bool, error) {
	return t.s.exists(t.txn, t.s.key(nsSettlement, t.period.String()))
}

func (t *settlementTx) ClaimPendingBets() ([]types.Bet, error) {
	return t.s.bets(t.txn, t.period, true)
}

func (t *settlementTx) Credit(memberID string, amount decimal.Decimal, entryType enum.LedgerEntryType, reference string) (types.LedgerEntry, error) {
	entry, err := t.s.applyLedger(t.txn, ledgerChange{
		kind:      enum.ActorMember,
		id:        memberID,
		amount:    amount,
		entryType: entryType,
		period:    t.period,
		reference: reference,
	})
	if err != nil && errors.Is(err, types.ErrNotFound) {
		return entry, fmt.Errorf("%w: %v", types.ErrBalanceUnavailable, err)
	}
	return entry, err
}

func (t *settlementTx) MarkBets(results []types.BetSettlement) error {
	now := t.s.now()
	for _, r := range results {
		key := t.s.key(nsBet, t.period.String(), r.BetID)
		var b types.Bet
		if err := t.s.get(t.txn, key, &b); err != nil {
			return fmt.Errorf("bet %s: %w", r.BetID, err)
		}
		if !b.Pending() {
			return fmt.Errorf("bet %s already %s: %w", r.BetID, b.Status, types.ErrTxConflict)
		}
		b.Status = r.Status
		b.Won = r.Won
		b.Payout = r.Payout
		b.FailureReason = r.FailureReason
		b.SettledAt = &now
		if err := t.s.set(t.txn, key, b); err != nil {
			return err
		}
	}
	return nil
}

func (t *settlementTx) InsertRecord(rec types.SettlementRecord) error {
	key := t.s.key(nsSettlement, t.period.String())
	found, err := t.s.exists(t.txn, key)
	if err != nil {
		return err
	}
	if found {
		return fmt.Errorf("settlement %s: %w", t.period, store.ErrDuplicate)
	}
	return t.s.set(t.txn, key, rec)
}
