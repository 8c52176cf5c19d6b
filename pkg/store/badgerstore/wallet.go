package badgerstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/fystack/draw-engine/pkg/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func (s *Store) CreateMember(_ context.Context, m types.Member) error {
	opening := m.Balance
	m.Balance = decimal.Zero
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	return s.update(func(txn *badger.Txn) error {
		key := s.key(nsMember, m.ID)
		found, err := s.exists(txn, key)
		if err != nil {
			return err
		}
		if found {
			return fmt.Errorf("member %s: %w", m.ID, store.ErrDuplicate)
		}
		if err := s.set(txn, key, m); err != nil {
			return err
		}
		if opening.IsZero() {
			return nil
		}
		_, err = s.applyLedger(txn, ledgerChange{
			kind:      enum.ActorMember,
			id:        m.ID,
			amount:    opening,
			entryType: enum.LedgerManualAdjustment,
			reference: "opening balance",
		})
		return err
	})
}

func (s *Store) GetMember(_ context.Context, id string) (types.Member, error) {
	var m types.Member
	err := s.db.View(func(txn *badger.Txn) error {
		return s.get(txn, s.key(nsMember, id), &m)
	})
	return m, err
}

func (s *Store) Adjust(_ context.Context, kind enum.ActorKind, id string, amount decimal.Decimal, entryType enum.LedgerEntryType, reference string) (types.LedgerEntry, error) {
	var entry types.LedgerEntry
	err := s.update(func(txn *badger.Txn) error {
		var err error
		entry, err = s.applyLedger(txn, ledgerChange{
			kind:      kind,
			id:        id,
			amount:    amount,
			entryType: entryType,
			reference: reference,
		})
		return err
	})
	return entry, err
}

func (s *Store) Balance(_ context.Context, kind enum.ActorKind, id string) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		bal, _, err = s.loadBalance(txn, kind, id)
		return err
	})
	return bal, err
}

func (s *Store) Ledger(_ context.Context, kind enum.ActorKind, id string) ([]types.LedgerEntry, error) {
	var out []types.LedgerEntry
	err := s.db.View(func(txn *badger.Txn) error {
		return each(s, txn, s.prefixKey(nsLedger, string(kind), id), func(e types.LedgerEntry) error {
			out = append(out, e)
			return nil
		})
	})
	return out, err
}

type ledgerChange struct {
	kind          enum.ActorKind
	id            string
	amount        decimal.Decimal
	entryType     enum.LedgerEntryType
	period        types.Period
	reference     string
	allowNegative bool
}

// applyLedger moves an actor's balance and appends the matching ledger entry
// inside txn. Entries are keyed by a per-actor sequence so iteration order is
// application order.
func (s *Store) applyLedger(txn *badger.Txn, c ledgerChange) (types.LedgerEntry, error) {
	before, save, err := s.loadBalance(txn, c.kind, c.id)
	if err != nil {
		return types.LedgerEntry{}, err
	}
	after := before.Add(c.amount)
	if after.IsNegative() && !c.allowNegative {
		return types.LedgerEntry{}, fmt.Errorf("%s %s: balance %s, change %s: %w",
			c.kind, c.id, before, c.amount, types.ErrInsufficientFunds)
	}
	if err := save(after); err != nil {
		return types.LedgerEntry{}, err
	}

	seq, err := s.nextLedgerSeq(txn, c.kind, c.id)
	if err != nil {
		return types.LedgerEntry{}, err
	}
	entry := types.LedgerEntry{
		ID:            uuid.NewString(),
		ActorKind:     c.kind,
		ActorID:       c.id,
		Type:          c.entryType,
		Amount:        c.amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Period:        c.period,
		Reference:     c.reference,
		CreatedAt:     s.now(),
	}
	key := s.key(nsLedger, string(c.kind), c.id, fmt.Sprintf("%020d", seq))
	return entry, s.set(txn, key, entry)
}

func (s *Store) loadBalance(txn *badger.Txn, kind enum.ActorKind, id string) (decimal.Decimal, func(decimal.Decimal) error, error) {
	switch kind {
	case enum.ActorMember:
		key := s.key(nsMember, id)
		var m types.Member
		if err := s.get(txn, key, &m); err != nil {
			return decimal.Zero, nil, fmt.Errorf("member %s: %w", id, err)
		}
		return m.Balance, func(b decimal.Decimal) error {
			m.Balance = b
			return s.set(txn, key, m)
		}, nil
	case enum.ActorAgent:
		key := s.key(nsAgent, id)
		var a types.Agent
		if err := s.get(txn, key, &a); err != nil {
			return decimal.Zero, nil, fmt.Errorf("agent %s: %w", id, err)
		}
		return a.Balance, func(b decimal.Decimal) error {
			a.Balance = b
			return s.set(txn, key, a)
		}, nil
	}
	return decimal.Zero, nil, fmt.Errorf("unknown actor kind %q", kind)
}

func (s *Store) nextLedgerSeq(txn *badger.Txn, kind enum.ActorKind, id string) (uint64, error) {
	key := s.key(nsLedgerSeq, string(kind), id)
	var seq uint64
	item, err := txn.Get(key)
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
	case err != nil:
		return 0, err
	default:
		if err := item.Value(func(val []byte) error {
			seq = binary.BigEndian.Uint64(val)
			return nil
		}); err != nil {
			return 0, err
		}
	}
	seq++
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return seq, txn.Set(key, buf)
}
