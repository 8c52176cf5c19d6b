package pgstore

import (
	"context"
	"fmt"

	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/fystack/draw-engine/pkg/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Store) CreateMember(ctx context.Context, m types.Member) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	return s.tx(ctx, func(tx *gorm.DB) error {
		row := memberRow{
			ID:        m.ID,
			AgentID:   nullable(m.AgentID),
			Market:    m.Market,
			Balance:   decimal.Zero,
			CreatedAt: m.CreatedAt,
		}
		if err := tx.Create(&row).Error; err != nil {
			return wrapError(err)
		}
		if m.Balance.IsZero() {
			return nil
		}
		_, err := s.applyLedger(tx, ledgerChange{
			kind:      enum.ActorMember,
			id:        m.ID,
			amount:    m.Balance,
			entryType: enum.LedgerManualAdjustment,
			reference: "opening balance",
		})
		return err
	})
}

func (s *Store) GetMember(ctx context.Context, id string) (types.Member, error) {
	var row memberRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return types.Member{}, wrapError(err)
	}
	return row.model(), nil
}

func (s *Store) Adjust(ctx context.Context, kind enum.ActorKind, id string, amount decimal.Decimal, entryType enum.LedgerEntryType, reference string) (types.LedgerEntry, error) {
	var entry types.LedgerEntry
	err := s.tx(ctx, func(tx *gorm.DB) error {
		var err error
		entry, err = s.applyLedger(tx, ledgerChange{
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

func (s *Store) Balance(ctx context.Context, kind enum.ActorKind, id string) (decimal.Decimal, error) {
	table, err := balanceTable(kind)
	if err != nil {
		return decimal.Zero, err
	}
	var row struct{ Balance decimal.Decimal }
	if err := s.db.WithContext(ctx).Table(table).Select("balance").Where("id = ?", id).Take(&row).Error; err != nil {
		return decimal.Zero, fmt.Errorf("%s %s: %w", kind, id, wrapError(err))
	}
	return row.Balance, nil
}

func (s *Store) Ledger(ctx context.Context, kind enum.ActorKind, id string) ([]types.LedgerEntry, error) {
	rows, err := s.ledger.Find(ctx, repository.FindOptions{
		Where: repository.WhereType{"actor_kind": kind, "actor_id": id},
		Order: repository.Asc("seq"),
	})
	if err != nil {
		return nil, err
	}
	out := make([]types.LedgerEntry, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

type ledgerChange struct {
	kind      enum.ActorKind
	id        string
	amount    decimal.Decimal
	entryType enum.LedgerEntryType
	period    types.Period
	reference string
}

func balanceTable(kind enum.ActorKind) (string, error) {
	switch kind {
	case enum.ActorMember:
		return "members", nil
	case enum.ActorAgent:
		return "agents", nil
	}
	return "", fmt.Errorf("unknown actor kind %q", kind)
}

// applyLedger locks the actor row, moves its balance and appends the ledger
// entry inside tx.
func (s *Store) applyLedger(tx *gorm.DB, c ledgerChange) (types.LedgerEntry, error) {
	table, err := balanceTable(c.kind)
	if err != nil {
		return types.LedgerEntry{}, err
	}
	var row struct{ Balance decimal.Decimal }
	err = tx.Table(table).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("balance").
		Where("id = ?", c.id).
		Take(&row).Error
	if err != nil {
		return types.LedgerEntry{}, fmt.Errorf("%s %s: %w", c.kind, c.id, wrapError(err))
	}
	before := row.Balance
	after := before.Add(c.amount)
	if after.IsNegative() {
		return types.LedgerEntry{}, fmt.Errorf("%s %s: balance %s, change %s: %w",
			c.kind, c.id, before, c.amount, types.ErrInsufficientFunds)
	}
	if err := tx.Table(table).Where("id = ?", c.id).Update("balance", after).Error; err != nil {
		return types.LedgerEntry{}, err
	}

	entry := ledgerRow{
		ID:            uuid.NewString(),
		ActorKind:     c.kind,
		ActorID:       c.id,
		Type:          c.entryType,
		Amount:        c.amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Period:        c.period,
		Reference:     nullable(c.reference),
		CreatedAt:     s.now(),
	}
	if err := tx.Create(&entry).Error; err != nil {
		return types.LedgerEntry{}, err
	}
	return entry.model(), nil
}
