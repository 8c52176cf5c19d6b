package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/fystack/draw-engine/pkg/store"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Store) GetSettlementRecord(ctx context.Context, period types.Period) (types.SettlementRecord, error) {
	var row settlementRow
	if err := s.db.WithContext(ctx).Where("period = ?", period).Take(&row).Error; err != nil {
		return types.SettlementRecord{}, wrapError(err)
	}
	return types.SettlementRecord(row), nil
}

// Settle runs fn while holding the period's settlement lock. A caller that
// cannot take the lock gets types.ErrPeriodBusy without waiting.
func (s *Store) Settle(ctx context.Context, period types.Period, fn func(tx store.SettlementTx) error) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		var locked bool
		if err := tx.Raw("SELECT pg_try_advisory_xact_lock(?, hashtext(?))", lockSettle, period.String()).Scan(&locked).Error; err != nil {
			return err
		}
		if !locked {
			return fmt.Errorf("period %s: %w", period, types.ErrPeriodBusy)
		}
		return fn(&settlementTx{s: s, tx: tx, period: period})
	})
}

type settlementTx struct {
	s      *Store
	tx     *gorm.DB
	period types.Period
}

func (t *settlementTx) RecordExists() (bool, error) {
	var n int64
	err := t.tx.Model(&settlementRow{}).Where("period = ?", t.period).Count(&n).Error
	return n > 0, wrapError(err)
}

// ClaimPendingBets locks the period's pending bets. Rows already locked by
// another transaction are skipped rather than waited on.
func (t *settlementTx) ClaimPendingBets() ([]types.Bet, error) {
	return scanBets(claimPendingQuery(t.tx, t.period))
}

func claimPendingQuery(tx *gorm.DB, period types.Period) *gorm.DB {
	return tx.Model(&betRow{}).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("period = ? AND status = ?", period, enum.BetStatusPending).
		Order("id")
}

func (t *settlementTx) Credit(memberID string, amount decimal.Decimal, entryType enum.LedgerEntryType, reference string) (types.LedgerEntry, error) {
	entry, err := t.s.applyLedger(t.tx, ledgerChange{
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
		res := t.tx.Model(&betRow{}).
			Where("id = ? AND period = ? AND status = ?", r.BetID, t.period, enum.BetStatusPending).
			Updates(map[string]any{
				"status":         r.Status,
				"won":            r.Won,
				"payout":         r.Payout,
				"failure_reason": nullable(r.FailureReason),
				"settled_at":     now,
			})
		if res.Error != nil {
			return wrapError(res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("bet %s is no longer pending: %w", r.BetID, types.ErrTxConflict)
		}
	}
	return nil
}

func (t *settlementTx) InsertRecord(rec types.SettlementRecord) error {
	row := settlementRow(rec)
	if err := t.tx.Create(&row).Error; err != nil {
		return fmt.Errorf("settlement %s: %w", t.period, wrapError(err))
	}
	return nil
}
