package pgstore

import (
	"context"

	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/fystack/draw-engine/pkg/repository"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ApplyRebate inserts the record first; the primary key on (period,
// member) makes a concurrent duplicate block and then insert nothing.
func (s *Store) ApplyRebate(ctx context.Context, rec types.RebateRecord, payments []types.CommissionPayment) (bool, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	applied := false
	err := s.tx(ctx, func(tx *gorm.DB) error {
		row := rebateRow(rec)
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil || res.RowsAffected == 0 {
			return res.Error
		}
		ref := "rebate:" + rec.Period.String() + ":" + rec.MemberID
		for _, p := range payments {
			if p.CreatedAt.IsZero() {
				p.CreatedAt = rec.CreatedAt
			}
			if _, err := s.applyLedger(tx, ledgerChange{
				kind:      enum.ActorAgent,
				id:        p.AgentID,
				amount:    p.Amount,
				entryType: enum.LedgerRebate,
				period:    p.Period,
				reference: ref,
			}); err != nil {
				return err
			}
			crow := commissionRow(p)
			if err := tx.Create(&crow).Error; err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	return applied, err
}

func (s *Store) GetRebateRecord(ctx context.Context, period types.Period, memberID string) (types.RebateRecord, error) {
	row, err := s.rebates.Take(ctx, repository.WhereType{"period": period, "member_id": memberID})
	if err != nil {
		return types.RebateRecord{}, err
	}
	return types.RebateRecord(row), nil
}

func (s *Store) ListCommissions(ctx context.Context, period types.Period) ([]types.CommissionPayment, error) {
	rows, err := s.commissions.Find(ctx, repository.FindOptions{
		Where: repository.WhereType{"period": period},
		Order: repository.Asc("member_id", "agent_id"),
	})
	if err != nil {
		return nil, err
	}
	out := make([]types.CommissionPayment, len(rows))
	for i, r := range rows {
		out[i] = types.CommissionPayment(r)
	}
	return out, nil
}

func (s *Store) PendingRebates(ctx context.Context, period types.Period) ([]types.RebateJob, error) {
	var rows []struct {
		MemberID string
		Turnover decimal.Decimal
	}
	err := s.db.WithContext(ctx).Raw(`SELECT b.member_id, SUM(b.stake) AS turnover
		FROM bets b
		WHERE b.period = ? AND b.status = ?
		  AND NOT EXISTS (SELECT 1 FROM rebate_records r WHERE r.period = b.period AND r.member_id = b.member_id)
		GROUP BY b.member_id
		ORDER BY b.member_id`, period, enum.BetStatusSettled).Scan(&rows).Error
	if err != nil {
		return nil, wrapError(err)
	}
	out := make([]types.RebateJob, len(rows))
	for i, r := range rows {
		out[i] = types.RebateJob{Period: period, MemberID: r.MemberID, Turnover: r.Turnover}
	}
	return out, nil
}
