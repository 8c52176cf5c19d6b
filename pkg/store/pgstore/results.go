package pgstore

import (
	"context"

	"github.com/fystack/draw-engine/pkg/common/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Store) PersistOutcome(ctx context.Context, r types.DrawResult) (types.DrawResult, bool, error) {
	if err := r.Outcome.Validate(); err != nil {
		return types.DrawResult{}, false, err
	}
	var (
		stored  types.DrawResult
		existed bool
	)
	err := s.tx(ctx, func(tx *gorm.DB) error {
		// excludes bets placed against the period while it is being drawn
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?, hashtext(?))", lockDraw, r.Period.String()).Error; err != nil {
			return err
		}
		row := toDrawResultRow(r)
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			stored = r
			stored.Sum = r.Outcome.Sum()
			return nil
		}
		existed = true
		var cur drawResultRow
		if err := tx.Where("period = ?", r.Period).Take(&cur).Error; err != nil {
			return err
		}
		var err error
		stored, err = cur.model()
		return err
	})
	return stored, existed, err
}

func (s *Store) GetOutcome(ctx context.Context, period types.Period) (types.DrawResult, error) {
	var row drawResultRow
	if err := s.db.WithContext(ctx).Where("period = ?", period).Take(&row).Error; err != nil {
		return types.DrawResult{}, wrapError(err)
	}
	return row.model()
}

func (s *Store) UnsettledPeriods(ctx context.Context, limit int) ([]types.Period, error) {
	recent := s.db.Model(&drawResultRow{}).Select("period").Order("period DESC").Limit(limit)
	var raw []string
	err := s.db.WithContext(ctx).Raw(`SELECT r.period FROM (?) r
		WHERE NOT EXISTS (SELECT 1 FROM settlement_records s WHERE s.period = r.period)
		ORDER BY r.period`, recent).Scan(&raw).Error
	if err != nil {
		return nil, wrapError(err)
	}
	out := make([]types.Period, 0, len(raw))
	for _, p := range raw {
		period, err := types.ParsePeriod(p)
		if err != nil {
			return nil, err
		}
		out = append(out, period)
	}
	return out, nil
}
