package pgstore

import (
	"context"
	"fmt"

	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/fystack/draw-engine/pkg/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SaveDirective upserts d. The partial unique index on active rows backs
// the single-active rule.
func (s *Store) SaveDirective(ctx context.Context, d types.ControlDirective) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now()
	}
	return s.tx(ctx, func(tx *gorm.DB) error {
		if d.Active {
			if err := deactivateOthers(tx, d.ID); err != nil {
				return err
			}
		}
		row := toDirectiveRow(d)
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	})
}

func (s *Store) SetDirectiveActive(ctx context.Context, id string, active bool) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		if active {
			if err := deactivateOthers(tx, id); err != nil {
				return err
			}
		}
		res := tx.Model(&directiveRow{}).Where("id = ?", id).Update("active", active)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("directive %s: %w", id, types.ErrNotFound)
		}
		return nil
	})
}

func (s *Store) ActiveDirective(ctx context.Context) (types.ControlDirective, error) {
	row, err := s.directives.Take(ctx, repository.WhereType{"active": true})
	if err != nil {
		return types.ControlDirective{}, err
	}
	return row.model(), nil
}

func (s *Store) ListDirectives(ctx context.Context) ([]types.ControlDirective, error) {
	rows, err := s.directives.Find(ctx, repository.FindOptions{Order: repository.Asc("created_at", "id")})
	if err != nil {
		return nil, err
	}
	out := make([]types.ControlDirective, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

func deactivateOthers(tx *gorm.DB, keep string) error {
	return tx.Model(&directiveRow{}).
		Where("active AND id <> ?", keep).
		Update("active", false).Error
}
