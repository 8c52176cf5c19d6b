package pgstore

import (
	"context"
	"database/sql"

	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/fystack/draw-engine/pkg/store"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertAgent never touches an existing balance.
func (s *Store) UpsertAgent(ctx context.Context, a types.Agent) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	row := agentRow{
		ID:         a.ID,
		ParentID:   nullable(a.ParentID),
		Mode:       a.Mode,
		RebateRate: a.RebateRate,
		Market:     nullable(a.Market),
		Balance:    decimal.Zero,
		CreatedAt:  a.CreatedAt,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"parent_id", "mode", "rebate_rate", "market"}),
	}).Create(&row).Error
	return wrapError(err)
}

func (s *Store) GetAgent(ctx context.Context, id string) (types.Agent, error) {
	return s.agent(s.db.WithContext(ctx), id)
}

func (s *Store) agent(db *gorm.DB, id string) (types.Agent, error) {
	var row agentRow
	if err := db.Where("id = ?", id).Take(&row).Error; err != nil {
		return types.Agent{}, wrapError(err)
	}
	return row.model(), nil
}

// AgentChain reads the member and every agent from one repeatable-read
// snapshot.
func (s *Store) AgentChain(ctx context.Context, memberID string) (types.AgentChain, error) {
	var chain types.AgentChain
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m memberRow
		if err := tx.Where("id = ?", memberID).Take(&m).Error; err != nil {
			return err
		}
		var err error
		chain, err = store.WalkChain(m.model(), func(id string) (types.Agent, error) {
			return s.agent(tx, id)
		})
		return err
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	return chain, wrapError(err)
}

func (s *Store) MembersUnder(ctx context.Context, agentID string) ([]string, error) {
	var out []string
	err := s.db.WithContext(ctx).Raw(`WITH RECURSIVE line AS (
			SELECT id FROM agents WHERE id = ?
			UNION
			SELECT a.id FROM agents a JOIN line ON a.parent_id = line.id
		)
		SELECT m.id FROM members m JOIN line ON m.agent_id = line.id ORDER BY m.id`, agentID).Scan(&out).Error
	return out, wrapError(err)
}
