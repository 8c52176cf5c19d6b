package pgstore

import (
	"context"
	"fmt"

	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/fystack/draw-engine/pkg/repository"
	"gorm.io/gorm"
)

func (s *Store) PlaceBet(ctx context.Context, bet types.Bet) (types.LedgerEntry, error) {
	if bet.CreatedAt.IsZero() {
		bet.CreatedAt = s.now()
	}
	bet.Status = enum.BetStatusPending
	var entry types.LedgerEntry
	err := s.tx(ctx, func(tx *gorm.DB) error {
		// shared with other bets, exclusive against PersistOutcome
		if err := tx.Exec("SELECT pg_advisory_xact_lock_shared(?, hashtext(?))", lockDraw, bet.Period.String()).Error; err != nil {
			return err
		}
		var drawn int64
		if err := tx.Model(&drawResultRow{}).Where("period = ?", bet.Period).Count(&drawn).Error; err != nil {
			return err
		}
		if drawn > 0 {
			return fmt.Errorf("period %s: %w", bet.Period, types.ErrPeriodClosed)
		}
		var err error
		entry, err = s.applyLedger(tx, ledgerChange{
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
		row := toBetRow(bet)
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("bet %s: %w", bet.ID, wrapError(err))
		}
		return nil
	})
	return entry, err
}

func (s *Store) ListBets(ctx context.Context, period types.Period) ([]types.Bet, error) {
	return s.findBets(ctx, repository.WhereType{"period": period})
}

func (s *Store) OpenBets(ctx context.Context, period types.Period) ([]types.Bet, error) {
	return s.findBets(ctx, repository.WhereType{"period": period, "status": enum.BetStatusPending})
}

func (s *Store) findBets(ctx context.Context, where repository.WhereType) ([]types.Bet, error) {
	rows, err := s.bets.Find(ctx, repository.FindOptions{Where: where, Order: repository.Asc("id")})
	if err != nil {
		return nil, err
	}
	out := make([]types.Bet, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

func scanBets(q *gorm.DB) ([]types.Bet, error) {
	var rows []betRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, wrapError(err)
	}
	out := make([]types.Bet, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}
