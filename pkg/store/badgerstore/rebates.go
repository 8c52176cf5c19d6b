package badgerstore

import (
	"context"
	"errors"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/fystack/draw-engine/pkg/store"
)

func (s *Store) ApplyRebate(_ context.Context, rec types.RebateRecord, payments []types.CommissionPayment) (bool, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	applied := false
	err := s.update(func(txn *badger.Txn) error {
		key := s.key(nsRebate, rec.Period.String(), rec.MemberID)
		found, err := s.exists(txn, key)
		if err != nil || found {
			return err
		}
		ref := "rebate:" + rec.Period.String() + ":" + rec.MemberID
		for _, p := range payments {
			if p.CreatedAt.IsZero() {
				p.CreatedAt = rec.CreatedAt
			}
			if _, err := s.applyLedger(txn, ledgerChange{
				kind:      enum.ActorAgent,
				id:        p.AgentID,
				amount:    p.Amount,
				entryType: enum.LedgerRebate,
				period:    p.Period,
				reference: ref,
			}); err != nil {
				return err
			}
			if err := s.set(txn, s.key(nsCommission, p.Period.String(), p.MemberID, p.AgentID), p); err != nil {
				return err
			}
		}
		applied = true
		return s.set(txn, key, rec)
	})
	return applied, err
}

func (s *Store) GetRebateRecord(_ context.Context, period types.Period, memberID string) (types.RebateRecord, error) {
	var rec types.RebateRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return s.get(txn, s.key(nsRebate, period.String(), memberID), &rec)
	})
	return rec, err
}

func (s *Store) ListCommissions(_ context.Context, period types.Period) ([]types.CommissionPayment, error) {
	var out []types.CommissionPayment
	err := s.db.View(func(txn *badger.Txn) error {
		return each(s, txn, s.prefixKey(nsCommission, period.String()), func(p types.CommissionPayment) error {
			out = append(out, p)
			return nil
		})
	})
	return out, err
}

func (s *Store) PendingRebates(_ context.Context, period types.Period) ([]types.RebateJob, error) {
	var out []types.RebateJob
	err := s.db.View(func(txn *badger.Txn) error {
		bets, err := s.bets(txn, period, false)
		if err != nil {
			return err
		}
		for member, turnover := range store.Turnover(bets) {
			var rec types.RebateRecord
			err := s.get(txn, s.key(nsRebate, period.String(), member), &rec)
			if err == nil {
				continue
			}
			if !errors.Is(err, types.ErrNotFound) {
				return err
			}
			out = append(out, types.RebateJob{Period: period, MemberID: member, Turnover: turnover})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out, err
}
