package badgerstore

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/fystack/draw-engine/pkg/common/types"
)

const persistAttempts = 3

func (s *Store) PersistOutcome(_ context.Context, r types.DrawResult) (types.DrawResult, bool, error) {
	if err := r.Outcome.Validate(); err != nil {
		return types.DrawResult{}, false, err
	}
	key := s.key(nsResult, r.Period.String())

	var lastErr error
	for i := 0; i < persistAttempts; i++ {
		var stored types.DrawResult
		existed := false
		err := s.update(func(txn *badger.Txn) error {
			err := s.get(txn, key, &stored)
			if err == nil {
				existed = true
				return nil
			}
			if !errors.Is(err, types.ErrNotFound) {
				return err
			}
			stored = r
			return s.set(txn, key, r)
		})
		if err == nil {
			return stored, existed, nil
		}
		if !errors.Is(err, types.ErrTxConflict) {
			return types.DrawResult{}, false, err
		}
		// Another writer committed first; the next pass reads its outcome.
		lastErr = err
	}
	return types.DrawResult{}, false, lastErr
}

func (s *Store) GetOutcome(_ context.Context, period types.Period) (types.DrawResult, error) {
	var r types.DrawResult
	err := s.db.View(func(txn *badger.Txn) error {
		return s.get(txn, s.key(nsResult, period.String()), &r)
	})
	return r, err
}

func (s *Store) UnsettledPeriods(_ context.Context, limit int) ([]types.Period, error) {
	var out []types.Period
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := s.prefixKey(nsResult)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seen := 0
		for it.Seek(append(append([]byte{}, prefix...), 0xff)); it.ValidForPrefix(prefix) && seen < limit; it.Next() {
			seen++
			period, err := types.ParsePeriod(string(it.Item().Key()[len(prefix):]))
			if err != nil {
				return err
			}
			settled, err := s.exists(txn, s.key(nsSettlement, period.String()))
			if err != nil {
				return err
			}
			if !settled {
				out = append(out, period)
			}
		}
		return nil
	})
	// oldest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, err
}
