package badgerstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/fystack/draw-engine/pkg/common/types"
)

func (s *Store) SaveDirective(_ context.Context, d types.ControlDirective) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now()
	}
	return s.update(func(txn *badger.Txn) error {
		if d.Active {
			if err := s.deactivateOthers(txn, d.ID); err != nil {
				return err
			}
		}
		return s.set(txn, s.key(nsDirective, d.ID), d)
	})
}

func (s *Store) SetDirectiveActive(_ context.Context, id string, active bool) error {
	return s.update(func(txn *badger.Txn) error {
		key := s.key(nsDirective, id)
		var d types.ControlDirective
		if err := s.get(txn, key, &d); err != nil {
			return fmt.Errorf("directive %s: %w", id, err)
		}
		if active {
			if err := s.deactivateOthers(txn, id); err != nil {
				return err
			}
		}
		d.Active = active
		return s.set(txn, key, d)
	})
}

func (s *Store) ActiveDirective(_ context.Context) (types.ControlDirective, error) {
	var found types.ControlDirective
	errFound := errors.New("found")
	err := s.db.View(func(txn *badger.Txn) error {
		return each(s, txn, s.prefixKey(nsDirective), func(d types.ControlDirective) error {
			if d.Active {
				found = d
				return errFound
			}
			return nil
		})
	})
	if errors.Is(err, errFound) {
		return found, nil
	}
	if err != nil {
		return found, err
	}
	return found, types.ErrNotFound
}

func (s *Store) ListDirectives(_ context.Context) ([]types.ControlDirective, error) {
	var out []types.ControlDirective
	err := s.db.View(func(txn *badger.Txn) error {
		return each(s, txn, s.prefixKey(nsDirective), func(d types.ControlDirective) error {
			out = append(out, d)
			return nil
		})
	})
	return out, err
}

func (s *Store) deactivateOthers(txn *badger.Txn, keep string) error {
	var active []types.ControlDirective
	if err := each(s, txn, s.prefixKey(nsDirective), func(d types.ControlDirective) error {
		if d.Active && d.ID != keep {
			active = append(active, d)
		}
		return nil
	}); err != nil {
		return err
	}
	for _, d := range active {
		d.Active = false
		if err := s.set(txn, s.key(nsDirective, d.ID), d); err != nil {
			return err
		}
	}
	return nil
}
