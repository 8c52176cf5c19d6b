package badgerstore

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/fystack/draw-engine/pkg/store"
	"github.com/shopspring/decimal"
)

func (s *Store) UpsertAgent(_ context.Context, a types.Agent) error {
	return s.update(func(txn *badger.Txn) error {
		key := s.key(nsAgent, a.ID)
		var existing types.Agent
		err := s.get(txn, key, &existing)
		switch {
		case err == nil:
			// balances only move through the ledger
			a.Balance = existing.Balance
			a.CreatedAt = existing.CreatedAt
		case errors.Is(err, types.ErrNotFound):
			a.Balance = decimal.Zero
			if a.CreatedAt.IsZero() {
				a.CreatedAt = s.now()
			}
		default:
			return err
		}
		return s.set(txn, key, a)
	})
}

func (s *Store) GetAgent(_ context.Context, id string) (types.Agent, error) {
	var a types.Agent
	err := s.db.View(func(txn *badger.Txn) error {
		return s.get(txn, s.key(nsAgent, id), &a)
	})
	return a, err
}

func (s *Store) AgentChain(_ context.Context, memberID string) (types.AgentChain, error) {
	var chain types.AgentChain
	err := s.db.View(func(txn *badger.Txn) error {
		var m types.Member
		if err := s.get(txn, s.key(nsMember, memberID), &m); err != nil {
			return err
		}
		var err error
		chain, err = store.WalkChain(m, func(id string) (types.Agent, error) {
			var a types.Agent
			return a, s.get(txn, s.key(nsAgent, id), &a)
		})
		return err
	})
	return chain, err
}

func (s *Store) MembersUnder(_ context.Context, agentID string) ([]string, error) {
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		agents := make(map[string]types.Agent)
		if err := each(s, txn, s.prefixKey(nsAgent), func(a types.Agent) error {
			agents[a.ID] = a
			return nil
		}); err != nil {
			return err
		}
		lookup := func(id string) (types.Agent, error) {
			a, ok := agents[id]
			if !ok {
				return a, types.ErrNotFound
			}
			return a, nil
		}
		return each(s, txn, s.prefixKey(nsMember), func(m types.Member) error {
			chain, err := store.WalkChain(m, lookup)
			if err != nil {
				return err
			}
			for _, a := range chain.Agents {
				if a.ID == agentID {
					out = append(out, m.ID)
					break
				}
			}
			return nil
		})
	})
	return out, err
}
