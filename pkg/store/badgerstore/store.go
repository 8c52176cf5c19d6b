// Package badgerstore implements store.Store on an embedded Badger database.
// Badger transactions are optimistic: concurrent writers that touched the
// same keys fail at commit with types.ErrTxConflict and are expected to retry.
package badgerstore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/fystack/draw-engine/pkg/infra"
	"github.com/fystack/draw-engine/pkg/store"
)

const (
	nsResult     = "result"
	nsBet        = "bet"
	nsSettlement = "settlement"
	nsMember     = "member"
	nsAgent      = "agent"
	nsLedger     = "ledger"
	nsLedgerSeq  = "ledgerseq"
	nsDirective  = "directive"
	nsRebate     = "rebate"
	nsCommission = "commission"
)

type Options struct {
	Directory string
	Prefix    string
	InMemory  bool
	Codec     infra.Codec
}

type Store struct {
	db     *badger.DB
	prefix string
	codec  infra.Codec
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

func New(opts Options) (*Store, error) {
	bopts := badger.DefaultOptions(opts.Directory).WithLogger(nil)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	codec := opts.Codec
	if codec == nil {
		codec = infra.JSON
	}
	return &Store{
		db:     db,
		prefix: opts.Prefix,
		codec:  codec,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// DB exposes the underlying handle for inspection tooling.
func (s *Store) DB() *badger.DB { return s.db }

func (s *Store) Name() string { return string(enum.StoreTypeBadger) }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) key(parts ...string) []byte {
	k := strings.Join(parts, "/")
	if s.prefix != "" {
		k = s.prefix + "/" + k
	}
	return []byte(k)
}

// prefixKey is key with a trailing separator, for iteration.
func (s *Store) prefixKey(parts ...string) []byte {
	return append(s.key(parts...), '/')
}

func (s *Store) update(fn func(txn *badger.Txn) error) error {
	err := s.db.Update(fn)
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %v", types.ErrTxConflict, err)
	}
	return err
}

func (s *Store) get(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return types.ErrNotFound
		}
		return err
	}
	return item.Value(func(val []byte) error {
		return s.codec.Unmarshal(val, v)
	})
}

func (s *Store) exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) set(txn *badger.Txn, key []byte, v any) error {
	data, err := s.codec.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// each decodes every value under prefix into a fresh T and passes it to fn.
func each[T any](s *Store, txn *badger.Txn, prefix []byte, fn func(T) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var v T
		if err := it.Item().Value(func(val []byte) error {
			return s.codec.Unmarshal(val, &v)
		}); err != nil {
			return err
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return nil
}
