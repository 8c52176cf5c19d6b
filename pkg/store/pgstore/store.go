// Package pgstore implements store.Store on Postgres through gorm. Period
// settlement is serialized with transaction-scoped advisory locks and bet
// rows are claimed with SELECT ... FOR UPDATE SKIP LOCKED.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fystack/draw-engine/pkg/common/enum"
	"github.com/fystack/draw-engine/pkg/common/types"
	"github.com/fystack/draw-engine/pkg/infra"
	"github.com/fystack/draw-engine/pkg/repository"
	"github.com/fystack/draw-engine/pkg/store"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

//go:embed schema.sql
var schema string

// Class 23 and 40 codes, see https://github.com/jackc/pgerrcode
const (
	uniqueViolation      = "23505"
	foreignKeyViolation  = "23503"
	checkViolation       = "23514"
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

const singleActiveIndex = "idx_directives_single_active"

// advisory lock classes, paired with hashtext(period)
const (
	lockSettle = 1
	lockDraw   = 2
)

type Store struct {
	db  *gorm.DB
	now func() time.Time

	bets        repository.Repository[betRow]
	directives  repository.Repository[directiveRow]
	rebates     repository.Repository[rebateRow]
	commissions repository.Repository[commissionRow]
	ledger      repository.Repository[ledgerRow]
}

var _ store.Store = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{
		db:          db,
		now:         func() time.Time { return time.Now().UTC() },
		bets:        repository.NewRepository[betRow](db, wrapError),
		directives:  repository.NewRepository[directiveRow](db, wrapError),
		rebates:     repository.NewRepository[rebateRow](db, wrapError),
		commissions: repository.NewRepository[commissionRow](db, wrapError),
		ledger:      repository.NewRepository[ledgerRow](db, wrapError),
	}
}

// Open connects to dsn and applies the schema.
func Open(ctx context.Context, dsn, environment string) (*Store, error) {
	db, err := infra.NewDBConnection(dsn, environment)
	if err != nil {
		return nil, err
	}
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies schema.sql. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, "\n\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Name() string { return string(enum.StoreTypePostgres) }

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// wrapError maps driver errors onto the store and domain sentinels and
// passes everything else through unchanged.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			if pgErr.ConstraintName == singleActiveIndex {
				return fmt.Errorf("%w: %s", types.ErrDirectiveConflict, pgErr.Detail)
			}
			return fmt.Errorf("%w: %s", store.ErrDuplicate, pgErr.ConstraintName)
		case foreignKeyViolation:
			return fmt.Errorf("%w: %s", types.ErrNotFound, pgErr.Detail)
		case checkViolation:
			return fmt.Errorf("%w: %s", types.ErrInsufficientFunds, pgErr.ConstraintName)
		case serializationFailure, deadlockDetected:
			return fmt.Errorf("%w: %s", types.ErrTxConflict, pgErr.Message)
		}
	}
	return err
}

func (s *Store) tx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return wrapError(s.db.WithContext(ctx).Transaction(fn))
}
