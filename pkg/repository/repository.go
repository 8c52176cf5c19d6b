// Package repository is a small generic read layer over gorm for row types
// that map one-to-one onto a table.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

type Repository[T any] interface {
	Find(ctx context.Context, options FindOptions) ([]T, error)
	// Take returns the first row matching where, or the wrapped
	// gorm.ErrRecordNotFound.
	Take(ctx context.Context, where WhereType) (T, error)
	Count(ctx context.Context, where WhereType) (int64, error)
	HealthCheck(ctx context.Context) error
}

// ErrorMapper translates driver errors into the caller's error vocabulary.
type ErrorMapper func(error) error

// gorm generic repository
type repository[T any] struct {
	db   *gorm.DB
	wrap ErrorMapper
}

func NewRepository[T any](db *gorm.DB, wrap ErrorMapper) Repository[T] {
	if wrap == nil {
		wrap = func(err error) error { return err }
	}
	return &repository[T]{db: db, wrap: wrap}
}

func (r *repository[T]) HealthCheck(ctx context.Context) error {
	if err := r.db.WithContext(ctx).Exec("SELECT 1").Error; err != nil {
		return errors.New("DB is not healthy")
	}
	return nil
}

func (r *repository[T]) applyFindOptionsToDB(db *gorm.DB, options FindOptions) *gorm.DB {
	isSelectAll := len(options.Select) == 1 && options.Select[0] == "*"
	if options.Select != nil && !isSelectAll {
		db = db.Select(strings.Join(options.Select, ","))
	}

	if options.Where != nil {
		db = db.Where(map[string]any(options.Where))
	}

	if len(options.Order) > 0 {
		orders := make([]string, len(options.Order))
		for i, o := range options.Order {
			orders[i] = fmt.Sprintf("%s %s", o.Column, o.Type)
		}
		db = db.Order(strings.Join(orders, ", "))
	}

	if options.Limit != 0 {
		db = db.Limit(int(options.Limit))
	}

	if options.Offset != 0 {
		db = db.Offset(int(options.Offset))
	}
	return db
}

func (r *repository[T]) Find(ctx context.Context, options FindOptions) ([]T, error) {
	var results []T
	db := r.applyFindOptionsToDB(r.db.WithContext(ctx).Model(new(T)), options)
	if err := db.Find(&results).Error; err != nil {
		return nil, r.wrap(err)
	}
	return results, nil
}

func (r *repository[T]) Take(ctx context.Context, where WhereType) (T, error) {
	var row T
	if err := r.db.WithContext(ctx).Where(map[string]any(where)).Take(&row).Error; err != nil {
		return row, r.wrap(err)
	}
	return row, nil
}

func (r *repository[T]) Count(ctx context.Context, where WhereType) (int64, error) {
	var count int64
	db := r.db.WithContext(ctx).Model(new(T))
	if where != nil {
		db = db.Where(map[string]any(where))
	}
	if err := db.Count(&count).Error; err != nil {
		return 0, r.wrap(err)
	}
	return count, nil
}
