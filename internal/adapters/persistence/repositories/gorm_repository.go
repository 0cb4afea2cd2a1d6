package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"libraryhub/internal/core/domain"

	"gorm.io/gorm"
)

// gormRepository implements Repository for any gorm model
type gormRepository[T any] struct {
	db       *gorm.DB
	notFound error
}

func newGormRepository[T any](db *gorm.DB, notFound error) gormRepository[T] {
	return gormRepository[T]{db: db, notFound: notFound}
}

// Create inserts a new row
func (r gormRepository[T]) Create(ctx context.Context, entity *T) error {
	return wrapErr(r.db.WithContext(ctx).Create(entity).Error, "create")
}

// GetByID loads a row by primary key
func (r gormRepository[T]) GetByID(ctx context.Context, id uint) (*T, error) {
	var entity T
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, r.notFound
		}
		return nil, wrapErr(err, "get")
	}
	return &entity, nil
}

// Save updates every column of a row
func (r gormRepository[T]) Save(ctx context.Context, entity *T) error {
	return wrapErr(r.db.WithContext(ctx).Save(entity).Error, "save")
}

// Delete removes a row by primary key
func (r gormRepository[T]) Delete(ctx context.Context, id uint) error {
	var entity T
	res := r.db.WithContext(ctx).Delete(&entity, id)
	if res.Error != nil {
		return wrapErr(res.Error, "delete")
	}
	if res.RowsAffected == 0 {
		return r.notFound
	}
	return nil
}

// Find returns every row matching q
func (r gormRepository[T]) Find(ctx context.Context, q Query) ([]T, error) {
	var entity T
	db, err := q.apply(r.db.WithContext(ctx).Model(&entity))
	if err != nil {
		return nil, err
	}
	if db, err = q.applyPage(db); err != nil {
		return nil, err
	}
	var rows []T
	if err := db.Find(&rows).Error; err != nil {
		return nil, wrapErr(err, "find")
	}
	return rows, nil
}

// First returns the first row matching q, or nil
func (r gormRepository[T]) First(ctx context.Context, q Query) (*T, error) {
	q.Limit = 1
	rows, err := r.Find(ctx, q)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// Count returns the number of rows matching q
func (r gormRepository[T]) Count(ctx context.Context, q Query) (int64, error) {
	var entity T
	db, err := q.apply(r.db.WithContext(ctx).Model(&entity))
	if err != nil {
		return 0, err
	}
	var count int64
	if err := db.Count(&count).Error; err != nil {
		return 0, wrapErr(err, "count")
	}
	return count, nil
}

// Exists reports whether any row matches q
func (r gormRepository[T]) Exists(ctx context.Context, q Query) (bool, error) {
	count, err := r.Count(ctx, q)
	return count > 0, err
}

// wrapErr maps driver failures to typed errors where the kind is known
func wrapErr(err error, op string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.Wrap(domain.KindNotFound, err, op)
	case errors.Is(err, gorm.ErrDuplicatedKey), isUniqueViolation(err):
		return domain.Wrap(domain.KindConflict, err, op+": duplicate key")
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isUniqueViolation recognises unique-index failures from drivers that do not
// translate errors
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}
