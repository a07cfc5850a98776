// Package orm is a thin generic layer over GORM used by the ledger SQL store,
// the mutation log, the event store and the audit panel.
package orm

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultPerPage is the page size used when none is set.
const DefaultPerPage = 25

// QueryBuilder provides a generic, chainable query interface wrapping GORM.
type QueryBuilder[T any] struct {
	db      *gorm.DB
	page    int
	perPage int
}

// Query creates a new QueryBuilder for the given model type.
func Query[T any](db *gorm.DB) *QueryBuilder[T] {
	var model T
	return &QueryBuilder[T]{db: db.Model(&model), perPage: DefaultPerPage}
}

// QueryContext is Query bound to ctx.
func QueryContext[T any](ctx context.Context, db *gorm.DB) *QueryBuilder[T] {
	return Query[T](db.WithContext(ctx))
}

// Where adds a WHERE clause.
func (q *QueryBuilder[T]) Where(query any, args ...any) *QueryBuilder[T] {
	q.db = q.db.Where(query, args...)
	return q
}

// Order adds an ORDER BY clause.
func (q *QueryBuilder[T]) Order(value any) *QueryBuilder[T] {
	q.db = q.db.Order(value)
	return q
}

// Page sets the page number for pagination (1-indexed).
func (q *QueryBuilder[T]) Page(page int) *QueryBuilder[T] {
	if page < 1 {
		page = 1
	}
	q.page = page
	return q
}

// PerPage sets the number of records per page.
func (q *QueryBuilder[T]) PerPage(perPage int) *QueryBuilder[T] {
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	q.perPage = perPage
	return q
}

// Scope applies one or more named scopes.
func (q *QueryBuilder[T]) Scope(funcs ...ScopeFunc) *QueryBuilder[T] {
	q.db = q.db.Scopes(funcs...)
	return q
}

func (q *QueryBuilder[T]) paginated() *gorm.DB {
	if q.page > 0 {
		return q.db.Offset((q.page - 1) * q.perPage).Limit(q.perPage)
	}
	return q.db
}

// All returns all matching records.
func (q *QueryBuilder[T]) All() ([]T, error) {
	results := []T{}
	err := q.paginated().Find(&results).Error
	return results, err
}

// First returns the first matching record, or gorm.ErrRecordNotFound.
func (q *QueryBuilder[T]) First() (*T, error) {
	var result T
	if err := q.db.Take(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

// Create inserts a new record.
func (q *QueryBuilder[T]) Create(v *T) error {
	return q.db.Create(v).Error
}

// Upsert inserts v or, when a row with the same conflict columns exists,
// overwrites the update columns.
func (q *QueryBuilder[T]) Upsert(v *T, conflict []string, update []string) error {
	cols := make([]clause.Column, len(conflict))
	for i, c := range conflict {
		cols[i] = clause.Column{Name: c}
	}
	return q.db.Clauses(clause.OnConflict{
		Columns:   cols,
		DoUpdates: clause.AssignmentColumns(update),
	}).Create(v).Error
}

// Count returns the number of matching records.
func (q *QueryBuilder[T]) Count() (int64, error) {
	var count int64
	err := q.db.Count(&count).Error
	return count, err
}
