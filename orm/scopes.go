package orm

import (
	"time"

	"gorm.io/gorm"
)

// ScopeFunc is a named scope: a function that modifies a GORM query.
// Usage: orm.Query[MutationLog](db).Scope(orm.Recent(20)).All()
type ScopeFunc = func(*gorm.DB) *gorm.DB

// Since keeps rows created at or after t.
func Since(t time.Time) ScopeFunc {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("created_at >= ?", t)
	}
}

// Newest orders rows newest first.
func Newest(db *gorm.DB) *gorm.DB {
	return db.Order("created_at DESC").Order("id DESC")
}

// Recent orders newest first and keeps at most n rows.
func Recent(n int) ScopeFunc {
	return func(db *gorm.DB) *gorm.DB {
		return Newest(db).Limit(n)
	}
}

// Equal keeps rows whose column equals value. An empty string value is
// treated as "no filter".
func Equal(column string, value any) ScopeFunc {
	return func(db *gorm.DB) *gorm.DB {
		if s, ok := value.(string); ok && s == "" {
			return db
		}
		return db.Where(column+" = ?", value)
	}
}
