package orm

import (
	"time"

	"gorm.io/gorm"
)

// QueryObserver receives the operation name ("create", "query", "update",
// "delete", "row", "raw") and duration of every statement.
type QueryObserver func(op string, d time.Duration)

const startedKey = "tradeledger:started_at"

// RegisterQueryTimer times every GORM statement on db and reports it to fn.
func RegisterQueryTimer(db *gorm.DB, fn QueryObserver) error {
	before := func(tx *gorm.DB) {
		tx.InstanceSet(startedKey, time.Now())
	}
	after := func(op string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			v, ok := tx.InstanceGet(startedKey)
			if !ok {
				return
			}
			if started, ok := v.(time.Time); ok {
				fn(op, time.Since(started))
			}
		}
	}

	cb := db.Callback()
	steps := []struct {
		op     string
		before func(string) error
		after  func(string) error
	}{
		{"create",
			func(n string) error { return cb.Create().Before("gorm:create").Register(n, before) },
			func(n string) error { return cb.Create().After("gorm:create").Register(n, after("create")) }},
		{"query",
			func(n string) error { return cb.Query().Before("gorm:query").Register(n, before) },
			func(n string) error { return cb.Query().After("gorm:query").Register(n, after("query")) }},
		{"update",
			func(n string) error { return cb.Update().Before("gorm:update").Register(n, before) },
			func(n string) error { return cb.Update().After("gorm:update").Register(n, after("update")) }},
		{"delete",
			func(n string) error { return cb.Delete().Before("gorm:delete").Register(n, before) },
			func(n string) error { return cb.Delete().After("gorm:delete").Register(n, after("delete")) }},
		{"row",
			func(n string) error { return cb.Row().Before("gorm:row").Register(n, before) },
			func(n string) error { return cb.Row().After("gorm:row").Register(n, after("row")) }},
		{"raw",
			func(n string) error { return cb.Raw().Before("gorm:raw").Register(n, before) },
			func(n string) error { return cb.Raw().After("gorm:raw").Register(n, after("raw")) }},
	}
	for _, s := range steps {
		if err := s.before("tradeledger:before_" + s.op); err != nil {
			return err
		}
		if err := s.after("tradeledger:after_" + s.op); err != nil {
			return err
		}
	}
	return nil
}
