// Package sqlstore keeps ledger world state in a SQL table through GORM.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shaurya/tradeledger/ledger"
	"github.com/shaurya/tradeledger/orm"
	"gorm.io/gorm"
)

// State is one key/value row of world state.
type State struct {
	Key       string `gorm:"column:state_key;primaryKey;size:255"`
	Value     []byte `gorm:"not null"`
	UpdatedAt time.Time
}

func (State) TableName() string { return "ledger_states" }

// Store implements ledger.Store on a GORM connection. The connection is owned
// by the caller.
type Store struct {
	db *gorm.DB
}

var _ ledger.Store = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	row, err := orm.QueryContext[State](ctx, s.db).Where("state_key = ?", key).First()
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get %s: %w", key, err)
	}
	return row.Value, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	row := State{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := orm.QueryContext[State](ctx, s.db).Upsert(&row, []string{"state_key"}, []string{"value", "updated_at"})
	if err != nil {
		return fmt.Errorf("sqlstore: put %s: %w", key, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close is a no-op; the framework closes the shared connection.
func (s *Store) Close() error { return nil }

// Count returns the number of stored keys.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return orm.QueryContext[State](ctx, s.db).Count()
}
