package orm

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type entry struct {
	Record
	Kind  string `gorm:"size:32"`
	Token string `gorm:"uniqueIndex;size:32"`
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "orm.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&entry{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func seed(t *testing.T, db *gorm.DB, n int) {
	t.Helper()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		kind := "a"
		if i%2 == 1 {
			kind = "b"
		}
		e := entry{Kind: kind, Token: string(rune('A' + i))}
		e.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, Query[entry](db).Create(&e))
	}
}

func TestQueryBuilder(t *testing.T) {
	db := openTestDB(t)
	seed(t, db, 5)

	count, err := Query[entry](db).Count()
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)

	as, err := Query[entry](db).Scope(Equal("kind", "a")).Order("id").All()
	require.NoError(t, err)
	require.Len(t, as, 3)
	assert.Equal(t, "A", as[0].Token)

	page, err := Query[entry](db).Order("id").Page(2).PerPage(2).All()
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "C", page[0].Token)

	first, err := Query[entry](db).Where("token = ?", "D").First()
	require.NoError(t, err)
	assert.Equal(t, "b", first.Kind)
	assert.NotZero(t, first.ID)

	_, err = Query[entry](db).Where("token = ?", "Z").First()
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	empty, err := Query[entry](db).Where("kind = ?", "zzz").All()
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestScopes(t *testing.T) {
	db := openTestDB(t)
	seed(t, db, 5)

	recent, err := Query[entry](db).Scope(Recent(2)).All()
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "E", recent[0].Token)
	assert.Equal(t, "D", recent[1].Token)

	since, err := Query[entry](db).Scope(Since(time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC))).Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), since)

	all, err := Query[entry](db).Scope(Equal("kind", "")).Count()
	require.NoError(t, err)
	assert.Equal(t, int64(5), all)
}

func TestUpsert(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	e := entry{Kind: "a", Token: "X"}
	require.NoError(t, QueryContext[entry](ctx, db).Upsert(&e, []string{"token"}, []string{"kind"}))
	e2 := entry{Kind: "b", Token: "X"}
	require.NoError(t, QueryContext[entry](ctx, db).Upsert(&e2, []string{"token"}, []string{"kind"}))

	got, err := Query[entry](db).Where("token = ?", "X").First()
	require.NoError(t, err)
	assert.Equal(t, "b", got.Kind)

	n, err := Query[entry](db).Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestHandleDBError(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Query[entry](db).Create(&entry{Token: "dup"}))
	err := Query[entry](db).Create(&entry{Token: "dup"})
	require.Error(t, err)

	fields := HandleDBError("entries", err)
	assert.Contains(t, fields, "token")

	pg := errors.New(`ERROR: duplicate key value violates unique constraint "ledger_events_event_id_key" (SQLSTATE 23505)`)
	assert.Contains(t, HandleDBError("ledger_events", pg), "event_id")

	assert.Equal(t, []string{"boom"}, HandleDBError("entries", errors.New("boom"))["base"])
	assert.Nil(t, HandleDBError("entries", nil))
}

func TestValidate(t *testing.T) {
	type form struct {
		Name string `validate:"required"`
		Code string `validate:"max=3"`
	}
	assert.Nil(t, Validate(&form{Name: "ok", Code: "abc"}))

	errs := Validate(&form{Code: "abcd"})
	assert.Contains(t, errs, "Name")
	assert.Contains(t, errs, "Code")
}

func TestRegisterQueryTimer(t *testing.T) {
	db := openTestDB(t)
	var mu sync.Mutex
	ops := map[string]int{}
	require.NoError(t, RegisterQueryTimer(db, func(op string, d time.Duration) {
		mu.Lock()
		ops[op]++
		mu.Unlock()
		assert.GreaterOrEqual(t, d, time.Duration(0))
	}))

	require.NoError(t, Query[entry](db).Create(&entry{Token: "T"}))
	_, err := Query[entry](db).All()
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, ops["create"], 1)
	assert.GreaterOrEqual(t, ops["query"], 1)
}
