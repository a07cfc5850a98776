package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shaurya/tradeledger/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "ledger.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&State{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestStoreGetPut(t *testing.T) {
	ctx := context.Background()
	s := New(openTestDB(t))

	_, err := s.Get(ctx, "lc/missing")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	require.NoError(t, s.Put(ctx, "lc/1", []byte(`{"shipmentId":"1"}`)))
	v, err := s.Get(ctx, "lc/1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"shipmentId":"1"}`, string(v))

	require.NoError(t, s.Put(ctx, "lc/1", []byte(`{"shipmentId":"1","currentStatus":"Created"}`)))
	v, err = s.Get(ctx, "lc/1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"shipmentId":"1","currentStatus":"Created"}`, string(v))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, s.Ping(ctx))
}

func TestContractOnSQLStore(t *testing.T) {
	ctx := context.Background()
	c := ledger.NewContract(New(openTestDB(t)), plainHasher{}, ledger.WithTxIDs(func() string { return "tx" }))
	require.NoError(t, c.Init(ctx))

	msg, err := c.CreateLC(ctx, ledger.LC{ShipmentID: "SHP-9"})
	require.NoError(t, err)
	assert.Equal(t, "LC created successfully for shipmentId :SHP-9.tx", msg)

	lc, err := c.UpdateStatus(ctx, "SHP-9", ledger.FieldCustomsApproved, false)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCustomsRejected, lc.CurrentStatus)

	all, err := c.AllLCs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, ledger.StatusCustomsRejected, all[0].CurrentStatus)
}

type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "plain:" + p, nil }
func (plainHasher) Compare(h, p string) bool      { return h == "plain:"+p }
