package events

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shaurya/tradeledger/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "events.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Record{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

type hubRecorder struct {
	mu   sync.Mutex
	msgs [][]byte
	got  chan struct{}
}

func newHubRecorder() *hubRecorder { return &hubRecorder{got: make(chan struct{}, 16)} }

func (h *hubRecorder) Broadcast(msg []byte) {
	h.mu.Lock()
	h.msgs = append(h.msgs, msg)
	h.mu.Unlock()
	h.got <- struct{}{}
}

func TestProcessorRecordsAndPublishes(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	mem := cache.NewMemoryAdapter()

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	msgs, err := mem.Subscribe(subCtx, Channel)
	require.NoError(t, err)

	p := NewProcessor(db, mem, nil)
	e := New(LCCreated, "LC-1", "exporter", "LC created successfully for shipmentId :LC-1.tx")
	require.NoError(t, p.Process(ctx, e))

	select {
	case msg := <-msgs:
		var got Event
		require.NoError(t, json.Unmarshal([]byte(msg), &got))
		assert.Equal(t, e.ID, got.ID)
		assert.Equal(t, LCCreated, got.Type)
	case <-time.After(time.Second):
		t.Fatal("event not published")
	}

	// Reprocessing the same event does not duplicate the row.
	require.NoError(t, p.Process(ctx, e))
	var count int64
	require.NoError(t, db.Model(&Record{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestProcessorHistory(t *testing.T) {
	ctx := context.Background()
	p := NewProcessor(openTestDB(t), nil, nil)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, typ := range []Type{LCCreated, StatusUpdated, DocumentUploaded} {
		e := New(typ, "LC-9", "customs", "")
		e.At = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, p.Process(ctx, e))
	}
	other := New(LCCreated, "LC-10", "exporter", "")
	require.NoError(t, p.Process(ctx, other))

	hist, err := p.History(ctx, "LC-9", 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, DocumentUploaded, hist[0].Type)
	assert.Equal(t, StatusUpdated, hist[1].Type)

	none, err := NewProcessor(nil, nil, nil).History(ctx, "LC-9", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestHandleEvent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	h := HandleEvent(NewProcessor(db, nil, nil))

	e := New(StatusUpdated, "LC-2", "customs", "")
	payload, err := json.Marshal(e)
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(ctx, asynq.NewTask(TaskType, payload)))

	err = h.ProcessTask(ctx, asynq.NewTask(TaskType, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	err = h.ProcessTask(ctx, asynq.NewTask(TaskType, []byte(`{"type":"lc.created"}`)))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestWorkerMuxRoutesEvents(t *testing.T) {
	w := &Worker{Mux: asynq.NewServeMux(), log: zap.NewNop()}

	db := openTestDB(t)
	w.Handle(TaskType, HandleEvent(NewProcessor(db, nil, nil)))

	payload, err := json.Marshal(New(UserRegistered, "", "WebAppAdmin", "bob"))
	require.NoError(t, err)
	require.NoError(t, w.Mux.ProcessTask(context.Background(), asynq.NewTask(TaskType, payload)))

	var count int64
	require.NoError(t, db.Model(&Record{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRelayBroadcastsEvents(t *testing.T) {
	mem := cache.NewMemoryAdapter()
	hub := newHubRecorder()
	relay := NewRelay(mem, hub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	// Wait for the subscription to exist.
	require.Eventually(t, func() bool {
		p := InlinePublisher{Processor: NewProcessor(nil, mem, nil)}
		_ = p.Publish(ctx, New(LCCreated, "LC-3", "exporter", ""))
		select {
		case <-hub.got:
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, mem.Publish(ctx, Channel, "not json"))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}

	hub.mu.Lock()
	defer hub.mu.Unlock()
	require.NotEmpty(t, hub.msgs)
	var env struct {
		Type  string `json:"type"`
		Event Event  `json:"event"`
	}
	require.NoError(t, json.Unmarshal(hub.msgs[0], &env))
	assert.Equal(t, "event", env.Type)
	assert.Equal(t, "LC-3", env.Event.ShipmentID)
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), New(LCCreated, "x", "", "")))
}
