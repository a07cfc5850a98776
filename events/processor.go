package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shaurya/tradeledger/cache"
	"github.com/shaurya/tradeledger/orm"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Record is a stored ledger event.
type Record struct {
	orm.Record
	EventID    string `gorm:"column:event_id;uniqueIndex;size:64" json:"eventId"`
	Kind       string `gorm:"size:64" json:"kind"`
	ShipmentID string `gorm:"size:64;index" json:"shipmentId"`
	Actor      string `gorm:"size:128" json:"actor"`
	Payload    string `json:"payload"`
}

func (Record) TableName() string { return "ledger_events" }

// Processor stores events (when a database is configured) and republishes
// them on Channel.
type Processor struct {
	db    *gorm.DB
	cache cache.Cache
	log   *zap.Logger
}

// NewProcessor creates a processor. db and c may be nil.
func NewProcessor(db *gorm.DB, c cache.Cache, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{db: db, cache: c, log: log}
}

// Process records e and broadcasts it. Recording is idempotent per event id.
func (p *Processor) Process(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}

	if p.db != nil {
		rec := Record{
			EventID:    e.ID,
			Kind:       string(e.Type),
			ShipmentID: e.ShipmentID,
			Actor:      e.Actor,
			Payload:    string(payload),
		}
		rec.CreatedAt = e.At
		if err := orm.QueryContext[Record](ctx, p.db).Upsert(&rec, []string{"event_id"}, []string{"payload"}); err != nil {
			return fmt.Errorf("events: record %s: %w", e.ID, err)
		}
	}

	if p.cache != nil {
		if err := p.cache.Publish(ctx, Channel, string(payload)); err != nil {
			return fmt.Errorf("events: publish %s: %w", e.ID, err)
		}
	}

	p.log.Debug("Ledger event processed",
		zap.String("id", e.ID),
		zap.String("type", string(e.Type)),
		zap.String("shipment_id", e.ShipmentID),
	)
	return nil
}

// History returns the newest stored events for a shipment, newest first.
// It returns an empty list when no database is configured.
func (p *Processor) History(ctx context.Context, shipmentID string, limit int) ([]Event, error) {
	if p.db == nil {
		return []Event{}, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := orm.QueryContext[Record](ctx, p.db).
		Scope(orm.Equal("shipment_id", shipmentID), orm.Recent(limit)).
		All()
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(rows))
	for _, row := range rows {
		var e Event
		if err := json.Unmarshal([]byte(row.Payload), &e); err != nil {
			p.log.Warn("Skipping unreadable event", zap.String("id", row.EventID), zap.Error(err))
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
