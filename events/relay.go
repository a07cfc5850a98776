package events

import (
	"context"
	"encoding/json"

	"github.com/shaurya/tradeledger/cache"
	"go.uber.org/zap"
)

// Broadcaster sends a message to every connected client.
type Broadcaster interface {
	Broadcast(msg []byte)
}

// Relay forwards events published on Channel to a Broadcaster, wrapped as
// {"type":"event","event":{...}}.
type Relay struct {
	cache cache.Cache
	hub   Broadcaster
	log   *zap.Logger
}

// NewRelay creates a relay from c's Channel to hub.
func NewRelay(c cache.Cache, hub Broadcaster, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{cache: c, hub: hub, log: log}
}

// Run relays until ctx is done or the subscription closes.
func (r *Relay) Run(ctx context.Context) error {
	msgs, err := r.cache.Subscribe(ctx, Channel)
	if err != nil {
		return err
	}
	for msg := range msgs {
		if !json.Valid([]byte(msg)) {
			r.log.Warn("Dropping malformed event message", zap.String("channel", Channel))
			continue
		}
		out, err := json.Marshal(struct {
			Type  string          `json:"type"`
			Event json.RawMessage `json:"event"`
		}{Type: "event", Event: json.RawMessage(msg)})
		if err != nil {
			continue
		}
		r.hub.Broadcast(out)
	}
	return ctx.Err()
}
