package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shaurya/tradeledger/chaincode"
	"github.com/shaurya/tradeledger/ledger"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// Message types exchanged with portal clients.
const (
	TypeCreateLC     = "createLC"
	TypeUpdateStatus = "updateStatus"
	TypeWatch        = "watch"
	TypeError        = "error"
)

// Inbound is a client message. LC may be the LC object or a JSON string
// holding it.
type Inbound struct {
	Type       string          `json:"type"`
	LC         json.RawMessage `json:"lc,omitempty"`
	Req        *StatusRequest  `json:"req,omitempty"`
	ShipmentID string          `json:"shipmentId,omitempty"`
}

// StatusRequest flips one status flag. Value accepts true/false, "true",
// "false", 1 and 0.
type StatusRequest struct {
	ShipmentID string `json:"shipmentId"`
	Status     string `json:"status"`
	Value      any    `json:"value"`
}

// ErrorMessage is sent when a request could not be queued or failed.
type ErrorMessage struct {
	Type    string `json:"type"`
	Request string `json:"request,omitempty"`
	Error   string `json:"error"`
}

// LCRoom is the room clients watching one LC join.
func LCRoom(shipmentID string) string { return "lc:" + shipmentID }

// LedgerChannel queues LC mutations received over the socket and reports
// each outcome to the client that asked. Every reply is posted, so a slow
// client never holds up the queue.
type LedgerChannel struct {
	ops      *chaincode.Ops
	log      *zap.Logger
	identify func(r *http.Request) string
}

// ChannelOption configures a LedgerChannel.
type ChannelOption func(*LedgerChannel)

// WithChannelLogger sets the channel logger.
func WithChannelLogger(log *zap.Logger) ChannelOption {
	return func(c *LedgerChannel) {
		if log != nil {
			c.log = log
		}
	}
}

// WithIdentity names the user behind a connection for event attribution.
func WithIdentity(fn func(r *http.Request) string) ChannelOption {
	return func(c *LedgerChannel) { c.identify = fn }
}

func NewLedgerChannel(ops *chaincode.Ops, opts ...ChannelOption) *LedgerChannel {
	c := &LedgerChannel{ops: ops, log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *LedgerChannel) OnConnect(ctx *WSContext) error {
	c.log.Debug("Ledger client connected", zap.String("remote", ctx.Request.RemoteAddr), zap.String("user", c.actor(ctx)))
	return nil
}

func (c *LedgerChannel) OnDisconnect(ctx *WSContext) error {
	c.log.Debug("Ledger client disconnected", zap.String("remote", ctx.Request.RemoteAddr))
	return nil
}

// OnMessage never returns an error for a bad request; the client gets an
// error message and the connection stays open.
func (c *LedgerChannel) OnMessage(ctx *WSContext, data []byte) error {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(ctx, "", fmt.Errorf("malformed message: %w", err))
		return nil
	}

	switch msg.Type {
	case TypeCreateLC:
		c.createLC(ctx, msg)
	case TypeUpdateStatus:
		c.updateStatus(ctx, msg)
	case TypeWatch:
		if msg.ShipmentID == "" {
			c.reply(ctx, msg.Type, errors.New("shipmentId not provided"))
			return nil
		}
		ctx.JoinRoom(LCRoom(msg.ShipmentID))
	default:
		c.reply(ctx, msg.Type, fmt.Errorf("unknown message type %q", msg.Type))
	}
	return nil
}

func (c *LedgerChannel) createLC(ctx *WSContext, msg Inbound) {
	if len(msg.LC) == 0 || string(msg.LC) == "null" {
		c.reply(ctx, TypeCreateLC, errors.New("lc not provided"))
		return
	}
	lc, err := ledger.ParseLC(msg.LC)
	if err != nil {
		c.reply(ctx, TypeCreateLC, err)
		return
	}

	c.log.Info("Queueing createLC", zap.String("shipment_id", lc.ShipmentID))
	err = c.ops.SubmitCreateLC(ctx.Context(), c.actor(ctx), lc, func(result string, err error) {
		if err != nil {
			c.log.Error("createLC failed", zap.String("shipment_id", lc.ShipmentID), zap.Error(err))
			c.reply(ctx, TypeCreateLC, err)
			return
		}
		c.log.Info("LC created", zap.String("shipment_id", lc.ShipmentID))
		c.send(ctx, map[string]any{"type": TypeCreateLC, "result": result})
	})
	if err != nil {
		c.reply(ctx, TypeCreateLC, err)
	}
}

func (c *LedgerChannel) updateStatus(ctx *WSContext, msg Inbound) {
	if msg.Req == nil {
		c.reply(ctx, TypeUpdateStatus, errors.New("req not provided"))
		return
	}
	req := *msg.Req
	field, err := ledger.ParseStatusField(req.Status)
	if err != nil {
		c.reply(ctx, TypeUpdateStatus, err)
		return
	}
	value, err := cast.ToBoolE(req.Value)
	if err != nil {
		c.reply(ctx, TypeUpdateStatus, fmt.Errorf("invalid status value: %w", err))
		return
	}

	err = c.ops.SubmitUpdateStatus(ctx.Context(), c.actor(ctx), req.ShipmentID, field, value, func(lc ledger.LC, err error) {
		if err != nil {
			c.log.Error("updateStatus failed", zap.String("shipment_id", req.ShipmentID), zap.Error(err))
			c.reply(ctx, TypeUpdateStatus, err)
			return
		}
		out := map[string]any{
			"type":       TypeUpdateStatus,
			"result":     lc,
			"statusFlag": value,
			"state":      req.Status,
		}
		c.send(ctx, out)
		ctx.Hub.BroadcastToRoom(LCRoom(req.ShipmentID), out)
	})
	if err != nil {
		c.reply(ctx, TypeUpdateStatus, err)
	}
}

func (c *LedgerChannel) reply(ctx *WSContext, request string, err error) {
	c.send(ctx, ErrorMessage{Type: TypeError, Request: request, Error: err.Error()})
}

func (c *LedgerChannel) send(ctx *WSContext, msg any) {
	if err := ctx.Post(msg); err != nil {
		c.log.Warn("Response not delivered", zap.String("remote", ctx.Request.RemoteAddr), zap.Error(err))
	}
}

func (c *LedgerChannel) actor(ctx *WSContext) string {
	if c.identify == nil || ctx.Request == nil {
		return ""
	}
	return c.identify(ctx.Request)
}
