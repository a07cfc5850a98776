// Package chaincode serializes ledger mutations through the mutation queue
// and serves reads straight from the contract.
package chaincode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shaurya/tradeledger/cache"
	"github.com/shaurya/tradeledger/events"
	"github.com/shaurya/tradeledger/framework"
	"github.com/shaurya/tradeledger/ledger"
	"github.com/shaurya/tradeledger/queue"
	"go.uber.org/zap"
)

// AllLCsKey is the cache key of the LC list.
const AllLCsKey = "lcs:all"

// Ops is the portal's handle on the ledger. Mutations run one at a time on
// the queue; reads do not wait for it.
type Ops struct {
	queue     *queue.Serial
	contract  *ledger.Contract
	members   *ledger.Membership
	admin     string
	timeout   time.Duration
	cache     cache.Cache
	cacheTTL  time.Duration
	publisher events.Publisher
	log       *zap.Logger

	// ledger is held by a mutation for as long as it runs, including after
	// its job has timed out.
	ledger chan struct{}
}

// Option configures Ops.
type Option func(*Ops)

// WithAdmin sets the enroll id mutations are attributed to when no actor
// is given.
func WithAdmin(id string) Option {
	return func(o *Ops) {
		if id != "" {
			o.admin = id
		}
	}
}

// WithJobTimeout bounds how long a queued mutation may hold the queue. A
// mutation that overruns has its context cancelled and writes nothing
// further; the next mutation waits for it to return.
func WithJobTimeout(d time.Duration) Option {
	return func(o *Ops) { o.timeout = d }
}

// WithCache caches the LC list for ttl.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(o *Ops) {
		o.cache = c
		o.cacheTTL = ttl
	}
}

// WithPublisher sets where ledger events go after a successful mutation.
func WithPublisher(p events.Publisher) Option {
	return func(o *Ops) {
		if p != nil {
			o.publisher = p
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(o *Ops) {
		if log != nil {
			o.log = log
		}
	}
}

func New(q *queue.Serial, contract *ledger.Contract, members *ledger.Membership, opts ...Option) *Ops {
	o := &Ops{
		queue:     q,
		contract:  contract,
		members:   members,
		admin:     "WebAppAdmin",
		publisher: events.NopPublisher{},
		log:       zap.NewNop(),
		ledger:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Admin returns the admin enroll id.
func (o *Ops) Admin() string { return o.admin }

// Queue returns the mutation queue.
func (o *Ops) Queue() *queue.Serial { return o.queue }

// Contract returns the underlying contract.
func (o *Ops) Contract() *ledger.Contract { return o.contract }

// SubmitCreateLC queues the creation of lc. onComplete receives the event
// message announcing it.
func (o *Ops) SubmitCreateLC(ctx context.Context, actor string, lc ledger.LC, onComplete func(msg string, err error)) error {
	return o.enqueue(ctx, "createLC", o.createLC(actor, lc), typed(onComplete))
}

// CreateLC queues the creation of lc and waits for the outcome.
func (o *Ops) CreateLC(ctx context.Context, actor string, lc ledger.LC) (string, error) {
	return await[string](ctx, func(cb queue.CompletionFunc) error {
		return o.enqueue(ctx, "createLC", o.createLC(actor, lc), cb)
	})
}

func (o *Ops) createLC(actor string, lc ledger.LC) mutation {
	return func(ctx context.Context) (any, error) {
		msg, err := o.contract.CreateLC(ctx, lc)
		if err != nil {
			return "", err
		}
		o.changed(ctx, events.New(events.LCCreated, lc.ShipmentID, o.actor(actor), msg))
		return msg, nil
	}
}

// SubmitUpdateStatus queues a status flag change. onComplete receives the
// updated LC.
func (o *Ops) SubmitUpdateStatus(ctx context.Context, actor, shipmentID string, field ledger.StatusField, value bool, onComplete func(ledger.LC, error)) error {
	return o.enqueue(ctx, "updateStatus", o.updateStatus(actor, shipmentID, field, value), typed(onComplete))
}

// UpdateStatus queues a status flag change and waits for the outcome.
func (o *Ops) UpdateStatus(ctx context.Context, actor, shipmentID string, field ledger.StatusField, value bool) (ledger.LC, error) {
	return await[ledger.LC](ctx, func(cb queue.CompletionFunc) error {
		return o.enqueue(ctx, "updateStatus", o.updateStatus(actor, shipmentID, field, value), cb)
	})
}

func (o *Ops) updateStatus(actor, shipmentID string, field ledger.StatusField, value bool) mutation {
	return func(ctx context.Context) (any, error) {
		lc, err := o.contract.UpdateStatus(ctx, shipmentID, field, value)
		if err != nil {
			return ledger.LC{}, err
		}
		e := events.New(events.StatusUpdated, shipmentID, o.actor(actor), fmt.Sprintf("%s=%t", field, value))
		e.Status = string(lc.CurrentStatus)
		o.changed(ctx, e)
		return lc, nil
	}
}

// SubmitUploadDocument queues storing a base64 document against an LC.
func (o *Ops) SubmitUploadDocument(ctx context.Context, actor, shipmentID, name, content string, onComplete func(ledger.LC, error)) error {
	return o.enqueue(ctx, "uploadDocument", o.uploadDocument(actor, shipmentID, name, content), typed(onComplete))
}

// UploadDocument queues storing a base64 document and waits for the outcome.
func (o *Ops) UploadDocument(ctx context.Context, actor, shipmentID, name, content string) (ledger.LC, error) {
	return await[ledger.LC](ctx, func(cb queue.CompletionFunc) error {
		return o.enqueue(ctx, "uploadDocument", o.uploadDocument(actor, shipmentID, name, content), cb)
	})
}

func (o *Ops) uploadDocument(actor, shipmentID, name, content string) mutation {
	return func(ctx context.Context) (any, error) {
		lc, err := o.contract.UploadDocument(ctx, shipmentID, name, content)
		if err != nil {
			return ledger.LC{}, err
		}
		stored := ""
		if n := len(lc.DocumentNames); n > 0 {
			stored = lc.DocumentNames[n-1]
		}
		e := events.New(events.DocumentUploaded, shipmentID, o.actor(actor), stored)
		e.Status = string(lc.CurrentStatus)
		o.changed(ctx, e)
		return lc, nil
	}
}

// SubmitRegisterUser queues the registration of an enroll id.
func (o *Ops) SubmitRegisterUser(ctx context.Context, enrollID string, onComplete func(ledger.Credentials, error)) error {
	return o.enqueue(ctx, "registerUser", o.registerUser(enrollID), typed(onComplete))
}

// RegisterUser queues the registration of an enroll id and waits for its
// credentials.
func (o *Ops) RegisterUser(ctx context.Context, enrollID string) (ledger.Credentials, error) {
	return await[ledger.Credentials](ctx, func(cb queue.CompletionFunc) error {
		return o.enqueue(ctx, "registerUser", o.registerUser(enrollID), cb)
	})
}

func (o *Ops) registerUser(enrollID string) mutation {
	return func(ctx context.Context) (any, error) {
		creds, err := o.members.Register(ctx, enrollID)
		if err != nil {
			return ledger.Credentials{}, err
		}
		o.publish(ctx, events.New(events.UserRegistered, "", o.admin, creds.ID))
		return creds, nil
	}
}

// Login checks a portal user's password.
func (o *Ops) Login(ctx context.Context, username, password string) (ledger.User, error) {
	return o.contract.Login(ctx, username, password)
}

// FetchLC loads one LC.
func (o *Ops) FetchLC(ctx context.Context, shipmentID string) (ledger.LC, error) {
	return o.contract.FetchLC(ctx, shipmentID)
}

// FileView returns a stored document, base64 encoded.
func (o *Ops) FileView(ctx context.Context, shipmentID, name string) ([]byte, error) {
	return o.contract.FileView(ctx, shipmentID, name)
}

// AllLCs returns every LC, from the cache when possible.
func (o *Ops) AllLCs(ctx context.Context) ([]ledger.LC, error) {
	if o.cache == nil {
		return o.contract.AllLCs(ctx)
	}

	if raw, err := o.cache.Get(ctx, AllLCsKey); err == nil {
		var lcs []ledger.LC
		if err := json.Unmarshal([]byte(raw), &lcs); err == nil {
			framework.RecordCacheHit()
			return lcs, nil
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		o.log.Warn("LC list cache read failed", zap.Error(err))
	}
	framework.RecordCacheMiss()

	lcs, err := o.contract.AllLCs(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(lcs); err == nil {
		if err := o.cache.Set(ctx, AllLCsKey, data, o.cacheTTL); err != nil {
			o.log.Warn("LC list cache write failed", zap.Error(err))
		}
	}
	return lcs, nil
}

type mutation func(ctx context.Context) (any, error)

// enqueue submits fn as a named job. The job keeps ctx's values but is not
// cancelled with it; only the job timeout cancels it.
func (o *Ops) enqueue(ctx context.Context, name string, fn mutation, onComplete queue.CompletionFunc) error {
	work := queue.FuncWithTimeout(context.WithoutCancel(ctx), o.exclusive(fn), o.timeout)
	return o.queue.SubmitNamed(name, work, onComplete)
}

// exclusive runs fn while holding the ledger.
func (o *Ops) exclusive(fn mutation) mutation {
	return func(ctx context.Context) (any, error) {
		select {
		case o.ledger <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		defer func() { <-o.ledger }()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return fn(ctx)
	}
}

// changed runs inside the job after a successful LC mutation. The write has
// landed, so the cache and event follow it even past the job timeout.
func (o *Ops) changed(ctx context.Context, e events.Event) {
	ctx = context.WithoutCancel(ctx)
	if o.cache != nil {
		if err := o.cache.Delete(ctx, AllLCsKey); err != nil {
			o.log.Warn("LC list cache invalidation failed", zap.Error(err))
		}
	}
	o.publish(ctx, e)
}

func (o *Ops) publish(ctx context.Context, e events.Event) {
	if err := o.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
		o.log.Warn("Ledger event not published",
			zap.String("type", string(e.Type)),
			zap.String("shipment_id", e.ShipmentID),
			zap.Error(err),
		)
	}
}

func (o *Ops) actor(name string) string {
	if name == "" {
		return o.admin
	}
	return name
}

func typed[T any](fn func(T, error)) queue.CompletionFunc {
	if fn == nil {
		return nil
	}
	return func(result any, err error) {
		v, _ := result.(T)
		fn(v, err)
	}
}

func await[T any](ctx context.Context, submit func(queue.CompletionFunc) error) (T, error) {
	result, err := queue.Await(ctx, submit)
	v, _ := result.(T)
	return v, err
}
