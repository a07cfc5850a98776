package ledger

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shaurya/tradeledger/orm"
	"go.uber.org/zap"
)

const lcKeysKey = "LCKeys"

func userKey(name string) string { return "user/" + name }
func lcKey(id string) string     { return "lc/" + id }

func docKey(shipmentID, name string) string {
	return "doc/" + shipmentID + "_" + name
}

// Contract implements the letter-of-credit business rules over a Store.
// Mutating methods assume they are serialized by the caller.
type Contract struct {
	store  Store
	hasher PasswordHasher
	policy *bluemonday.Policy
	txID   func() string
	seed   bool
	log    *zap.Logger
}

// ContractOption configures a Contract.
type ContractOption func(*Contract)

// WithContractLogger sets the contract logger.
func WithContractLogger(log *zap.Logger) ContractOption {
	return func(c *Contract) {
		if log != nil {
			c.log = log
		}
	}
}

// WithTxIDs overrides the transaction id generator.
func WithTxIDs(fn func() string) ContractOption {
	return func(c *Contract) { c.txID = fn }
}

// WithoutSeedUsers stops Init from creating the four demo accounts.
func WithoutSeedUsers() ContractOption {
	return func(c *Contract) { c.seed = false }
}

func NewContract(store Store, hasher PasswordHasher, opts ...ContractOption) *Contract {
	c := &Contract{
		store:  store,
		hasher: hasher,
		policy: bluemonday.StrictPolicy(),
		txID:   uuid.NewString,
		seed:   true,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the underlying state store.
func (c *Contract) Store() Store { return c.store }

// Init seeds the demo users, creates the LC index when missing and backfills
// an empty status on existing LCs. It is safe to run on every boot.
func (c *Contract) Init(ctx context.Context) error {
	if c.seed {
		for _, u := range seedUsers {
			err := c.CreateUser(ctx, u.name, u.name, u.role)
			if err != nil && !errors.Is(err, ErrUserExists) {
				return fmt.Errorf("seed user %s: %w", u.name, err)
			}
		}
	}

	keys, err := c.lcKeys(ctx)
	if errors.Is(err, ErrNotFound) {
		c.log.Info("Initializing LC key index")
		return c.putJSON(ctx, lcKeysKey, []string{})
	}
	if err != nil {
		return err
	}

	for _, key := range keys {
		lc, err := c.FetchLC(ctx, key)
		if err != nil {
			c.log.Warn("Skipping unreadable LC during init", zap.String("shipment_id", key), zap.Error(err))
			continue
		}
		if lc.CurrentStatus != "" {
			continue
		}
		lc.CurrentStatus = StatusCreated
		if err := c.putJSON(ctx, lcKey(key), lc); err != nil {
			return fmt.Errorf("backfill status for %s: %w", key, err)
		}
	}
	return nil
}

// CreateUser stores a new account. It fails with ErrUserExists when the
// username is taken.
func (c *Contract) CreateUser(ctx context.Context, username, password, role string) error {
	if username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidCredentials)
	}
	_, err := c.store.Get(ctx, userKey(username))
	if err == nil {
		return fmt.Errorf("%w: %s", ErrUserExists, username)
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}

	hash, err := c.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return c.putJSON(ctx, userKey(username), User{UserName: username, Role: role, PasswordHash: hash})
}

// Login checks a username and password and returns the account without its
// password hash.
func (c *Contract) Login(ctx context.Context, username, password string) (User, error) {
	var u User
	if err := c.getJSON(ctx, userKey(username), &u); err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if !c.hasher.Compare(u.PasswordHash, password) {
		return User{}, ErrInvalidCredentials
	}
	u.PasswordHash = ""
	return u, nil
}

// CreateLC stores a new LC in its initial state and returns the event
// message announcing it.
func (c *Contract) CreateLC(ctx context.Context, lc LC) (string, error) {
	c.sanitize(&lc)
	if errs := orm.Validate(&lc); errs != nil {
		return "", &ValidationError{Fields: errs}
	}
	lc.reset()

	if err := c.putJSON(ctx, lcKey(lc.ShipmentID), lc); err != nil {
		return "", fmt.Errorf("create LC: %w", err)
	}

	keys, err := c.lcKeys(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("load LC keys: %w", err)
	}
	found := false
	for _, k := range keys {
		if k == lc.ShipmentID {
			found = true
			break
		}
	}
	if !found {
		keys = append(keys, lc.ShipmentID)
		if err := c.putJSON(ctx, lcKeysKey, keys); err != nil {
			return "", fmt.Errorf("write LC keys: %w", err)
		}
	}

	return fmt.Sprintf("LC created successfully for shipmentId :%s.%s", lc.ShipmentID, c.txID()), nil
}

// UpdateStatus flips one status flag of an existing LC.
func (c *Contract) UpdateStatus(ctx context.Context, shipmentID string, field StatusField, value bool) (LC, error) {
	lc, err := c.FetchLC(ctx, shipmentID)
	if err != nil {
		return LC{}, err
	}
	if err := lc.Apply(field, value); err != nil {
		return LC{}, err
	}
	if err := c.putJSON(ctx, lcKey(shipmentID), lc); err != nil {
		return LC{}, fmt.Errorf("update LC %s: %w", shipmentID, err)
	}
	return lc, nil
}

// UploadDocument stores a base64-encoded document against an LC. Once two or
// more documents are attached the LC moves to ExporterDocsUploaded.
func (c *Contract) UploadDocument(ctx context.Context, shipmentID, name, content string) (LC, error) {
	name = slug.Make(name)
	if name == "" {
		return LC{}, fmt.Errorf("%w: document name is required", ErrInvalidLC)
	}
	if _, err := base64.StdEncoding.DecodeString(content); err != nil {
		return LC{}, fmt.Errorf("%w: document is not base64: %v", ErrInvalidLC, err)
	}

	lc, err := c.FetchLC(ctx, shipmentID)
	if err != nil {
		return LC{}, err
	}

	if err := c.put(ctx, docKey(shipmentID, name), []byte(content)); err != nil {
		return LC{}, fmt.Errorf("store document: %w", err)
	}

	lc.DocumentNames = append(lc.DocumentNames, name)
	if len(lc.DocumentNames) >= 2 {
		_ = lc.Apply(FieldExporterDocsUploaded, true)
	}
	if err := c.putJSON(ctx, lcKey(shipmentID), lc); err != nil {
		return LC{}, fmt.Errorf("update LC %s: %w", shipmentID, err)
	}
	return lc, nil
}

// FileView returns the stored base64 content of a document. name is matched
// the way UploadDocument stored it, so "Bill of Lading" and "bill-of-lading"
// find the same document.
func (c *Contract) FileView(ctx context.Context, shipmentID, name string) ([]byte, error) {
	v, err := c.store.Get(ctx, docKey(shipmentID, slug.Make(name)))
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, name)
	}
	return v, err
}

// FetchLC loads one LC.
func (c *Contract) FetchLC(ctx context.Context, shipmentID string) (LC, error) {
	var lc LC
	if err := c.getJSON(ctx, lcKey(shipmentID), &lc); err != nil {
		if errors.Is(err, ErrNotFound) {
			return LC{}, fmt.Errorf("%w: LC %s", ErrNotFound, shipmentID)
		}
		return LC{}, err
	}
	return lc, nil
}

// AllLCs returns every LC in creation order.
func (c *Contract) AllLCs(ctx context.Context) ([]LC, error) {
	keys, err := c.lcKeys(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return []LC{}, nil
		}
		return nil, err
	}

	lcs := make([]LC, 0, len(keys))
	for _, key := range keys {
		lc, err := c.FetchLC(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("retrieve LC %s: %w", key, err)
		}
		lcs = append(lcs, lc)
	}
	return lcs, nil
}

func (c *Contract) sanitize(lc *LC) {
	for _, f := range []*string{
		&lc.ShipmentID, &lc.ContentDescription, &lc.ExporterCompany, &lc.ExporterBank,
		&lc.ImporterCompany, &lc.ImporterBank, &lc.FreightCompany, &lc.PortOfLoading, &lc.PortOfEntry,
	} {
		*f = c.policy.Sanitize(*f)
	}
}

func (c *Contract) lcKeys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := c.getJSON(ctx, lcKeysKey, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func (c *Contract) getJSON(ctx context.Context, key string, v any) error {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (c *Contract) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.put(ctx, key, data)
}

// put refuses to write once ctx is done, so a mutation abandoned by its
// caller stops between writes.
func (c *Contract) put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.store.Put(ctx, key, data)
}
