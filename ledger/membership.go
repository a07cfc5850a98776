package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Membership roles assigned at registration.
const (
	MemberRoleClient  = 1
	MemberRoleAuditor = 3
)

// Credentials are returned once, when an enroll id is registered.
type Credentials struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
	Role   int    `json:"role"`
}

// Member is the stored registration record for an enroll id.
type Member struct {
	EnrollID     string    `json:"enrollId"`
	Affiliation  string    `json:"affiliation"`
	Role         int       `json:"role"`
	SecretHash   string    `json:"secretHash"`
	RegisteredBy string    `json:"registeredBy"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Membership registers enroll ids against the network's membership service.
type Membership struct {
	store     Store
	hasher    PasswordHasher
	registrar string
	tls       bool
}

// NewMembership creates a membership service. registrar is the admin enroll
// id recorded on every registration; tls selects the TLS network affiliation.
func NewMembership(store Store, hasher PasswordHasher, registrar string, tls bool) *Membership {
	return &Membership{store: store, hasher: hasher, registrar: registrar, tls: tls}
}

// Affiliation returns the affiliation new members are registered under.
func (m *Membership) Affiliation() string {
	if m.tls {
		return "group1"
	}
	return "institution_a"
}

// Register enrolls a new id and returns its one-time secret.
func (m *Membership) Register(ctx context.Context, enrollID string) (Credentials, error) {
	enrollID = strings.TrimSpace(enrollID)
	if enrollID == "" {
		return Credentials{}, fmt.Errorf("%w: enroll id is required", ErrInvalidCredentials)
	}

	key := "member/" + enrollID
	_, err := m.store.Get(ctx, key)
	if err == nil {
		return Credentials{}, fmt.Errorf("%w: cannot register an existing user %s", ErrUserExists, enrollID)
	}
	if !errors.Is(err, ErrNotFound) {
		return Credentials{}, err
	}

	role := MemberRoleClient
	if strings.Contains(strings.ToLower(enrollID), "auditor") {
		role = MemberRoleAuditor
	}

	secret := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	hash, err := m.hasher.Hash(secret)
	if err != nil {
		return Credentials{}, fmt.Errorf("hash secret: %w", err)
	}

	member := Member{
		EnrollID:     enrollID,
		Affiliation:  m.Affiliation(),
		Role:         role,
		SecretHash:   hash,
		RegisteredBy: m.registrar,
		RegisteredAt: time.Now().UTC(),
	}
	data, err := json.Marshal(member)
	if err != nil {
		return Credentials{}, err
	}
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}
	if err := m.store.Put(ctx, key, data); err != nil {
		return Credentials{}, fmt.Errorf("register %s: %w", enrollID, err)
	}

	return Credentials{ID: enrollID, Secret: secret, Role: role}, nil
}

// Member loads a registration record.
func (m *Membership) Member(ctx context.Context, enrollID string) (Member, error) {
	data, err := m.store.Get(ctx, "member/"+enrollID)
	if err != nil {
		return Member{}, err
	}
	var member Member
	if err := json.Unmarshal(data, &member); err != nil {
		return Member{}, err
	}
	return member, nil
}
