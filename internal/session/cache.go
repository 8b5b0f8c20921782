// Package session implements the gateway's key spaces on top of a cache
// store: signup markers keyed by email, session records keyed by role ID,
// rotating public key slots, relationship sets and payment snapshots.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/match-gateway/internal/cache"
	"github.com/phrazzld/match-gateway/internal/config"
	"github.com/phrazzld/match-gateway/internal/domain"
)

// TTLs is the expiry policy of each key space.
type TTLs struct {
	Session     time.Duration
	Signup      time.Duration
	Placeholder time.Duration
	Pubkey      time.Duration
	Tracker     time.Duration
	Payment     time.Duration
	Handling    time.Duration
}

// TTLsFrom reads the policy from cache configuration.
func TTLsFrom(cfg config.CacheConfig) TTLs {
	return TTLs{
		Session:     cfg.SessionTTL,
		Signup:      cfg.SignupTTL,
		Placeholder: cfg.PlaceholderTTL,
		Pubkey:      cfg.PubkeyTTL,
		Tracker:     cfg.TrackerTTL,
		Payment:     cfg.PaymentTTL,
		Handling:    cfg.HandlingTTL,
	}
}

// DefaultTTLs is the production policy.
func DefaultTTLs() TTLs {
	return TTLs{
		Session:     14 * 24 * time.Hour,
		Signup:      300 * time.Second,
		Placeholder: 30 * time.Second,
		Pubkey:      30 * 24 * time.Hour,
		Tracker:     24 * time.Hour,
		Payment:     10 * time.Minute,
		Handling:    7 * 24 * time.Hour,
	}
}

// PubkeySlots is the number of rotating public key slots.
const PubkeySlots = 100

// Cache is the typed view over the shared store. Every method returns the
// store's error as is; callers decide how an outage surfaces.
type Cache struct {
	store cache.Store
	ttl   TTLs
	now   func() time.Time
}

// New creates a Cache over store.
func New(store cache.Store, ttl TTLs) *Cache {
	return &Cache{store: store, ttl: ttl, now: time.Now}
}

// SetClock replaces the time source used for pubkey slots.
func (c *Cache) SetClock(now func() time.Time) { c.now = now }

// TTLs returns the cache's expiry policy.
func (c *Cache) TTLs() TTLs { return c.ttl }

// Ping checks the store.
func (c *Cache) Ping(ctx context.Context) error { return c.store.Ping(ctx) }

// Key builders.

// PubkeyKey names the slot active at t.
func PubkeyKey(t time.Time) string {
	return "pubkey_" + strconv.FormatInt(t.Unix()%PubkeySlots, 10)
}

// RelationKey names the set of targets roleID follows or contacts.
func RelationKey(role domain.Role, roleID string, rel domain.Relation) string {
	return fmt.Sprintf("%s:%s:%s:%s", role, roleID, rel, role.Target())
}

// PaymentKey names the payment snapshot of roleID.
func PaymentKey(roleID string) string { return "pay:" + roleID }

// HandlingKey names the customer → role ID mapping of an open checkout.
func HandlingKey(customerID string) string { return "pay_handling:" + customerID }

// Signup markers.

// MarkerState is where an email sits in the signup protocol.
type MarkerState int

const (
	// MarkerAbsent means no signup is in flight.
	MarkerAbsent MarkerState = iota
	// MarkerPlaceholder is the short-lived {} claim.
	MarkerPlaceholder
	// MarkerPending holds a confirm code awaiting confirmation.
	MarkerPending
	// MarkerDuplicate records that the email is registered in Region.
	MarkerDuplicate
)

// PendingSignup is the record awaiting confirmation.
type PendingSignup struct {
	ConfirmCode string          `json:"confirm_code"`
	Meta        json.RawMessage `json:"meta,omitempty"`
	Email       string          `json:"email"`
}

type markerDoc struct {
	Claim       string          `json:"claim,omitempty"`
	ConfirmCode string          `json:"confirm_code,omitempty"`
	Meta        json.RawMessage `json:"meta,omitempty"`
	Email       string          `json:"email,omitempty"`
	Region      string          `json:"region,omitempty"`
}

// Marker is the decoded signup marker of an email.
type Marker struct {
	State   MarkerState
	Pending PendingSignup
	Region  string

	raw cache.Value
}

var placeholder = cache.MustStructured(struct{}{})

// Claim is a won signup claim. Every claim stores its own nonce, so a
// holder whose claim expired mid-dispatch cannot overwrite a newer one.
type Claim struct {
	raw cache.Value
}

// ClaimSignup writes a placeholder if no marker exists and reports whether
// this caller won the claim.
func (c *Cache) ClaimSignup(ctx context.Context, email string) (Claim, bool, error) {
	v, err := cache.Structured(markerDoc{Claim: uuid.NewString()})
	if err != nil {
		return Claim{}, false, err
	}
	won, err := c.store.SetIfAbsent(ctx, email, v, c.ttl.Placeholder)
	if err != nil || !won {
		return Claim{}, won, err
	}
	return Claim{raw: v}, true, nil
}

// FillClaim replaces claim with the pending record p. It reports false,
// writing nothing, when claim is no longer the stored marker.
func (c *Cache) FillClaim(ctx context.Context, email string, claim Claim, p PendingSignup) (bool, error) {
	v, err := cache.Structured(p)
	if err != nil {
		return false, err
	}
	return c.store.CompareAndSwap(ctx, email, claim.raw, v, c.ttl.Signup)
}

// ReleaseClaim drops claim if it is still the stored marker. The read and
// the delete are not atomic; the gap is a single round trip.
func (c *Cache) ReleaseClaim(ctx context.Context, email string, claim Claim) error {
	v, ok, err := c.store.Get(ctx, email)
	if err != nil || !ok || !v.Equal(claim.raw) {
		return err
	}
	return c.store.Delete(ctx, email)
}

// SignupMarker reads the marker of email.
func (c *Cache) SignupMarker(ctx context.Context, email string) (Marker, error) {
	v, ok, err := c.store.Get(ctx, email)
	if err != nil {
		return Marker{}, err
	}
	if !ok {
		return Marker{State: MarkerAbsent}, nil
	}
	var doc markerDoc
	if err := v.Decode(&doc); err != nil {
		return Marker{}, fmt.Errorf("signup marker for %s: %w", email, err)
	}

	m := Marker{raw: v}
	switch {
	case doc.ConfirmCode != "":
		m.State = MarkerPending
		m.Pending = PendingSignup{ConfirmCode: doc.ConfirmCode, Meta: doc.Meta, Email: doc.Email}
	case doc.Region != "":
		m.State = MarkerDuplicate
		m.Region = doc.Region
	default:
		m.State = MarkerPlaceholder
	}
	return m, nil
}

// PutDuplicate records that email is already registered in region.
func (c *Cache) PutDuplicate(ctx context.Context, email, region string) error {
	v, err := cache.Structured(markerDoc{Region: region})
	if err != nil {
		return err
	}
	return c.store.Set(ctx, email, v, c.ttl.Signup)
}

// ClosePending swaps the exact pending record m back to the {} placeholder.
// Only one confirmer can win; the others see false.
func (c *Cache) ClosePending(ctx context.Context, email string, m Marker) (bool, error) {
	if m.State != MarkerPending {
		return false, nil
	}
	return c.store.CompareAndSwap(ctx, email, m.raw, placeholder, c.ttl.Placeholder)
}

// Sessions.

// PutSession writes s under its role ID.
func (c *Cache) PutSession(ctx context.Context, s domain.Session) error {
	v, err := cache.Structured(s)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, s.RoleID, v, c.ttl.Session)
}

// Session reads the session of roleID.
func (c *Cache) Session(ctx context.Context, roleID string) (domain.Session, bool, error) {
	v, ok, err := c.store.Get(ctx, roleID)
	if err != nil || !ok {
		return domain.Session{}, false, err
	}
	var s domain.Session
	if err := v.Decode(&s); err != nil {
		return domain.Session{}, false, fmt.Errorf("session %s: %w", roleID, err)
	}
	return s, true, nil
}

// MarkOffline replaces the session with its offline snapshot.
func (c *Cache) MarkOffline(ctx context.Context, s domain.Session) error {
	return c.PutSession(ctx, s.Offline())
}

// Public key.

// Pubkey reads the key in the current slot.
func (c *Cache) Pubkey(ctx context.Context) (string, bool, error) {
	v, ok, err := c.store.Get(ctx, PubkeyKey(c.now()))
	if err != nil || !ok {
		return "", false, err
	}
	return v.String(), true, nil
}

// PutPubkey writes key into the current slot.
func (c *Cache) PutPubkey(ctx context.Context, key string) error {
	return c.store.Set(ctx, PubkeyKey(c.now()), cache.Scalar(key), c.ttl.Pubkey)
}

// Payments.

// Payment reads the payment snapshot of roleID.
func (c *Cache) Payment(ctx context.Context, roleID string) (json.RawMessage, bool, error) {
	v, ok, err := c.store.Get(ctx, PaymentKey(roleID))
	if err != nil || !ok {
		return nil, false, err
	}
	if !v.IsStructured() {
		return nil, false, fmt.Errorf("payment snapshot %s: %w", roleID, cache.ErrNotStructured)
	}
	return json.RawMessage(v.String()), true, nil
}

// PutPayment writes the payment snapshot of roleID.
func (c *Cache) PutPayment(ctx context.Context, roleID string, snapshot json.RawMessage) error {
	v, err := cache.Structured(snapshot)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, PaymentKey(roleID), v, c.ttl.Payment)
}

// DropPayment invalidates the payment snapshot of roleID.
func (c *Cache) DropPayment(ctx context.Context, roleID string) error {
	return c.store.Delete(ctx, PaymentKey(roleID))
}

// PutPaymentHandling maps a provider customer to roleID.
func (c *Cache) PutPaymentHandling(ctx context.Context, customerID, roleID string) error {
	return c.store.Set(ctx, HandlingKey(customerID), cache.Scalar(roleID), c.ttl.Handling)
}

// PaymentHandling resolves a provider customer to a role ID.
func (c *Cache) PaymentHandling(ctx context.Context, customerID string) (string, bool, error) {
	v, ok, err := c.store.Get(ctx, HandlingKey(customerID))
	if err != nil || !ok {
		return "", false, err
	}
	return v.String(), true, nil
}

// Relationship sets.

// Members returns the IDs in the relation set.
func (c *Cache) Members(ctx context.Context, role domain.Role, roleID string, rel domain.Relation) ([]string, error) {
	return c.store.SetMembers(ctx, RelationKey(role, roleID, rel))
}

// AddMembers adds ids to the relation set and returns how many were new.
func (c *Cache) AddMembers(ctx context.Context, role domain.Role, roleID string, rel domain.Relation, ids ...string) (int, error) {
	return c.store.SetAdd(ctx, RelationKey(role, roleID, rel), c.ttl.Tracker, ids...)
}

// RemoveMembers removes ids from the relation set and returns how many were present.
func (c *Cache) RemoveMembers(ctx context.Context, role domain.Role, roleID string, rel domain.Relation, ids ...string) (int, error) {
	return c.store.SetRemove(ctx, RelationKey(role, roleID, rel), ids...)
}
