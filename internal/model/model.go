// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// ClientStatus is the lifecycle state of an API client.
type ClientStatus string

// Client statuses. Revoked is terminal.
const (
	StatusActive    ClientStatus = "active"
	StatusSuspended ClientStatus = "suspended"
	StatusRevoked   ClientStatus = "revoked"
)

// Valid reports whether s is a known status.
func (s ClientStatus) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusRevoked:
		return true
	}
	return false
}

// Client is a registered machine caller. The secret is never stored in cleartext.
type Client struct {
	ClientID       uuid.UUID // public, stable
	Name           string    // operator-facing label
	Description    string
	SecretHash     []byte   // Argon2id(secret, SecretSalt)
	SecretSalt     []byte   // per-client salt
	AllowedScopes  []string // sorted, unique
	RateLimit      int      // requests per rolling window
	Status         ClientStatus
	OrganizationID *string // tenant; nil means unscoped
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsActive reports whether the client may authenticate.
func (c *Client) IsActive() bool { return c.Status == StatusActive }

// NewClient is an operator's request to register a client.
type NewClient struct {
	Name           string
	Description    string
	AllowedScopes  []string
	RateLimit      int
	OrganizationID *string
}

// ClientFilter narrows client listings.
type ClientFilter struct {
	OrganizationID *string
	Status         *ClientStatus
	Limit          int
	Offset         int
}

// Token is a stored bearer credential. Only the digest of the raw value is persisted.
type Token struct {
	ID            uuid.UUID
	TokenHash     []byte // SHA-256(raw value)
	ClientID      uuid.UUID
	GrantedScopes []string
	IssuedAt      time.Time
	ExpiresAt     time.Time
	Revoked       bool
}

// ValidAt reports whether the token is usable at t: not revoked and t in [IssuedAt, ExpiresAt).
func (t *Token) ValidAt(now time.Time) bool {
	return !t.Revoked && !now.Before(t.IssuedAt) && now.Before(t.ExpiresAt)
}

// IssuedToken is the result of a successful grant. Value is shown once.
type IssuedToken struct {
	ID        uuid.UUID
	Value     string
	ClientID  uuid.UUID
	Scopes    []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenGrant is a token joined with the current state of its owning client,
// as read in one round-trip by the validator.
type TokenGrant struct {
	Token  Token
	Client Client
}

// UsageRecord is an immutable fact about one completed request.
type UsageRecord struct {
	ClientID   uuid.UUID
	Method     string
	Endpoint   string // route pattern, e.g. /v1/facilities/{id}
	Status     int
	Duration   time.Duration
	OccurredAt time.Time
}

// Succeeded reports whether the response status counts as a success.
func (r UsageRecord) Succeeded() bool { return r.Status > 0 && r.Status < 400 }

// UsageSummary is the fold of usage records over a time range.
type UsageSummary struct {
	ClientID            uuid.UUID
	From                time.Time
	To                  time.Time
	TotalRequests       int
	SuccessCount        int
	FailureCount        int
	AverageResponseTime time.Duration
	PerEndpoint         map[string]int
}

// Facility is a tenant-owned resource exposed through the protected example API.
type Facility struct {
	ID             uuid.UUID
	OrganizationID string
	Name           string
	CreatedAt      time.Time
}

// DrawRequest is a tenant-owned write against a facility.
type DrawRequest struct {
	ID          uuid.UUID
	FacilityID  uuid.UUID
	ClientID    uuid.UUID
	AmountCents int64
	Memo        string
	CreatedAt   time.Time
}
