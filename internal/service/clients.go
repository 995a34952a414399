package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgcrypto "github.com/and161185/gatekeeper/internal/crypto"
	"github.com/and161185/gatekeeper/internal/errs"
	"github.com/and161185/gatekeeper/internal/model"
	"github.com/and161185/gatekeeper/internal/repository"
	"github.com/and161185/gatekeeper/internal/scope"
	"github.com/and161185/gatekeeper/internal/usage"
	"github.com/gofrs/uuid/v5"
)

// MaxUsageRange bounds a usage summary query.
const MaxUsageRange = 366 * 24 * time.Hour

// ClientService defines operator-facing client administration.
type ClientService interface {
	// Create registers a client and returns it together with its raw secret.
	// The secret is not recoverable afterwards.
	Create(ctx context.Context, nc model.NewClient) (*model.Client, string, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Client, error)
	List(ctx context.Context, f model.ClientFilter) ([]model.Client, error)
	// UpdateStatus changes status; leaving active revokes all tokens atomically.
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.ClientStatus) (*model.Client, error)
	UpdateScopes(ctx context.Context, id uuid.UUID, scopes []string) (*model.Client, error)
	UpdateRateLimit(ctx context.Context, id uuid.UUID, limit int) (*model.Client, error)
	// Delete removes the client and its tokens.
	Delete(ctx context.Context, id uuid.UUID) error
	// RotateSecret replaces the secret and revokes outstanding tokens.
	RotateSecret(ctx context.Context, id uuid.UUID) (string, error)
	// Usage folds the client's usage records in [from, to).
	Usage(ctx context.Context, id uuid.UUID, from, to time.Time) (*model.UsageSummary, error)
}

type ClientServiceImpl struct {
	clients repository.ClientRepository
	usage   repository.UsageRepository
	timeout time.Duration
}

// NewClientService constructs ClientService with required dependencies.
func NewClientService(clients repository.ClientRepository, usageRepo repository.UsageRepository, storeTimeout time.Duration) *ClientServiceImpl {
	return &ClientServiceImpl{clients: clients, usage: usageRepo, timeout: storeTimeout}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errs.ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func checkScopes(scopes []string) ([]string, error) {
	norm := scope.Normalize(scopes)
	if !scope.AllValid(norm) {
		return nil, invalid("malformed scope")
	}
	return norm, nil
}

// Create validates nc, generates id and secret and stores the salted hash.
func (s *ClientServiceImpl) Create(ctx context.Context, nc model.NewClient) (*model.Client, string, error) {
	nc.Name = strings.TrimSpace(nc.Name)
	if nc.Name == "" {
		return nil, "", invalid("name is required")
	}
	if nc.RateLimit < 1 {
		return nil, "", invalid("rate_limit must be at least 1")
	}
	scopes, err := checkScopes(nc.AllowedScopes)
	if err != nil {
		return nil, "", err
	}
	if nc.OrganizationID != nil && strings.TrimSpace(*nc.OrganizationID) == "" {
		nc.OrganizationID = nil
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, "", err
	}
	raw, salt, hash, err := pkgcrypto.NewSecret()
	if err != nil {
		return nil, "", err
	}
	c := &model.Client{
		ClientID:       id,
		Name:           nc.Name,
		Description:    nc.Description,
		SecretHash:     hash,
		SecretSalt:     salt,
		AllowedScopes:  scopes,
		RateLimit:      nc.RateLimit,
		Status:         model.StatusActive,
		OrganizationID: nc.OrganizationID,
	}

	sctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.clients.Create(sctx, c); err != nil {
		return nil, "", fmt.Errorf("create client: %w", err)
	}
	return c, raw, nil
}

// Get loads one client.
func (s *ClientServiceImpl) Get(ctx context.Context, id uuid.UUID) (*model.Client, error) {
	sctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()
	return s.clients.Get(sctx, id)
}

// List returns clients matching f.
func (s *ClientServiceImpl) List(ctx context.Context, f model.ClientFilter) ([]model.Client, error) {
	if f.Status != nil && !f.Status.Valid() {
		return nil, invalid("unknown status %q", *f.Status)
	}
	if f.Limit < 0 || f.Offset < 0 {
		return nil, invalid("limit and offset must not be negative")
	}
	sctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()
	return s.clients.List(sctx, f)
}

// UpdateStatus changes the client's status.
func (s *ClientServiceImpl) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ClientStatus) (*model.Client, error) {
	if !status.Valid() {
		return nil, invalid("unknown status %q", status)
	}
	sctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()
	c, err := s.clients.UpdateStatus(sctx, id, status)
	if errors.Is(err, errs.ErrConflict) {
		return nil, fmt.Errorf("%w: a revoked client cannot change status", errs.ErrConflict)
	}
	return c, err
}

// UpdateScopes replaces the allowed scopes. Tokens already issued lose any
// scope removed here on their next use.
func (s *ClientServiceImpl) UpdateScopes(ctx context.Context, id uuid.UUID, scopes []string) (*model.Client, error) {
	norm, err := checkScopes(scopes)
	if err != nil {
		return nil, err
	}
	sctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()
	return s.clients.UpdateScopes(sctx, id, norm)
}

// UpdateRateLimit replaces the per-window request budget.
func (s *ClientServiceImpl) UpdateRateLimit(ctx context.Context, id uuid.UUID, limit int) (*model.Client, error) {
	if limit < 1 {
		return nil, invalid("rate_limit must be at least 1")
	}
	sctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()
	return s.clients.UpdateRateLimit(sctx, id, limit)
}

// Delete removes a client and its tokens in one transaction.
func (s *ClientServiceImpl) Delete(ctx context.Context, id uuid.UUID) error {
	sctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()
	return s.clients.Delete(sctx, id)
}

// RotateSecret issues a new secret. Revoked clients cannot be rotated.
func (s *ClientServiceImpl) RotateSecret(ctx context.Context, id uuid.UUID) (string, error) {
	raw, salt, hash, err := pkgcrypto.NewSecret()
	if err != nil {
		return "", err
	}
	sctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.clients.UpdateSecret(sctx, id, hash, salt); err != nil {
		return "", err
	}
	return raw, nil
}

// Usage summarizes records in [from, to). Records outlive deleted clients, so
// an unknown id yields an empty summary rather than ErrNotFound.
func (s *ClientServiceImpl) Usage(ctx context.Context, id uuid.UUID, from, to time.Time) (*model.UsageSummary, error) {
	if !from.Before(to) {
		return nil, invalid("from must be before to")
	}
	if to.Sub(from) > MaxUsageRange {
		return nil, invalid("range exceeds 366 days")
	}
	sctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()
	recs, err := s.usage.List(sctx, id, from, to)
	if err != nil {
		return nil, fmt.Errorf("load usage: %w", err)
	}
	sum := usage.Summarize(id, from, to, recs)
	return &sum, nil
}
