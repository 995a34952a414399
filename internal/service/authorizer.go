package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgcrypto "github.com/and161185/gatekeeper/internal/crypto"
	"github.com/and161185/gatekeeper/internal/errs"
	"github.com/and161185/gatekeeper/internal/repository"
	"github.com/and161185/gatekeeper/internal/scope"
	"github.com/gofrs/uuid/v5"
)

// AuthorizedClient is the caller identity bound to a protected request.
type AuthorizedClient struct {
	ClientID       uuid.UUID
	Name           string
	OrganizationID *string
	Scopes         []string // effective: granted ∩ currently allowed
	RateLimit      int
	TokenID        uuid.UUID
	ExpiresAt      time.Time
}

// HasScope reports whether the effective scope set contains s.
func (a *AuthorizedClient) HasScope(s string) bool { return scope.Contains(a.Scopes, s) }

// CanAccessOrg returns errs.ErrForbidden when the client is bound to a
// different organization than orgID. Unbound clients may access any organization.
func (a *AuthorizedClient) CanAccessOrg(orgID string) error {
	if a.OrganizationID != nil && *a.OrganizationID != orgID {
		return errs.ErrForbidden
	}
	return nil
}

// Authorizer resolves bearer tokens.
type Authorizer interface {
	// Authorize validates bearer and checks it carries every required scope.
	Authorize(ctx context.Context, bearer string, required []string) (*AuthorizedClient, error)
}

type AuthorizerImpl struct {
	tokens  repository.TokenRepository
	timeout time.Duration
	now     func() time.Time
}

// NewAuthorizer constructs Authorizer. storeTimeout bounds the token lookup.
func NewAuthorizer(tokens repository.TokenRepository, storeTimeout time.Duration) *AuthorizerImpl {
	return &AuthorizerImpl{tokens: tokens, timeout: storeTimeout, now: time.Now}
}

// Authorize checks, in order: shape, existence, revocation and lifetime,
// owner status, scope. Any storage failure is returned as a plain error so
// the caller is denied.
func (a *AuthorizerImpl) Authorize(ctx context.Context, bearer string, required []string) (*AuthorizedClient, error) {
	if !pkgcrypto.WellFormedToken(bearer) {
		return nil, fmt.Errorf("%w: malformed bearer token", errs.ErrInvalidRequest)
	}

	sctx, cancel := withStoreTimeout(ctx, a.timeout)
	defer cancel()
	g, err := a.tokens.GetGrant(sctx, pkgcrypto.HashToken(bearer))
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}

	if !g.Token.ValidAt(a.now()) {
		return nil, errs.ErrInvalidToken
	}
	if !g.Client.IsActive() {
		return nil, errs.ErrInvalidToken
	}

	effective := scope.Intersect(g.Token.GrantedScopes, g.Client.AllowedScopes)
	if missing := scope.Missing(scope.Normalize(required), effective); len(missing) > 0 {
		return nil, fmt.Errorf("%w: requires %s", errs.ErrInsufficientScope, strings.Join(missing, " "))
	}

	return &AuthorizedClient{
		ClientID:       g.Client.ClientID,
		Name:           g.Client.Name,
		OrganizationID: g.Client.OrganizationID,
		Scopes:         effective,
		RateLimit:      g.Client.RateLimit,
		TokenID:        g.Token.ID,
		ExpiresAt:      g.Token.ExpiresAt,
	}, nil
}
