package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgcrypto "github.com/and161185/gatekeeper/internal/crypto"
	"github.com/and161185/gatekeeper/internal/errs"
	"github.com/and161185/gatekeeper/internal/limiter"
	"github.com/and161185/gatekeeper/internal/model"
	"github.com/and161185/gatekeeper/internal/repository"
	"github.com/and161185/gatekeeper/internal/scope"
	"github.com/gofrs/uuid/v5"
)

// TokenIssuer implements the client-credentials grant and token revocation.
type TokenIssuer interface {
	// IssueToken authenticates the client and mints a bearer token for the requested scopes.
	IssueToken(ctx context.Context, clientID, secret string, requested []string, ip string) (*model.IssuedToken, error)
	// RevokeToken revokes one token by id (operator action).
	RevokeToken(ctx context.Context, tokenID uuid.UUID) error
	// RevokeByValue lets an authenticated client revoke one of its own tokens.
	RevokeByValue(ctx context.Context, clientID, secret, token, ip string) error
}

// IssuerConfig tunes token issuance.
type IssuerConfig struct {
	TTL          time.Duration
	MaxActive    int
	StoreTimeout time.Duration
}

type TokenIssuerImpl struct {
	clients repository.ClientRepository
	tokens  repository.TokenRepository
	lock    limiter.Lockout
	cfg     IssuerConfig
	now     func() time.Time
	verify  func(secret, salt, hash []byte) bool
}

var decoySalt = make([]byte, pkgcrypto.SaltLen)

// NewTokenIssuer constructs TokenIssuer with required dependencies.
func NewTokenIssuer(clients repository.ClientRepository, tokens repository.TokenRepository, lock limiter.Lockout, cfg IssuerConfig) *TokenIssuerImpl {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if lock == nil {
		lock = limiter.Nop{}
	}
	return &TokenIssuerImpl{
		clients: clients,
		tokens:  tokens,
		lock:    lock,
		cfg:     cfg,
		now:     time.Now,
		verify:  pkgcrypto.VerifySecret,
	}
}

// IssueToken runs the grant: lockout check, client lookup, constant-time secret
// check, scope negotiation, then a transactional insert that re-checks the
// client is still active.
func (s *TokenIssuerImpl) IssueToken(ctx context.Context, clientID, secret string, requested []string, ip string) (*model.IssuedToken, error) {
	c, err := s.authenticate(ctx, clientID, secret, ip)
	if err != nil {
		return nil, err
	}

	granted, err := negotiate(requested, c.AllowedScopes)
	if err != nil {
		return nil, err
	}

	value, err := pkgcrypto.NewTokenValue()
	if err != nil {
		return nil, fmt.Errorf("mint token: %w", err)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("mint token id: %w", err)
	}
	now := s.now().UTC()
	t := &model.Token{
		ID:            id,
		TokenHash:     pkgcrypto.HashToken(value),
		ClientID:      c.ClientID,
		GrantedScopes: granted,
		IssuedAt:      now,
		ExpiresAt:     now.Add(s.cfg.TTL),
	}

	sctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.tokens.Create(sctx, t, s.cfg.MaxActive); err != nil {
		if errors.Is(err, errs.ErrInvalidClient) {
			return nil, err
		}
		return nil, fmt.Errorf("store token: %w", err)
	}

	return &model.IssuedToken{
		ID:        t.ID,
		Value:     value,
		ClientID:  c.ClientID,
		Scopes:    granted,
		IssuedAt:  t.IssuedAt,
		ExpiresAt: t.ExpiresAt,
	}, nil
}

// negotiate picks the scopes to grant. An empty request means every allowed
// scope; any scope outside the allowed set fails the whole request.
func negotiate(requested, allowed []string) ([]string, error) {
	req := scope.Normalize(requested)
	if len(req) == 0 {
		return scope.Normalize(allowed), nil
	}
	if !scope.AllValid(req) {
		return nil, fmt.Errorf("%w: malformed scope", errs.ErrInvalidScope)
	}
	if missing := scope.Missing(req, allowed); len(missing) > 0 {
		return nil, fmt.Errorf("%w: not allowed: %s", errs.ErrInvalidScope, strings.Join(missing, " "))
	}
	return req, nil
}

// authenticate checks client credentials under the brute-force lockout.
func (s *TokenIssuerImpl) authenticate(ctx context.Context, clientID, secret, ip string) (*model.Client, error) {
	if clientID == "" || secret == "" {
		return nil, fmt.Errorf("%w: client_id and client_secret are required", errs.ErrInvalidRequest)
	}
	ipHash := limiter.HashIP(ip)

	allowed, retry, err := s.lock.Allow(ctx, clientID, ipHash)
	if err != nil {
		return nil, fmt.Errorf("lockout check: %w", err)
	}
	if !allowed {
		return nil, errs.RateLimited(retry)
	}

	c, err := s.lookup(ctx, clientID)
	switch {
	case err == nil:
		if !s.verify([]byte(secret), c.SecretSalt, c.SecretHash) || !c.IsActive() {
			err = errs.ErrInvalidClient
		}
	case errors.Is(err, errs.ErrInvalidClient):
		// unknown ids cost one hash, like known ones
		s.verify([]byte(secret), decoySalt, nil)
	}
	if err != nil {
		if !errors.Is(err, errs.ErrInvalidClient) {
			return nil, err
		}
		if blocked, d, ferr := s.lock.Failure(ctx, clientID, ipHash); ferr == nil && blocked {
			return nil, errs.RateLimited(d)
		}
		return nil, err
	}

	// Reset counters (best-effort).
	_ = s.lock.Success(ctx, clientID, ipHash)
	return c, nil
}

func (s *TokenIssuerImpl) lookup(ctx context.Context, clientID string) (*model.Client, error) {
	id, err := uuid.FromString(clientID)
	if err != nil {
		return nil, errs.ErrInvalidClient
	}
	sctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	c, err := s.clients.Get(sctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrInvalidClient
	}
	if err != nil {
		return nil, fmt.Errorf("load client: %w", err)
	}
	return c, nil
}

// RevokeToken revokes a single token.
func (s *TokenIssuerImpl) RevokeToken(ctx context.Context, tokenID uuid.UUID) error {
	sctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	return s.tokens.Revoke(sctx, tokenID)
}

// RevokeByValue revokes token for the authenticated client. Tokens that are
// malformed, unknown or owned by someone else are ignored.
func (s *TokenIssuerImpl) RevokeByValue(ctx context.Context, clientID, secret, token, ip string) error {
	if token == "" {
		return fmt.Errorf("%w: token is required", errs.ErrInvalidRequest)
	}
	c, err := s.authenticate(ctx, clientID, secret, ip)
	if err != nil {
		return err
	}
	if !pkgcrypto.WellFormedToken(token) {
		return nil
	}
	sctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.tokens.RevokeByHash(sctx, c.ClientID, pkgcrypto.HashToken(token)); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// PurgeExpired deletes tokens that expired more than grace ago.
func (s *TokenIssuerImpl) PurgeExpired(ctx context.Context, grace time.Duration) (int64, error) {
	sctx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	n, err := s.tokens.PurgeExpired(sctx, s.now().Add(-grace))
	if err != nil {
		return 0, fmt.Errorf("purge tokens: %w", err)
	}
	return n, nil
}
