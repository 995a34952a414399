package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/and161185/gatekeeper/internal/errs"
	"github.com/and161185/gatekeeper/internal/limiter"
	"github.com/and161185/gatekeeper/internal/model"
	"github.com/and161185/gatekeeper/internal/repository"
	"github.com/and161185/gatekeeper/internal/repository/memory"
)

type fakeLockout struct {
	allowOK    bool
	allowRetry time.Duration
	allowErr   error

	failBlocked bool

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Lockout = (*fakeLockout)(nil)

func (l *fakeLockout) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.allowCalls++
	return l.allowOK, l.allowRetry, l.allowErr
}
func (l *fakeLockout) Success(context.Context, string, []byte) error {
	l.successCalls++
	return nil
}
func (l *fakeLockout) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	if l.failBlocked {
		return true, time.Minute, nil
	}
	return false, 0, nil
}

// failingTokens wraps a token repository and fails or stalls lookups on demand.
type failingTokens struct {
	repository.TokenRepository
	getErr error
	stall  bool
}

func (f *failingTokens) GetGrant(ctx context.Context, hash []byte) (*model.TokenGrant, error) {
	if f.stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.TokenRepository.GetGrant(ctx, hash)
}

type env struct {
	store   *memory.Store
	lock    *fakeLockout
	clients *ClientServiceImpl
	issuer  *TokenIssuerImpl
	authz   *AuthorizerImpl
}

func newEnv(t *testing.T, cfg IssuerConfig) *env {
	t.Helper()
	st := memory.New()
	lock := &fakeLockout{allowOK: true}
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = time.Second
	}
	return &env{
		store:   st,
		lock:    lock,
		clients: NewClientService(st, st.Usage(), time.Second),
		issuer:  NewTokenIssuer(st, st.Tokens(), lock, cfg),
		authz:   NewAuthorizer(st.Tokens(), time.Second),
	}
}

func (e *env) mkClient(t *testing.T, scopes []string, org *string) (*model.Client, string) {
	t.Helper()
	c, secret, err := e.clients.Create(context.Background(), model.NewClient{
		Name:           "svc",
		AllowedScopes:  scopes,
		RateLimit:      60,
		OrganizationID: org,
	})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	return c, secret
}

func isTaxonomy(err error) bool {
	for _, s := range []error{errs.ErrInvalidRequest, errs.ErrInvalidClient, errs.ErrInvalidScope,
		errs.ErrInvalidToken, errs.ErrInsufficientScope, errs.ErrRateLimited, errs.ErrForbidden} {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}
