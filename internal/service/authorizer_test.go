package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/and161185/gatekeeper/internal/errs"
	"github.com/and161185/gatekeeper/internal/model"
	"github.com/stretchr/testify/require"
)

func TestAuthorize_HappyPath(t *testing.T) {
	e := newEnv(t, IssuerConfig{})
	org := "org-1"
	c, secret := e.mkClient(t, []string{"read:facilities", "write:draws"}, &org)
	ctx := context.Background()

	tok, err := e.issuer.IssueToken(ctx, c.ClientID.String(), secret, []string{"read:facilities"}, "")
	require.NoError(t, err)

	ac, err := e.authz.Authorize(ctx, tok.Value, []string{"read:facilities"})
	require.NoError(t, err)
	require.Equal(t, c.ClientID, ac.ClientID)
	require.Equal(t, tok.ID, ac.TokenID)
	require.Equal(t, 60, ac.RateLimit)
	require.Equal(t, []string{"read:facilities"}, ac.Scopes)
	require.True(t, ac.HasScope("read:facilities"))

	_, err = e.authz.Authorize(ctx, tok.Value, []string{"write:draws"})
	require.ErrorIs(t, err, errs.ErrInsufficientScope)
}

func TestAuthorize_Malformed(t *testing.T) {
	e := newEnv(t, IssuerConfig{})
	for _, bearer := range []string{"", "abc", "at_short", "xx_" + string(make([]byte, 43))} {
		_, err := e.authz.Authorize(context.Background(), bearer, nil)
		require.ErrorIs(t, err, errs.ErrInvalidRequest, "bearer %q", bearer)
	}
}

func TestAuthorize_UnknownAndExpired(t *testing.T) {
	e := newEnv(t, IssuerConfig{TTL: time.Minute})
	c, secret := e.mkClient(t, nil, nil)
	ctx := context.Background()

	tok, err := e.issuer.IssueToken(ctx, c.ClientID.String(), secret, nil, "")
	require.NoError(t, err)

	other, err := e.issuer.IssueToken(ctx, c.ClientID.String(), secret, nil, "")
	require.NoError(t, err)
	require.NoError(t, e.clients.Delete(ctx, c.ClientID))
	_, err = e.authz.Authorize(ctx, other.Value, nil)
	require.ErrorIs(t, err, errs.ErrInvalidToken)

	e2 := newEnv(t, IssuerConfig{TTL: time.Minute})
	c2, secret2 := e2.mkClient(t, nil, nil)
	tok, err = e2.issuer.IssueToken(ctx, c2.ClientID.String(), secret2, nil, "")
	require.NoError(t, err)

	e2.authz.now = func() time.Time { return tok.ExpiresAt }
	_, err = e2.authz.Authorize(ctx, tok.Value, nil)
	require.ErrorIs(t, err, errs.ErrInvalidToken, "now == expiresAt must fail")

	e2.authz.now = func() time.Time { return tok.IssuedAt.Add(-time.Second) }
	_, err = e2.authz.Authorize(ctx, tok.Value, nil)
	require.ErrorIs(t, err, errs.ErrInvalidToken, "not yet valid must fail")

	e2.authz.now = func() time.Time { return tok.ExpiresAt.Add(-time.Nanosecond) }
	_, err = e2.authz.Authorize(ctx, tok.Value, nil)
	require.NoError(t, err)
}

func TestAuthorize_RevocationIsImmediate(t *testing.T) {
	for _, status := range []model.ClientStatus{model.StatusSuspended, model.StatusRevoked} {
		e := newEnv(t, IssuerConfig{})
		c, secret := e.mkClient(t, []string{"read:facilities"}, nil)
		ctx := context.Background()

		tok, err := e.issuer.IssueToken(ctx, c.ClientID.String(), secret, nil, "")
		require.NoError(t, err)
		_, err = e.authz.Authorize(ctx, tok.Value, nil)
		require.NoError(t, err)

		_, err = e.clients.UpdateStatus(ctx, c.ClientID, status)
		require.NoError(t, err)
		_, err = e.authz.Authorize(ctx, tok.Value, nil)
		require.ErrorIs(t, err, errs.ErrInvalidToken, "status %s", status)
	}
}

func TestAuthorize_ReactivationDoesNotRestoreTokens(t *testing.T) {
	e := newEnv(t, IssuerConfig{})
	c, secret := e.mkClient(t, nil, nil)
	ctx := context.Background()

	tok, err := e.issuer.IssueToken(ctx, c.ClientID.String(), secret, nil, "")
	require.NoError(t, err)
	_, err = e.clients.UpdateStatus(ctx, c.ClientID, model.StatusSuspended)
	require.NoError(t, err)
	_, err = e.clients.UpdateStatus(ctx, c.ClientID, model.StatusActive)
	require.NoError(t, err)

	_, err = e.authz.Authorize(ctx, tok.Value, nil)
	require.ErrorIs(t, err, errs.ErrInvalidToken)
}

func TestAuthorize_EffectiveScopeShrinksWithAllowed(t *testing.T) {
	e := newEnv(t, IssuerConfig{})
	c, secret := e.mkClient(t, []string{"read:facilities", "write:draws"}, nil)
	ctx := context.Background()

	tok, err := e.issuer.IssueToken(ctx, c.ClientID.String(), secret, nil, "")
	require.NoError(t, err)

	_, err = e.clients.UpdateScopes(ctx, c.ClientID, []string{"read:facilities"})
	require.NoError(t, err)
	_, err = e.authz.Authorize(ctx, tok.Value, []string{"write:draws"})
	require.ErrorIs(t, err, errs.ErrInsufficientScope)

	// Widening the allowed set never widens an existing token.
	_, err = e.clients.UpdateScopes(ctx, c.ClientID, []string{"read:facilities", "write:draws", "admin:all"})
	require.NoError(t, err)
	ac, err := e.authz.Authorize(ctx, tok.Value, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"read:facilities", "write:draws"}, ac.Scopes)
}

func TestAuthorize_StoreFailureFailsClosed(t *testing.T) {
	e := newEnv(t, IssuerConfig{})
	c, secret := e.mkClient(t, nil, nil)
	ctx := context.Background()
	tok, err := e.issuer.IssueToken(ctx, c.ClientID.String(), secret, nil, "")
	require.NoError(t, err)

	ft := &failingTokens{TokenRepository: e.store.Tokens(), getErr: errors.New("connection reset")}
	authz := NewAuthorizer(ft, time.Second)
	ac, err := authz.Authorize(ctx, tok.Value, nil)
	require.Error(t, err)
	require.Nil(t, ac)
	require.False(t, isTaxonomy(err))

	ft.getErr, ft.stall = nil, true
	authz = NewAuthorizer(ft, 20*time.Millisecond)
	ac, err = authz.Authorize(ctx, tok.Value, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Nil(t, ac)
	require.False(t, isTaxonomy(err))
}

func TestAuthorizedClient_CanAccessOrg(t *testing.T) {
	org := "org-1"
	scoped := &AuthorizedClient{OrganizationID: &org}
	require.NoError(t, scoped.CanAccessOrg("org-1"))
	require.ErrorIs(t, scoped.CanAccessOrg("org-2"), errs.ErrForbidden)

	unscoped := &AuthorizedClient{}
	require.NoError(t, unscoped.CanAccessOrg("org-2"))
}
