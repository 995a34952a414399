package httpserver

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/and161185/gatekeeper/internal/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_FormGrant(t *testing.T) {
	h := newHarness(t, nil)
	id, secret := h.mkClient([]string{ScopeReadFacilities, ScopeWriteDraws}, nil, 60)

	rec := h.postForm("/oauth/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {id.String()},
		"client_secret": {secret},
		"scope":         {ScopeReadFacilities},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var tr dto.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tr))
	assert.Equal(t, "bearer", tr.TokenType)
	assert.Equal(t, ScopeReadFacilities, tr.Scope)
	assert.True(t, strings.HasPrefix(tr.AccessToken, "at_"))
	assert.InDelta(t, 3600, tr.ExpiresIn, 2)
}

func TestToken_BasicAuthAndJSON(t *testing.T) {
	h := newHarness(t, nil)
	id, secret := h.mkClient([]string{ScopeReadFacilities}, nil, 60)

	hdr := http.Header{}
	req, _ := http.NewRequest(http.MethodPost, "/", nil)
	req.SetBasicAuth(url.QueryEscape(id.String()), url.QueryEscape(secret))
	hdr.Set("Authorization", req.Header.Get("Authorization"))
	rec := h.postForm("/oauth/token", url.Values{"grant_type": {"client_credentials"}}, hdr)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Basic and body credentials together are ambiguous.
	hdr2 := http.Header{"Authorization": hdr.Values("Authorization")}
	rec = h.postForm("/oauth/token", url.Values{
		"grant_type": {"client_credentials"},
		"client_id":  {id.String()},
	}, hdr2)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeErr(t, rec).Error)

	body := `{"grant_type":"client_credentials","client_id":"` + id.String() + `","client_secret":"` + secret + `"}`
	rec = h.do(http.MethodPost, "/oauth/token", strings.NewReader(body), http.Header{"Content-Type": {"application/json"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestToken_Errors(t *testing.T) {
	h := newHarness(t, nil)
	id, secret := h.mkClient([]string{ScopeReadFacilities}, nil, 60)

	cases := []struct {
		name   string
		form   url.Values
		status int
		code   string
	}{
		{"missing grant_type", url.Values{"client_id": {id.String()}, "client_secret": {secret}}, 400, "invalid_request"},
		{"wrong grant_type", url.Values{"grant_type": {"password"}, "client_id": {id.String()}, "client_secret": {secret}}, 400, "invalid_request"},
		{"missing secret", url.Values{"grant_type": {"client_credentials"}, "client_id": {id.String()}}, 400, "invalid_request"},
		{"bad secret", url.Values{"grant_type": {"client_credentials"}, "client_id": {id.String()}, "client_secret": {"nope"}}, 401, "invalid_client"},
		{"unknown client", url.Values{"grant_type": {"client_credentials"}, "client_id": {"not-a-uuid"}, "client_secret": {secret}}, 401, "invalid_client"},
		{"disallowed scope", url.Values{"grant_type": {"client_credentials"}, "client_id": {id.String()}, "client_secret": {secret}, "scope": {"read:facilities admin:all"}}, 400, "invalid_scope"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := h.postForm("/oauth/token", tc.form, nil)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.code, decodeErr(t, rec).Error)
			if tc.status == http.StatusUnauthorized {
				assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}

	rec := h.postForm("/oauth/token", url.Values{"grant_type": {"password"}}, nil)
	assert.Contains(t, decodeErr(t, rec).Description, "unsupported grant_type")
}

func TestToken_RepeatedCallsAreIndependentlyRevocable(t *testing.T) {
	h := newHarness(t, nil)
	id, secret := h.mkClient([]string{ScopeReadFacilities}, nil, 60)

	first := h.token(id, secret, "")
	second := h.token(id, secret, "")
	require.NotEqual(t, first, second)

	rec := h.postForm("/oauth/revoke", url.Values{
		"token":         {first},
		"client_id":     {id.String()},
		"client_secret": {secret},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodGet, "/v1/facilities", nil, bearer(first))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Bearer error="invalid_token"`, rec.Header().Get("WWW-Authenticate"))

	rec = h.do(http.MethodGet, "/v1/facilities", nil, bearer(second))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRevoke_UnknownTokenStillSucceeds(t *testing.T) {
	h := newHarness(t, nil)
	id, secret := h.mkClient(nil, nil, 60)

	rec := h.postForm("/oauth/revoke", url.Values{
		"token":         {"garbage"},
		"client_id":     {id.String()},
		"client_secret": {secret},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.postForm("/oauth/revoke", url.Values{
		"token":         {"garbage"},
		"client_id":     {id.String()},
		"client_secret": {"wrong"},
	}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.postForm("/oauth/revoke", url.Values{
		"client_id":     {id.String()},
		"client_secret": {secret},
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
