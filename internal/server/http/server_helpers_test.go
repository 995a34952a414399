package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/and161185/gatekeeper/internal/dto"
	"github.com/and161185/gatekeeper/internal/limiter"
	"github.com/and161185/gatekeeper/internal/model"
	"github.com/and161185/gatekeeper/internal/repository/memory"
	"github.com/and161185/gatekeeper/internal/service"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type captureSink struct {
	mu   sync.Mutex
	recs []model.UsageRecord
}

func (c *captureSink) Record(r model.UsageRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recs = append(c.recs, r)
}

func (c *captureSink) all() []model.UsageRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.UsageRecord(nil), c.recs...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	t       *testing.T
	store   *memory.Store
	clients *service.ClientServiceImpl
	ops     *service.OperatorAuth
	clock   *fakeClock
	sink    *captureSink
	handler http.Handler
}

// newHarness wires the real services over an in-memory store. A nil sink
// captures usage records in h.sink.
func newHarness(t *testing.T, sink UsageSink) *harness {
	t.Helper()
	st := memory.New()
	clock := &fakeClock{now: time.Now()}
	h := &harness{t: t, store: st, clock: clock, ops: service.NewOperatorAuth([]byte("admin-key"))}
	if sink == nil {
		h.sink = &captureSink{}
		sink = h.sink
	}
	h.clients = service.NewClientService(st, st.Usage(), time.Second)
	srv := New(Deps{
		Log:          zaptest.NewLogger(t),
		Issuer:       service.NewTokenIssuer(st, st.Tokens(), limiter.Nop{}, service.IssuerConfig{TTL: time.Hour, StoreTimeout: time.Second}),
		Authorizer:   service.NewAuthorizer(st.Tokens(), time.Second),
		Clients:      h.clients,
		Operators:    h.ops,
		Limiter:      limiter.NewMemory(time.Minute, 0, limiter.WithClock(clock.Now)),
		Usage:        sink,
		Facilities:   st,
		StoreTimeout: time.Second,
	})
	h.handler = srv.Handler()
	return h
}

func (h *harness) do(method, path string, body io.Reader, hdr http.Header) *httptest.ResponseRecorder {
	h.t.Helper()
	req := httptest.NewRequest(method, path, body)
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) postForm(path string, form url.Values, hdr http.Header) *httptest.ResponseRecorder {
	h.t.Helper()
	if hdr == nil {
		hdr = http.Header{}
	}
	hdr.Set("Content-Type", "application/x-www-form-urlencoded")
	return h.do(http.MethodPost, path, strings.NewReader(form.Encode()), hdr)
}

func (h *harness) mkClient(scopes []string, org *string, limit int) (uuid.UUID, string) {
	h.t.Helper()
	c, secret, err := h.clients.Create(context.Background(), model.NewClient{
		Name:           "client",
		AllowedScopes:  scopes,
		RateLimit:      limit,
		OrganizationID: org,
	})
	require.NoError(h.t, err)
	return c.ClientID, secret
}

func (h *harness) token(id uuid.UUID, secret, scope string) string {
	h.t.Helper()
	rec := h.postForm("/oauth/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {id.String()},
		"client_secret": {secret},
		"scope":         {scope},
	}, nil)
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
	var tr dto.TokenResponse
	require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), &tr))
	return tr.AccessToken
}

func bearer(tok string) http.Header {
	return http.Header{"Authorization": {"Bearer " + tok}}
}

func (h *harness) adminHeader() http.Header {
	h.t.Helper()
	raw, _, err := h.ops.Issue("alice", time.Hour)
	require.NoError(h.t, err)
	hdr := bearer(raw)
	hdr.Set("Content-Type", "application/json")
	return hdr
}

func decodeErr(t *testing.T, rec *httptest.ResponseRecorder) dto.Error {
	t.Helper()
	var e dto.Error
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), rec.Body.String())
	return e
}

func ptr[T any](v T) *T { return &v }
