// Package httpserver exposes the OAuth token endpoints, the protected
// resource API and the operator admin API over HTTP.
package httpserver

import (
	"net/http"
	"time"

	"github.com/and161185/gatekeeper/internal/limiter"
	"github.com/and161185/gatekeeper/internal/model"
	"github.com/and161185/gatekeeper/internal/repository"
	"github.com/and161185/gatekeeper/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Scopes guarding the example resources.
const (
	ScopeReadFacilities = "read:facilities"
	ScopeWriteDraws     = "write:draws"
)

// UsageSink accepts completed-request records without blocking.
type UsageSink interface {
	Record(rec model.UsageRecord)
}

// OperatorVerifier authenticates admin callers.
type OperatorVerifier interface {
	Verify(raw string) (string, error)
}

// Deps bundles what the HTTP layer needs.
type Deps struct {
	Log          *zap.Logger
	Issuer       service.TokenIssuer
	Authorizer   service.Authorizer
	Clients      service.ClientService
	Operators    OperatorVerifier
	Limiter      limiter.RateLimiter
	Usage        UsageSink
	Facilities   repository.FacilityRepository
	StoreTimeout time.Duration
}

// Server wires services into HTTP handlers.
type Server struct {
	log        *zap.Logger
	issuer     service.TokenIssuer
	authz      service.Authorizer
	clients    service.ClientService
	operators  OperatorVerifier
	limiter    limiter.RateLimiter
	usage      UsageSink
	facilities repository.FacilityRepository
	timeout    time.Duration
	now        func() time.Time
}

// New constructs a Server. A nil Log is replaced with a no-op logger.
func New(d Deps) *Server {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		log:        log,
		issuer:     d.Issuer,
		authz:      d.Authorizer,
		clients:    d.Clients,
		operators:  d.Operators,
		limiter:    d.Limiter,
		usage:      d.Usage,
		facilities: d.Facilities,
		timeout:    d.StoreTimeout,
		now:        time.Now,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, s.accessLog, s.recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/oauth/token", s.token)
	r.Post("/oauth/revoke", s.revoke)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.observeUsage, s.authenticate)
		r.With(requireScope(s, ScopeReadFacilities)).Get("/facilities", s.listFacilities)
		r.With(requireScope(s, ScopeReadFacilities)).Get("/facilities/{id}", s.getFacility)
		r.With(requireScope(s, ScopeWriteDraws)).Post("/draw-requests", s.createDrawRequest)
	})

	r.Route("/admin/v1", func(r chi.Router) {
		r.Use(s.operatorAuth)
		r.Post("/clients", s.createClient)
		r.Get("/clients", s.listClients)
		r.Get("/clients/{id}", s.getClient)
		r.Patch("/clients/{id}", s.patchClient)
		r.Delete("/clients/{id}", s.deleteClient)
		r.Post("/clients/{id}/rotate-secret", s.rotateSecret)
		r.Get("/clients/{id}/usage", s.clientUsage)
		r.Delete("/tokens/{id}", s.deleteToken)
	})

	return r
}
