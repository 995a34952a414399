package httpserver

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/and161185/gatekeeper/internal/errs"
	"github.com/and161185/gatekeeper/internal/model"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// recoverer turns a handler panic into a 500 and logs the stack.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.log.Error("panic",
					zap.Any("reason", rec),
					zap.ByteString("stack", debug.Stack()),
					zap.String("path", r.URL.Path),
				)
				s.fail(w, r, fmt.Errorf("panic: %v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// accessLog logs request metadata only, never bodies or credentials.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("remote", r.RemoteAddr),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// observeUsage hands a usage record to the recorder once the response is
// written. Requests whose caller never resolved to a client are not recorded.
func (s *Server) observeUsage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		slot := &usageSlot{}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(withUsageSlot(r.Context(), slot)))

		if slot.clientID.IsNil() {
			return
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		endpoint := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				endpoint = p
			}
		}
		s.usage.Record(model.UsageRecord{
			ClientID:   slot.clientID,
			Method:     r.Method,
			Endpoint:   endpoint,
			Status:     status,
			Duration:   s.now().Sub(start),
			OccurredAt: start.UTC(),
		})
	})
}

// bearerToken extracts the token from the Authorization header. A missing
// header and a Bearer scheme with no token are both a missing token; any
// other scheme is a malformed request.
func bearerToken(r *http.Request) (string, error) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, _ := strings.Cut(h, " ")
	token = strings.TrimSpace(token)
	if h == "" || (strings.EqualFold(scheme, "Bearer") && token == "") {
		return "", fmt.Errorf("%w: missing bearer token", errs.ErrInvalidToken)
	}
	if !strings.EqualFold(scheme, "Bearer") {
		return "", fmt.Errorf("%w: authorization scheme must be Bearer", errs.ErrInvalidRequest)
	}
	return token, nil
}

// authenticate resolves the bearer token to a client and charges its rate
// limit. Scope checks happen per route in requireScope.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerToken(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ac, err := s.authz.Authorize(r.Context(), raw, nil)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if slot := usageSlotFromCtx(r.Context()); slot != nil {
			slot.clientID = ac.ClientID
		}

		d := s.limiter.Allow(ac.ClientID, ac.RateLimit)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			s.fail(w, r, errs.RateLimited(d.RetryAfter))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClient(r.Context(), ac)))
	})
}

// requireScope rejects clients whose effective scopes miss any of required.
func requireScope(s *Server, required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := ClientFromCtx(r.Context())
			if !ok {
				s.fail(w, r, errs.ErrInvalidToken)
				return
			}
			for _, sc := range required {
				if !ac.HasScope(sc) {
					s.fail(w, r, fmt.Errorf("%w: requires %s", errs.ErrInsufficientScope, sc))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// operatorAuth guards the admin API with an operator JWT.
func (s *Server) operatorAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.operators == nil {
			s.fail(w, r, errs.ErrForbidden)
			return
		}
		raw, err := bearerToken(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		who, err := s.operators.Verify(raw)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), who)))
	})
}
