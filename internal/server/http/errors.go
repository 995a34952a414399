package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/and161185/gatekeeper/internal/dto"
	"github.com/and161185/gatekeeper/internal/errs"
	"go.uber.org/zap"
)

type errorMapping struct {
	target error
	status int
	code   string
	// detail exposes err.Error() as the description.
	detail bool
}

var errorTable = []errorMapping{
	{errs.ErrInvalidRequest, http.StatusBadRequest, "invalid_request", true},
	{errs.ErrInvalidClient, http.StatusUnauthorized, "invalid_client", false},
	{errs.ErrInvalidScope, http.StatusBadRequest, "invalid_scope", true},
	{errs.ErrInvalidToken, http.StatusUnauthorized, "invalid_token", false},
	{errs.ErrInsufficientScope, http.StatusForbidden, "insufficient_scope", true},
	{errs.ErrRateLimited, http.StatusTooManyRequests, "rate_limited", false},
	{errs.ErrForbidden, http.StatusForbidden, "forbidden", false},
	{errs.ErrNotFound, http.StatusNotFound, "not_found", false},
	{errs.ErrAlreadyExists, http.StatusConflict, "conflict", false},
	{errs.ErrConflict, http.StatusConflict, "conflict", true},
}

var descriptions = map[string]string{
	"invalid_client": "client authentication failed",
	"invalid_token":  "the access token is invalid, expired or revoked",
	"rate_limited":   "rate limit exceeded",
	"forbidden":      "resource belongs to another organization",
	"not_found":      "not found",
	"conflict":       "conflict",
	"server_error":   "internal error",
}

// mapError resolves err to its HTTP status, wire code and caller-safe description.
func mapError(err error) (int, string, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			if m.detail {
				return m.status, m.code, err.Error()
			}
			return m.status, m.code, descriptions[m.code]
		}
	}
	return http.StatusInternalServerError, "server_error", descriptions["server_error"]
}

// retryAfterSeconds rounds d up to whole seconds, at least one.
func retryAfterSeconds(d time.Duration) int64 {
	s := int64(math.Ceil(d.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// fail writes the error body for err. Unknown errors are logged and
// reported as server_error without detail.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, desc := mapError(err)
	body := dto.Error{Error: code, Description: desc}

	if status == http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	if d, ok := errs.RetryAfter(err); ok {
		body.RetryAfter = retryAfterSeconds(d)
		w.Header().Set("Retry-After", strconv.FormatInt(body.RetryAfter, 10))
	}
	if status == http.StatusUnauthorized {
		if strings.HasPrefix(r.URL.Path, "/oauth/") {
			w.Header().Set("WWW-Authenticate", `Basic realm="gatekeeper"`)
		} else {
			w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer error=%q`, code))
		}
	}
	if code == "insufficient_scope" {
		w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope"`)
	}
	writeJSON(w, status, body)
}
