package httpserver

import (
	"net/http"
	"strconv"

	"github.com/and161185/gatekeeper/internal/convert"
	"github.com/and161185/gatekeeper/internal/dto"
	"github.com/and161185/gatekeeper/internal/model"
	"go.uber.org/zap"
)

func (s *Server) audit(r *http.Request, action string, fields ...zap.Field) {
	who, _ := OperatorFromCtx(r.Context())
	s.log.Info("admin", append([]zap.Field{zap.String("operator", who), zap.String("action", action)}, fields...)...)
}

func (s *Server) createClient(w http.ResponseWriter, r *http.Request) {
	var body dto.CreateClientRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	c, secret, err := s.clients.Create(r.Context(), convert.FromCreateClient(body))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.audit(r, "client.create", zap.String("client_id", c.ClientID.String()))
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusCreated, dto.CreatedClient{Client: convert.ToClient(c), ClientSecret: secret})
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("invalid %s", key)
	}
	return n, nil
}

func (s *Server) listClients(w http.ResponseWriter, r *http.Request) {
	var f model.ClientFilter
	q := r.URL.Query()
	if org := q.Get("org"); org != "" {
		f.OrganizationID = &org
	}
	if st := q.Get("status"); st != "" {
		status := model.ClientStatus(st)
		f.Status = &status
	}
	var err error
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		s.fail(w, r, err)
		return
	}
	if f.Offset, err = queryInt(r, "offset"); err != nil {
		s.fail(w, r, err)
		return
	}

	cs, err := s.clients.List(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ClientList{Clients: convert.ToClients(cs)})
}

func (s *Server) getClient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.clients.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToClient(c))
}

// patchClient applies scopes, then rate limit, then status, so a revoking
// patch does not leave later fields unapplied.
func (s *Server) patchClient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body dto.PatchClientRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if body.Empty() {
		s.fail(w, r, badRequest("nothing to update"))
		return
	}

	var c *model.Client
	if body.Scopes != nil {
		if c, err = s.clients.UpdateScopes(r.Context(), id, *body.Scopes); err != nil {
			s.fail(w, r, err)
			return
		}
		s.audit(r, "client.scopes", zap.String("client_id", id.String()), zap.Strings("scopes", c.AllowedScopes))
	}
	if body.RateLimit != nil {
		if c, err = s.clients.UpdateRateLimit(r.Context(), id, *body.RateLimit); err != nil {
			s.fail(w, r, err)
			return
		}
		s.audit(r, "client.rate_limit", zap.String("client_id", id.String()), zap.Int("rate_limit", c.RateLimit))
	}
	if body.Status != nil {
		if c, err = s.clients.UpdateStatus(r.Context(), id, model.ClientStatus(*body.Status)); err != nil {
			s.fail(w, r, err)
			return
		}
		s.audit(r, "client.status", zap.String("client_id", id.String()), zap.String("status", *body.Status))
	}
	writeJSON(w, http.StatusOK, convert.ToClient(c))
}

func (s *Server) rotateSecret(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	secret, err := s.clients.RotateSecret(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.audit(r, "client.rotate_secret", zap.String("client_id", id.String()))
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, dto.RotatedSecret{ClientSecret: secret})
}

func (s *Server) deleteClient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.clients.Delete(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.audit(r, "client.delete", zap.String("client_id", id.String()))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteToken(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.issuer.RevokeToken(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.audit(r, "token.revoke", zap.String("token_id", id.String()))
	w.WriteHeader(http.StatusNoContent)
}

// clientUsage summarizes usage over an inclusive UTC day range.
func (s *Server) clientUsage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	from, to, err := convert.DayRange(q.Get("from"), q.Get("to"), s.now())
	if err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	sum, err := s.clients.Usage(r.Context(), id, from, to)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToUsageSummary(sum))
}
