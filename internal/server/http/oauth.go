package httpserver

import (
	"encoding/json"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/url"

	"github.com/and161185/gatekeeper/internal/convert"
	"github.com/and161185/gatekeeper/internal/dto"
	"github.com/and161185/gatekeeper/internal/errs"
	"github.com/and161185/gatekeeper/internal/scope"
)

const maxFormBytes = 64 << 10

// oauthForm is the union of fields accepted by the token and revoke endpoints.
type oauthForm struct {
	grantType    string
	clientID     string
	clientSecret string
	scope        string
	token        string
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errs.ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// readOAuthForm accepts application/x-www-form-urlencoded or JSON bodies and
// HTTP Basic client authentication. Using Basic and body credentials together
// is rejected.
func readOAuthForm(w http.ResponseWriter, r *http.Request) (oauthForm, error) {
	var f oauthForm
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/json":
		var body dto.TokenRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return f, badRequest("malformed JSON body")
		}
		f = oauthForm{
			grantType:    body.GrantType,
			clientID:     body.ClientID,
			clientSecret: body.ClientSecret,
			scope:        body.Scope,
			token:        body.Token,
		}
	case "application/x-www-form-urlencoded", "":
		if err := r.ParseForm(); err != nil {
			return f, badRequest("malformed form body")
		}
		f = oauthForm{
			grantType:    r.PostForm.Get("grant_type"),
			clientID:     r.PostForm.Get("client_id"),
			clientSecret: r.PostForm.Get("client_secret"),
			scope:        r.PostForm.Get("scope"),
			token:        r.PostForm.Get("token"),
		}
	default:
		return f, badRequest("unsupported content type %q", ct)
	}

	if user, pass, ok := r.BasicAuth(); ok {
		if f.clientID != "" || f.clientSecret != "" {
			return f, badRequest("multiple client authentication methods")
		}
		// RFC 6749 2.3.1: credentials are form-encoded before Basic encoding.
		id, err1 := url.QueryUnescape(user)
		secret, err2 := url.QueryUnescape(pass)
		if err1 != nil || err2 != nil {
			return f, badRequest("malformed basic credentials")
		}
		f.clientID, f.clientSecret = id, secret
	}
	return f, nil
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// token implements the client-credentials grant.
func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	f, err := readOAuthForm(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if f.grantType == "" {
		s.fail(w, r, badRequest("grant_type is required"))
		return
	}
	if f.grantType != "client_credentials" {
		s.fail(w, r, badRequest("unsupported grant_type"))
		return
	}

	tok, err := s.issuer.IssueToken(r.Context(), f.clientID, f.clientSecret, scope.Parse(f.scope), remoteIP(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToTokenResponse(tok, s.now()))
}

// revoke implements RFC 7009 self-revocation.
func (s *Server) revoke(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	f, err := readOAuthForm(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.issuer.RevokeByValue(r.Context(), f.clientID, f.clientSecret, f.token, remoteIP(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
