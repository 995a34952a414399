package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/and161185/gatekeeper/internal/convert"
	"github.com/and161185/gatekeeper/internal/dto"
	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"
)

func (s *Server) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.FromString(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, badRequest("invalid %s", name)
	}
	return id, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest("malformed JSON body")
	}
	if err := dto.Validate(dst); err != nil {
		return badRequest("%v", err)
	}
	return nil
}

// listFacilities returns the caller's organization's facilities, or all of
// them for an unscoped client.
func (s *Server) listFacilities(w http.ResponseWriter, r *http.Request) {
	ac, _ := ClientFromCtx(r.Context())
	ctx, cancel := s.storeCtx(r.Context())
	defer cancel()

	fs, err := s.facilities.ListFacilities(ctx, ac.OrganizationID)
	if err != nil {
		s.fail(w, r, fmt.Errorf("list facilities: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, dto.FacilityList{Facilities: convert.ToFacilities(fs)})
}

func (s *Server) getFacility(w http.ResponseWriter, r *http.Request) {
	ac, _ := ClientFromCtx(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx, cancel := s.storeCtx(r.Context())
	defer cancel()

	f, err := s.facilities.GetFacility(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := ac.CanAccessOrg(f.OrganizationID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToFacility(f))
}

// createDrawRequest files a draw against a facility of the caller's organization.
func (s *Server) createDrawRequest(w http.ResponseWriter, r *http.Request) {
	ac, _ := ClientFromCtx(r.Context())
	var body dto.CreateDrawRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	d, err := convert.FromCreateDrawRequest(body, ac.ClientID)
	if err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	ctx, cancel := s.storeCtx(r.Context())
	defer cancel()

	f, err := s.facilities.GetFacility(ctx, d.FacilityID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := ac.CanAccessOrg(f.OrganizationID); err != nil {
		s.fail(w, r, err)
		return
	}
	if d.ID, err = uuid.NewV4(); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.facilities.CreateDrawRequest(ctx, &d); err != nil {
		s.fail(w, r, fmt.Errorf("create draw request: %w", err))
		return
	}
	writeJSON(w, http.StatusCreated, convert.ToDrawRequest(&d))
}
