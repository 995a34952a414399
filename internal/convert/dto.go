// Package convert maps domain models to HTTP wire types and back.
package convert

import (
	"fmt"
	"time"

	"github.com/and161185/gatekeeper/internal/dto"
	"github.com/and161185/gatekeeper/internal/model"
	"github.com/and161185/gatekeeper/internal/scope"
	u "github.com/gofrs/uuid/v5"
)

// DayLayout is the date format of usage range parameters.
const DayLayout = "2006-01-02"

// ToClient converts a domain client to its operator view.
func ToClient(c *model.Client) dto.Client {
	scopes := c.AllowedScopes
	if scopes == nil {
		scopes = []string{}
	}
	return dto.Client{
		ClientID:       c.ClientID.String(),
		Name:           c.Name,
		Description:    c.Description,
		Scopes:         scopes,
		RateLimit:      c.RateLimit,
		Status:         string(c.Status),
		OrganizationID: c.OrganizationID,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

// ToClients converts a slice of domain clients.
func ToClients(cs []model.Client) []dto.Client {
	out := make([]dto.Client, 0, len(cs))
	for i := range cs {
		out = append(out, ToClient(&cs[i]))
	}
	return out
}

// FromCreateClient converts a registration request to the domain input.
func FromCreateClient(in dto.CreateClientRequest) model.NewClient {
	return model.NewClient{
		Name:           in.Name,
		Description:    in.Description,
		AllowedScopes:  in.Scopes,
		RateLimit:      in.RateLimit,
		OrganizationID: in.OrganizationID,
	}
}

// ToTokenResponse converts an issued token to the grant response.
// expires_in is rounded down to whole seconds as of now.
func ToTokenResponse(t *model.IssuedToken, now time.Time) dto.TokenResponse {
	exp := int64(t.ExpiresAt.Sub(now) / time.Second)
	if exp < 0 {
		exp = 0
	}
	return dto.TokenResponse{
		AccessToken: t.Value,
		TokenType:   "bearer",
		ExpiresIn:   exp,
		Scope:       scope.Join(t.Scopes),
	}
}

// ToUsageSummary converts a summary over [from, to) back to an inclusive day range.
func ToUsageSummary(s *model.UsageSummary) dto.UsageSummary {
	per := s.PerEndpoint
	if per == nil {
		per = map[string]int{}
	}
	return dto.UsageSummary{
		ClientID:              s.ClientID.String(),
		From:                  s.From.UTC().Format(DayLayout),
		To:                    s.To.UTC().AddDate(0, 0, -1).Format(DayLayout),
		TotalRequests:         s.TotalRequests,
		SuccessCount:          s.SuccessCount,
		FailureCount:          s.FailureCount,
		AverageResponseTimeMS: float64(s.AverageResponseTime) / float64(time.Millisecond),
		PerEndpoint:           per,
	}
}

// DayRange parses an inclusive UTC day range into the half-open interval
// [from 00:00, to+1d 00:00). Empty bounds default to the last 30 days ending today.
func DayRange(fromRaw, toRaw string, now time.Time) (time.Time, time.Time, error) {
	today := now.UTC().Truncate(24 * time.Hour)
	to := today
	if toRaw != "" {
		t, err := time.Parse(DayLayout, toRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to: %w", err)
		}
		to = t
	}
	from := to.AddDate(0, 0, -29)
	if fromRaw != "" {
		f, err := time.Parse(DayLayout, fromRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from: %w", err)
		}
		from = f
	}
	return from, to.AddDate(0, 0, 1), nil
}

// ToFacility converts a facility.
func ToFacility(f *model.Facility) dto.Facility {
	return dto.Facility{
		ID:             f.ID.String(),
		OrganizationID: f.OrganizationID,
		Name:           f.Name,
		CreatedAt:      f.CreatedAt,
	}
}

// ToFacilities converts a facility listing.
func ToFacilities(fs []model.Facility) []dto.Facility {
	out := make([]dto.Facility, 0, len(fs))
	for i := range fs {
		out = append(out, ToFacility(&fs[i]))
	}
	return out
}

// FromCreateDrawRequest converts a validated body into a draw request owned by clientID.
func FromCreateDrawRequest(in dto.CreateDrawRequest, clientID u.UUID) (model.DrawRequest, error) {
	var fid u.UUID
	if err := fid.UnmarshalText([]byte(in.FacilityID)); err != nil {
		return model.DrawRequest{}, fmt.Errorf("invalid facility_id: %w", err)
	}
	return model.DrawRequest{
		FacilityID:  fid,
		ClientID:    clientID,
		AmountCents: in.AmountCents,
		Memo:        in.Memo,
	}, nil
}

// ToDrawRequest converts a stored draw request.
func ToDrawRequest(d *model.DrawRequest) dto.DrawRequest {
	return dto.DrawRequest{
		ID:          d.ID.String(),
		FacilityID:  d.FacilityID.String(),
		ClientID:    d.ClientID.String(),
		AmountCents: d.AmountCents,
		Memo:        d.Memo,
		CreatedAt:   d.CreatedAt,
	}
}
