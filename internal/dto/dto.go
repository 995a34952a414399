// Package dto holds the JSON wire types of the HTTP API.
package dto

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their JSON names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks v against its struct tags. Failures come back as one
// message per field, keyed by JSON name, safe to show to API callers.
func Validate(v any) error {
	err := validate.Struct(v)
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fieldMessage(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s%s", fe.Field(), fe.Param(), unit)
	case "max":
		return fmt.Sprintf("%s must be at most %s%s", fe.Field(), fe.Param(), unit)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "uuid":
		return fmt.Sprintf("%s must be a UUID", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// TokenRequest is a JSON body of POST /oauth/token or POST /oauth/revoke.
type TokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Scope        string `json:"scope"`
	Token        string `json:"token"` // revoke only
}

// TokenResponse is a successful client-credentials grant.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
}

// Error is the RFC 6749 error body.
type Error struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	RetryAfter  int64  `json:"retry_after,omitempty"`
}

// CreateClientRequest registers a new client.
type CreateClientRequest struct {
	Name           string   `json:"name" validate:"required,max=200"`
	Description    string   `json:"description" validate:"max=1000"`
	Scopes         []string `json:"scopes" validate:"dive,required,max=128"`
	RateLimit      int      `json:"rate_limit" validate:"min=1,max=1000000"`
	OrganizationID *string  `json:"organization_id" validate:"omitnil,max=128"`
}

// PatchClientRequest changes any subset of a client's mutable fields.
type PatchClientRequest struct {
	Status    *string   `json:"status" validate:"omitempty,oneof=active suspended revoked"`
	Scopes    *[]string `json:"scopes" validate:"omitempty,dive,required,max=128"`
	RateLimit *int      `json:"rate_limit" validate:"omitempty,min=1,max=1000000"`
}

// Empty reports whether the patch changes nothing.
func (p PatchClientRequest) Empty() bool {
	return p.Status == nil && p.Scopes == nil && p.RateLimit == nil
}

// Client is the operator view of a client. Secrets never appear here.
type Client struct {
	ClientID       string    `json:"client_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Scopes         []string  `json:"scopes"`
	RateLimit      int       `json:"rate_limit"`
	Status         string    `json:"status"`
	OrganizationID *string   `json:"organization_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CreatedClient is returned once, on registration.
type CreatedClient struct {
	Client       Client `json:"client"`
	ClientSecret string `json:"client_secret"`
}

// RotatedSecret is returned once, on secret rotation.
type RotatedSecret struct {
	ClientSecret string `json:"client_secret"`
}

// ClientList is a page of clients.
type ClientList struct {
	Clients []Client `json:"clients"`
}

// UsageSummary is a client's usage over an inclusive day range.
type UsageSummary struct {
	ClientID              string         `json:"client_id"`
	From                  string         `json:"from"`
	To                    string         `json:"to"`
	TotalRequests         int            `json:"total_requests"`
	SuccessCount          int            `json:"success_count"`
	FailureCount          int            `json:"failure_count"`
	AverageResponseTimeMS float64        `json:"average_response_time_ms"`
	PerEndpoint           map[string]int `json:"per_endpoint"`
}

// Facility is a tenant-owned resource.
type Facility struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
}

// FacilityList wraps a facility listing.
type FacilityList struct {
	Facilities []Facility `json:"facilities"`
}

// CreateDrawRequest is the body of POST /v1/draw-requests.
type CreateDrawRequest struct {
	FacilityID  string `json:"facility_id" validate:"required,uuid"`
	AmountCents int64  `json:"amount_cents" validate:"min=1"`
	Memo        string `json:"memo" validate:"max=500"`
}

// DrawRequest is a created draw request.
type DrawRequest struct {
	ID          string    `json:"id"`
	FacilityID  string    `json:"facility_id"`
	ClientID    string    `json:"client_id"`
	AmountCents int64     `json:"amount_cents"`
	Memo        string    `json:"memo,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// AdminToken is the response of the operator token mint.
type AdminToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
