package repository

import (
	"context"

	"github.com/and161185/gatekeeper/internal/model"
	"github.com/gofrs/uuid/v5"
)

// FacilityRepository backs the tenant-scoped example resources.
type FacilityRepository interface {
	// ListFacilities returns facilities of an organization, or all when orgID is nil.
	ListFacilities(ctx context.Context, orgID *string) ([]model.Facility, error)
	// GetFacility loads one facility.
	GetFacility(ctx context.Context, id uuid.UUID) (*model.Facility, error)
	// CreateDrawRequest inserts a draw request.
	CreateDrawRequest(ctx context.Context, d *model.DrawRequest) error
}
