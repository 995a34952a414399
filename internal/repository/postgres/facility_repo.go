package postgres

import (
	"context"
	"errors"

	"github.com/and161185/gatekeeper/internal/errs"
	"github.com/and161185/gatekeeper/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// FacilityRepo implements FacilityRepository using PostgreSQL.
type FacilityRepo struct{ db *DB }

// NewFacilityRepo constructs a facility repository.
func NewFacilityRepo(db *DB) *FacilityRepo { return &FacilityRepo{db: db} }

// ListFacilities returns facilities of one organization, or all when orgID is nil.
func (r *FacilityRepo) ListFacilities(ctx context.Context, orgID *string) ([]model.Facility, error) {
	const q = `
SELECT id, organization_id, name, created_at
FROM facilities
WHERE ($1::text IS NULL OR organization_id = $1)
ORDER BY name, id`
	rows, err := r.db.Pool.Query(ctx, q, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Facility{}
	for rows.Next() {
		var f model.Facility
		if err := rows.Scan(&f.ID, &f.OrganizationID, &f.Name, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// GetFacility loads one facility by id.
func (r *FacilityRepo) GetFacility(ctx context.Context, id uuid.UUID) (*model.Facility, error) {
	const q = `SELECT id, organization_id, name, created_at FROM facilities WHERE id=$1`
	var f model.Facility
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&f.ID, &f.OrganizationID, &f.Name, &f.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

// CreateDrawRequest inserts a draw request; an unknown facility yields ErrNotFound.
func (r *FacilityRepo) CreateDrawRequest(ctx context.Context, d *model.DrawRequest) error {
	const q = `
INSERT INTO draw_requests (id, facility_id, client_id, amount_cents, memo)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at`
	err := r.db.Pool.QueryRow(ctx, q, d.ID, d.FacilityID, d.ClientID, d.AmountCents, d.Memo).Scan(&d.CreatedAt)
	if isForeignKeyViolation(err) {
		return errs.ErrNotFound
	}
	return err
}
