package postgres

import (
	"context"
	"errors"

	"github.com/and161185/gatekeeper/internal/errs"
	"github.com/and161185/gatekeeper/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// ClientRepo implements ClientRepository using PostgreSQL.
type ClientRepo struct{ db *DB }

// NewClientRepo constructs a client repository.
func NewClientRepo(db *DB) *ClientRepo { return &ClientRepo{db: db} }

const clientColumns = `client_id, name, description, secret_hash, secret_salt, allowed_scopes, rate_limit, status, organization_id, created_at, updated_at`

const revokeClientTokens = `UPDATE access_tokens SET revoked=true WHERE client_id=$1 AND NOT revoked`

func scanClient(row pgx.Row) (*model.Client, error) {
	var (
		c      model.Client
		status string
	)
	err := row.Scan(&c.ClientID, &c.Name, &c.Description, &c.SecretHash, &c.SecretSalt,
		&c.AllowedScopes, &c.RateLimit, &status, &c.OrganizationID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	c.Status = model.ClientStatus(status)
	return &c, nil
}

// Create inserts a new client row.
func (r *ClientRepo) Create(ctx context.Context, c *model.Client) error {
	const q = `
INSERT INTO api_clients (client_id, name, description, secret_hash, secret_salt, allowed_scopes, rate_limit, status, organization_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING created_at, updated_at`
	err := r.db.Pool.QueryRow(ctx, q, c.ClientID, c.Name, c.Description, c.SecretHash, c.SecretSalt,
		c.AllowedScopes, c.RateLimit, string(c.Status), c.OrganizationID).Scan(&c.CreatedAt, &c.UpdatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// Get selects a client by id.
func (r *ClientRepo) Get(ctx context.Context, id uuid.UUID) (*model.Client, error) {
	q := `SELECT ` + clientColumns + ` FROM api_clients WHERE client_id=$1`
	return scanClient(r.db.Pool.QueryRow(ctx, q, id))
}

// List selects clients matching the filter, oldest first.
func (r *ClientRepo) List(ctx context.Context, f model.ClientFilter) ([]model.Client, error) {
	q := `SELECT ` + clientColumns + ` FROM api_clients
WHERE ($1::text IS NULL OR organization_id = $1)
  AND ($2::text IS NULL OR status = $2)
ORDER BY created_at, client_id
LIMIT $3 OFFSET $4`

	var status *string
	if f.Status != nil {
		s := string(*f.Status)
		status = &s
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Pool.Query(ctx, q, f.OrganizationID, status, limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// UpdateStatus changes a client's status. Leaving the active state revokes
// every token of the client in the same transaction. Revoked is terminal.
func (r *ClientRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ClientStatus) (*model.Client, error) {
	var out *model.Client
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		const sel = `SELECT status FROM api_clients WHERE client_id=$1 FOR UPDATE`
		var cur string
		if err := tx.QueryRow(ctx, sel, id).Scan(&cur); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}
		if model.ClientStatus(cur) == model.StatusRevoked && status != model.StatusRevoked {
			return errs.ErrConflict
		}

		upd := `UPDATE api_clients SET status=$2, updated_at=now() WHERE client_id=$1 RETURNING ` + clientColumns
		c, err := scanClient(tx.QueryRow(ctx, upd, id, string(status)))
		if err != nil {
			return err
		}
		if status != model.StatusActive {
			if _, err := tx.Exec(ctx, revokeClientTokens, id); err != nil {
				return err
			}
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateScopes replaces the allowed scope set. Existing tokens keep their
// granted set; validators intersect it with the current allowed set.
func (r *ClientRepo) UpdateScopes(ctx context.Context, id uuid.UUID, scopes []string) (*model.Client, error) {
	q := `UPDATE api_clients SET allowed_scopes=$2, updated_at=now() WHERE client_id=$1 RETURNING ` + clientColumns
	return scanClient(r.db.Pool.QueryRow(ctx, q, id, scopes))
}

// UpdateRateLimit replaces the request budget.
func (r *ClientRepo) UpdateRateLimit(ctx context.Context, id uuid.UUID, limit int) (*model.Client, error) {
	q := `UPDATE api_clients SET rate_limit=$2, updated_at=now() WHERE client_id=$1 RETURNING ` + clientColumns
	return scanClient(r.db.Pool.QueryRow(ctx, q, id, limit))
}

// UpdateSecret stores a new secret for a non-revoked client and revokes its tokens.
func (r *ClientRepo) UpdateSecret(ctx context.Context, id uuid.UUID, hash, salt []byte) error {
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		const upd = `UPDATE api_clients SET secret_hash=$2, secret_salt=$3, updated_at=now() WHERE client_id=$1 AND status <> 'revoked'`
		tag, err := tx.Exec(ctx, upd, id, hash, salt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errs.ErrNotFound
		}
		_, err = tx.Exec(ctx, revokeClientTokens, id)
		return err
	})
}

// Delete removes the client's tokens and then the client, in one transaction.
func (r *ClientRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM access_tokens WHERE client_id=$1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM api_clients WHERE client_id=$1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errs.ErrNotFound
		}
		return nil
	})
}
