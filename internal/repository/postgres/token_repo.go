package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/gatekeeper/internal/errs"
	"github.com/and161185/gatekeeper/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// TokenRepo implements TokenRepository using PostgreSQL.
type TokenRepo struct{ db *DB }

// NewTokenRepo constructs a token repository.
func NewTokenRepo(db *DB) *TokenRepo { return &TokenRepo{db: db} }

// Create inserts a token while holding a share lock on the owning client, so a
// concurrent suspension either sees the new token (and revokes it) or runs first
// (and the insert is refused).
func (r *TokenRepo) Create(ctx context.Context, t *model.Token, maxActive int) error {
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		const sel = `SELECT status FROM api_clients WHERE client_id=$1 FOR SHARE`
		var status string
		if err := tx.QueryRow(ctx, sel, t.ClientID).Scan(&status); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errs.ErrInvalidClient
			}
			return err
		}
		if model.ClientStatus(status) != model.StatusActive {
			return errs.ErrInvalidClient
		}

		const ins = `
INSERT INTO access_tokens (id, token_hash, client_id, scopes, issued_at, expires_at, revoked)
VALUES ($1, $2, $3, $4, $5, $6, false)`
		if _, err := tx.Exec(ctx, ins, t.ID, t.TokenHash, t.ClientID, t.GrantedScopes, t.IssuedAt, t.ExpiresAt); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("token value collision: %w", errs.ErrAlreadyExists)
			}
			return err
		}

		if maxActive <= 0 {
			return nil
		}
		const trim = `
UPDATE access_tokens SET revoked=true
WHERE id IN (
  SELECT id FROM access_tokens
  WHERE client_id=$1 AND NOT revoked AND expires_at > $2
  ORDER BY issued_at DESC, id DESC
  OFFSET $3
)`
		_, err := tx.Exec(ctx, trim, t.ClientID, t.IssuedAt, maxActive)
		return err
	})
}

// GetGrant loads a token by digest joined with its owner's current state.
func (r *TokenRepo) GetGrant(ctx context.Context, tokenHash []byte) (*model.TokenGrant, error) {
	const q = `
SELECT t.id, t.client_id, t.scopes, t.issued_at, t.expires_at, t.revoked,
       c.name, c.allowed_scopes, c.rate_limit, c.status, c.organization_id
FROM access_tokens t
JOIN api_clients c ON c.client_id = t.client_id
WHERE t.token_hash=$1`
	var (
		g      model.TokenGrant
		status string
	)
	err := r.db.Pool.QueryRow(ctx, q, tokenHash).Scan(
		&g.Token.ID, &g.Token.ClientID, &g.Token.GrantedScopes, &g.Token.IssuedAt, &g.Token.ExpiresAt, &g.Token.Revoked,
		&g.Client.Name, &g.Client.AllowedScopes, &g.Client.RateLimit, &status, &g.Client.OrganizationID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	g.Token.TokenHash = tokenHash
	g.Client.ClientID = g.Token.ClientID
	g.Client.Status = model.ClientStatus(status)
	return &g, nil
}

// Revoke marks a single token revoked.
func (r *TokenRepo) Revoke(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE access_tokens SET revoked=true WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// RevokeByHash marks the token with the given digest revoked if clientID owns it.
func (r *TokenRepo) RevokeByHash(ctx context.Context, clientID uuid.UUID, tokenHash []byte) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE access_tokens SET revoked=true WHERE token_hash=$1 AND client_id=$2`, tokenHash, clientID)
	return err
}

// PurgeExpired deletes tokens whose expiry is before cutoff.
func (r *TokenRepo) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM access_tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
