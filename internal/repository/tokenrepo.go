package repository

import (
	"context"
	"time"

	"github.com/and161185/gatekeeper/internal/model"
	"github.com/gofrs/uuid/v5"
)

// TokenRepository provides access to issued bearer tokens.
type TokenRepository interface {
	// Create stores t if its owner is still active, revoking the owner's oldest
	// valid tokens beyond maxActive. Fails with errs.ErrInvalidClient when the
	// owner is missing or not active.
	Create(ctx context.Context, t *model.Token, maxActive int) error
	// GetGrant loads a token by digest together with its owner's current state.
	GetGrant(ctx context.Context, tokenHash []byte) (*model.TokenGrant, error)
	// Revoke marks a single token revoked.
	Revoke(ctx context.Context, id uuid.UUID) error
	// RevokeByHash marks a token revoked if it belongs to clientID.
	// Unknown tokens are not an error.
	RevokeByHash(ctx context.Context, clientID uuid.UUID, tokenHash []byte) error
	// PurgeExpired deletes tokens that expired before cutoff, revoked or not,
	// and returns how many were removed.
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
