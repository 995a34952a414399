// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/gatekeeper/internal/model"
	"github.com/gofrs/uuid/v5"
)

// ClientRepository provides durable access to API clients.
//
// Every mutation that takes a client out of the active state revokes the
// client's tokens in the same transaction.
type ClientRepository interface {
	// Create inserts a new client.
	Create(ctx context.Context, c *model.Client) error
	// Get loads a client by its public id.
	Get(ctx context.Context, id uuid.UUID) (*model.Client, error)
	// List returns clients matching the filter ordered by creation time.
	List(ctx context.Context, f model.ClientFilter) ([]model.Client, error)
	// UpdateStatus changes the status; non-active statuses cascade to tokens.
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.ClientStatus) (*model.Client, error)
	// UpdateScopes replaces the allowed scope set.
	UpdateScopes(ctx context.Context, id uuid.UUID, scopes []string) (*model.Client, error)
	// UpdateRateLimit replaces the per-window request budget.
	UpdateRateLimit(ctx context.Context, id uuid.UUID, limit int) (*model.Client, error)
	// UpdateSecret stores a new secret hash and revokes all outstanding tokens.
	UpdateSecret(ctx context.Context, id uuid.UUID, hash, salt []byte) error
	// Delete removes the client and all of its tokens.
	Delete(ctx context.Context, id uuid.UUID) error
}
