package repository

import (
	"context"
	"time"

	"github.com/and161185/gatekeeper/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UsageRepository stores append-only usage records.
type UsageRepository interface {
	// InsertBatch appends records.
	InsertBatch(ctx context.Context, recs []model.UsageRecord) error
	// List returns a client's records with OccurredAt in [from, to).
	List(ctx context.Context, clientID uuid.UUID, from, to time.Time) ([]model.UsageRecord, error)
}
