package postgres

import (
	"context"
	"time"

	"github.com/and161185/gatekeeper/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// UsageRepo implements UsageRepository using PostgreSQL.
type UsageRepo struct{ db *DB }

// NewUsageRepo constructs a usage repository.
func NewUsageRepo(db *DB) *UsageRepo { return &UsageRepo{db: db} }

var usageColumns = []string{"client_id", "method", "endpoint", "status", "duration_us", "occurred_at"}

// InsertBatch appends records with a single COPY.
func (r *UsageRepo) InsertBatch(ctx context.Context, recs []model.UsageRecord) error {
	if len(recs) == 0 {
		return nil
	}
	rows := make([][]any, len(recs))
	for i, rec := range recs {
		rows[i] = []any{rec.ClientID, rec.Method, rec.Endpoint, rec.Status, rec.Duration.Microseconds(), rec.OccurredAt}
	}
	_, err := r.db.Pool.CopyFrom(ctx, pgx.Identifier{"api_usage"}, usageColumns, pgx.CopyFromRows(rows))
	return err
}

// List returns a client's records with occurred_at in [from, to), oldest first.
func (r *UsageRepo) List(ctx context.Context, clientID uuid.UUID, from, to time.Time) ([]model.UsageRecord, error) {
	const q = `
SELECT client_id, method, endpoint, status, duration_us, occurred_at
FROM api_usage
WHERE client_id=$1 AND occurred_at >= $2 AND occurred_at < $3
ORDER BY occurred_at ASC`
	rows, err := r.db.Pool.Query(ctx, q, clientID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.UsageRecord
	for rows.Next() {
		var (
			rec model.UsageRecord
			us  int64
		)
		if err := rows.Scan(&rec.ClientID, &rec.Method, &rec.Endpoint, &rec.Status, &us, &rec.OccurredAt); err != nil {
			return nil, err
		}
		rec.Duration = time.Duration(us) * time.Microsecond
		out = append(out, rec)
	}
	return out, rows.Err()
}
