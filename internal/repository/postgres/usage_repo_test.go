package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/and161185/gatekeeper/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func TestUsageRepo_InsertBatch(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUsageRepo(db)
	id := uuid.Must(uuid.NewV4())
	now := time.Now()

	mock.ExpectCopyFrom(pgx.Identifier{"api_usage"}, usageColumns).WillReturnResult(2)
	err := r.InsertBatch(context.Background(), []model.UsageRecord{
		{ClientID: id, Method: "GET", Endpoint: "/v1/facilities", Status: 200, Duration: time.Millisecond, OccurredAt: now},
		{ClientID: id, Method: "GET", Endpoint: "/v1/facilities/{id}", Status: 404, Duration: 2 * time.Millisecond, OccurredAt: now},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageRepo_InsertBatch_EmptyIsNoop(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	require.NoError(t, NewUsageRepo(db).InsertBatch(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageRepo_InsertBatch_Error(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUsageRepo(db)

	mock.ExpectCopyFrom(pgx.Identifier{"api_usage"}, usageColumns).WillReturnError(errors.New("disk full"))
	err := r.InsertBatch(context.Background(), []model.UsageRecord{{ClientID: uuid.Must(uuid.NewV4()), Status: 200}})
	require.Error(t, err)
}

func TestUsageRepo_List(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUsageRepo(db)
	id := uuid.Must(uuid.NewV4())
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	mock.ExpectQuery(`FROM api_usage\s+WHERE client_id=\$1 AND occurred_at >= \$2 AND occurred_at < \$3`).
		WithArgs(id, from, to).
		WillReturnRows(pgxmock.NewRows([]string{"client_id", "method", "endpoint", "status", "duration_us", "occurred_at"}).
			AddRow(id, "POST", "/v1/draw-requests", 201, int64(1500), from.Add(time.Hour)))

	recs, err := r.List(context.Background(), id, from, to)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, 1500*time.Microsecond, recs[0].Duration)
	require.Equal(t, 201, recs[0].Status)
}
