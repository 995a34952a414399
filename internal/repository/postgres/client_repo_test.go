package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/and161185/gatekeeper/internal/errs"
	"github.com/and161185/gatekeeper/internal/model"
	"github.com/and161185/gatekeeper/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

var (
	_ repository.ClientRepository   = (*ClientRepo)(nil)
	_ repository.TokenRepository    = (*TokenRepo)(nil)
	_ repository.UsageRepository    = (*UsageRepo)(nil)
	_ repository.FacilityRepository = (*FacilityRepo)(nil)
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

var clientCols = []string{"client_id", "name", "description", "secret_hash", "secret_salt",
	"allowed_scopes", "rate_limit", "status", "organization_id", "created_at", "updated_at"}

func clientRow(id uuid.UUID, status string, org *string) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(clientCols).AddRow(id, "billing", "", []byte("h"), []byte("s"),
		[]string{"read:facilities"}, 60, status, org, now, now)
}

func TestClientRepo_Create_OK_and_UniqueViolation(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewClientRepo(db)
	ctx := context.Background()
	c := &model.Client{
		ClientID:      uuid.Must(uuid.NewV4()),
		Name:          "billing",
		SecretHash:    []byte("h"),
		SecretSalt:    []byte("s"),
		AllowedScopes: []string{"read:facilities"},
		RateLimit:     60,
		Status:        model.StatusActive,
	}
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO api_clients`).
		WithArgs(c.ClientID, c.Name, c.Description, c.SecretHash, c.SecretSalt, c.AllowedScopes, c.RateLimit, "active", c.OrganizationID).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	require.NoError(t, r.Create(ctx, c))
	require.Equal(t, now, c.CreatedAt)

	mock.ExpectQuery(`INSERT INTO api_clients`).
		WithArgs(c.ClientID, c.Name, c.Description, c.SecretHash, c.SecretSalt, c.AllowedScopes, c.RateLimit, "active", c.OrganizationID).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Create(ctx, c), errs.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClientRepo_Get(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewClientRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	org := "org-1"

	mock.ExpectQuery(`SELECT client_id, name, .* FROM api_clients WHERE client_id=\$1`).
		WithArgs(id).
		WillReturnRows(clientRow(id, "suspended", &org))
	c, err := r.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, c.ClientID)
	require.Equal(t, model.StatusSuspended, c.Status)
	require.Equal(t, "org-1", *c.OrganizationID)
	require.Equal(t, 60, c.RateLimit)

	mock.ExpectQuery(`FROM api_clients WHERE client_id=\$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.Get(ctx, id)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestClientRepo_List_DefaultLimit(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewClientRepo(db)
	a, b := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	now := time.Now()
	var noOrg *string

	rows := pgxmock.NewRows(clientCols).
		AddRow(a, "a", "", []byte("h"), []byte("s"), []string{}, 10, "active", noOrg, now, now).
		AddRow(b, "b", "", []byte("h"), []byte("s"), []string{}, 20, "active", noOrg, now, now)
	mock.ExpectQuery(`FROM api_clients\s+WHERE`).
		WithArgs(noOrg, pgxmock.AnyArg(), 100, 0).
		WillReturnRows(rows)

	list, err := r.List(context.Background(), model.ClientFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, b, list[1].ClientID)
}

func TestClientRepo_UpdateStatus_SuspendRevokesTokens(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewClientRepo(db)
	id := uuid.Must(uuid.NewV4())
	var noOrg *string

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM api_clients WHERE client_id=\$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("active"))
	mock.ExpectQuery(`UPDATE api_clients SET status=\$2`).
		WithArgs(id, "suspended").
		WillReturnRows(clientRow(id, "suspended", noOrg))
	mock.ExpectExec(`UPDATE access_tokens SET revoked=true WHERE client_id=\$1 AND NOT revoked`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))
	mock.ExpectCommit()

	c, err := r.UpdateStatus(context.Background(), id, model.StatusSuspended)
	require.NoError(t, err)
	require.Equal(t, model.StatusSuspended, c.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClientRepo_UpdateStatus_ReactivateKeepsTokensUntouched(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewClientRepo(db)
	id := uuid.Must(uuid.NewV4())
	var noOrg *string

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM api_clients`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("suspended"))
	mock.ExpectQuery(`UPDATE api_clients SET status=\$2`).
		WithArgs(id, "active").
		WillReturnRows(clientRow(id, "active", noOrg))
	mock.ExpectCommit()

	_, err := r.UpdateStatus(context.Background(), id, model.StatusActive)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClientRepo_UpdateStatus_RevokedIsTerminal(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewClientRepo(db)
	id := uuid.Must(uuid.NewV4())

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM api_clients`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("revoked"))
	mock.ExpectRollback()

	_, err := r.UpdateStatus(context.Background(), id, model.StatusActive)
	require.ErrorIs(t, err, errs.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClientRepo_UpdateStatus_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewClientRepo(db)
	id := uuid.Must(uuid.NewV4())

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM api_clients`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := r.UpdateStatus(context.Background(), id, model.StatusSuspended)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestClientRepo_UpdateSecret(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewClientRepo(db)
	id := uuid.Must(uuid.NewV4())
	hash, salt := []byte("h2"), []byte("s2")

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE api_clients SET secret_hash=\$2, secret_salt=\$3`).
		WithArgs(id, hash, salt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE access_tokens SET revoked=true`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectCommit()
	require.NoError(t, r.UpdateSecret(context.Background(), id, hash, salt))

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE api_clients SET secret_hash=\$2, secret_salt=\$3`).
		WithArgs(id, hash, salt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()
	require.ErrorIs(t, r.UpdateSecret(context.Background(), id, hash, salt), errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClientRepo_Delete(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewClientRepo(db)
	id := uuid.Must(uuid.NewV4())

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM access_tokens WHERE client_id=\$1`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectExec(`DELETE FROM api_clients WHERE client_id=\$1`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()
	require.NoError(t, r.Delete(context.Background(), id))

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM access_tokens`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`DELETE FROM api_clients`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()
	require.ErrorIs(t, r.Delete(context.Background(), id), errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
