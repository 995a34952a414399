package limiter

import (
	"context"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PG is a PostgreSQL-backed Lockout: failures inside window are counted per
// (client_id, ip) and reaching maxFails blocks the pair for blockFor.
type PG struct {
	pool     pgxQuerier
	window   time.Duration
	maxFails int
	blockFor time.Duration
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed lockout over any pgx pool.
func NewPG(q pgxQuerier, window time.Duration, maxFails int, blockFor time.Duration) *PG {
	return &PG{pool: q, window: window, maxFails: maxFails, blockFor: blockFor}
}

// HashIP returns a stable hash for an IP string to avoid storing raw addresses.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}

// Allow reports whether an attempt is currently allowed and a retry-after duration.
func (l *PG) Allow(ctx context.Context, clientID string, ipHash []byte) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM token_lockout WHERE client_id=$1 AND ip_hash=$2`
	var blockedUntil time.Time
	err := l.pool.QueryRow(ctx, q, clientID, ipHash).Scan(&blockedUntil)
	switch {
	case err == nil:
		if wait := time.Until(blockedUntil); wait > 0 {
			return false, wait, nil
		}
		return true, 0, nil
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	default:
		return false, 0, err
	}
}

// Success clears the pair's counters.
func (l *PG) Success(ctx context.Context, clientID string, ipHash []byte) error {
	const q = `DELETE FROM token_lockout WHERE client_id=$1 AND ip_hash=$2`
	_, err := l.pool.Exec(ctx, q, clientID, ipHash)
	return err
}

// Failure counts a failed attempt and, at the threshold, sets the block in the same statement.
func (l *PG) Failure(ctx context.Context, clientID string, ipHash []byte) (bool, time.Duration, error) {
	const q = `
INSERT INTO token_lockout AS l (client_id, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1, $2, 1, CASE WHEN $4::int <= 1 THEN now() + $5::float8 * interval '1 second' ELSE 'epoch' END, now())
ON CONFLICT (client_id, ip_hash) DO UPDATE
SET
  fail_count = CASE WHEN now() - l.updated_at > $3::float8 * interval '1 second' THEN 1 ELSE l.fail_count + 1 END,
  blocked_until = CASE
    WHEN (CASE WHEN now() - l.updated_at > $3::float8 * interval '1 second' THEN 1 ELSE l.fail_count + 1 END) >= $4::int
    THEN now() + $5::float8 * interval '1 second'
    ELSE l.blocked_until
  END,
  updated_at = now()
RETURNING fail_count`
	var fails int
	err := l.pool.QueryRow(ctx, q, clientID, ipHash, l.window.Seconds(), l.maxFails, l.blockFor.Seconds()).Scan(&fails)
	if err != nil {
		return false, 0, err
	}
	if fails >= l.maxFails {
		return true, l.blockFor, nil
	}
	return false, 0, nil
}
