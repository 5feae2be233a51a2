package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PG is a PostgreSQL-backed blacklist, shared by every server process on the same database.
// Addresses are stored hashed.
type PG struct {
	pool pgxQuerier
	now  func() time.Time
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed blacklist. A nil clock means time.Now.
func NewPG(q pgxQuerier, now func() time.Time) *PG {
	if now == nil {
		now = time.Now
	}
	return &PG{pool: q, now: now}
}

var _ Blacklist = (*PG)(nil)

// Allow reports whether ip is currently unbanned.
func (l *PG) Allow(ctx context.Context, ip string) (bool, time.Time, error) {
	const q = `SELECT blocked_until FROM ip_blacklist WHERE ip_hash=$1`
	var blockedUntil time.Time
	err := l.pool.QueryRow(ctx, q, HashIP(ip)).Scan(&blockedUntil)
	switch {
	case err == nil:
		if blockedUntil.After(l.now()) {
			return false, blockedUntil, nil
		}
		return true, time.Time{}, nil
	case errors.Is(err, pgx.ErrNoRows):
		return true, time.Time{}, nil
	default:
		return false, time.Time{}, err
	}
}

// Ban blocks ip for d from now, keeping a later existing expiry.
func (l *PG) Ban(ctx context.Context, ip string, d time.Duration) (time.Time, error) {
	const q = `
INSERT INTO ip_blacklist (ip_hash, blocked_until, updated_at)
VALUES ($1,$2,now())
ON CONFLICT (ip_hash) DO UPDATE
SET
  blocked_until = GREATEST(ip_blacklist.blocked_until, EXCLUDED.blocked_until),
  updated_at = now()
RETURNING blocked_until`
	var until time.Time
	if err := l.pool.QueryRow(ctx, q, HashIP(ip), l.now().Add(d)).Scan(&until); err != nil {
		return time.Time{}, err
	}
	return until, nil
}

// Purge deletes expired entries.
func (l *PG) Purge(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `DELETE FROM ip_blacklist WHERE blocked_until <= $1`, l.now())
	return err
}
