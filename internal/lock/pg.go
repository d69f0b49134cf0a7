package lock

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGLock is a session-scoped Postgres advisory lock, used when no Redis is
// configured. It pins one pool connection for as long as it is held.
type PGLock struct {
	pool   *pgxpool.Pool
	lockID int64
	conn   *pgxpool.Conn
}

func NewPGLock(pool *pgxpool.Pool, key string) *PGLock {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return &PGLock{pool: pool, lockID: int64(h.Sum64())}
}

func PGFactory(pool *pgxpool.Pool) Factory {
	return func(campaignID string) Lock {
		return NewPGLock(pool, Key(campaignID))
	}
}

func (l *PGLock) Acquire(ctx context.Context) (bool, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire conn for advisory lock: %w", err)
	}
	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, l.lockID).Scan(&ok); err != nil {
		conn.Release()
		return false, fmt.Errorf("advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

func (l *PGLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return ErrNotHeld
	}
	defer func() {
		l.conn.Release()
		l.conn = nil
	}()
	var ok bool
	if err := l.conn.QueryRow(ctx, `SELECT pg_advisory_unlock($1)`, l.lockID).Scan(&ok); err != nil {
		return fmt.Errorf("advisory unlock: %w", err)
	}
	if !ok {
		return ErrNotHeld
	}
	return nil
}
