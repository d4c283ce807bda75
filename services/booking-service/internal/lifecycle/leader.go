package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/tutorbook/libs/db"
)

// DefaultLockKey identifies the sweeper's session advisory lock.
const DefaultLockKey int64 = 7130001

// AdvisoryLeader elects a leader with a Postgres session advisory lock. The
// lock lives on a dedicated pooled connection that is held until release.
type AdvisoryLeader struct {
	pool *db.Pool
	key  int64
}

func NewAdvisoryLeader(pool *db.Pool, key int64) *AdvisoryLeader {
	if key == 0 {
		key = DefaultLockKey
	}
	return &AdvisoryLeader{pool: pool, key: key}
}

func (l *AdvisoryLeader) Acquire(ctx context.Context) (func(), bool, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}
	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, l.key).Scan(&locked); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, false, nil
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, l.key)
		conn.Release()
	}
	return release, true, nil
}
