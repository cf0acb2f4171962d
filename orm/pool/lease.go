package pool

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"
)

// Lease is a connection checked out of the pool. It is not safe for
// concurrent use: one caller, one statement in flight.
type Lease struct {
	id         string
	conn       *sql.Conn
	pool       *Pool
	acquiredAt time.Time
	released   atomic.Bool
}

func (l *Lease) ID() string {
	return l.id
}

func (l *Lease) AcquiredAt() time.Time {
	return l.acquiredAt
}

// Release hands the connection back to its pool.
func (l *Lease) Release() error {
	return l.pool.Release(l)
}

func (l *Lease) Released() bool {
	return l.released.Load()
}

func (l *Lease) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return l.conn.QueryContext(ctx, query, args...)
}

func (l *Lease) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return l.conn.ExecContext(ctx, query, args...)
}

func (l *Lease) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return l.conn.BeginTx(ctx, opts)
}

func (l *Lease) PingContext(ctx context.Context) error {
	return l.conn.PingContext(ctx)
}
