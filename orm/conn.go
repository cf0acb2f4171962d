package orm

import (
	"context"
	"database/sql"
	"errors"

	"github.com/streamDream/mysql-stream/orm/pool"
)

// Conn 有状态的执行器，从创建到 Commit、Rollback 或者 Close 一直持有同一个连接
// Conn 不是并发安全的
type Conn struct {
	core
	lease *pool.Lease

	tx *sql.Tx
	// 取消事务的 context，保证归还连接之前事务已经结束
	cancel context.CancelFunc
	closed bool
}

// Conn 从连接池借出一个连接，使用完毕必须调用 Commit、Rollback 或者 Close
func (db *DB) Conn(ctx context.Context) (*Conn, error) {
	l, err := db.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Conn{
		core:  db.core,
		lease: l,
	}, nil
}

func (c *Conn) getCore() core {
	return c.core
}

func (c *Conn) queryContext(ctx context.Context, q *Query, scan scanFunc) (any, error) {
	if c.closed {
		return nil, ErrConnClosed
	}
	if c.tx == nil {
		return queryLease(ctx, c.lease, q, scan)
	}
	rows, err := c.tx.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()
	return scan(rows)
}

func (c *Conn) execContext(ctx context.Context, q *Query) (sql.Result, error) {
	if c.closed {
		return nil, ErrConnClosed
	}
	if c.tx == nil {
		return c.lease.ExecContext(ctx, q.SQL, q.Args...)
	}
	return c.tx.ExecContext(ctx, q.SQL, q.Args...)
}

// InTransaction 是否有进行中的事务
func (c *Conn) InTransaction() bool {
	return c.tx != nil
}

// StartTransaction 开始事务
func (c *Conn) StartTransaction(ctx context.Context) error {
	if c.closed {
		return ErrConnClosed
	}
	if c.tx != nil {
		return ErrTxAlreadyStarted
	}
	txCtx, cancel := context.WithCancel(ctx)
	tx, err := c.lease.BeginTx(txCtx, nil)
	if err != nil {
		cancel()
		return err
	}
	c.tx, c.cancel = tx, cancel
	return nil
}

// NoCommitExecute 在事务中执行语句但不提交，没有事务的时候先开始一个
func (c *Conn) NoCommitExecute(ctx context.Context, query string, args ...any) Result {
	if query == "" {
		return Result{err: ErrEmptySQL}
	}
	if c.tx == nil {
		if err := c.StartTransaction(ctx); err != nil {
			return Result{err: err}
		}
	}
	return execRaw(ctx, c, query, args)
}

// Execute 有事务的时候在事务中执行，否则自动提交
func (c *Conn) Execute(ctx context.Context, query string, args ...any) Result {
	return execRaw(ctx, c, query, args)
}

func (c *Conn) QueryOneRow(ctx context.Context, query string, args ...any) (Row, error) {
	return queryOneRow(ctx, c, query, args)
}

func (c *Conn) QueryMultiRows(ctx context.Context, query string, args ...any) ([]Row, error) {
	return queryMultiRows(ctx, c, query, args)
}

// BuildSQL 参考 DB.BuildSQL
func (c *Conn) BuildSQL(query string, args ...any) (string, error) {
	return c.core.buildSQL(query, args)
}

// Commit 提交事务并归还连接，之后 Conn 不能再使用
func (c *Conn) Commit() error {
	if c.closed {
		return ErrConnClosed
	}
	if c.tx == nil {
		return ErrNoTransaction
	}
	err := c.tx.Commit()
	return errors.Join(err, c.finish())
}

// Rollback 回滚事务并归还连接，之后 Conn 不能再使用
func (c *Conn) Rollback() error {
	if c.closed {
		return ErrConnClosed
	}
	if c.tx == nil {
		return ErrNoTransaction
	}
	err := c.tx.Rollback()
	return errors.Join(err, c.finish())
}

// Close 回滚未结束的事务并归还连接，可以重复调用
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	var err error
	if c.tx != nil {
		err = c.tx.Rollback()
	}
	return errors.Join(err, c.finish())
}

func (c *Conn) finish() error {
	c.closed = true
	c.tx = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	return c.lease.Release()
}
