package orm

import (
	"context"
	"database/sql"
	"log/slog"
)

// Tx 事务内的会话，所有语句都在同一个连接上执行
type Tx struct {
	core
	tx *sql.Tx
}

func (t *Tx) getCore() core {
	return t.core
}

func (t *Tx) queryContext(ctx context.Context, q *Query, scan scanFunc) (any, error) {
	rows, err := t.tx.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()
	return scan(rows)
}

func (t *Tx) execContext(ctx context.Context, q *Query) (sql.Result, error) {
	return t.tx.ExecContext(ctx, q.SQL, q.Args...)
}

func (t *Tx) Commit() error {
	return t.tx.Commit()
}

func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

func (t *Tx) RollbackIfNotCommit() error {
	err := t.tx.Rollback()
	if err != sql.ErrTxDone {
		return err
	}
	return nil
}

// Statement 事务中的一条语句，Args 的规则和 Execute 相同
type Statement struct {
	SQL  string
	Args []any
}

func Stmt(query string, args ...any) Statement {
	return Statement{SQL: query, Args: args}
}

type txOptions struct {
	rollback bool
	opts     *sql.TxOptions
}

type TxOption func(o *txOptions)

// WithoutRollback 失败之后不主动回滚
// 未提交的事务在连接归还的时候由 database/sql 丢弃
func WithoutRollback() TxOption {
	return func(o *txOptions) {
		o.rollback = false
	}
}

// WithTxOptions 指定隔离级别等事务选项
func WithTxOptions(opts *sql.TxOptions) TxOption {
	return func(o *txOptions) {
		o.opts = opts
	}
}

// TransactionExecute 在一个事务中执行多条语句，全部成功才提交
// 任何一条失败都会回滚，然后原样返回这条语句的错误
func (db *DB) TransactionExecute(ctx context.Context, stmts []Statement, opts ...TxOption) error {
	if len(stmts) == 0 {
		return ErrEmptySQL
	}
	o := txOptions{rollback: true}
	for _, opt := range opts {
		opt(&o)
	}

	l, err := db.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer db.release(l)

	// 归还连接之前必须结束事务，否则 Conn.Close 会一直等待
	txCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sqlTx, err := l.BeginTx(txCtx, o.opts)
	if err != nil {
		return err
	}

	tx := &Tx{core: db.core, tx: sqlTx}
	for _, st := range stmts {
		res := exec(txCtx, tx, &QueryContext{
			Type:    "RAW",
			Builder: rawQuery{c: db.core, sql: st.SQL, args: st.Args},
		})
		if err = res.Err(); err == nil {
			continue
		}
		if o.rollback {
			if rerr := tx.Rollback(); rerr != nil {
				db.logger.Error("rollback transaction", slog.Any("err", rerr), slog.Any("cause", err))
			}
		}
		return err
	}
	return tx.Commit()
}
