package orm

import (
	"context"
	"database/sql"
	"log/slog"

	lru "github.com/hashicorp/golang-lru"
	"github.com/streamDream/mysql-stream/orm/internal/valuer"
	"github.com/streamDream/mysql-stream/orm/model"
	"github.com/streamDream/mysql-stream/orm/pool"
)

const defaultNamedCacheSize = 256

type DBOption func(*DB)

// DB 是无状态的执行器，每次调用都从连接池借出一个连接，用完立刻归还
type DB struct {
	core
	pool *pool.Pool

	namedCacheSize int
}

// NewDB creates a new instance of DB on top of p with the provided options.
func NewDB(p *pool.Pool, opts ...DBOption) (*DB, error) {
	db := &DB{
		core: core{
			dialect:    MySQL,
			r:          model.NewRegistry(),
			valCreator: valuer.NewUnsafeValue,
			logger:     slog.Default(),
		},
		pool:           p,
		namedCacheSize: defaultNamedCacheSize,
	}
	for _, opt := range opts {
		opt(db)
	}

	named, err := lru.New(db.namedCacheSize)
	if err != nil {
		return nil, err
	}
	db.named = named
	return db, nil
}

// MustNewDB creates a new DB with the provided options.
// If the creation fails, it panics.
func MustNewDB(p *pool.Pool, opts ...DBOption) *DB {
	db, err := NewDB(p, opts...)
	if err != nil {
		panic(err)
	}
	return db
}

func DBWithRegistry(r model.Registry) DBOption {
	return func(db *DB) {
		db.r = r
	}
}

func DBWithDialect(d Dialect) DBOption {
	return func(db *DB) {
		db.dialect = d
	}
}

func DBUseReflectValuer() DBOption {
	return func(db *DB) {
		db.valCreator = valuer.NewReflectValue
	}
}

func DBWithMiddlewares(mdls ...Middleware) DBOption {
	return func(db *DB) {
		db.mdls = mdls
	}
}

func DBWithLogger(l *slog.Logger) DBOption {
	return func(db *DB) {
		db.logger = l
	}
}

// DBWithNamedCacheSize 设置命名参数语句缓存的容量
func DBWithNamedCacheSize(size int) DBOption {
	return func(db *DB) {
		db.namedCacheSize = size
	}
}

func (db *DB) Pool() *pool.Pool {
	return db.pool
}

func (db *DB) Registry() model.Registry {
	return db.r
}

func (db *DB) getCore() core {
	return db.core
}

func (db *DB) queryContext(ctx context.Context, q *Query, scan scanFunc) (any, error) {
	l, err := db.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer db.release(l)
	return queryLease(ctx, l, q, scan)
}

func (db *DB) execContext(ctx context.Context, q *Query) (sql.Result, error) {
	l, err := db.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer db.release(l)
	// 连接处于自动提交模式，单条语句执行完即提交
	return l.ExecContext(ctx, q.SQL, q.Args...)
}

func (db *DB) release(l *pool.Lease) {
	if err := l.Release(); err != nil {
		db.logger.Warn("release connection", slog.String("lease", l.ID()), slog.Any("err", err))
	}
}

func queryLease(ctx context.Context, l *pool.Lease, q *Query, scan scanFunc) (any, error) {
	rows, err := l.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()
	return scan(rows)
}

// QueryOneRow 返回第一行，没有数据的时候返回 ErrNoRows
func (db *DB) QueryOneRow(ctx context.Context, query string, args ...any) (Row, error) {
	return queryOneRow(ctx, db, query, args)
}

// QueryMultiRows 返回全部的行
func (db *DB) QueryMultiRows(ctx context.Context, query string, args ...any) ([]Row, error) {
	return queryMultiRows(ctx, db, query, args)
}

// Execute 执行单条语句并自动提交
func (db *DB) Execute(ctx context.Context, query string, args ...any) Result {
	return execRaw(ctx, db, query, args)
}

// BuildSQL 把参数转义之后替换到语句中，只用于日志和排查问题，不要用来执行
func (db *DB) BuildSQL(query string, args ...any) (string, error) {
	return db.core.buildSQL(query, args)
}
