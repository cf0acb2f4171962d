package orm

import (
	"context"
	"database/sql"
)

// RawQuerier 原生查询，结果写入 T 类型的结构体
type RawQuerier[T any] struct {
	core
	sess Session
	sql  string
	args []any
}

// RawQuery 创建一个 RawQuerier 实例
// 泛型参数 T 是目标类型。
// 例如，如果查询 User 的数据，那么 T 就是 User
func RawQuery[T any](sess Session, query string, args ...any) *RawQuerier[T] {
	return &RawQuerier[T]{
		core: sess.getCore(),
		sess: sess,
		sql:  query,
		args: args,
	}
}

func (r *RawQuerier[T]) Build() (*Query, error) {
	return rawQuery{c: r.core, sql: r.sql, args: r.args}.Build()
}

func (r *RawQuerier[T]) Exec(ctx context.Context) Result {
	return exec(ctx, r.sess, &QueryContext{
		Type:    "RAW",
		Builder: r,
	})
}

// Get 返回第一行，没有数据的时候返回 ErrNoRows
func (r *RawQuerier[T]) Get(ctx context.Context) (*T, error) {
	qc, err := r.queryContext()
	if err != nil {
		return nil, err
	}
	res, err := query(ctx, r.sess, qc, func(rows *sql.Rows) (any, error) {
		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return nil, err
			}
			return nil, ErrNoRows
		}
		return r.scan(rows, qc)
	})
	if err != nil {
		return nil, err
	}
	return res.(*T), nil
}

func (r *RawQuerier[T]) GetMulti(ctx context.Context) ([]*T, error) {
	qc, err := r.queryContext()
	if err != nil {
		return nil, err
	}
	res, err := query(ctx, r.sess, qc, func(rows *sql.Rows) (any, error) {
		ts := make([]*T, 0, 8)
		for rows.Next() {
			t, err := r.scan(rows, qc)
			if err != nil {
				return nil, err
			}
			ts = append(ts, t)
		}
		return ts, rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return res.([]*T), nil
}

// queryContext 获取 model 在中间件中使用
func (r *RawQuerier[T]) queryContext() (*QueryContext, error) {
	m, err := r.r.Get(new(T))
	if err != nil {
		return nil, err
	}
	return &QueryContext{
		Type:    "RAW",
		Builder: r,
		Model:   m,
	}, nil
}

func (r *RawQuerier[T]) scan(rows *sql.Rows, qc *QueryContext) (*T, error) {
	t := new(T)
	if err := r.valCreator(t, qc.Model).SetColumns(rows); err != nil {
		return nil, err
	}
	return t, nil
}
