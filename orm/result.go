package orm

import (
	"database/sql"

	"github.com/streamDream/mysql-stream/orm/internal/errs"
)

// Result 包装 sql.Result，语句执行失败时 err 不为 nil
type Result struct {
	err error
	res sql.Result
}

// LastInsertId 重新 database sql 的 Result 方法 做一层拦截
func (r Result) LastInsertId() (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	// 中间件可能直接返回空的 QueryResult
	if r.res == nil {
		return 0, errs.ErrNoResult
	}
	return r.res.LastInsertId()
}

func (r Result) RowsAffected() (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	if r.res == nil {
		return 0, errs.ErrNoResult
	}
	return r.res.RowsAffected()
}

func (r Result) Err() error {
	return r.err
}
