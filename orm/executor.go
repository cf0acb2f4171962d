package orm

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

var (
	_ Session = &DB{}
	_ Session = &Conn{}
	_ Session = &Tx{}
)

// Session 代表一个抽象的概念，即会话
// DB 每条语句借一个连接，Conn 和 Tx 在同一个连接上执行
type Session interface {
	getCore() core
	queryContext(ctx context.Context, q *Query, scan scanFunc) (any, error)
	execContext(ctx context.Context, q *Query) (sql.Result, error)
}

// scanFunc 在连接归还之前消费结果集
type scanFunc func(rows *sql.Rows) (any, error)

// rawQuery 原生语句，命名参数在 Build 的时候改写成位置参数
type rawQuery struct {
	c    core
	sql  string
	args []any
}

func (r rawQuery) Build() (*Query, error) {
	if r.sql == "" {
		return nil, ErrEmptySQL
	}
	query, args, err := r.c.bind(r.sql, r.args)
	if err != nil {
		return nil, err
	}
	return &Query{
		SQL:  query,
		Args: args,
	}, nil
}

func execHandler(sess Session) Handler {
	return func(ctx context.Context, qc *QueryContext) *QueryResult {
		q, err := qc.Builder.Build()
		if err != nil {
			return &QueryResult{Err: err}
		}
		res, err := sess.execContext(ctx, q)
		return &QueryResult{Result: res, Err: err}
	}
}

func queryHandler(sess Session, scan scanFunc) Handler {
	return func(ctx context.Context, qc *QueryContext) *QueryResult {
		q, err := qc.Builder.Build()
		if err != nil {
			return &QueryResult{Err: err}
		}
		res, err := sess.queryContext(ctx, q, scan)
		return &QueryResult{Result: res, Err: err}
	}
}

func exec(ctx context.Context, sess Session, qc *QueryContext) Result {
	res := sess.getCore().chain(execHandler(sess))(ctx, qc)
	sqlRes, _ := res.Result.(sql.Result)
	return Result{
		err: res.Err,
		res: sqlRes,
	}
}

func query(ctx context.Context, sess Session, qc *QueryContext, scan scanFunc) (any, error) {
	res := sess.getCore().chain(queryHandler(sess, scan))(ctx, qc)
	return res.Result, res.Err
}

func execRaw(ctx context.Context, sess Session, stmt string, args []any) Result {
	return exec(ctx, sess, &QueryContext{
		Type:    "RAW",
		Builder: rawQuery{c: sess.getCore(), sql: stmt, args: args},
	})
}

func queryOneRow(ctx context.Context, sess Session, stmt string, args []any) (Row, error) {
	res, err := query(ctx, sess, &QueryContext{
		Type:    "RAW",
		Builder: rawQuery{c: sess.getCore(), sql: stmt, args: args},
	}, scanOneRow)
	if err != nil {
		return nil, err
	}
	row, _ := res.(Row)
	return row, nil
}

func queryMultiRows(ctx context.Context, sess Session, stmt string, args []any) ([]Row, error) {
	res, err := query(ctx, sess, &QueryContext{
		Type:    "RAW",
		Builder: rawQuery{c: sess.getCore(), sql: stmt, args: args},
	}, scanAllRows)
	if err != nil {
		return nil, err
	}
	rows, _ := res.([]Row)
	return rows, nil
}

func scanOneRow(rows *sql.Rows) (any, error) {
	res, err := scanRows(rows, 1)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, ErrNoRows
	}
	return res[0], nil
}

func scanAllRows(rows *sql.Rows) (any, error) {
	return scanRows(rows, -1)
}

// scanRows 读取最多 limit 行，limit 小于 0 时读取全部
func scanRows(rows *sql.Rows, limit int) ([]Row, error) {
	cts, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	res := make([]Row, 0, 8)
	for limit < 0 || len(res) < limit {
		if !rows.Next() {
			break
		}
		vals := make([]any, len(cts))
		ptrs := make([]any, len(cts))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err = rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cts))
		for i, ct := range cts {
			row[ct.Name()] = normalize(ct, vals[i])
		}
		res = append(res, row)
	}
	return res, rows.Err()
}

// normalize 文本协议下 MySQL 所有的值都是 []byte，按照列类型还原成数字或者字符串
// 二进制列保持 []byte
func normalize(ct *sql.ColumnType, val any) any {
	b, ok := val.([]byte)
	if !ok {
		return val
	}
	typ := ct.DatabaseTypeName()
	unsigned := strings.HasPrefix(typ, "UNSIGNED ")
	switch strings.TrimPrefix(typ, "UNSIGNED ") {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT", "YEAR":
		if unsigned {
			if v, err := strconv.ParseUint(string(b), 10, 64); err == nil {
				return v
			}
		} else if v, err := strconv.ParseInt(string(b), 10, 64); err == nil {
			return v
		}
	case "FLOAT", "DOUBLE", "REAL":
		if v, err := strconv.ParseFloat(string(b), 64); err == nil {
			return v
		}
	case "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BINARY", "VARBINARY", "BIT", "GEOMETRY":
		return b
	}
	return string(b)
}
