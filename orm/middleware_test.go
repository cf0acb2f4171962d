package orm

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_Order(t *testing.T) {
	var trace []string
	mdl := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, qc *QueryContext) *QueryResult {
				trace = append(trace, name+" before")
				res := next(ctx, qc)
				trace = append(trace, name+" after")
				return res
			}
		}
	}
	db, mock := mockDB(t, DBWithMiddlewares(mdl("first"), mdl("second")))
	mock.ExpectExec("DELETE FROM t_user").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, db.Execute(context.Background(), "DELETE FROM t_user").Err())
	assert.Equal(t, []string{"first before", "second before", "second after", "first after"}, trace)
}

func TestMiddleware_QueryContext(t *testing.T) {
	var got []*QueryContext
	var queries []*Query
	capture := func(next Handler) Handler {
		return func(ctx context.Context, qc *QueryContext) *QueryResult {
			got = append(got, qc)
			q, err := qc.Builder.Build()
			require.NoError(t, err)
			queries = append(queries, q)
			return next(ctx, qc)
		}
	}
	db, m := userDB(t, DBWithMiddlewares(capture))
	ctx := context.Background()
	got, queries = nil, nil

	rec := NewRecord(m, map[string]any{"id": int64(1), "age": int64(1), "urls": nil})
	require.NoError(t, rec.Save(ctx, db).Err())
	_, err := Get(ctx, db, m, 1)
	require.NoError(t, err)
	require.NoError(t, rec.Update(ctx, db).Err())
	require.NoError(t, rec.Delete(ctx, db).Err())
	_, err = db.QueryMultiRows(ctx, "SELECT id FROM t_user")
	require.NoError(t, err)

	require.Len(t, got, 5)
	types := make([]string, 0, len(got))
	for _, qc := range got {
		types = append(types, qc.Type)
	}
	assert.Equal(t, []string{"INSERT", "SELECT", "UPDATE", "DELETE", "RAW"}, types)
	assert.Same(t, m, got[0].Model)
	assert.Nil(t, got[4].Model)
	assert.Equal(t, "DELETE FROM t_user WHERE id=?", queries[3].SQL)
	assert.Equal(t, []any{int64(1)}, queries[3].Args)
}

func TestMiddleware_ShortCircuit(t *testing.T) {
	denied := errors.New("denied")
	deny := func(next Handler) Handler {
		return func(ctx context.Context, qc *QueryContext) *QueryResult {
			if qc.Type == "DELETE" {
				return &QueryResult{Err: denied}
			}
			return next(ctx, qc)
		}
	}
	db, m := userDB(t, DBWithMiddlewares(deny))
	ctx := context.Background()

	rec := NewRecord(m, map[string]any{"id": int64(1), "age": int64(1), "urls": nil})
	require.NoError(t, rec.Save(ctx, db).Err())
	res := rec.Delete(ctx, db)
	assert.Equal(t, denied, res.Err())
	_, err := res.RowsAffected()
	assert.Equal(t, denied, err)

	cnt, err := CountOfRows(ctx, db, m, "id", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cnt)
}

// 中间件返回空的结果时，读取影响行数返回错误而不是 panic
func TestMiddleware_EmptyResult(t *testing.T) {
	swallow := func(next Handler) Handler {
		return func(ctx context.Context, qc *QueryContext) *QueryResult {
			return &QueryResult{}
		}
	}
	db, _ := mockDB(t, DBWithMiddlewares(swallow))

	res := db.Execute(context.Background(), "UPDATE t_user SET age = ?", 1)
	assert.NoError(t, res.Err())
	_, err := res.RowsAffected()
	assert.Equal(t, ErrNoResult, err)
	_, err = res.LastInsertId()
	assert.Equal(t, ErrNoResult, err)
}
