package querylog

import (
	"context"
	"log/slog"

	"github.com/streamDream/mysql-stream/orm"
)

type MiddlewareBuilder struct {
	logFunc func(query string, args []any)
}

func NewBuilder() *MiddlewareBuilder {
	return &MiddlewareBuilder{}
}

// LogFunc 默认使用 slog 输出
func (m *MiddlewareBuilder) LogFunc(fn func(query string, args []any)) *MiddlewareBuilder {
	m.logFunc = fn
	return m
}

func (m MiddlewareBuilder) Build() orm.Middleware {
	logFunc := m.logFunc
	if logFunc == nil {
		logFunc = func(query string, args []any) {
			slog.Default().Info("sql", slog.String("query", query), slog.Any("args", args))
		}
	}
	return func(next orm.Handler) orm.Handler {
		return func(ctx context.Context, qc *orm.QueryContext) *orm.QueryResult {
			q, err := qc.Builder.Build()
			if err != nil {
				// 构造语句失败的时候不再往下执行
				return &orm.QueryResult{
					Err: err,
				}
			}
			logFunc(q.SQL, q.Args)
			return next(ctx, qc)
		}
	}
}
