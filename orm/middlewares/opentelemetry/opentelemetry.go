package opentelemetry

import (
	"context"

	"github.com/streamDream/mysql-stream/orm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/streamDream/mysql-stream/orm/middlewares/opentelemetry"

type MiddlewareBuilder struct {
	Tracer trace.Tracer
}

func (m MiddlewareBuilder) Build() orm.Middleware {
	if m.Tracer == nil {
		m.Tracer = otel.GetTracerProvider().Tracer(instrumentationName)
	}
	return func(next orm.Handler) orm.Handler {
		return func(ctx context.Context, qc *orm.QueryContext) *orm.QueryResult {
			// span 名字为 SELECT-t_user，原生语句没有表名
			spanName := qc.Type
			if qc.Model != nil {
				spanName = spanName + "-" + qc.Model.TableName
			}
			ctx, span := m.Tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
			defer span.End()

			span.SetAttributes(
				attribute.String("db.system", "mysql"),
				attribute.String("db.operation", qc.Type),
				attribute.String("component", "orm"),
			)
			if qc.Model != nil {
				span.SetAttributes(attribute.String("db.sql.table", qc.Model.TableName))
			}
			q, err := qc.Builder.Build()
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return &orm.QueryResult{Err: err}
			}
			// 只记录带占位符的语句，不记录参数
			span.SetAttributes(attribute.String("db.statement", q.SQL))

			res := next(ctx, qc)
			if res.Err != nil {
				span.RecordError(res.Err)
				span.SetStatus(codes.Error, res.Err.Error())
			}
			return res
		}
	}
}
