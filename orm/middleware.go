package orm

import (
	"context"

	"github.com/streamDream/mysql-stream/orm/model"
)

// QueryContext 中间件的上下文，冗余了 Builder model 等，是因为还没有执行 sql 前，有的中间件需要使用这些信息
type QueryContext struct {
	// Type 声明查询类型。即 SELECT, UPDATE, DELETE, INSERT 和 RAW
	Type string

	// builder 使用的时候，大多数情况下你需要转换到具体的类型
	// 才能篡改查询
	Builder QueryBuilder
	// 原生语句没有 Model，这时候是 nil
	Model *model.Model
}

type QueryResult struct {
	// Result 在不同的查询里面，类型是不同的
	// SELECT 里面是扫描结果集得到的值
	// 其它情况下，它会是 sql.Result 类型
	Result any
	Err    error
}

type Middleware func(next Handler) Handler

type Handler func(ctx context.Context, qc *QueryContext) *QueryResult
