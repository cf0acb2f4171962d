package orm

import (
	"context"
)

// Querier 用于 SELECT 语句，把结果集映射成 T
type Querier[T any] interface {
	// Get retrieves a T object from the database.
	// It takes a context as input and returns a pointer to T and an error.
	Get(ctx context.Context) (*T, error)
	GetMulti(ctx context.Context) ([]*T, error)
}

// Executor 用于 INSERT, DELETE 和 UPDATE
type Executor interface {
	Exec(ctx context.Context) Result
}

type Query struct {
	SQL  string
	Args []any
}

type QueryBuilder interface {
	Build() (*Query, error)
}

// Row 查询结果中的一行，key 是列名
type Row map[string]any
