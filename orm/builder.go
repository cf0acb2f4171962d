package orm

import (
	"strings"

	"github.com/streamDream/mysql-stream/orm/model"
)

type builder struct {
	core
	sb    strings.Builder // sb is used to build the SQL query string.
	args  []any           // args holds the arguments for the query.
	model *model.Model    // model is the model associated with the builder.
}

// reset 中间件可能会多次调用 Build，每次都从头开始拼接
func (b *builder) reset() {
	b.sb.Reset()
	b.args = nil
}

// buildWhere 原样拼接调用方给出的条件，条件里面可以使用命名参数
func (b *builder) buildWhere(where string, args []any) error {
	if where == "" {
		return nil
	}
	clause, args, err := b.bind(where, args)
	if err != nil {
		return err
	}
	b.sb.WriteString(" WHERE ")
	b.sb.WriteString(clause)
	b.addArgs(args...)
	return nil
}

func (b *builder) addArgs(args ...any) {
	if len(args) == 0 {
		return
	}
	if b.args == nil {
		b.args = make([]any, 0, 8)
	}
	b.args = append(b.args, args...)
}

func (b *builder) query() *Query {
	return &Query{
		SQL:  b.sb.String(),
		Args: b.args,
	}
}
