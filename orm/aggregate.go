package orm

import (
	"context"

	"github.com/streamDream/mysql-stream/orm/model"
)

// Counter 生成 SELECT COUNT(col) AS total FROM table [WHERE ...]
type Counter struct {
	builder
	sess Session

	column    string
	where     string
	whereArgs []any
}

func NewCounter(sess Session, m *model.Model, column string) *Counter {
	return &Counter{
		builder: builder{
			core:  sess.getCore(),
			model: m,
		},
		sess:   sess,
		column: column,
	}
}

func (c *Counter) Where(clause string, args ...any) *Counter {
	c.where = clause
	c.whereArgs = args
	return c
}

func (c *Counter) Build() (*Query, error) {
	c.reset()
	c.sb.WriteString("SELECT COUNT(")
	c.sb.WriteString(c.column)
	c.sb.WriteString(") AS total FROM ")
	c.sb.WriteString(c.model.TableName)
	if err := c.buildWhere(c.where, c.whereArgs); err != nil {
		return nil, err
	}
	return c.query(), nil
}

// Count 没有返回行的时候是 0
func (c *Counter) Count(ctx context.Context) (int64, error) {
	res, err := query(ctx, c.sess, &QueryContext{
		Type:    "SELECT",
		Builder: c,
		Model:   c.model,
	}, scanCount)
	if err != nil {
		return 0, err
	}
	total, _ := res.(int64)
	return total, nil
}

// CountOfRows 统计符合条件的行数，where 为空的时候统计全表
func CountOfRows(ctx context.Context, sess Session, m *model.Model, column string, where string, args ...any) (int64, error) {
	return NewCounter(sess, m, column).Where(where, args...).Count(ctx)
}
