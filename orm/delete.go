package orm

import (
	"context"

	"github.com/streamDream/mysql-stream/orm/model"
)

// Deleter 使用 delete 模板删除主键对应的行
type Deleter struct {
	sess Session
	rec  *Record
	// q 缓存 Build 的结果，默认值生成函数每次 Exec 只调用一次
	q *Query
}

func NewDeleter(sess Session, rec *Record) *Deleter {
	return &Deleter{
		sess: sess,
		rec:  rec,
	}
}

func (d *Deleter) build() (*Query, error) {
	m := d.rec.model
	args, err := d.rec.args([]*model.Field{m.PrimaryKey})
	if err != nil {
		return nil, err
	}
	return &Query{
		SQL:  m.Delete,
		Args: args,
	}, nil
}

// Build 多次调用返回同一个 Query，中间件看到的参数和执行的参数一致
func (d *Deleter) Build() (*Query, error) {
	if d.q != nil {
		return d.q, nil
	}
	q, err := d.build()
	if err != nil {
		return nil, err
	}
	d.q = q
	return q, nil
}

func (d *Deleter) Exec(ctx context.Context) Result {
	d.q = nil
	return exec(ctx, d.sess, &QueryContext{
		Type:    "DELETE",
		Builder: d,
		Model:   d.rec.model,
	})
}
