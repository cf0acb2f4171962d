package orm

import (
	"context"
)

// Inserter 使用 insert 模板保存一条 Record
type Inserter struct {
	sess Session
	rec  *Record
	// q 缓存 Build 的结果，默认值生成函数每次 Exec 只调用一次
	q *Query
}

func NewInserter(sess Session, rec *Record) *Inserter {
	return &Inserter{
		sess: sess,
		rec:  rec,
	}
}

func (i *Inserter) build() (*Query, error) {
	m := i.rec.model
	args, err := i.rec.args(m.Fields)
	if err != nil {
		return nil, err
	}
	return &Query{
		SQL:  m.Insert,
		Args: args,
	}, nil
}

// Build 多次调用返回同一个 Query，中间件看到的参数和执行的参数一致
func (i *Inserter) Build() (*Query, error) {
	if i.q != nil {
		return i.q, nil
	}
	q, err := i.build()
	if err != nil {
		return nil, err
	}
	i.q = q
	return q, nil
}

func (i *Inserter) Exec(ctx context.Context) Result {
	i.q = nil
	return exec(ctx, i.sess, &QueryContext{
		Type:    "INSERT",
		Builder: i,
		Model:   i.rec.model,
	})
}
