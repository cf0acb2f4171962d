package orm

import (
	"context"
)

// Updater 使用 update 模板更新主键对应的行，所有非主键列都会被写入
type Updater struct {
	sess Session
	rec  *Record
	// q 缓存 Build 的结果，默认值生成函数每次 Exec 只调用一次
	q *Query
}

func NewUpdater(sess Session, rec *Record) *Updater {
	return &Updater{
		sess: sess,
		rec:  rec,
	}
}

func (u *Updater) build() (*Query, error) {
	m := u.rec.model
	if len(m.Columns) == 0 {
		return nil, ErrNoUpdatedColumns
	}
	// SET c1=?,...,cN=? WHERE pk=?
	args, err := u.rec.args(append(m.Columns[:len(m.Columns):len(m.Columns)], m.PrimaryKey))
	if err != nil {
		return nil, err
	}
	return &Query{
		SQL:  m.Update,
		Args: args,
	}, nil
}

// Build 多次调用返回同一个 Query，中间件看到的参数和执行的参数一致
func (u *Updater) Build() (*Query, error) {
	if u.q != nil {
		return u.q, nil
	}
	q, err := u.build()
	if err != nil {
		return nil, err
	}
	u.q = q
	return q, nil
}

func (u *Updater) Exec(ctx context.Context) Result {
	u.q = nil
	return exec(ctx, u.sess, &QueryContext{
		Type:    "UPDATE",
		Builder: u,
		Model:   u.rec.model,
	})
}
