package orm

import (
	"context"
	"fmt"
	"strings"

	"github.com/streamDream/mysql-stream/orm/internal/errs"
	"github.com/streamDream/mysql-stream/orm/model"
)

// Record 一条记录，属性名到值的映射加上编译好的 Model
// 没有设置的属性和值为 nil 的属性是不同的：前者保存时使用默认值
type Record struct {
	model  *model.Model
	values map[string]any
}

// NewRecord 复制 values，之后修改 values 不会影响 Record
func NewRecord(m *model.Model, values map[string]any) *Record {
	vals := make(map[string]any, len(m.Fields))
	for k, v := range values {
		vals[k] = v
	}
	return &Record{
		model:  m,
		values: vals,
	}
}

// RecordOf 读取结构体的全部字段生成 Record，val 必须是结构体指针
func RecordOf(sess Session, val any) (*Record, error) {
	c := sess.getCore()
	m, err := c.r.Get(val)
	if err != nil {
		return nil, err
	}
	v := c.valCreator(val, m)
	values := make(map[string]any, len(m.Fields))
	for _, fd := range m.Fields {
		values[fd.Attr], err = v.Field(fd.Attr)
		if err != nil {
			return nil, err
		}
	}
	return &Record{
		model:  m,
		values: values,
	}, nil
}

func (r *Record) Model() *model.Model {
	return r.model
}

// Get ok 为 false 表示属性没有设置
func (r *Record) Get(attr string) (val any, ok bool) {
	val, ok = r.values[attr]
	return
}

func (r *Record) Set(attr string, val any) {
	r.values[attr] = val
}

// Unset 让属性回到没有设置的状态
func (r *Record) Unset(attr string) {
	delete(r.values, attr)
}

// Values 返回全部已经设置的属性的副本
func (r *Record) Values() map[string]any {
	res := make(map[string]any, len(r.values))
	for k, v := range r.values {
		res[k] = v
	}
	return res
}

// String 按照 Model 中列的顺序输出 attr:value，没有设置的属性不输出
func (r *Record) String() string {
	parts := make([]string, 0, len(r.model.Fields))
	for _, fd := range r.model.Fields {
		v, ok := r.values[fd.Attr]
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s:%v", fd.Attr, v))
	}
	return strings.Join(parts, ",")
}

// Save 插入一行，参数顺序是主键在前，其余列按声明顺序
func (r *Record) Save(ctx context.Context, sess Session) Result {
	return NewInserter(sess, r).Exec(ctx)
}

// Update 更新主键对应的行，参数顺序是非主键列在前，主键在最后
func (r *Record) Update(ctx context.Context, sess Session) Result {
	return NewUpdater(sess, r).Exec(ctx)
}

// Delete 删除主键对应的行
func (r *Record) Delete(ctx context.Context, sess Session) Result {
	return NewDeleter(sess, r).Exec(ctx)
}

// args 按照 fields 的顺序取值，没有设置的使用默认值，然后编码
func (r *Record) args(fields []*model.Field) ([]any, error) {
	args := make([]any, 0, len(fields))
	for _, fd := range fields {
		val, ok := r.values[fd.Attr]
		if !ok {
			val, ok = fd.DefaultValue()
			if !ok {
				return nil, errs.NewErrMissingValue(fd.ColName)
			}
		}
		val, err := fd.Encode(val)
		if err != nil {
			return nil, err
		}
		args = append(args, val)
	}
	return args, nil
}

// newRecordFromRow 按列解码，结果集中没有的列对应的属性保持未设置
func newRecordFromRow(m *model.Model, row Row) (*Record, error) {
	if row == nil {
		return nil, nil
	}
	values := make(map[string]any, len(m.Fields))
	for _, fd := range m.Fields {
		raw, ok := row[fd.ColName]
		if !ok {
			continue
		}
		val, err := fd.Decode(raw)
		if err != nil {
			return nil, err
		}
		values[fd.Attr] = val
	}
	return &Record{
		model:  m,
		values: values,
	}, nil
}
