package valuer

import (
	"database/sql"
	"reflect"

	"github.com/streamDream/mysql-stream/orm/internal/errs"
	"github.com/streamDream/mysql-stream/orm/model"
)

// Value 是对结构体实例的内部抽象
type Value interface {
	// Field 返回字段对应的值
	Field(name string) (any, error)
	// SetColumns 设置新值
	SetColumns(rows *sql.Rows) error
}

// Creator 本质上也可以看所是 factory 模式，极其简单的 factory 模式
type Creator func(val any, meta *model.Model) Value

// decodeInto 带 codec 的列先扫描成 any，解码之后再写入字段
func decodeInto(column string, fd *model.Field, dst reflect.Value, raw any) error {
	val, err := fd.Decode(raw)
	if err != nil {
		return err
	}
	if val == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	v := reflect.ValueOf(val)
	typ := dst.Type()
	switch {
	case v.Type().AssignableTo(typ):
		dst.Set(v)
	case v.Kind() == typ.Kind() && v.Type().ConvertibleTo(typ):
		// 例如 string -> 自定义的 string 类型
		dst.Set(v.Convert(typ))
	case typ.Kind() == reflect.Pointer && v.Type().AssignableTo(typ.Elem()):
		ptr := reflect.New(typ.Elem())
		ptr.Elem().Set(v)
		dst.Set(ptr)
	default:
		return errs.NewErrUnassignable(column, val)
	}
	return nil
}

// scanTargets 准备 rows.Scan 的参数，没有 codec 的列直接写进字段
func scanTargets(rows *sql.Rows, meta *model.Model, addr func(fd *model.Field) any) ([]string, []any, error) {
	cs, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	if len(cs) > len(meta.ColumnMap) {
		return nil, nil, errs.ErrTooManyReturnedColumns
	}
	vals := make([]any, len(cs))
	for i, c := range cs {
		fd, ok := meta.ColumnMap[c]
		if !ok {
			return nil, nil, errs.NewErrUnknownColumn(c)
		}
		if fd.Index == nil {
			return nil, nil, errs.ErrNotStructModel
		}
		if fd.Codec != nil {
			vals[i] = new(any)
			continue
		}
		vals[i] = addr(fd)
	}
	return cs, vals, nil
}
