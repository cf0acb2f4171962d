package valuer

import (
	"database/sql"
	"reflect"

	"github.com/streamDream/mysql-stream/orm/internal/errs"
	"github.com/streamDream/mysql-stream/orm/model"
)

// reflectValue 基于反射的 Value
type reflectValue struct {
	val  reflect.Value
	meta *model.Model
}

var _ Creator = NewReflectValue

// NewReflectValue 返回一个封装好的，基于反射实现的 Value
// 输入 val 必须是一个指向结构体实例的指针，而不能是任何其它类型
func NewReflectValue(val any, meta *model.Model) Value {
	return reflectValue{
		val:  reflect.ValueOf(val).Elem(),
		meta: meta,
	}
}

func (r reflectValue) Field(name string) (any, error) {
	fd, ok := r.meta.FieldMap[name]
	if !ok {
		return nil, errs.NewErrUnknownField(name)
	}
	if fd.Index == nil {
		return nil, errs.ErrNotStructModel
	}
	return r.val.FieldByIndex(fd.Index).Interface(), nil
}

func (r reflectValue) SetColumns(rows *sql.Rows) error {
	cs, vals, err := scanTargets(rows, r.meta, func(fd *model.Field) any {
		// 直接扫描到字段的地址上
		return r.val.FieldByIndex(fd.Index).Addr().Interface()
	})
	if err != nil {
		return err
	}
	if err = rows.Scan(vals...); err != nil {
		return err
	}
	for i, c := range cs {
		fd := r.meta.ColumnMap[c]
		if fd.Codec == nil {
			continue
		}
		if err = decodeInto(c, fd, r.val.FieldByIndex(fd.Index), *vals[i].(*any)); err != nil {
			return err
		}
	}
	return nil
}
