package valuer

import (
	"database/sql"
	"reflect"
	"unsafe"

	"github.com/streamDream/mysql-stream/orm/internal/errs"
	"github.com/streamDream/mysql-stream/orm/model"
)

type unsafeValue struct {
	// 使用 unsafe Pointer 而不是 uintptr 是因为 gc 后 uintptr 会发生变化
	addr unsafe.Pointer
	meta *model.Model
}

var _ Creator = NewUnsafeValue

// NewUnsafeValue 基于字段偏移量读写结构体，只支持非嵌入的字段
func NewUnsafeValue(val any, meta *model.Model) Value {
	return unsafeValue{
		addr: reflect.ValueOf(val).UnsafePointer(),
		meta: meta,
	}
}

func (u unsafeValue) field(fd *model.Field) reflect.Value {
	// 字段的起始地址 = 结构体起始地址 + 偏移量
	ptr := unsafe.Add(u.addr, fd.Offset)
	return reflect.NewAt(fd.Type, ptr)
}

func (u unsafeValue) Field(name string) (any, error) {
	fd, ok := u.meta.FieldMap[name]
	if !ok {
		return nil, errs.NewErrUnknownField(name)
	}
	if fd.Index == nil {
		return nil, errs.ErrNotStructModel
	}
	return u.field(fd).Elem().Interface(), nil
}

func (u unsafeValue) SetColumns(rows *sql.Rows) error {
	cs, vals, err := scanTargets(rows, u.meta, func(fd *model.Field) any {
		return u.field(fd).Interface()
	})
	if err != nil {
		return err
	}
	if err = rows.Scan(vals...); err != nil {
		return err
	}
	for i, c := range cs {
		fd := u.meta.ColumnMap[c]
		if fd.Codec == nil {
			continue
		}
		if err = decodeInto(c, fd, u.field(fd).Elem(), *vals[i].(*any)); err != nil {
			return err
		}
	}
	return nil
}
