package model

import (
	"reflect"

	"github.com/streamDream/mysql-stream/orm/codec"
)

// Option is a function type that modifies a Model before its statements are rendered.
type Option func(model *Model) error

// Model 编译后的表结构，创建之后不再修改
type Model struct {
	// Name 模型的类型名，例如 UserProfile
	Name string
	// TableName 结构体对应的表名
	TableName string

	PrimaryKey *Field
	// Columns 不包含主键的列，按照声明顺序
	Columns []*Field
	// Fields 主键在前，其余按照声明顺序
	Fields []*Field

	FieldMap  map[string]*Field // 属性名 attr name 为 key
	ColumnMap map[string]*Field // DB column name 为 key

	// 预先生成的语句，调用时不再重新拼接
	SelectByKey string
	SelectAll   string
	Insert      string
	Update      string
	Delete      string
}

// Field describes one column: its name, SQL type, primary-key flag,
// default and codec.
type Field struct {
	ColName    string // 数据库中的列名
	Attr       string // 对应的属性名
	SQLType    string
	IsPrimary  bool
	Codec      codec.Codec
	defaultVal any
	defaultFn  func() any
	hasDefault bool

	// 通过结构体声明时，字段在结构体中的位置
	Index  []int
	Offset uintptr
	Type   reflect.Type
}

// DefaultValue returns the field's default, invoking the generator when the
// default was declared with DefaultFunc. ok is false when no default exists.
func (f *Field) DefaultValue() (val any, ok bool) {
	if f.defaultFn != nil {
		return f.defaultFn(), true
	}
	return f.defaultVal, f.hasDefault
}

// Encode runs val through the field's codec. nil is never encoded.
func (f *Field) Encode(val any) (any, error) {
	if f.Codec == nil || val == nil {
		return val, nil
	}
	return f.Codec.Encode(val)
}

// Decode runs a driver value through the field's codec. nil is never decoded.
func (f *Field) Decode(val any) (any, error) {
	if f.Codec == nil || val == nil {
		return val, nil
	}
	return f.Codec.Decode(val)
}

// FieldOption configures a Field descriptor.
type FieldOption func(f *Field)

// Attribute pairs an attribute name with its field descriptor.
type Attribute struct {
	Name  string
	Field *Field
}

// Attr is shorthand for Attribute{Name: name, Field: f}.
func Attr(name string, f *Field) Attribute {
	return Attribute{Name: name, Field: f}
}

func newField(sqlType string, opts []FieldOption) *Field {
	f := &Field{SQLType: sqlType}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// String declares a char/varchar column.
func String(opts ...FieldOption) *Field {
	return newField("varchar(32)", opts)
}

// Integer declares an int/tinyint column.
func Integer(opts ...FieldOption) *Field {
	return newField("int(32)", opts)
}

// Text declares a text column holding structured values encoded as JSON text.
func Text(opts ...FieldOption) *Field {
	return newField("text", append([]FieldOption{WithCodec(codec.Text)}, opts...))
}

// Datetime declares a timestamp/datetime column.
func Datetime(opts ...FieldOption) *Field {
	return newField("datetime", append([]FieldOption{
		Default("0000-00-00 00:00:00"),
		WithCodec(codec.Datetime),
	}, opts...))
}

// Column overrides the column name, which otherwise equals the attribute name.
func Column(name string) FieldOption {
	return func(f *Field) {
		f.ColName = name
	}
}

func Type(sqlType string) FieldOption {
	return func(f *Field) {
		f.SQLType = sqlType
	}
}

func PrimaryKey() FieldOption {
	return func(f *Field) {
		f.IsPrimary = true
	}
}

// Default sets a literal default used by Save when the attribute is absent.
func Default(val any) FieldOption {
	return func(f *Field) {
		f.defaultVal = val
		f.defaultFn = nil
		f.hasDefault = true
	}
}

// DefaultFunc sets a generator evaluated each time a default is needed.
func DefaultFunc(fn func() any) FieldOption {
	return func(f *Field) {
		f.defaultFn = fn
		f.hasDefault = fn != nil
	}
}

// WithCodec attaches c; nil removes any codec.
func WithCodec(c codec.Codec) FieldOption {
	return func(f *Field) {
		f.Codec = c
	}
}

// 我们支持的全部标签上的 key 都放在这里
// 方便用户查找，和我们后期维护
const (
	tagORMName    = "orm"
	tagKeyColumn  = "column"
	tagKeyType    = "type"
	tagKeyDefault = "default"
	tagKeyCodec   = "codec"
	tagKeyPK      = "primary_key"
)

// TableName 用户实现这个接口来返回自定义的表名
type TableName interface {
	TableName() string
}
