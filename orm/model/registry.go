package model

import (
	"reflect"
	"strings"
	"unicode"

	"github.com/gotomicro/ekit/slice"
	"github.com/gotomicro/ekit/syncx"
	"github.com/streamDream/mysql-stream/orm/codec"
	"github.com/streamDream/mysql-stream/orm/internal/errs"
)

type Registry interface {
	// Get 查找结构体声明的模型，第一次引用时编译
	Get(val any) (*Model, error)
	// Register 使用选项编译结构体声明的模型，已经编译过的直接返回
	Register(val any, opts ...Option) (*Model, error)
	// Define 通过 (属性名, 字段) 列表声明模型
	Define(name string, attrs []Attribute, opts ...Option) (*Model, error)
}

// 这种包变量对测试不友好，缺乏隔离，所以由使用方持有 Registry
type registry struct {
	// key 是类型的全名，避免不同包下同名类型冲突
	models syncx.Map[string, *Model]
}

func NewRegistry() Registry {
	return &registry{}
}

// Get fetches the model associated with a given value.
// If the model is not found in the registry, it is compiled and stored.
func (r *registry) Get(val any) (*Model, error) {
	key, err := typeKey(val)
	if err != nil {
		return nil, err
	}
	if m, ok := r.models.Load(key); ok {
		return m, nil
	}
	return r.Register(val)
}

// Register compiles the struct declaration of val with the given options.
// The first compiled model for a type wins; later calls return it unchanged.
func (r *registry) Register(val any, opts ...Option) (*Model, error) {
	key, err := typeKey(val)
	if err != nil {
		return nil, err
	}
	if m, ok := r.models.Load(key); ok {
		return m, nil
	}
	typ := reflect.TypeOf(val).Elem()
	attrs, err := r.parseFields(typ)
	if err != nil {
		return nil, err
	}
	var tableName string
	if tn, ok := val.(TableName); ok {
		tableName = tn.TableName()
	}
	if tableName != "" {
		opts = append([]Option{WithTableName(tableName)}, opts...)
	}
	m, err := Compile(typ.Name(), attrs, opts...)
	if err != nil {
		return nil, err
	}
	m, _ = r.models.LoadOrStore(key, m)
	return m, nil
}

func (r *registry) Define(name string, attrs []Attribute, opts ...Option) (*Model, error) {
	if m, ok := r.models.Load(name); ok {
		return m, nil
	}
	m, err := Compile(name, attrs, opts...)
	if err != nil {
		return nil, err
	}
	m, _ = r.models.LoadOrStore(name, m)
	return m, nil
}

func typeKey(val any) (string, error) {
	typ := reflect.TypeOf(val)
	// 只支持一级指针，例如 *User，不支持 **User 和 User
	if typ == nil || typ.Kind() != reflect.Ptr || typ.Elem().Kind() != reflect.Struct {
		return "", errs.ErrPointerOnly
	}
	typ = typ.Elem()
	return typ.PkgPath() + "." + typ.Name(), nil
}

// parseFields turns exported struct fields into attributes.
// orm:"column=id,type=int(11),primary_key,codec=json,default=abc"
func (r *registry) parseFields(typ reflect.Type) ([]Attribute, error) {
	numField := typ.NumField()
	attrs := make([]Attribute, 0, numField)
	for i := 0; i < numField; i++ {
		fdStruct := typ.Field(i)
		if !fdStruct.IsExported() {
			continue
		}
		tags, err := r.parseTag(fdStruct.Tag)
		if err != nil {
			return nil, err
		}
		if tags[tagORMName] == "-" {
			continue
		}

		colName := tags[tagKeyColumn]
		if colName == "" {
			// ItemId -> item_id
			colName = underscoreName(fdStruct.Name)
		}
		f := &Field{
			ColName: colName,
			SQLType: tags[tagKeyType],
			Index:   fdStruct.Index,
			Offset:  fdStruct.Offset,
			Type:    fdStruct.Type,
		}
		if _, ok := tags[tagKeyPK]; ok {
			f.IsPrimary = true
		}
		if def, ok := tags[tagKeyDefault]; ok {
			Default(def)(f)
		}
		if name, ok := tags[tagKeyCodec]; ok {
			c, ok := codec.Lookup(name)
			if !ok {
				return nil, errs.NewErrUnknownCodec(name)
			}
			if c == codec.Text {
				// 结构体字段的类型是确定的，直接解码成字段类型
				c = codec.JSONOf(fdStruct.Type)
			}
			f.Codec = c
		}
		attrs = append(attrs, Attr(fdStruct.Name, f))
	}
	return attrs, nil
}

// parseTag parses the given struct tag and returns a map of key-value pairs.
// A bare key such as primary_key is stored with an empty value.
func (r *registry) parseTag(tag reflect.StructTag) (map[string]string, error) {
	ormTag, ok := tag.Lookup(tagORMName)
	if !ok || ormTag == "" {
		// Return an empty map so that the caller doesn't need to check for nil
		return map[string]string{}, nil
	}
	if ormTag == "-" {
		return map[string]string{tagORMName: "-"}, nil
	}

	pairs := strings.Split(ormTag, ",")
	res := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == tagKeyPK || pair == "pk" {
			res[tagKeyPK] = ""
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			return nil, errs.NewErrInvalidTagContent(pair)
		}
		res[kv[0]] = kv[1]
	}
	return res, nil
}

// Compile validates attrs and produces the immutable Model for name.
// Descriptors are copied, so one descriptor may be shared between models.
func Compile(name string, attrs []Attribute, opts ...Option) (*Model, error) {
	m := &Model{
		Name:      name,
		TableName: underscoreName(name),
		FieldMap:  make(map[string]*Field, len(attrs)),
		ColumnMap: make(map[string]*Field, len(attrs)),
		Columns:   make([]*Field, 0, len(attrs)),
	}

	for _, a := range attrs {
		if a.Field == nil {
			return nil, errs.NewErrUnknownField(a.Name)
		}
		if _, ok := m.FieldMap[a.Name]; ok {
			return nil, errs.NewErrDuplicateColumn(name, a.Name)
		}
		fd := *a.Field
		fd.Attr = a.Name
		if fd.ColName == "" {
			fd.ColName = a.Name
		}
		if fd.IsPrimary {
			if m.PrimaryKey != nil {
				return nil, errs.NewErrMultiplePrimaryKeys(name)
			}
			m.PrimaryKey = &fd
		} else {
			m.Columns = append(m.Columns, &fd)
		}
		m.FieldMap[a.Name] = &fd
	}
	if m.PrimaryKey == nil {
		return nil, errs.NewErrPrimaryKeyNotFound(name)
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}

	m.Fields = append([]*Field{m.PrimaryKey}, m.Columns...)
	for _, fd := range m.Fields {
		if _, ok := m.ColumnMap[fd.ColName]; ok {
			return nil, errs.NewErrDuplicateColumn(name, fd.ColName)
		}
		m.ColumnMap[fd.ColName] = fd
	}
	m.buildStatements()
	return m, nil
}

// buildStatements 列的顺序必须和绑定参数的顺序一致：主键在前，其余按声明顺序
func (m *Model) buildStatements() {
	pk := m.PrimaryKey.ColName
	colNames := slice.Map(m.Columns, func(idx int, src *Field) string {
		return src.ColName
	})
	allColumns := strings.Join(append([]string{pk}, colNames...), ",")
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(m.Fields)), ",")
	assigns := slice.Map(colNames, func(idx int, src string) string {
		return src + "=?"
	})

	m.SelectAll = "SELECT " + allColumns + " FROM " + m.TableName
	m.SelectByKey = m.SelectAll + " WHERE " + pk + "=?"
	m.Insert = "INSERT INTO " + m.TableName + " (" + allColumns + ") VALUES (" + placeholders + ")"
	m.Update = "UPDATE " + m.TableName + " SET " + strings.Join(assigns, ",") + " WHERE " + pk + "=?"
	m.Delete = "DELETE FROM " + m.TableName + " WHERE " + pk + "=?"
}

// underscoreName converts a given name to underscore case.
// UserName -> user_name
func underscoreName(name string) string {
	var buf []rune
	for i, v := range name {
		if unicode.IsUpper(v) {
			if i != 0 {
				buf = append(buf, '_')
			}
			buf = append(buf, unicode.ToLower(v))
		} else {
			buf = append(buf, v)
		}
	}
	return string(buf)
}

// WithTableName sets the table name; an empty name keeps the derived one.
func WithTableName(tableName string) Option {
	return func(model *Model) error {
		if tableName != "" {
			model.TableName = tableName
		}
		return nil
	}
}

// WithColumnName sets the column name for the attribute field.
func WithColumnName(field, columnName string) Option {
	return func(model *Model) error {
		fd, ok := model.FieldMap[field]
		if !ok {
			return errs.NewErrUnknownField(field)
		}
		fd.ColName = columnName
		return nil
	}
}
