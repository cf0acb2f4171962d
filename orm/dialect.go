package orm

import (
	"database/sql/driver"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/streamDream/mysql-stream/orm/internal/errs"
)

var (
	MySQL   Dialect = &mysqlDialect{}
	SQLite3 Dialect = &sqlite3Dialect{}
)

// Dialect 决定 BuildSQL 怎么把参数渲染成字面量
type Dialect interface {
	// quoteString 把字符串转义之后用单引号包起来
	quoteString(sb *strings.Builder, s string)
}

// literalLayout 微秒为 0 的时候省略小数部分
const literalLayout = "2006-01-02 15:04:05.999999"

type standardSQL struct {
}

// quoteString 标准 SQL 只需要把单引号写两遍
func (s *standardSQL) quoteString(sb *strings.Builder, str string) {
	sb.WriteByte('\'')
	sb.WriteString(strings.ReplaceAll(str, "'", "''"))
	sb.WriteByte('\'')
}

type mysqlDialect struct {
	standardSQL
}

// quoteString MySQL 默认开启反斜杠转义
func (m *mysqlDialect) quoteString(sb *strings.Builder, s string) {
	sb.Grow(len(s) + 2)
	sb.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case 0:
			sb.WriteString(`\0`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\x1a':
			sb.WriteString(`\Z`)
		case '\'', '"', '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('\'')
}

type sqlite3Dialect struct {
	standardSQL
}

// writeLiteral 渲染单个参数
func writeLiteral(d Dialect, sb *strings.Builder, val any) error {
	if v, ok := val.(driver.Valuer); ok {
		rv := reflect.ValueOf(val)
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			sb.WriteString("NULL")
			return nil
		}
		dv, err := v.Value()
		if err != nil {
			return err
		}
		return writeLiteral(d, sb, dv)
	}

	switch v := val.(type) {
	case nil:
		sb.WriteString("NULL")
	case bool:
		if v {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	case string:
		d.quoteString(sb, v)
	case []byte:
		d.quoteString(sb, string(v))
	case time.Time:
		d.quoteString(sb, v.Format(literalLayout))
	case float32:
		sb.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	case float64:
		sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	default:
		return writeReflectLiteral(d, sb, val)
	}
	return nil
}

func writeReflectLiteral(d Dialect, sb *strings.Builder, val any) error {
	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		sb.WriteString(strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		sb.WriteString(strconv.FormatUint(rv.Uint(), 10))
	case reflect.String:
		d.quoteString(sb, rv.String())
	case reflect.Bool:
		return writeLiteral(d, sb, rv.Bool())
	case reflect.Float32, reflect.Float64:
		return writeLiteral(d, sb, rv.Float())
	case reflect.Pointer:
		if rv.IsNil() {
			sb.WriteString("NULL")
			return nil
		}
		return writeLiteral(d, sb, rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		// IN 查询使用的 (1,2,3)
		sb.WriteByte('(')
		for i := 0; i < rv.Len(); i++ {
			if i > 0 {
				sb.WriteByte(',')
			}
			if err := writeLiteral(d, sb, rv.Index(i).Interface()); err != nil {
				return err
			}
		}
		sb.WriteByte(')')
	default:
		return errs.NewErrUnsupportedArgType(val)
	}
	return nil
}

// buildSQL 先处理命名参数，再把 ? 依次替换成字面量
func (c core) buildSQL(query string, args []any) (string, error) {
	if query == "" {
		return "", ErrEmptySQL
	}
	query, args, err := c.bind(query, args)
	if err != nil {
		return "", err
	}
	toks, err := tokenize(query)
	if err != nil {
		return "", err
	}
	cnt := 0
	for _, t := range toks {
		if t.kind == tokenPositional {
			cnt++
		}
	}
	if cnt != len(args) {
		return "", errs.NewErrArgumentCount(cnt, len(args))
	}

	var sb strings.Builder
	sb.Grow(len(query) + 8*len(args))
	last, idx := 0, 0
	for _, t := range toks {
		if t.kind != tokenPositional {
			continue
		}
		sb.WriteString(query[last:t.start])
		if err = writeLiteral(c.dialect, &sb, args[idx]); err != nil {
			return "", err
		}
		idx++
		last = t.end
	}
	sb.WriteString(query[last:])
	return sb.String(), nil
}
