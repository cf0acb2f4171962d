package orm

import (
	"database/sql/driver"
	"reflect"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/streamDream/mysql-stream/orm/internal/errs"
)

type tokenKind uint8

const (
	tokenPositional tokenKind = iota // ?
	tokenNamed                       // :name
)

// token 语句中的一个占位符，[start, end) 是它在语句中的位置
type token struct {
	kind  tokenKind
	name  string
	start int
	end   int
}

// bind 只有一个参数并且是结构体或者 key 为 string 的 map 时，按照 :name 绑定
// 其余情况原样作为位置参数
func (c core) bind(query string, args []any) (string, []any, error) {
	if len(args) != 1 || !looksNamed(args[0]) {
		return query, args, nil
	}
	toks, err := c.tokens(query)
	if err != nil {
		return "", nil, err
	}
	return bindNamed(query, toks, args[0])
}

// tokens 解析结果按照语句缓存
func (c core) tokens(query string) ([]token, error) {
	if c.named != nil {
		if val, ok := c.named.Get(query); ok {
			return val.([]token), nil
		}
	}
	toks, err := tokenize(query)
	if err != nil {
		return nil, err
	}
	if c.named != nil {
		c.named.Add(query, toks)
	}
	return toks, nil
}

func looksNamed(val any) bool {
	switch val.(type) {
	case nil, driver.Valuer, time.Time, *time.Time:
		return false
	}
	rv := reflect.ValueOf(val)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Map {
		return rv.Type().Key().Kind() == reflect.String
	}
	return rv.Kind() == reflect.Struct
}

func bindNamed(query string, toks []token, params any) (string, []any, error) {
	lookup, err := namedParams(params)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	sb.Grow(len(query))
	args := make([]any, 0, len(toks))
	last := 0
	for _, t := range toks {
		if t.kind != tokenNamed {
			continue
		}
		sb.WriteString(query[last:t.start])
		val, ok := lookup.get(t.name)
		if !ok {
			return "", nil, errs.NewErrMissingNamedParam(t.name)
		}
		rv := reflect.ValueOf(val)
		if expandable(rv) {
			// IN (:ids) -> IN (?,?,?)，空切片写成 NULL
			n := rv.Len()
			if n == 0 {
				sb.WriteString("NULL")
			}
			for i := 0; i < n; i++ {
				if i > 0 {
					sb.WriteByte(',')
				}
				sb.WriteByte('?')
				args = append(args, rv.Index(i).Interface())
			}
		} else {
			sb.WriteByte('?')
			args = append(args, val)
		}
		last = t.end
	}
	sb.WriteString(query[last:])
	return sb.String(), args, nil
}

// expandable []byte 作为单个值处理
func expandable(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Slice:
		return rv.Type().Elem().Kind() != reflect.Uint8
	case reflect.Array:
		return true
	}
	return false
}

type paramLookup map[string]any

// get 先精确匹配，找不到再忽略大小写
func (p paramLookup) get(name string) (any, bool) {
	if val, ok := p[name]; ok {
		return val, true
	}
	for k, val := range p {
		if strings.EqualFold(k, name) {
			return val, true
		}
	}
	return nil, false
}

func namedParams(params any) (paramLookup, error) {
	rv := reflect.ValueOf(params)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, errs.ErrNilNamedParams
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, errs.NewErrUnsupportedNamedParams(params)
		}
		res := make(paramLookup, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			res[iter.Key().String()] = iter.Value().Interface()
		}
		return res, nil
	case reflect.Struct:
		res := make(paramLookup, rv.NumField())
		structParams(res, rv)
		return res, nil
	}
	return nil, errs.NewErrUnsupportedNamedParams(params)
}

// structParams 使用 db 标签作为参数名，没有标签的时候使用字段名
// 嵌入的结构体会被展开，同名的时候外层的字段优先
func structParams(dst paramLookup, rv reflect.Value) {
	typ := rv.Type()
	var embedded []reflect.Value
	for i := 0; i < typ.NumField(); i++ {
		fd := typ.Field(i)
		if fd.Anonymous {
			fv := rv.Field(i)
			for fv.Kind() == reflect.Pointer && !fv.IsNil() {
				fv = fv.Elem()
			}
			if fv.Kind() == reflect.Struct {
				embedded = append(embedded, fv)
				continue
			}
		}
		if !fd.IsExported() {
			continue
		}
		name := fd.Tag.Get("db")
		if name == "-" {
			continue
		}
		if name == "" {
			name = fd.Name
		}
		if _, ok := dst[name]; ok {
			continue
		}
		dst[name] = rv.Field(i).Interface()
	}
	for _, fv := range embedded {
		structParams(dst, fv)
	}
}

// tokenize 找出语句中的 ? 和 :name，跳过字符串、反引号标识符以及注释
func tokenize(query string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(query) {
		r, w := utf8.DecodeRuneInString(query[i:])
		switch r {
		case '\'', '"':
			j, err := skipQuoted(query, i+w, byte(r))
			if err != nil {
				return nil, err
			}
			i = j
			continue
		case '`':
			j, err := skipBacktick(query, i+w)
			if err != nil {
				return nil, err
			}
			i = j
			continue
		case '#':
			i = skipLineComment(query, i+w)
			continue
		case '-':
			if strings.HasPrefix(query[i:], "--") {
				i = skipLineComment(query, i+2)
				continue
			}
		case '/':
			if strings.HasPrefix(query[i:], "/*") {
				j, err := skipBlockComment(query, i+2)
				if err != nil {
					return nil, err
				}
				i = j
				continue
			}
		case '?':
			toks = append(toks, token{kind: tokenPositional, start: i, end: i + w})
		case ':':
			// := 是赋值，不是参数
			name, end := parseIdent(query, i+w)
			if name != "" {
				toks = append(toks, token{kind: tokenNamed, name: name, start: i, end: end})
				i = end
				continue
			}
		}
		i += w
	}
	return toks, nil
}

// skipQuoted MySQL 的字符串里面 \ 是转义符，两个连续的引号表示引号本身
func skipQuoted(s string, i int, quote byte) (int, error) {
	for i < len(s) {
		switch s[i] {
		case '\\':
			i += 2
			continue
		case quote:
			if i+1 < len(s) && s[i+1] == quote {
				i += 2
				continue
			}
			return i + 1, nil
		}
		i++
	}
	return 0, errs.NewErrUnterminated("quoted string")
}

func skipBacktick(s string, i int) (int, error) {
	for i < len(s) {
		if s[i] == '`' {
			if i+1 < len(s) && s[i+1] == '`' {
				i += 2
				continue
			}
			return i + 1, nil
		}
		i++
	}
	return 0, errs.NewErrUnterminated("quoted identifier")
}

func skipLineComment(s string, i int) int {
	if j := strings.IndexByte(s[i:], '\n'); j >= 0 {
		return i + j + 1
	}
	return len(s)
}

func skipBlockComment(s string, i int) (int, error) {
	if j := strings.Index(s[i:], "*/"); j >= 0 {
		return i + j + 2, nil
	}
	return 0, errs.NewErrUnterminated("block comment")
}

func parseIdent(s string, i int) (string, int) {
	start := i
	for i < len(s) {
		r, w := utf8.DecodeRuneInString(s[i:])
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		i += w
	}
	return s[start:i], i
}
