// Package codec converts field values between their in-memory form and the
// form handed to the MySQL driver.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// DatetimeLayout 解码后的时间字符串格式
const DatetimeLayout = "2006-01-02 15:04:05"

// Codec is a pluggable encode/decode pair attached to a field.
// Encode runs before a value is bound to a statement, Decode runs on the
// driver value read back from a row.
type Codec interface {
	Encode(val any) (any, error)
	Decode(val any) (any, error)
}

var (
	// Text serialises structured values (maps, slices, scalars) to JSON text
	// and parses them back into map[string]any / []any / scalars. Integral
	// numbers decode as int64, the rest as float64.
	Text Codec = JSON[any]()
	// Datetime passes values to the driver untouched and renders time.Time
	// read from the driver as "YYYY-MM-DD HH:MM:SS".
	Datetime Codec = datetimeCodec{}
)

type jsonCodec[T any] struct{}

// JSON returns a codec that decodes JSON text into T.
func JSON[T any]() Codec {
	return jsonCodec[T]{}
}

func (jsonCodec[T]) Encode(val any) (any, error) {
	return encodeJSON(val)
}

func (jsonCodec[T]) Decode(val any) (any, error) {
	var t T
	if err := decodeJSON(val, &t); err != nil {
		return nil, err
	}
	return normalizeNumbers(t), nil
}

// typedJSON 解码成运行时才知道的类型，用于结构体字段
type typedJSON struct {
	typ reflect.Type
}

// JSONOf returns a codec that decodes JSON text into a value of typ.
func JSONOf(typ reflect.Type) Codec {
	return typedJSON{typ: typ}
}

func (c typedJSON) Encode(val any) (any, error) {
	return encodeJSON(val)
}

func (c typedJSON) Decode(val any) (any, error) {
	ptr := reflect.New(c.typ)
	if err := decodeJSON(val, ptr.Interface()); err != nil {
		return nil, err
	}
	return normalizeNumbers(ptr.Elem().Interface()), nil
}

func encodeJSON(val any) (any, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	// 保留 < > & 以及非 ASCII 字符原样输出
	enc.SetEscapeHTML(false)
	if err := enc.Encode(val); err != nil {
		return nil, err
	}
	// Encoder 会追加换行符
	return string(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})), nil
}

func decodeJSON(val any, dst any) error {
	var data []byte
	switch v := val.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("codec: cannot decode %T as JSON text", val)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	// 数字先保留原文，避免大整数变成 float64 丢失精度
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("codec: trailing data after JSON value")
	}
	return nil
}

// normalizeNumbers 把 json.Number 转成 int64，不是整数的转成 float64。
// map 和 slice 原地修改
func normalizeNumbers(val any) any {
	switch v := val.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		f, _ := v.Float64()
		return f
	case map[string]any:
		for k, e := range v {
			v[k] = normalizeNumbers(e)
		}
	case []any:
		for i, e := range v {
			v[i] = normalizeNumbers(e)
		}
	}
	return val
}

type datetimeCodec struct{}

func (datetimeCodec) Encode(val any) (any, error) {
	return val, nil
}

func (datetimeCodec) Decode(val any) (any, error) {
	switch v := val.(type) {
	case time.Time:
		return v.Format(DatetimeLayout), nil
	case *time.Time:
		if v == nil {
			return nil, nil
		}
		return v.Format(DatetimeLayout), nil
	}
	return val, nil
}

// Lookup resolves the codec names accepted in `orm` struct tags.
func Lookup(name string) (Codec, bool) {
	switch name {
	case "json", "text":
		return Text, true
	case "datetime":
		return Datetime, true
	}
	return nil, false
}
