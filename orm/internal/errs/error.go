package errs

import (
	"errors"
	"fmt"
)

var (
	ErrPointerOnly = errors.New("orm: 只支持一级指针作为输入，例如 *User")

	// ErrNoRows 代表没有找到数据
	ErrNoRows = errors.New("orm: 未找到数据")

	ErrEmptySQL           = errors.New("orm: sql is empty")
	ErrInvalidLimit       = errors.New("orm: limit must be (count) or (offset, count)")
	ErrNoUpdatedColumns   = errors.New("orm: 未指定更新的列")
	ErrNoTransaction      = errors.New("orm: no transaction in progress")
	ErrTxAlreadyStarted   = errors.New("orm: transaction already started")
	ErrConnClosed         = errors.New("orm: connection already released")
	ErrPoolNotInitialized = errors.New("pool: init must be invoked first")
	ErrLeaseReleased      = errors.New("pool: lease already released")
	ErrForeignLease       = errors.New("pool: lease belongs to another pool")
	ErrNoResult           = errors.New("orm: no result returned by the handler chain")
	ErrInvalidPoolSize    = errors.New("pool: max connections must be positive and not less than min idle connections")
	ErrNilNamedParams     = errors.New("orm: named bind: nil params")

	// ErrTooManyReturnedColumns 返回的列多于结构体中的字段
	ErrTooManyReturnedColumns = errors.New("orm: 过多列")
	ErrNotStructModel         = errors.New("orm: model is not declared by a struct")
)

// NewErrPrimaryKeyNotFound 模型中没有声明主键
func NewErrPrimaryKeyNotFound(model string) error {
	return fmt.Errorf("orm: primary key not found in model: <%s>", model)
}

// NewErrMultiplePrimaryKeys 模型中声明了多个主键
func NewErrMultiplePrimaryKeys(model string) error {
	return fmt.Errorf("orm: more than one primary key in model: <%s>", model)
}

func NewErrDuplicateColumn(model, column string) error {
	return fmt.Errorf("orm: duplicate column %s in model: <%s>", column, model)
}

// NewErrMissingValue 列没有值，也没有默认值
func NewErrMissingValue(column string) error {
	return fmt.Errorf("orm: value of column: <%s> is not found", column)
}

func NewErrUnknownField(name string) error {
	return fmt.Errorf("orm: 未知字段 %s", name)
}

func NewErrUnknownColumn(name string) error {
	return fmt.Errorf("orm: 未知列 %s", name)
}

func NewErrInvalidTagContent(pair string) error {
	return fmt.Errorf("orm: 非法标签值 %s", pair)
}

func NewErrUnknownCodec(name string) error {
	return fmt.Errorf("orm: unknown codec %s", name)
}

func NewErrMissingNamedParam(name string) error {
	return fmt.Errorf("orm: named bind: missing value for :%s", name)
}

func NewErrUnsupportedNamedParams(val any) error {
	return fmt.Errorf("orm: named bind: params must be struct or string-keyed map, got %T", val)
}

func NewErrArgumentCount(placeholders, args int) error {
	return fmt.Errorf("orm: statement has %d placeholders but %d arguments", placeholders, args)
}

func NewErrUnsupportedArgType(val any) error {
	return fmt.Errorf("orm: cannot render argument of type %T", val)
}

func NewErrUnterminated(what string) error {
	return fmt.Errorf("orm: unterminated %s", what)
}

// NewErrUnassignable 解码后的值不能赋给结构体字段
func NewErrUnassignable(column string, val any) error {
	return fmt.Errorf("orm: value of type %T cannot be assigned to the field of column %s", val, column)
}
