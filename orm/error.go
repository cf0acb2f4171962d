package orm

import "github.com/streamDream/mysql-stream/orm/internal/errs"

// 将内部的 sentinel error 暴露出去
var (
	// ErrNoRows 代表没有找到数据
	ErrNoRows             = errs.ErrNoRows
	ErrEmptySQL           = errs.ErrEmptySQL
	ErrInvalidLimit       = errs.ErrInvalidLimit
	ErrNoUpdatedColumns   = errs.ErrNoUpdatedColumns
	ErrNoTransaction      = errs.ErrNoTransaction
	ErrTxAlreadyStarted   = errs.ErrTxAlreadyStarted
	ErrConnClosed         = errs.ErrConnClosed
	ErrPoolNotInitialized = errs.ErrPoolNotInitialized
	ErrLeaseReleased      = errs.ErrLeaseReleased
	ErrNoResult           = errs.ErrNoResult
	ErrPointerOnly        = errs.ErrPointerOnly
)
