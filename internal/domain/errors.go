package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrCorruptStore        = errors.New("position store corrupt")
	ErrLockHeld            = errors.New("lock already held")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrPriceUnavailable    = errors.New("price unavailable")
	ErrPositionFailed      = errors.New("position failed, operator intervention required")
	ErrTradingDisabled     = errors.New("trading is disabled")
)
