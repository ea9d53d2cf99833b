package faults

import (
	"context"
	"errors"
	"time"
)

// 错误分类约定：
//   - validation：输入/风控校验失败，永不重试，直接返回调用方
//   - transient：网络/超时类，调用方带退避重试（预算内）
//   - unrecoverable：状态性错误（未知订单、重复注册等），当前 cycle fail-closed
//
// 分类通过哨兵包装实现，调用方用 IsTransient/IsValidation 判断。

// ErrTimeout 外部调用超时（gateway/store/capability 均适用）
var ErrTimeout = errors.New("operation timed out")

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient 将错误标记为可重试
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient 检查错误是否可重试。
// context 超时视为 transient（外部调用超时同网络抖动一样处理）。
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

type validationError struct{ err error }

func (e *validationError) Error() string { return e.err.Error() }
func (e *validationError) Unwrap() error { return e.err }

// Validation 将错误标记为校验失败（永不重试）
func Validation(err error) error {
	if err == nil {
		return nil
	}
	return &validationError{err: err}
}

// IsValidation 检查错误是否为校验失败
func IsValidation(err error) bool {
	var ve *validationError
	return errors.As(err, &ve)
}

// Retry 带退避的有界重试。
// 只重试 transient 错误；validation/unrecoverable 立即返回。
// attempts 是总尝试次数（含首次），delay 按次翻倍。
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
		delay *= 2
	}
	return err
}
