package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/fyerfyer/pdf-chat/internal/metrics"
)

// Kind 第三方服务错误的分类
type Kind int

const (
	// KindFatal 重试无效的错误，如密钥缺失、请求非法
	KindFatal Kind = iota
	// KindRetryable 可重试的瞬时错误，如超时、限流、服务端错误
	KindRetryable
)

// String 返回分类名称
func (k Kind) String() string {
	if k == KindRetryable {
		return "retryable"
	}
	return "fatal"
}

// retryable 可判断是否可重试的错误
type retryable interface {
	Retryable() bool
}

// KindOf 返回错误的分类
// 未声明分类的错误视为不可重试
func KindOf(err error) Kind {
	var r retryable
	if errors.As(err, &r) && r.Retryable() {
		return KindRetryable
	}
	return KindFatal
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	return err != nil && KindOf(err) == KindRetryable
}

// TimeoutError 调用第三方服务超时
type TimeoutError struct {
	Provider string
	Timeout  time.Duration
	Err      error
}

// Error 实现error接口
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s: %v", e.Provider, e.Timeout, e.Err)
}

// Unwrap 返回底层错误
func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// Retryable 超时总是可以重试
func (e *TimeoutError) Retryable() bool {
	return true
}

// Policy 调用策略
type Policy struct {
	Timeout        time.Duration // 单次调用超时，0表示不限制
	MaxAttempts    int           // 最大尝试次数（含第一次）
	InitialBackoff time.Duration // 首次重试前的等待时间
	MaxBackoff     time.Duration // 重试等待时间上限
}

// DefaultPolicy 返回默认调用策略
func DefaultPolicy() Policy {
	return Policy{
		Timeout:        30 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
	}
}

// Do 按策略调用op
// 每次尝试都有独立的超时；可重试错误按指数退避重试，直到达到最大次数；
// 不可重试错误和父上下文取消会立即返回
func Do[T any](ctx context.Context, name string, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	attempt := 0
	operation := func() (T, error) {
		attempt++
		res, err := call(ctx, name, p.Timeout, op)
		metrics.ObserveProviderAttempt(name, resultLabel(err))
		if err == nil {
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, backoff.Permanent(ctxErr)
		}
		if !IsRetryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	b := backoff.NewExponentialBackOff()
	if p.InitialBackoff > 0 {
		b.InitialInterval = p.InitialBackoff
	}
	if p.MaxBackoff > 0 {
		b.MaxInterval = p.MaxBackoff
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
	)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	if err != nil && attempt > 1 {
		err = fmt.Errorf("%s failed after %d attempts: %w", name, attempt, err)
	}
	return res, err
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case IsRetryable(err):
		return "retryable_error"
	default:
		return "fatal_error"
	}
}

func call[T any](ctx context.Context, name string, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := op(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		var zero T
		return zero, &TimeoutError{Provider: name, Timeout: timeout, Err: err}
	}
	return res, err
}
