// Package retry 提供外部模型调用的指数退避重试。
package retry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"super-feynman-go/pkg/log"
)

// StatusCoder 由携带 HTTP 状态码的错误实现（如 llm.StatusError）。
type StatusCoder interface {
	HTTPStatusCode() int
}

// Policy 描述一次调用最多尝试几次，以及首次重试前的等待时长。
// 第 n 次重试前等待 BaseDelay * 2^(n-1)。
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Sleep 可在测试中替换；为 nil 时使用可被 ctx 取消的定时器。
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy 为 3 次尝试，退避 1s、2s。
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second}
}

// Delay 返回第 attempt 次失败之后的等待时长（attempt 从 1 开始）。
func (p Policy) Delay(attempt int) time.Duration {
	return p.BaseDelay << (attempt - 1)
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsRetryableStatus 判断状态码是否值得重试：429 与 5xx。
func IsRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// IsRetryable 是默认的错误分类：
// 带状态码的错误按 IsRetryableStatus 判断，ctx 取消/超时不重试，其余（网络层错误）重试。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		return IsRetryableStatus(sc.HTTPStatusCode())
	}
	return true
}

// Do 执行 op，直到成功、遇到不可重试的错误或用尽尝试次数，返回最后一次的错误。
func Do[T any](ctx context.Context, p Policy, retryable func(error) bool, op func(ctx context.Context) (T, error)) (T, error) {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if retryable == nil {
		retryable = IsRetryable
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt == p.MaxAttempts || !retryable(err) {
			break
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		delay := p.Delay(attempt)
		log.Warnf("[Retry] 第 %d/%d 次调用失败, %s 后重试: %v", attempt, p.MaxAttempts, delay, err)
		if err := p.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
	return zero, lastErr
}
