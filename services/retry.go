package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// BackoffFunc 返回第 attempt 次失败后的等待时间，attempt 从 1 开始
type BackoffFunc func(attempt int) time.Duration

// LinearBackoff 等待 delay*attempt
func LinearBackoff(delay time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		return delay * time.Duration(attempt)
	}
}

// RetryPolicy 有限次数的重试，在每个调用点显式使用
type RetryPolicy struct {
	Attempts int
	Backoff  BackoffFunc
	Log      logrus.FieldLogger

	// sleep 可在测试中替换
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetryPolicy(attempts int, backoff BackoffFunc, log logrus.FieldLogger) *RetryPolicy {
	if attempts < 1 {
		attempts = 1
	}
	return &RetryPolicy{Attempts: attempts, Backoff: backoff, Log: log, sleep: sleepContext}
}

// Do 执行 fn，失败时按退避等待后重试，全部失败返回最后一次的错误
func (p *RetryPolicy) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == p.Attempts {
			break
		}

		p.Log.WithFields(logrus.Fields{
			"op":      name,
			"attempt": attempt,
			"max":     p.Attempts,
		}).WithError(err).Warn("retrying after error")

		if p.Backoff != nil {
			if serr := p.sleep(ctx, p.Backoff(attempt)); serr != nil {
				return fmt.Errorf("%s: %w", name, serr)
			}
		}
	}

	p.Log.WithField("op", name).WithError(err).Errorf("operation failed after %d attempts", p.Attempts)
	return fmt.Errorf("%s failed after %d attempts: %w", name, p.Attempts, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
