package transaction

import (
	"context"
	"math"
	"time"
)

// RetryPolicy ErrConflict に対する再実行ポリシー
type RetryPolicy struct {
	MaxRetries int           // 最初の試行を除く再実行回数
	Backoff    time.Duration // 初回の待機時間（以降は指数的に増加）
}

// DefaultRetryPolicy 既定の再実行ポリシー
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, Backoff: 10 * time.Millisecond}

// Run fn を実行し、ErrConflict の場合は指数バックオフで再実行する
// onRetry は再実行の直前に呼ばれる（nil可）
func (p RetryPolicy) Run(ctx context.Context, fn func() error, onRetry func(attempt int, err error)) error {
	var err error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			if onRetry != nil {
				onRetry(attempt, err)
			}
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * p.Backoff
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err = fn()
		if err == nil || !IsRetryable(err) {
			return err
		}
	}
	return err
}
