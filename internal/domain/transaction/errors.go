package transaction

import "errors"

var (
	// ErrConflict ロック競合・デッドロックなど、操作全体を再実行すれば成功しうるエラー
	ErrConflict = errors.New("transaction conflict, retryable")
	// ErrIdempotencyConflict 同じ冪等キーで異なる内容のリクエストが送られた
	ErrIdempotencyConflict = errors.New("idempotency key reused with different request")
)

// IsRetryable 再実行可能なエラーかどうかを返す
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}
