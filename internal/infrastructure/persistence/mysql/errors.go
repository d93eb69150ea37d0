package mysql

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"loyalty-server/internal/domain/transaction"
)

// MySQLのエラー番号
const (
	errNumDuplicateEntry  = 1062
	errNumLockWaitTimeout = 1205
	errNumDeadlock        = 1213
)

// isDuplicateEntry 一意制約違反かどうか（keyName が空でなければ制約名も確認する）
func isDuplicateEntry(err error, keyName string) bool {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) || myErr.Number != errNumDuplicateEntry {
		return false
	}
	return keyName == "" || strings.Contains(myErr.Message, keyName)
}

// isRetryable デッドロック・ロック待ちタイムアウトかどうか
func isRetryable(err error) bool {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return false
	}
	return myErr.Number == errNumDeadlock || myErr.Number == errNumLockWaitTimeout
}

// classifyError 再実行で解消しうるエラーを transaction.ErrConflict に変換する
func classifyError(err error) error {
	if err == nil || errors.Is(err, transaction.ErrConflict) {
		return err
	}
	if isRetryable(err) {
		return fmt.Errorf("%w: %v", transaction.ErrConflict, err)
	}
	return err
}
