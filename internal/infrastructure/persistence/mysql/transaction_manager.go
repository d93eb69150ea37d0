package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"loyalty-server/internal/domain/transaction"
)

type txKey struct{}

func contextWithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func txFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}

// TransactionManager トランザクション管理を提供
// デッドロック・ロック待ちタイムアウトは RetryPolicy に従って操作全体を再実行する
type TransactionManager struct {
	db      *DB
	policy  transaction.RetryPolicy
	onRetry func(ctx context.Context, attempt int, err error)
}

var _ transaction.TransactionManager = (*TransactionManager)(nil)

// NewTransactionManager 新しいトランザクションマネージャーを作成
func NewTransactionManager(db *DB, policy transaction.RetryPolicy) *TransactionManager {
	return &TransactionManager{db: db, policy: policy}
}

// OnRetry 再実行時に呼ばれるフックを設定
func (tm *TransactionManager) OnRetry(fn func(ctx context.Context, attempt int, err error)) {
	tm.onRetry = fn
}

// WithTransaction トランザクション内で関数を実行
// 既にトランザクション中のコンテキストであれば、そのトランザクションに参加する
func (tm *TransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFromContext(ctx); ok {
		return fn(ctx)
	}

	return tm.policy.Run(ctx, func() error {
		return tm.runOnce(ctx, fn)
	}, func(attempt int, err error) {
		if tm.onRetry != nil {
			tm.onRetry(ctx, attempt, err)
		}
	})
}

func (tm *TransactionManager) runOnce(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := tm.db.BeginTx(ctx, nil)
	if err != nil {
		return classifyError(fmt.Errorf("failed to begin transaction: %w", err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(contextWithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return classifyError(err)
	}

	if err := tx.Commit(); err != nil {
		return classifyError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}
