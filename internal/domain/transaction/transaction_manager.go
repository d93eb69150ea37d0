package transaction

import "context"

// TransactionManager トランザクション管理インターフェース
// 実行中のトランザクションはコンテキストで伝播し、同じコンテキストで呼ばれたリポジトリはそのトランザクションに参加する
type TransactionManager interface {
	// WithTransaction トランザクション内で関数を実行
	// fn がエラーを返した場合はすべての書き込みをロールバックする
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
