package ledger

import "context"

// LedgerRepository 台帳リポジトリインターフェース
// 台帳は追記専用で、更新・削除の操作は持たない
type LedgerRepository interface {
	// Append エントリを追記
	Append(ctx context.Context, e *Entry) error

	// FindByMemberID 会員の全エントリを時系列順に取得
	FindByMemberID(ctx context.Context, memberID string) ([]*Entry, error)

	// FindByReferenceNumber 参照番号でエントリを取得
	FindByReferenceNumber(ctx context.Context, referenceNumber string) (*Entry, error)

	// FindByIdempotencyKey 会員IDと冪等キーでエントリを取得
	FindByIdempotencyKey(ctx context.Context, memberID, idempotencyKey string) (*Entry, error)
}
