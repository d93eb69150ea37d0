package redemption

import "context"

// RedemptionRepository 引き換え記録リポジトリインターフェース
type RedemptionRepository interface {
	// Create 引き換え記録を作成
	Create(ctx context.Context, r *Redemption) error

	// FindByID 引き換えIDで取得
	FindByID(ctx context.Context, redemptionID string) (*Redemption, error)

	// FindByIDForUpdate 引き換えIDで排他ロック付きで取得（トランザクション内で使用）
	FindByIDForUpdate(ctx context.Context, redemptionID string) (*Redemption, error)

	// FindByMemberID 会員の引き換え記録を新しい順に取得
	FindByMemberID(ctx context.Context, memberID string) ([]*Redemption, error)

	// FindByIdempotencyKey 会員IDと冪等キーで取得
	FindByIdempotencyKey(ctx context.Context, memberID, idempotencyKey string) (*Redemption, error)

	// UpdateStatus フルフィルメントステータスを更新
	UpdateStatus(ctx context.Context, r *Redemption) error
}
