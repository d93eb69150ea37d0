package reward

import "context"

// RewardRepository 特典カタログリポジトリインターフェース
type RewardRepository interface {
	// FindByID 特典IDで特典を取得
	FindByID(ctx context.Context, rewardID string) (*Reward, error)

	// FindByIDForUpdate 特典IDで特典を排他ロック付きで取得（トランザクション内で使用）
	FindByIDForUpdate(ctx context.Context, rewardID string) (*Reward, error)

	// FindAll 特典一覧を取得
	FindAll(ctx context.Context, activeOnly bool) ([]*Reward, error)

	// Create 新しい特典を作成
	Create(ctx context.Context, r *Reward) error

	// SaveStock 在庫数を保存
	SaveStock(ctx context.Context, r *Reward) error
}
