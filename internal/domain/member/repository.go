package member

import "context"

// MemberRepository 会員アカウントリポジトリインターフェース
type MemberRepository interface {
	// FindByID 会員IDで会員を取得
	FindByID(ctx context.Context, memberID string) (*Member, error)

	// FindByIDForUpdate 会員IDで会員を排他ロック付きで取得（トランザクション内で使用）
	FindByIDForUpdate(ctx context.Context, memberID string) (*Member, error)

	// Create 新しい会員を作成
	Create(ctx context.Context, m *Member) error

	// Save 会員の残高を保存
	Save(ctx context.Context, m *Member) error
}
