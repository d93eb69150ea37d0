package transaction

import "context"

// 冪等キーのスコープ
const (
	IdempotencyScopeLedger     = "ledger"
	IdempotencyScopeRedemption = "redemption"
)

// IdempotencyCache 冪等キーから処理結果のIDを引くキャッシュ
// 正となるのは永続化層の一意制約で、キャッシュは照会の近道にすぎない
type IdempotencyCache interface {
	// Lookup 記録済みの結果IDを返す
	Lookup(ctx context.Context, scope, memberID, key string) (string, bool, error)
	// Remember 結果IDを記録する
	Remember(ctx context.Context, scope, memberID, key, resultID string) error
}

// NopIdempotencyCache 何も保持しないキャッシュ
type NopIdempotencyCache struct{}

// Lookup 常に未記録を返す
func (NopIdempotencyCache) Lookup(context.Context, string, string, string) (string, bool, error) {
	return "", false, nil
}

// Remember 何もしない
func (NopIdempotencyCache) Remember(context.Context, string, string, string, string) error {
	return nil
}
