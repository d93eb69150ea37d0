package redemption

// FulfillmentStatus 引き換えの処理状況を表す値オブジェクト
type FulfillmentStatus string

const (
	FulfillmentStatusPending   FulfillmentStatus = "pending"   // 未処理
	FulfillmentStatusFulfilled FulfillmentStatus = "fulfilled" // 提供済み
	FulfillmentStatusCancelled FulfillmentStatus = "cancelled" // 取消
)

// NewFulfillmentStatus 新しいFulfillmentStatusを作成
func NewFulfillmentStatus(s string) (FulfillmentStatus, error) {
	fs := FulfillmentStatus(s)
	if !fs.Valid() {
		return "", ErrInvalidFulfillmentStatus
	}
	return fs, nil
}

// String 文字列表現を返す
func (fs FulfillmentStatus) String() string {
	return string(fs)
}

// Valid 有効なステータスかどうかを返す
func (fs FulfillmentStatus) Valid() bool {
	switch fs {
	case FulfillmentStatusPending, FulfillmentStatusFulfilled, FulfillmentStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal 終端状態かどうかを返す
func (fs FulfillmentStatus) IsTerminal() bool {
	return fs == FulfillmentStatusFulfilled || fs == FulfillmentStatusCancelled
}

// CanTransitionTo 指定ステータスへ遷移できるかを返す
// pending → fulfilled | cancelled のみ許可
func (fs FulfillmentStatus) CanTransitionTo(next FulfillmentStatus) bool {
	return fs == FulfillmentStatusPending && next.IsTerminal()
}
