package reward

import "fmt"

// RewardStatus 特典の公開状態を表す値オブジェクト
type RewardStatus string

const (
	RewardStatusActive   RewardStatus = "active"   // 公開中
	RewardStatusInactive RewardStatus = "inactive" // 非公開
)

// NewRewardStatus 新しいRewardStatusを作成
func NewRewardStatus(s string) (RewardStatus, error) {
	switch s {
	case "active", "inactive":
		return RewardStatus(s), nil
	default:
		return "", fmt.Errorf("%w: status %q", ErrInvalidReward, s)
	}
}

// String 文字列表現を返す
func (rs RewardStatus) String() string {
	return string(rs)
}

// IsActive 公開中かどうかを返す
func (rs RewardStatus) IsActive() bool {
	return rs == RewardStatusActive
}
