package catalog

import (
	"time"

	"loyalty-server/internal/domain/reward"
)

// CreateRewardRequest 特典作成リクエスト
type CreateRewardRequest struct {
	RewardID       string // 省略時は採番する
	Name           string
	PointsRequired int64
	MonetaryValue  string // 10進文字列
	StockQuantity  int64
	Status         string // 省略時は active
	ValidFrom      time.Time
	ValidUntil     time.Time
	PartnerCode    string
}

// GetRewardRequest 特典取得リクエスト
type GetRewardRequest struct {
	RewardID string
}

// ListRewardsRequest 特典一覧リクエスト
type ListRewardsRequest struct {
	ActiveOnly bool
}

// ListRewardsResponse 特典一覧レスポンス
type ListRewardsResponse struct {
	Rewards []*RewardResult
}

// RewardResult 特典
type RewardResult struct {
	RewardID       string
	Name           string
	PointsRequired int64
	MonetaryValue  string
	StockQuantity  int64
	Status         string
	ValidFrom      time.Time
	ValidUntil     time.Time
	PartnerCode    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewRewardResult エンティティからRewardResultを作成
func NewRewardResult(r *reward.Reward) *RewardResult {
	return &RewardResult{
		RewardID:       r.RewardID(),
		Name:           r.Name(),
		PointsRequired: r.PointsRequired(),
		MonetaryValue:  r.MonetaryValue().StringFixed(2),
		StockQuantity:  r.StockQuantity(),
		Status:         r.Status().String(),
		ValidFrom:      r.ValidFrom(),
		ValidUntil:     r.ValidUntil(),
		PartnerCode:    r.PartnerCode(),
		CreatedAt:      r.CreatedAt(),
		UpdatedAt:      r.UpdatedAt(),
	}
}
