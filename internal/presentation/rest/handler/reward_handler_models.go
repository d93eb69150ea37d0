package handler

import "time"

// CreateRewardRequest 特典作成リクエスト
// @Description 特典作成リクエスト。reward_id省略時は採番する
type CreateRewardRequest struct {
	RewardID       string     `json:"reward_id,omitempty" example:"RWD-COFFEE"`
	Name           string     `json:"name" example:"コーヒー1杯"`
	PointsRequired string     `json:"points_required" example:"120"`
	MonetaryValue  string     `json:"monetary_value" example:"1.20"`
	StockQuantity  string     `json:"stock_quantity" example:"50"`
	Status         string     `json:"status,omitempty" example:"active" enums:"active,inactive"`
	ValidFrom      *time.Time `json:"valid_from,omitempty"`
	ValidUntil     *time.Time `json:"valid_until,omitempty"`
	PartnerCode    string     `json:"partner_code,omitempty" example:"CAFE01"`
}

// RewardResponse 特典レスポンス
// @Description 特典
type RewardResponse struct {
	RewardID       string     `json:"reward_id" example:"RWD-COFFEE"`
	Name           string     `json:"name" example:"コーヒー1杯"`
	PointsRequired string     `json:"points_required" example:"120"`
	MonetaryValue  string     `json:"monetary_value" example:"1.20"`
	StockQuantity  string     `json:"stock_quantity" example:"50"`
	Status         string     `json:"status" example:"active"`
	ValidFrom      *time.Time `json:"valid_from,omitempty"`
	ValidUntil     *time.Time `json:"valid_until,omitempty"`
	PartnerCode    string     `json:"partner_code,omitempty" example:"CAFE01"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ListRewardsResponse 特典一覧レスポンス
// @Description 必要ポイントの昇順
type ListRewardsResponse struct {
	Rewards []RewardResponse `json:"rewards"`
}
