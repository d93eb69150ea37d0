package handler

import "time"

// RedeemRequest 引き換えリクエスト
// @Description 引き換えリクエスト
type RedeemRequest struct {
	MemberID       string `json:"member_id" example:"member-001"`
	RewardID       string `json:"reward_id" example:"RWD-COFFEE"`
	Channel        string `json:"channel,omitempty" example:"online"`
	IdempotencyKey string `json:"idempotency_key,omitempty" example:"app-5f1c"`
}

// RedemptionResponse 引き換え記録
// @Description 引き換え記録
type RedemptionResponse struct {
	RedemptionID      string    `json:"redemption_id" example:"RDM-0192f0c4-7e0b-7c1a-9d52-3c2f5b7a8e11"`
	MemberID          string    `json:"member_id" example:"member-001"`
	RewardID          string    `json:"reward_id" example:"RWD-COFFEE"`
	PointsRedeemed    string    `json:"points_redeemed" example:"120"`
	MonetaryValue     string    `json:"monetary_value" example:"1.20"`
	FulfillmentStatus string    `json:"fulfillment_status" example:"pending" enums:"pending,fulfilled,cancelled"`
	Channel           string    `json:"channel" example:"online"`
	PartnerCode       string    `json:"partner_code,omitempty"`
	ReferenceNumber   string    `json:"reference_number" example:"TXN-0192f0c4-7e0b-7c1a-9d52-3c2f5b7a8e12"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// RedeemResponse 引き換えレスポンス
// @Description 引き換えレスポンス。balance_afterは引き換え直後の利用可能ポイント
type RedeemResponse struct {
	Redemption   RedemptionResponse `json:"redemption"`
	BalanceAfter string             `json:"balance_after" example:"30"`
	Replayed     bool               `json:"replayed"`
}

// ListRedemptionsResponse 引き換え記録一覧レスポンス
// @Description 新しい順
type ListRedemptionsResponse struct {
	MemberID    string               `json:"member_id" example:"member-001"`
	Redemptions []RedemptionResponse `json:"redemptions"`
}

// UpdateFulfillmentStatusRequest フルフィルメントステータス更新リクエスト
// @Description pending から fulfilled または cancelled への遷移のみ可能
type UpdateFulfillmentStatusRequest struct {
	FulfillmentStatus string `json:"fulfillment_status" example:"fulfilled" enums:"fulfilled,cancelled"`
}
