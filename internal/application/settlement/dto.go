package settlement

import (
	"time"

	"loyalty-server/internal/domain/redemption"
)

// RedeemRequest 引き換えリクエスト
type RedeemRequest struct {
	MemberID       string
	RewardID       string
	Channel        string // 省略時は online
	IdempotencyKey string
}

// RedeemResponse 引き換えレスポンス
type RedeemResponse struct {
	Redemption   *RedemptionResult
	BalanceAfter int64 // 引き換え直後の利用可能ポイント
	Replayed     bool
}

// RedemptionResult 引き換え記録
type RedemptionResult struct {
	RedemptionID      string
	MemberID          string
	RewardID          string
	PointsRedeemed    int64
	MonetaryValue     string // 10進文字列
	FulfillmentStatus string
	Channel           string
	PartnerCode       string
	ReferenceNumber   string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewRedemptionResult エンティティからRedemptionResultを作成
func NewRedemptionResult(r *redemption.Redemption) *RedemptionResult {
	return &RedemptionResult{
		RedemptionID:      r.RedemptionID(),
		MemberID:          r.MemberID(),
		RewardID:          r.RewardID(),
		PointsRedeemed:    r.PointsRedeemed(),
		MonetaryValue:     r.MonetaryValue().StringFixed(2),
		FulfillmentStatus: r.Status().String(),
		Channel:           r.Channel(),
		PartnerCode:       r.PartnerCode(),
		ReferenceNumber:   r.ReferenceNumber(),
		CreatedAt:         r.CreatedAt(),
		UpdatedAt:         r.UpdatedAt(),
	}
}

// UpdateFulfillmentStatusRequest フルフィルメントステータス更新リクエスト
type UpdateFulfillmentStatusRequest struct {
	RedemptionID      string
	FulfillmentStatus string
}

// GetRedemptionRequest 引き換え記録取得リクエスト
type GetRedemptionRequest struct {
	RedemptionID string
}

// ListMemberRedemptionsRequest 会員の引き換え記録一覧リクエスト
type ListMemberRedemptionsRequest struct {
	MemberID string
}

// ListMemberRedemptionsResponse 会員の引き換え記録一覧レスポンス
type ListMemberRedemptionsResponse struct {
	MemberID    string
	Redemptions []*RedemptionResult // 新しい順
}
