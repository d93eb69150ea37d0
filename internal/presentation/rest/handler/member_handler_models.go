package handler

import "time"

// EnrollRequest 入会リクエスト
// @Description 入会リクエスト
type EnrollRequest struct {
	MemberID string `json:"member_id" example:"member-001"`
}

// MemberResponse 会員レスポンス
// @Description 会員アカウント。ポイントは10進文字列
type MemberResponse struct {
	MemberID        string    `json:"member_id" example:"member-001"`
	AvailablePoints string    `json:"available_points" example:"150"`
	TotalPoints     string    `json:"total_points" example:"150"`
	LifetimePoints  string    `json:"lifetime_points" example:"150"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
