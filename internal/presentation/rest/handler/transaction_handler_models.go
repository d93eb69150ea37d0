package handler

import "time"

// ApplyTransactionRequest 記帳リクエスト
// @Description 記帳リクエスト。pointsは正の10進文字列で、符号は種別から決まる
type ApplyTransactionRequest struct {
	TransactionType string `json:"transaction_type" example:"accrual" enums:"accrual,bonus,redemption,adjustment,reversal"`
	Points          string `json:"points" example:"100"`
	Description     string `json:"description" example:"店舗購入 #1234"`
	RuleID          string `json:"rule_id,omitempty" example:"RULE-BASE"`
	RewardID        string `json:"reward_id,omitempty"`
	IdempotencyKey  string `json:"idempotency_key,omitempty" example:"pos-1234-20260101"`
}

// EntryResponse 台帳エントリ
// @Description 台帳エントリ。pointsは符号付き
type EntryResponse struct {
	ReferenceNumber string    `json:"reference_number" example:"TXN-0192f0c4-7e0b-7c1a-9d52-3c2f5b7a8e11"`
	MemberID        string    `json:"member_id" example:"member-001"`
	TransactionType string    `json:"transaction_type" example:"accrual"`
	Points          string    `json:"points" example:"100"`
	BalanceAfter    string    `json:"balance_after" example:"100"`
	RuleID          string    `json:"rule_id,omitempty"`
	RewardID        string    `json:"reward_id,omitempty"`
	RedemptionID    string    `json:"redemption_id,omitempty"`
	Description     string    `json:"description,omitempty"`
	IdempotencyKey  string    `json:"idempotency_key,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ApplyTransactionResponse 記帳レスポンス
// @Description 記帳レスポンス。冪等キーによる再送では replayed が true
type ApplyTransactionResponse struct {
	Entry    EntryResponse `json:"entry"`
	Replayed bool          `json:"replayed"`
}

// LedgerResponse 台帳レスポンス
// @Description 時系列順の台帳
type LedgerResponse struct {
	MemberID string          `json:"member_id" example:"member-001"`
	Entries  []EntryResponse `json:"entries"`
}

// VerifyLedgerResponse 台帳検証レスポンス
// @Description 台帳の再計算結果が残高と一致した場合のレスポンス
type VerifyLedgerResponse struct {
	MemberID        string `json:"member_id" example:"member-001"`
	AvailablePoints string `json:"available_points" example:"30"`
	EntryCount      int    `json:"entry_count" example:"3"`
	Status          string `json:"status" example:"consistent"`
}
