package ledger

import (
	"time"

	"loyalty-server/internal/domain/ledger"
)

// ApplyTransactionRequest 記帳リクエスト
type ApplyTransactionRequest struct {
	MemberID        string
	TransactionType string
	Points          int64 // 正の値。符号は種別から決まる
	Description     string
	RuleID          string
	RewardID        string
	IdempotencyKey  string
}

// ApplyTransactionResponse 記帳レスポンス
type ApplyTransactionResponse struct {
	Entry    *EntryResult
	Replayed bool // 冪等キーにより既存のエントリを返した場合 true
}

// EntryResult 台帳エントリ
type EntryResult struct {
	ReferenceNumber string
	MemberID        string
	TransactionType string
	Points          int64
	BalanceAfter    int64
	RuleID          string
	RewardID        string
	RedemptionID    string
	Description     string
	IdempotencyKey  string
	CreatedAt       time.Time
}

// NewEntryResult エンティティからEntryResultを作成
func NewEntryResult(e *ledger.Entry) *EntryResult {
	links := e.Links()
	return &EntryResult{
		ReferenceNumber: e.ReferenceNumber(),
		MemberID:        e.MemberID(),
		TransactionType: e.EntryType().String(),
		Points:          e.Points(),
		BalanceAfter:    e.BalanceAfter(),
		RuleID:          links.RuleID,
		RewardID:        links.RewardID,
		RedemptionID:    links.RedemptionID,
		Description:     e.Description(),
		IdempotencyKey:  e.IdempotencyKey(),
		CreatedAt:       e.CreatedAt(),
	}
}

// GetLedgerRequest 台帳取得リクエスト
type GetLedgerRequest struct {
	MemberID string
}

// GetLedgerResponse 台帳取得レスポンス
type GetLedgerResponse struct {
	MemberID string
	Entries  []*EntryResult // 時系列順
}

// VerifyLedgerRequest 台帳検証リクエスト
type VerifyLedgerRequest struct {
	MemberID string
}

// VerifyLedgerResponse 台帳検証レスポンス
type VerifyLedgerResponse struct {
	MemberID        string
	AvailablePoints int64
	EntryCount      int
}
