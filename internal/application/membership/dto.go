package membership

import (
	"time"

	"loyalty-server/internal/domain/member"
)

// EnrollRequest 入会リクエスト
type EnrollRequest struct {
	MemberID string
}

// GetMemberRequest 会員取得リクエスト
type GetMemberRequest struct {
	MemberID string
}

// MemberResult 会員アカウント
type MemberResult struct {
	MemberID        string
	AvailablePoints int64
	TotalPoints     int64
	LifetimePoints  int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewMemberResult エンティティからMemberResultを作成
func NewMemberResult(m *member.Member) *MemberResult {
	return &MemberResult{
		MemberID:        m.MemberID(),
		AvailablePoints: m.AvailablePoints(),
		TotalPoints:     m.TotalPoints(),
		LifetimePoints:  m.LifetimePoints(),
		CreatedAt:       m.CreatedAt(),
		UpdatedAt:       m.UpdatedAt(),
	}
}
