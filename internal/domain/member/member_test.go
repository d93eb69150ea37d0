package member

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMember(t *testing.T) {
	tests := []struct {
		name      string
		memberID  string
		wantError error
	}{
		{
			name:     "正常系: 残高0で入会",
			memberID: "member-001",
		},
		{
			name:      "異常系: 空の会員ID",
			memberID:  "",
			wantError: ErrInvalidMemberID,
		},
		{
			name:      "異常系: 使用できない文字を含む",
			memberID:  "member 001",
			wantError: ErrInvalidMemberID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewMember(tt.memberID)
			if tt.wantError != nil {
				assert.ErrorIs(t, err, tt.wantError)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.memberID, got.MemberID())
			assert.Equal(t, int64(0), got.AvailablePoints())
			assert.Equal(t, int64(0), got.TotalPoints())
			assert.Equal(t, int64(0), got.LifetimePoints())
		})
	}
}

func TestReconstructMember_NegativeBalance(t *testing.T) {
	now := time.Now()
	_, err := ReconstructMember("member-001", -1, 0, 0, 1, now, now)
	assert.ErrorIs(t, err, ErrPointsOutOfRange)
}

func TestMember_Credit(t *testing.T) {
	tests := []struct {
		name           string
		member         *Member
		points         int64
		accrueLifetime bool
		wantAvailable  int64
		wantTotal      int64
		wantLifetime   int64
		wantError      error
	}{
		{
			name:           "正常系: 獲得ポイントは生涯ポイントにも加算",
			member:         MustNewMember("member-001", 100),
			points:         50,
			accrueLifetime: true,
			wantAvailable:  150,
			wantTotal:      150,
			wantLifetime:   150,
		},
		{
			name:          "正常系: 調整は生涯ポイントに加算しない",
			member:        MustNewMember("member-001", 100),
			points:        30,
			wantAvailable: 130,
			wantTotal:     130,
			wantLifetime:  100,
		},
		{
			name:          "異常系: 0ポイント",
			member:        MustNewMember("member-001", 100),
			points:        0,
			wantAvailable: 100,
			wantTotal:     100,
			wantLifetime:  100,
			wantError:     ErrInvalidPoints,
		},
		{
			name:          "異常系: 上限超過",
			member:        MustNewMember("member-001", MaxPoints),
			points:        1,
			wantAvailable: MaxPoints,
			wantTotal:     MaxPoints,
			wantLifetime:  MaxPoints,
			wantError:     ErrPointsOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.member.Credit(tt.points, tt.accrueLifetime)
			if tt.wantError != nil {
				assert.ErrorIs(t, err, tt.wantError)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantAvailable, tt.member.AvailablePoints())
			assert.Equal(t, tt.wantTotal, tt.member.TotalPoints())
			assert.Equal(t, tt.wantLifetime, tt.member.LifetimePoints())
		})
	}
}

func TestMember_Debit(t *testing.T) {
	tests := []struct {
		name          string
		member        *Member
		points        int64
		wantAvailable int64
		wantTotal     int64
		wantError     error
	}{
		{
			name:          "正常系: 残高ちょうど",
			member:        MustNewMember("member-001", 120),
			points:        120,
			wantAvailable: 0,
			wantTotal:     0,
		},
		{
			name:          "正常系: 一部を減算",
			member:        MustNewMember("member-001", 150),
			points:        120,
			wantAvailable: 30,
			wantTotal:     30,
		},
		{
			name:          "異常系: 残高不足では変更しない",
			member:        MustNewMember("member-001", 30),
			points:        50,
			wantAvailable: 30,
			wantTotal:     30,
			wantError:     ErrInsufficientPoints,
		},
		{
			name:          "異常系: 負のポイント",
			member:        MustNewMember("member-001", 30),
			points:        -5,
			wantAvailable: 30,
			wantTotal:     30,
			wantError:     ErrInvalidPoints,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lifetimeBefore := tt.member.LifetimePoints()
			err := tt.member.Debit(tt.points)
			if tt.wantError != nil {
				assert.ErrorIs(t, err, tt.wantError)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantAvailable, tt.member.AvailablePoints())
			assert.Equal(t, tt.wantTotal, tt.member.TotalPoints())
			assert.Equal(t, lifetimeBefore, tt.member.LifetimePoints())
		})
	}
}
