package member

import (
	"regexp"
	"time"
)

const (
	// MaxPoints 1回の移動および残高の上限 (10兆)
	MaxPoints = 10_000_000_000_000
)

var memberIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-\.\@]{1,255}$`)

// Member 会員アカウントエンティティ
// availablePoints は常に0以上で、台帳エントリの符号付きポイントの合計と一致する
type Member struct {
	memberID        string
	availablePoints int64 // 利用可能ポイント
	totalPoints     int64 // 累計獲得ポイントから引き換え分を差し引いたもの
	lifetimePoints  int64 // 累計獲得ポイント（単調増加）
	version         int
	createdAt       time.Time
	updatedAt       time.Time
}

// NewMember 入会時の会員を作成（残高はすべて0）
func NewMember(memberID string) (*Member, error) {
	now := time.Now()
	return ReconstructMember(memberID, 0, 0, 0, 0, now, now)
}

// ReconstructMember 永続化された値から会員を復元
func ReconstructMember(
	memberID string,
	availablePoints int64,
	totalPoints int64,
	lifetimePoints int64,
	version int,
	createdAt time.Time,
	updatedAt time.Time,
) (*Member, error) {
	if !memberIDRegex.MatchString(memberID) {
		return nil, ErrInvalidMemberID
	}
	if availablePoints < 0 || availablePoints > MaxPoints {
		return nil, ErrPointsOutOfRange
	}
	if lifetimePoints < 0 || lifetimePoints > MaxPoints {
		return nil, ErrPointsOutOfRange
	}
	return &Member{
		memberID:        memberID,
		availablePoints: availablePoints,
		totalPoints:     totalPoints,
		lifetimePoints:  lifetimePoints,
		version:         version,
		createdAt:       createdAt,
		updatedAt:       updatedAt,
	}, nil
}

// MemberID 会員IDを返す
func (m *Member) MemberID() string {
	return m.memberID
}

// AvailablePoints 利用可能ポイントを返す
func (m *Member) AvailablePoints() int64 {
	return m.availablePoints
}

// TotalPoints 累計ポイントを返す
func (m *Member) TotalPoints() int64 {
	return m.totalPoints
}

// LifetimePoints 生涯獲得ポイントを返す
func (m *Member) LifetimePoints() int64 {
	return m.lifetimePoints
}

// Version バージョンを返す
func (m *Member) Version() int {
	return m.version
}

// CreatedAt 作成日時を返す
func (m *Member) CreatedAt() time.Time {
	return m.createdAt
}

// UpdatedAt 更新日時を返す
func (m *Member) UpdatedAt() time.Time {
	return m.updatedAt
}

// Credit ポイントを加算する
// accrueLifetime が true の場合は生涯獲得ポイントも加算する
func (m *Member) Credit(points int64, accrueLifetime bool) error {
	if points <= 0 {
		return ErrInvalidPoints
	}
	if points > MaxPoints || m.availablePoints > MaxPoints-points {
		return ErrPointsOutOfRange
	}
	if accrueLifetime && m.lifetimePoints > MaxPoints-points {
		return ErrPointsOutOfRange
	}
	m.availablePoints += points
	m.totalPoints += points
	if accrueLifetime {
		m.lifetimePoints += points
	}
	m.updatedAt = time.Now()
	return nil
}

// Debit ポイントを減算する（残高不足の場合は何も変更しない）
func (m *Member) Debit(points int64) error {
	if points <= 0 {
		return ErrInvalidPoints
	}
	if points > MaxPoints {
		return ErrPointsOutOfRange
	}
	if m.availablePoints < points {
		return ErrInsufficientPoints
	}
	m.availablePoints -= points
	m.totalPoints -= points
	m.updatedAt = time.Now()
	return nil
}

// HasSufficientPoints 指定ポイント以上の残高があるかを返す
func (m *Member) HasSufficientPoints(points int64) bool {
	return m.availablePoints >= points
}

// Clone 複製を返す
func (m *Member) Clone() *Member {
	c := *m
	return &c
}

// IncrementVersion バージョンをインクリメント
func (m *Member) IncrementVersion() {
	m.version++
}

// MustNewMember テスト用ヘルパー: 指定残高の会員を作成し、エラーの場合はpanicする
func MustNewMember(memberID string, availablePoints int64) *Member {
	now := time.Now()
	m, err := ReconstructMember(memberID, availablePoints, availablePoints, availablePoints, 1, now, now)
	if err != nil {
		panic(err)
	}
	return m
}
