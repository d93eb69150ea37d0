package ledger

import (
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"
)

const (
	// MaxPoints 1エントリあたりのポイント上限 (10兆)
	MaxPoints = 10_000_000_000_000
	// MaxDescriptionLength 説明の最大文字数
	MaxDescriptionLength = 512
	// MaxKeyLength 冪等キーと参照IDの最大文字数
	MaxKeyLength = 255
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-\.\@]{1,255}$`)

// Links エントリの発生元への参照（いずれも任意）
type Links struct {
	RuleID       string
	RewardID     string
	RedemptionID string
}

// Entry 台帳エントリエンティティ（不変）
type Entry struct {
	referenceNumber string
	memberID        string
	entryType       EntryType
	points          int64 // 符号付きのポイント増減
	balanceAfter    int64 // このエントリ適用直後の利用可能ポイント
	links           Links
	description     string
	idempotencyKey  string
	createdAt       time.Time
}

// NewEntry 新しい台帳エントリを作成
// magnitude は正の値で、符号はエントリ種別から決まる
func NewEntry(
	referenceNumber string,
	memberID string,
	entryType EntryType,
	magnitude int64,
	balanceAfter int64,
	links Links,
	description string,
	idempotencyKey string,
) (*Entry, error) {
	if !entryType.Valid() {
		return nil, ErrInvalidEntryType
	}
	if magnitude <= 0 || magnitude > MaxPoints {
		return nil, ErrInvalidPoints
	}
	if err := ValidateAttributes(links, description, idempotencyKey); err != nil {
		return nil, err
	}
	if description == "" {
		description = entryType.DefaultDescription()
	}
	return ReconstructEntry(
		referenceNumber,
		memberID,
		entryType,
		entryType.Sign()*magnitude,
		balanceAfter,
		links,
		description,
		idempotencyKey,
		time.Now(),
	)
}

// ValidateAttributes 自由入力の属性が保存可能な長さに収まっているかを検証する
func ValidateAttributes(links Links, description, idempotencyKey string) error {
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidDescription, MaxDescriptionLength)
	}
	for _, link := range []struct{ name, id string }{
		{"rule_id", links.RuleID},
		{"reward_id", links.RewardID},
		{"redemption_id", links.RedemptionID},
	} {
		if utf8.RuneCountInString(link.id) > MaxKeyLength {
			return fmt.Errorf("%w: %s longer than %d characters", ErrInvalidLink, link.name, MaxKeyLength)
		}
	}
	if utf8.RuneCountInString(idempotencyKey) > MaxKeyLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidIdempotencyKey, MaxKeyLength)
	}
	return nil
}

// ReconstructEntry 永続化された値からエントリを復元
func ReconstructEntry(
	referenceNumber string,
	memberID string,
	entryType EntryType,
	points int64,
	balanceAfter int64,
	links Links,
	description string,
	idempotencyKey string,
	createdAt time.Time,
) (*Entry, error) {
	if !idRegex.MatchString(referenceNumber) {
		return nil, ErrInvalidReferenceNumber
	}
	if !idRegex.MatchString(memberID) {
		return nil, ErrInvalidMemberID
	}
	if !entryType.Valid() {
		return nil, ErrInvalidEntryType
	}
	if points == 0 || points*entryType.Sign() < 0 {
		return nil, ErrInvalidPoints
	}
	return &Entry{
		referenceNumber: referenceNumber,
		memberID:        memberID,
		entryType:       entryType,
		points:          points,
		balanceAfter:    balanceAfter,
		links:           links,
		description:     description,
		idempotencyKey:  idempotencyKey,
		createdAt:       createdAt,
	}, nil
}

// ReferenceNumber 参照番号を返す
func (e *Entry) ReferenceNumber() string {
	return e.referenceNumber
}

// MemberID 会員IDを返す
func (e *Entry) MemberID() string {
	return e.memberID
}

// EntryType エントリ種別を返す
func (e *Entry) EntryType() EntryType {
	return e.entryType
}

// Points 符号付きのポイント増減を返す
func (e *Entry) Points() int64 {
	return e.points
}

// Magnitude ポイント増減の絶対値を返す
func (e *Entry) Magnitude() int64 {
	if e.points < 0 {
		return -e.points
	}
	return e.points
}

// BalanceAfter 適用後の残高を返す
func (e *Entry) BalanceAfter() int64 {
	return e.balanceAfter
}

// Links 発生元への参照を返す
func (e *Entry) Links() Links {
	return e.links
}

// Description 説明を返す
func (e *Entry) Description() string {
	return e.description
}

// IdempotencyKey 冪等キーを返す
func (e *Entry) IdempotencyKey() string {
	return e.idempotencyKey
}

// CreatedAt 作成日時を返す
func (e *Entry) CreatedAt() time.Time {
	return e.createdAt
}

// SameRequest 冪等キーで再送されたリクエストと内容が一致するかを返す
// 説明が空の場合は種別の既定の説明と比較する
func (e *Entry) SameRequest(entryType EntryType, magnitude int64, links Links, description string) bool {
	if description == "" {
		description = entryType.DefaultDescription()
	}
	return e.entryType == entryType &&
		e.Magnitude() == magnitude &&
		e.links == links &&
		e.description == description
}

// MustNewEntry テスト用ヘルパー: NewEntryを呼び出し、エラーが発生した場合はpanicする
func MustNewEntry(referenceNumber, memberID string, entryType EntryType, magnitude, balanceAfter int64) *Entry {
	e, err := NewEntry(referenceNumber, memberID, entryType, magnitude, balanceAfter, Links{}, "", "")
	if err != nil {
		panic(err)
	}
	return e
}
