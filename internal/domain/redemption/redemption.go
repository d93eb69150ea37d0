package redemption

import (
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	// DefaultChannel チャネル未指定時の既定値
	DefaultChannel = "online"
	// MaxChannelLength チャネルの最大文字数
	MaxChannelLength = 32
	// MaxIdempotencyKeyLength 冪等キーの最大文字数
	MaxIdempotencyKeyLength = 255
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-\.\@]{1,255}$`)

// Redemption 引き換え記録エンティティ
// 作成後に変更できるのはフルフィルメントステータスのみ
type Redemption struct {
	redemptionID    string
	memberID        string
	rewardID        string
	pointsRedeemed  int64
	monetaryValue   decimal.Decimal // 引き換え時点の金銭的価値
	status          FulfillmentStatus
	channel         string
	partnerCode     string
	referenceNumber string // 対になる台帳エントリの参照番号
	idempotencyKey  string
	createdAt       time.Time
	updatedAt       time.Time
}

// NewRedemption 新しい引き換え記録を作成（pendingで作成される）
func NewRedemption(
	redemptionID string,
	memberID string,
	rewardID string,
	pointsRedeemed int64,
	monetaryValue decimal.Decimal,
	channel string,
	partnerCode string,
	referenceNumber string,
	idempotencyKey string,
) (*Redemption, error) {
	if err := ValidateRequest(channel, idempotencyKey); err != nil {
		return nil, err
	}
	now := time.Now()
	return ReconstructRedemption(redemptionID, memberID, rewardID, pointsRedeemed, monetaryValue,
		FulfillmentStatusPending, NormalizeChannel(channel), partnerCode, referenceNumber, idempotencyKey, now, now)
}

// ValidateRequest 引き換えリクエストの自由入力が保存可能な長さに収まっているかを検証する
func ValidateRequest(channel, idempotencyKey string) error {
	if utf8.RuneCountInString(channel) > MaxChannelLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidChannel, MaxChannelLength)
	}
	if utf8.RuneCountInString(idempotencyKey) > MaxIdempotencyKeyLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidIdempotencyKey, MaxIdempotencyKeyLength)
	}
	return nil
}

// NormalizeChannel 空のチャネルを既定値に置き換える
func NormalizeChannel(channel string) string {
	if channel == "" {
		return DefaultChannel
	}
	return channel
}

// ReconstructRedemption 永続化された値から引き換え記録を復元
func ReconstructRedemption(
	redemptionID string,
	memberID string,
	rewardID string,
	pointsRedeemed int64,
	monetaryValue decimal.Decimal,
	status FulfillmentStatus,
	channel string,
	partnerCode string,
	referenceNumber string,
	idempotencyKey string,
	createdAt time.Time,
	updatedAt time.Time,
) (*Redemption, error) {
	if !idRegex.MatchString(redemptionID) {
		return nil, fmt.Errorf("%w: redemption id", ErrInvalidRedemption)
	}
	if !idRegex.MatchString(memberID) || !idRegex.MatchString(rewardID) {
		return nil, fmt.Errorf("%w: member or reward id", ErrInvalidRedemption)
	}
	if pointsRedeemed <= 0 {
		return nil, fmt.Errorf("%w: points_redeemed must be positive", ErrInvalidRedemption)
	}
	if !status.Valid() {
		return nil, ErrInvalidFulfillmentStatus
	}
	return &Redemption{
		redemptionID:    redemptionID,
		memberID:        memberID,
		rewardID:        rewardID,
		pointsRedeemed:  pointsRedeemed,
		monetaryValue:   monetaryValue,
		status:          status,
		channel:         channel,
		partnerCode:     partnerCode,
		referenceNumber: referenceNumber,
		idempotencyKey:  idempotencyKey,
		createdAt:       createdAt,
		updatedAt:       updatedAt,
	}, nil
}

// RedemptionID 引き換えIDを返す
func (r *Redemption) RedemptionID() string {
	return r.redemptionID
}

// MemberID 会員IDを返す
func (r *Redemption) MemberID() string {
	return r.memberID
}

// RewardID 特典IDを返す
func (r *Redemption) RewardID() string {
	return r.rewardID
}

// PointsRedeemed 引き換えに使用したポイントを返す
func (r *Redemption) PointsRedeemed() int64 {
	return r.pointsRedeemed
}

// MonetaryValue 金銭的価値を返す
func (r *Redemption) MonetaryValue() decimal.Decimal {
	return r.monetaryValue
}

// Status フルフィルメントステータスを返す
func (r *Redemption) Status() FulfillmentStatus {
	return r.status
}

// Channel チャネルを返す
func (r *Redemption) Channel() string {
	return r.channel
}

// PartnerCode 提携先コードを返す
func (r *Redemption) PartnerCode() string {
	return r.partnerCode
}

// ReferenceNumber 台帳エントリの参照番号を返す
func (r *Redemption) ReferenceNumber() string {
	return r.referenceNumber
}

// IdempotencyKey 冪等キーを返す
func (r *Redemption) IdempotencyKey() string {
	return r.idempotencyKey
}

// CreatedAt 作成日時を返す
func (r *Redemption) CreatedAt() time.Time {
	return r.createdAt
}

// UpdatedAt 更新日時を返す
func (r *Redemption) UpdatedAt() time.Time {
	return r.updatedAt
}

// SameRequest 冪等キーで再送されたリクエストと内容が一致するかを返す
func (r *Redemption) SameRequest(rewardID, channel string) bool {
	return r.rewardID == rewardID && r.channel == NormalizeChannel(channel)
}

// UpdateStatus フルフィルメントステータスを更新
func (r *Redemption) UpdateStatus(next FulfillmentStatus) error {
	if !next.Valid() {
		return ErrInvalidFulfillmentStatus
	}
	if !r.status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, r.status, next)
	}
	r.status = next
	r.updatedAt = time.Now()
	return nil
}

// Clone 複製を返す
func (r *Redemption) Clone() *Redemption {
	c := *r
	return &c
}

// MustNewRedemption テスト用ヘルパー: NewRedemptionを呼び出し、エラーが発生した場合はpanicする
func MustNewRedemption(redemptionID, memberID, rewardID string, pointsRedeemed int64) *Redemption {
	r, err := NewRedemption(redemptionID, memberID, rewardID, pointsRedeemed, decimal.Zero, "", "", "TXN-"+redemptionID, "")
	if err != nil {
		panic(err)
	}
	return r
}
