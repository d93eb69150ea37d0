package reward

import (
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	// MaxPointsRequired 必要ポイントの上限 (10兆)
	MaxPointsRequired = 10_000_000_000_000
	// MaxNameLength 名称の最大文字数
	MaxNameLength = 255
	// MaxPartnerCodeLength 提携先コードの最大文字数
	MaxPartnerCodeLength = 64
)

// MaxMonetaryValue 金銭的価値の上限 (DECIMAL(12,2))
var MaxMonetaryValue = decimal.RequireFromString("9999999999.99")

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-\.\@]{1,255}$`)

// Reward 特典カタログのアイテム
// stockQuantity は常に0以上
type Reward struct {
	rewardID       string
	name           string
	pointsRequired int64
	monetaryValue  decimal.Decimal
	stockQuantity  int64
	status         RewardStatus
	validFrom      time.Time // ゼロ値 = 期限なし
	validUntil     time.Time // ゼロ値 = 期限なし
	partnerCode    string
	createdAt      time.Time
	updatedAt      time.Time
}

// NewReward 新しい特典を作成（公開状態で作成される）
func NewReward(
	rewardID string,
	name string,
	pointsRequired int64,
	monetaryValue decimal.Decimal,
	stockQuantity int64,
	validFrom time.Time,
	validUntil time.Time,
	partnerCode string,
) (*Reward, error) {
	now := time.Now()
	return ReconstructReward(rewardID, name, pointsRequired, monetaryValue, stockQuantity,
		RewardStatusActive, validFrom, validUntil, partnerCode, now, now)
}

// ReconstructReward 永続化された値から特典を復元
func ReconstructReward(
	rewardID string,
	name string,
	pointsRequired int64,
	monetaryValue decimal.Decimal,
	stockQuantity int64,
	status RewardStatus,
	validFrom time.Time,
	validUntil time.Time,
	partnerCode string,
	createdAt time.Time,
	updatedAt time.Time,
) (*Reward, error) {
	if !idRegex.MatchString(rewardID) {
		return nil, fmt.Errorf("%w: reward id", ErrInvalidReward)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidReward)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return nil, fmt.Errorf("%w: name longer than %d characters", ErrInvalidReward, MaxNameLength)
	}
	if utf8.RuneCountInString(partnerCode) > MaxPartnerCodeLength {
		return nil, fmt.Errorf("%w: partner_code longer than %d characters", ErrInvalidReward, MaxPartnerCodeLength)
	}
	if pointsRequired <= 0 || pointsRequired > MaxPointsRequired {
		return nil, fmt.Errorf("%w: points_required must be positive", ErrInvalidReward)
	}
	if monetaryValue.IsNegative() {
		return nil, fmt.Errorf("%w: monetary_value must not be negative", ErrInvalidReward)
	}
	if monetaryValue.GreaterThan(MaxMonetaryValue) {
		return nil, fmt.Errorf("%w: monetary_value exceeds %s", ErrInvalidReward, MaxMonetaryValue)
	}
	if stockQuantity < 0 {
		return nil, fmt.Errorf("%w: stock_quantity must not be negative", ErrInvalidReward)
	}
	if !validFrom.IsZero() && !validUntil.IsZero() && validUntil.Before(validFrom) {
		return nil, fmt.Errorf("%w: valid_until is before valid_from", ErrInvalidReward)
	}
	return &Reward{
		rewardID:       rewardID,
		name:           name,
		pointsRequired: pointsRequired,
		monetaryValue:  monetaryValue,
		stockQuantity:  stockQuantity,
		status:         status,
		validFrom:      validFrom,
		validUntil:     validUntil,
		partnerCode:    partnerCode,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
	}, nil
}

// RewardID 特典IDを返す
func (r *Reward) RewardID() string {
	return r.rewardID
}

// Name 名称を返す
func (r *Reward) Name() string {
	return r.name
}

// PointsRequired 必要ポイントを返す
func (r *Reward) PointsRequired() int64 {
	return r.pointsRequired
}

// MonetaryValue 金銭的価値を返す
func (r *Reward) MonetaryValue() decimal.Decimal {
	return r.monetaryValue
}

// StockQuantity 在庫数を返す
func (r *Reward) StockQuantity() int64 {
	return r.stockQuantity
}

// Status 公開状態を返す
func (r *Reward) Status() RewardStatus {
	return r.status
}

// ValidFrom 有効開始日時を返す
func (r *Reward) ValidFrom() time.Time {
	return r.validFrom
}

// ValidUntil 有効期限を返す
func (r *Reward) ValidUntil() time.Time {
	return r.validUntil
}

// PartnerCode 提携先コードを返す
func (r *Reward) PartnerCode() string {
	return r.partnerCode
}

// CreatedAt 作成日時を返す
func (r *Reward) CreatedAt() time.Time {
	return r.createdAt
}

// UpdatedAt 更新日時を返す
func (r *Reward) UpdatedAt() time.Time {
	return r.updatedAt
}

// IsWithinValidity 指定時刻が有効期間内かどうかを返す
func (r *Reward) IsWithinValidity(now time.Time) bool {
	if !r.validFrom.IsZero() && now.Before(r.validFrom) {
		return false
	}
	if !r.validUntil.IsZero() && now.After(r.validUntil) {
		return false
	}
	return true
}

// CheckRedeemable 引き換え可能かを検証（公開状態 → 有効期間 → 在庫の順）
func (r *Reward) CheckRedeemable(now time.Time) error {
	if !r.status.IsActive() || !r.IsWithinValidity(now) {
		return ErrRewardInactive
	}
	if r.stockQuantity <= 0 {
		return ErrOutOfStock
	}
	return nil
}

// DecrementStock 在庫を1つ減らす
func (r *Reward) DecrementStock() error {
	if r.stockQuantity <= 0 {
		return ErrOutOfStock
	}
	r.stockQuantity--
	r.updatedAt = time.Now()
	return nil
}

// Clone 複製を返す
func (r *Reward) Clone() *Reward {
	c := *r
	return &c
}

// MustNewReward テスト用ヘルパー: 期限なしの公開特典を作成し、エラーの場合はpanicする
func MustNewReward(rewardID, name string, pointsRequired, stockQuantity int64) *Reward {
	r, err := NewReward(rewardID, name, pointsRequired, decimal.NewFromInt(pointsRequired).Div(decimal.NewFromInt(100)),
		stockQuantity, time.Time{}, time.Time{}, "")
	if err != nil {
		panic(err)
	}
	return r
}
