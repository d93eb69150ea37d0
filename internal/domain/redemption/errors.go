package redemption

import "errors"

var (
	// ErrRedemptionNotFound 引き換え記録が見つからないエラー
	ErrRedemptionNotFound = errors.New("redemption not found")
	// ErrInvalidStatusTransition 許可されていないステータス遷移
	ErrInvalidStatusTransition = errors.New("invalid fulfillment status transition")
	// ErrInvalidFulfillmentStatus 無効なフルフィルメントステータス
	ErrInvalidFulfillmentStatus = errors.New("invalid fulfillment status")
	// ErrInvalidRedemption 引き換え記録の属性が無効
	ErrInvalidRedemption = errors.New("invalid redemption")
	// ErrInvalidChannel チャネルが長すぎる
	ErrInvalidChannel = errors.New("invalid channel")
	// ErrInvalidIdempotencyKey 冪等キーが長すぎる
	ErrInvalidIdempotencyKey = errors.New("invalid idempotency key")
	// ErrDuplicateIdempotencyKey 冪等キーの重複エラー
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)
