package reward

import "errors"

var (
	// ErrRewardNotFound 特典が見つからないエラー
	ErrRewardNotFound = errors.New("reward not found")
	// ErrRewardAlreadyExists 特典IDの重複エラー
	ErrRewardAlreadyExists = errors.New("reward already exists")
	// ErrRewardInactive 特典が無効（非公開または有効期間外）
	ErrRewardInactive = errors.New("reward inactive")
	// ErrOutOfStock 在庫切れエラー
	ErrOutOfStock = errors.New("reward out of stock")
	// ErrInvalidReward 特典の属性が無効
	ErrInvalidReward = errors.New("invalid reward")
)
