package member

import "errors"

var (
	// ErrMemberNotFound 会員が見つからないエラー
	ErrMemberNotFound = errors.New("member not found")
	// ErrMemberAlreadyExists 会員が既に登録済みのエラー
	ErrMemberAlreadyExists = errors.New("member already exists")
	// ErrInsufficientPoints ポイント不足エラー
	ErrInsufficientPoints = errors.New("insufficient points")
	// ErrInvalidPoints 無効なポイント数エラー
	ErrInvalidPoints = errors.New("invalid points")
	// ErrInvalidMemberID 会員IDが無効
	ErrInvalidMemberID = errors.New("invalid member id")
	// ErrPointsOutOfRange ポイント残高が範囲外
	ErrPointsOutOfRange = errors.New("points out of range")
)
