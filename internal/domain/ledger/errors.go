package ledger

import "errors"

var (
	// ErrEntryNotFound 台帳エントリが見つからないエラー
	ErrEntryNotFound = errors.New("ledger entry not found")
	// ErrInvalidEntryType 無効なエントリ種別エラー
	ErrInvalidEntryType = errors.New("invalid transaction type")
	// ErrInvalidPoints 無効なポイント数エラー
	ErrInvalidPoints = errors.New("invalid points")
	// ErrInvalidReferenceNumber 無効な参照番号エラー
	ErrInvalidReferenceNumber = errors.New("invalid reference number")
	// ErrInvalidMemberID 会員IDが無効
	ErrInvalidMemberID = errors.New("invalid member id")
	// ErrInvalidDescription 説明が長すぎる
	ErrInvalidDescription = errors.New("invalid description")
	// ErrInvalidLink 参照IDが長すぎる
	ErrInvalidLink = errors.New("invalid link")
	// ErrInvalidIdempotencyKey 冪等キーが長すぎる
	ErrInvalidIdempotencyKey = errors.New("invalid idempotency key")
	// ErrDuplicateReferenceNumber 参照番号の重複エラー
	ErrDuplicateReferenceNumber = errors.New("duplicate reference number")
	// ErrDuplicateIdempotencyKey 冪等キーの重複エラー
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	// ErrIntegrityViolation 台帳の再生結果と残高が一致しない
	ErrIntegrityViolation = errors.New("ledger integrity violation")
)
