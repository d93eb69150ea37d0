package service

// IDGenerator 参照番号・記録IDの生成器
// 形式は任意で、一意であることだけを保証する
type IDGenerator interface {
	// NewReferenceNumber 台帳エントリの参照番号を生成
	NewReferenceNumber() string
	// NewRedemptionID 引き換え記録のIDを生成
	NewRedemptionID() string
	// NewRewardID 特典のIDを生成
	NewRewardID() string
}
