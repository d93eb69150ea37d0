package ledger

// EntryType 台帳エントリの種別を表す値オブジェクト
type EntryType string

const (
	EntryTypeAccrual    EntryType = "accrual"    // 獲得
	EntryTypeBonus      EntryType = "bonus"      // ボーナス
	EntryTypeRedemption EntryType = "redemption" // 引き換え
	EntryTypeAdjustment EntryType = "adjustment" // 手動調整
	EntryTypeReversal   EntryType = "reversal"   // 引き換え取消による戻し
)

// NewEntryType 新しいEntryTypeを作成
func NewEntryType(s string) (EntryType, error) {
	et := EntryType(s)
	if !et.Valid() {
		return "", ErrInvalidEntryType
	}
	return et, nil
}

// String 文字列表現を返す
func (et EntryType) String() string {
	return string(et)
}

// Valid 有効なエントリ種別かどうかを返す
func (et EntryType) Valid() bool {
	switch et {
	case EntryTypeAccrual, EntryTypeBonus, EntryTypeRedemption, EntryTypeAdjustment, EntryTypeReversal:
		return true
	default:
		return false
	}
}

// IsDebit 残高を減らす種別かどうかを返す
func (et EntryType) IsDebit() bool {
	return et == EntryTypeRedemption
}

// Sign ポイントの符号を返す
func (et EntryType) Sign() int64 {
	if et.IsDebit() {
		return -1
	}
	return 1
}

// AccruesLifetime 生涯獲得ポイントに加算される種別かどうかを返す
func (et EntryType) AccruesLifetime() bool {
	return et == EntryTypeAccrual || et == EntryTypeBonus
}

// DefaultDescription 説明が省略されたときの既定の説明を返す
func (et EntryType) DefaultDescription() string {
	return string(et) + " transaction"
}
