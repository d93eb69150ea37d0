package ledger

import "fmt"

// Replay 時系列順のエントリを先頭から再生し、最終残高を返す
// 途中の balance_after が累計と一致しない場合は ErrIntegrityViolation を返す
func Replay(entries []*Entry) (int64, error) {
	var balance int64
	for i, e := range entries {
		balance += e.Points()
		if balance < 0 {
			return 0, fmt.Errorf("%w: balance went negative at entry %d (%s)", ErrIntegrityViolation, i, e.ReferenceNumber())
		}
		if e.BalanceAfter() != balance {
			return 0, fmt.Errorf("%w: entry %s records balance_after=%d, replay gives %d",
				ErrIntegrityViolation, e.ReferenceNumber(), e.BalanceAfter(), balance)
		}
	}
	return balance, nil
}

// VerifyBalance エントリの再生結果が現在の残高と一致することを検証
func VerifyBalance(entries []*Entry, availablePoints int64) error {
	balance, err := Replay(entries)
	if err != nil {
		return err
	}
	if balance != availablePoints {
		return fmt.Errorf("%w: replayed balance %d, stored available_points %d",
			ErrIntegrityViolation, balance, availablePoints)
	}
	return nil
}
