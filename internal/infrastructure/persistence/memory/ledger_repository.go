package memory

import (
	"context"

	"loyalty-server/internal/domain/ledger"
)

// LedgerRepository メモリ実装のLedgerRepository
type LedgerRepository struct {
	store *Store
}

var _ ledger.LedgerRepository = (*LedgerRepository)(nil)

// NewLedgerRepository 新しいLedgerRepositoryを作成
func NewLedgerRepository(store *Store) *LedgerRepository {
	return &LedgerRepository{store: store}
}

// Append エントリを追記
func (r *LedgerRepository) Append(ctx context.Context, e *ledger.Entry) error {
	return r.store.write(ctx, func(u *unitOfWork) error {
		ctx := contextWithUOW(ctx, u)
		if _, err := r.FindByReferenceNumber(ctx, e.ReferenceNumber()); err == nil {
			return ledger.ErrDuplicateReferenceNumber
		}
		if e.IdempotencyKey() != "" {
			if _, err := r.FindByIdempotencyKey(ctx, e.MemberID(), e.IdempotencyKey()); err == nil {
				return ledger.ErrDuplicateIdempotencyKey
			}
		}
		u.entries = append(u.entries, e)
		return nil
	})
}

// FindByMemberID 会員の全エントリを追記順に取得
func (r *LedgerRepository) FindByMemberID(ctx context.Context, memberID string) ([]*ledger.Entry, error) {
	r.store.mu.Lock()
	committed := r.store.entries[memberID]
	entries := make([]*ledger.Entry, len(committed))
	copy(entries, committed)
	r.store.mu.Unlock()

	if u, ok := uowFromContext(ctx); ok {
		for _, e := range u.entries {
			if e.MemberID() == memberID {
				entries = append(entries, e)
			}
		}
	}
	return entries, nil
}

// FindByReferenceNumber 参照番号でエントリを取得
func (r *LedgerRepository) FindByReferenceNumber(ctx context.Context, referenceNumber string) (*ledger.Entry, error) {
	r.store.mu.Lock()
	committed := r.store.entryByRef[referenceNumber]
	r.store.mu.Unlock()

	return r.find(ctx, func(e *ledger.Entry) bool {
		return e.ReferenceNumber() == referenceNumber
	}, committed)
}

// FindByIdempotencyKey 会員IDと冪等キーでエントリを取得
func (r *LedgerRepository) FindByIdempotencyKey(ctx context.Context, memberID, idempotencyKey string) (*ledger.Entry, error) {
	r.store.mu.Lock()
	committed := r.store.entryByKey[idempotencyIndex(memberID, idempotencyKey)]
	r.store.mu.Unlock()

	return r.find(ctx, func(e *ledger.Entry) bool {
		return e.MemberID() == memberID && e.IdempotencyKey() == idempotencyKey
	}, committed)
}

// find コミット済みの結果がなければトランザクション内の追記から探す
func (r *LedgerRepository) find(ctx context.Context, match func(*ledger.Entry) bool, committed *ledger.Entry) (*ledger.Entry, error) {
	if committed != nil {
		return committed, nil
	}
	if u, ok := uowFromContext(ctx); ok {
		for _, e := range u.entries {
			if match(e) {
				return e, nil
			}
		}
	}
	return nil, ledger.ErrEntryNotFound
}
