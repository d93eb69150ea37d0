package memory

import (
	"context"
	"fmt"

	"loyalty-server/internal/domain/member"
	"loyalty-server/internal/domain/transaction"
)

func memberLockKey(memberID string) string { return "member:" + memberID }

// MemberRepository メモリ実装のMemberRepository
type MemberRepository struct {
	store *Store
}

var _ member.MemberRepository = (*MemberRepository)(nil)

// NewMemberRepository 新しいMemberRepositoryを作成
func NewMemberRepository(store *Store) *MemberRepository {
	return &MemberRepository{store: store}
}

// current トランザクション内の書き込みを優先して会員を返す
func (r *MemberRepository) current(ctx context.Context, memberID string) *member.Member {
	if u, ok := uowFromContext(ctx); ok {
		if m, ok := u.members[memberID]; ok {
			return m
		}
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.members[memberID]
}

// FindByID 会員IDで会員を取得
func (r *MemberRepository) FindByID(ctx context.Context, memberID string) (*member.Member, error) {
	m := r.current(ctx, memberID)
	if m == nil {
		return nil, member.ErrMemberNotFound
	}
	return m.Clone(), nil
}

// FindByIDForUpdate 会員IDで会員を排他ロック付きで取得
func (r *MemberRepository) FindByIDForUpdate(ctx context.Context, memberID string) (*member.Member, error) {
	if u, ok := uowFromContext(ctx); ok {
		if err := u.lock(ctx, memberLockKey(memberID)); err != nil {
			return nil, err
		}
	}
	return r.FindByID(ctx, memberID)
}

// Create 新しい会員を作成
func (r *MemberRepository) Create(ctx context.Context, m *member.Member) error {
	return r.store.write(ctx, func(u *unitOfWork) error {
		if err := u.lock(ctx, memberLockKey(m.MemberID())); err != nil {
			return err
		}
		if r.current(contextWithUOW(ctx, u), m.MemberID()) != nil {
			return member.ErrMemberAlreadyExists
		}
		u.members[m.MemberID()] = m.Clone()
		u.newMembers[m.MemberID()] = true
		return nil
	})
}

// Save 会員の残高を保存（楽観的ロック対応）
// 保存に成功すると会員のバージョンを進める
func (r *MemberRepository) Save(ctx context.Context, m *member.Member) error {
	return r.store.write(ctx, func(u *unitOfWork) error {
		if err := u.lock(ctx, memberLockKey(m.MemberID())); err != nil {
			return err
		}
		cur := r.current(contextWithUOW(ctx, u), m.MemberID())
		if cur == nil {
			return member.ErrMemberNotFound
		}
		if cur.Version() != m.Version() {
			return fmt.Errorf("%w: member version mismatch", transaction.ErrConflict)
		}
		m.IncrementVersion()
		u.members[m.MemberID()] = m.Clone()
		return nil
	})
}
