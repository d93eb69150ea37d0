package memory

import (
	"context"
	"fmt"
	"sort"

	"loyalty-server/internal/domain/redemption"
)

func redemptionLockKey(redemptionID string) string { return "redemption:" + redemptionID }

// RedemptionRepository メモリ実装のRedemptionRepository
type RedemptionRepository struct {
	store *Store
}

var _ redemption.RedemptionRepository = (*RedemptionRepository)(nil)

// NewRedemptionRepository 新しいRedemptionRepositoryを作成
func NewRedemptionRepository(store *Store) *RedemptionRepository {
	return &RedemptionRepository{store: store}
}

func (r *RedemptionRepository) current(ctx context.Context, redemptionID string) *redemption.Redemption {
	if u, ok := uowFromContext(ctx); ok {
		if rd, ok := u.redemptions[redemptionID]; ok {
			return rd
		}
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.redemptions[redemptionID]
}

// Create 引き換え記録を作成
func (r *RedemptionRepository) Create(ctx context.Context, rd *redemption.Redemption) error {
	return r.store.write(ctx, func(u *unitOfWork) error {
		ctx := contextWithUOW(ctx, u)
		if rd.IdempotencyKey() != "" {
			if _, err := r.FindByIdempotencyKey(ctx, rd.MemberID(), rd.IdempotencyKey()); err == nil {
				return redemption.ErrDuplicateIdempotencyKey
			}
		}
		if r.current(ctx, rd.RedemptionID()) != nil {
			return fmt.Errorf("%w: redemption %s already exists", redemption.ErrInvalidRedemption, rd.RedemptionID())
		}
		u.redemptions[rd.RedemptionID()] = rd.Clone()
		u.newRedemptions[rd.RedemptionID()] = true
		return nil
	})
}

// FindByID 引き換えIDで取得
func (r *RedemptionRepository) FindByID(ctx context.Context, redemptionID string) (*redemption.Redemption, error) {
	rd := r.current(ctx, redemptionID)
	if rd == nil {
		return nil, redemption.ErrRedemptionNotFound
	}
	return rd.Clone(), nil
}

// FindByIDForUpdate 引き換えIDで排他ロック付きで取得
func (r *RedemptionRepository) FindByIDForUpdate(ctx context.Context, redemptionID string) (*redemption.Redemption, error) {
	if u, ok := uowFromContext(ctx); ok {
		if err := u.lock(ctx, redemptionLockKey(redemptionID)); err != nil {
			return nil, err
		}
	}
	return r.FindByID(ctx, redemptionID)
}

// FindByMemberID 会員の引き換え記録を新しい順に取得
func (r *RedemptionRepository) FindByMemberID(ctx context.Context, memberID string) ([]*redemption.Redemption, error) {
	byID := make(map[string]*redemption.Redemption)
	r.store.mu.Lock()
	for id, rd := range r.store.redemptions {
		if rd.MemberID() == memberID {
			byID[id] = rd
		}
	}
	r.store.mu.Unlock()

	if u, ok := uowFromContext(ctx); ok {
		for id, rd := range u.redemptions {
			if rd.MemberID() == memberID {
				byID[id] = rd
			}
		}
	}

	redemptions := make([]*redemption.Redemption, 0, len(byID))
	for _, rd := range byID {
		redemptions = append(redemptions, rd.Clone())
	}
	sort.Slice(redemptions, func(i, j int) bool {
		if !redemptions[i].CreatedAt().Equal(redemptions[j].CreatedAt()) {
			return redemptions[i].CreatedAt().After(redemptions[j].CreatedAt())
		}
		return redemptions[i].RedemptionID() > redemptions[j].RedemptionID()
	})
	return redemptions, nil
}

// FindByIdempotencyKey 会員IDと冪等キーで取得
func (r *RedemptionRepository) FindByIdempotencyKey(ctx context.Context, memberID, idempotencyKey string) (*redemption.Redemption, error) {
	if u, ok := uowFromContext(ctx); ok {
		for _, rd := range u.redemptions {
			if rd.MemberID() == memberID && rd.IdempotencyKey() == idempotencyKey {
				return rd.Clone(), nil
			}
		}
	}

	r.store.mu.Lock()
	id, ok := r.store.redemptionByKey[idempotencyIndex(memberID, idempotencyKey)]
	var rd *redemption.Redemption
	if ok {
		rd = r.store.redemptions[id]
	}
	r.store.mu.Unlock()

	if rd == nil {
		return nil, redemption.ErrRedemptionNotFound
	}
	return rd.Clone(), nil
}

// UpdateStatus フルフィルメントステータスを更新
func (r *RedemptionRepository) UpdateStatus(ctx context.Context, rd *redemption.Redemption) error {
	return r.store.write(ctx, func(u *unitOfWork) error {
		if err := u.lock(ctx, redemptionLockKey(rd.RedemptionID())); err != nil {
			return err
		}
		if r.current(contextWithUOW(ctx, u), rd.RedemptionID()) == nil {
			return redemption.ErrRedemptionNotFound
		}
		u.redemptions[rd.RedemptionID()] = rd.Clone()
		return nil
	})
}
