package memory

import (
	"context"
	"sort"

	"loyalty-server/internal/domain/reward"
)

func rewardLockKey(rewardID string) string { return "reward:" + rewardID }

// RewardRepository メモリ実装のRewardRepository
type RewardRepository struct {
	store *Store
}

var _ reward.RewardRepository = (*RewardRepository)(nil)

// NewRewardRepository 新しいRewardRepositoryを作成
func NewRewardRepository(store *Store) *RewardRepository {
	return &RewardRepository{store: store}
}

func (r *RewardRepository) current(ctx context.Context, rewardID string) *reward.Reward {
	if u, ok := uowFromContext(ctx); ok {
		if rw, ok := u.rewards[rewardID]; ok {
			return rw
		}
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.rewards[rewardID]
}

// FindByID 特典IDで特典を取得
func (r *RewardRepository) FindByID(ctx context.Context, rewardID string) (*reward.Reward, error) {
	rw := r.current(ctx, rewardID)
	if rw == nil {
		return nil, reward.ErrRewardNotFound
	}
	return rw.Clone(), nil
}

// FindByIDForUpdate 特典IDで特典を排他ロック付きで取得
func (r *RewardRepository) FindByIDForUpdate(ctx context.Context, rewardID string) (*reward.Reward, error) {
	if u, ok := uowFromContext(ctx); ok {
		if err := u.lock(ctx, rewardLockKey(rewardID)); err != nil {
			return nil, err
		}
	}
	return r.FindByID(ctx, rewardID)
}

// FindAll 特典一覧を必要ポイントの昇順で取得
func (r *RewardRepository) FindAll(ctx context.Context, activeOnly bool) ([]*reward.Reward, error) {
	r.store.mu.Lock()
	byID := make(map[string]*reward.Reward, len(r.store.rewards))
	for id, rw := range r.store.rewards {
		byID[id] = rw
	}
	r.store.mu.Unlock()

	if u, ok := uowFromContext(ctx); ok {
		for id, rw := range u.rewards {
			byID[id] = rw
		}
	}

	rewards := make([]*reward.Reward, 0, len(byID))
	for _, rw := range byID {
		if activeOnly && !rw.Status().IsActive() {
			continue
		}
		rewards = append(rewards, rw.Clone())
	}
	sort.Slice(rewards, func(i, j int) bool {
		if rewards[i].PointsRequired() != rewards[j].PointsRequired() {
			return rewards[i].PointsRequired() < rewards[j].PointsRequired()
		}
		return rewards[i].RewardID() < rewards[j].RewardID()
	})
	return rewards, nil
}

// Create 新しい特典を作成
func (r *RewardRepository) Create(ctx context.Context, rw *reward.Reward) error {
	return r.store.write(ctx, func(u *unitOfWork) error {
		if err := u.lock(ctx, rewardLockKey(rw.RewardID())); err != nil {
			return err
		}
		if r.current(contextWithUOW(ctx, u), rw.RewardID()) != nil {
			return reward.ErrRewardAlreadyExists
		}
		u.rewards[rw.RewardID()] = rw.Clone()
		u.newRewards[rw.RewardID()] = true
		return nil
	})
}

// SaveStock 在庫数を保存
func (r *RewardRepository) SaveStock(ctx context.Context, rw *reward.Reward) error {
	return r.store.write(ctx, func(u *unitOfWork) error {
		if err := u.lock(ctx, rewardLockKey(rw.RewardID())); err != nil {
			return err
		}
		if r.current(contextWithUOW(ctx, u), rw.RewardID()) == nil {
			return reward.ErrRewardNotFound
		}
		u.rewards[rw.RewardID()] = rw.Clone()
		return nil
	})
}
