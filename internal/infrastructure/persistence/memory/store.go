// Package memory プロセス内メモリによる永続化実装
// 会員・特典・引き換え記録ごとの排他ロックと、トランザクション単位の書き込みバッファを持つ
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"loyalty-server/internal/domain/ledger"
	"loyalty-server/internal/domain/member"
	"loyalty-server/internal/domain/redemption"
	"loyalty-server/internal/domain/reward"
	"loyalty-server/internal/domain/transaction"
)

// DefaultLockTimeout ロック取得の既定の待機上限
const DefaultLockTimeout = 5 * time.Second

// Store コミット済みデータとロック表
type Store struct {
	mu          sync.Mutex
	lockTimeout time.Duration

	members         map[string]*member.Member
	rewards         map[string]*reward.Reward
	redemptions     map[string]*redemption.Redemption
	entries         map[string][]*ledger.Entry // member_id -> 追記順
	entryByRef      map[string]*ledger.Entry
	entryByKey      map[string]*ledger.Entry
	redemptionByKey map[string]string

	locks map[string]*lockEntry
}

// lockEntry 排他ロック1つ分。refs は保持中と待機中のトランザクション数
type lockEntry struct {
	ch   chan struct{}
	refs int
}

// NewStore 新しいStoreを作成
func NewStore(lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Store{
		lockTimeout:     lockTimeout,
		members:         make(map[string]*member.Member),
		rewards:         make(map[string]*reward.Reward),
		redemptions:     make(map[string]*redemption.Redemption),
		entries:         make(map[string][]*ledger.Entry),
		entryByRef:      make(map[string]*ledger.Entry),
		entryByKey:      make(map[string]*ledger.Entry),
		redemptionByKey: make(map[string]string),
		locks:           make(map[string]*lockEntry),
	}
}

func idempotencyIndex(memberID, key string) string {
	return memberID + "\x00" + key
}

// acquireLockEntry ロックキーの参照を1つ増やして返す（なければ作成）
func (s *Store) acquireLockEntry(key string) *lockEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &lockEntry{ch: make(chan struct{}, 1)}
		s.locks[key] = l
	}
	l.refs++
	return l
}

// releaseLockEntry 参照を1つ減らし、誰も使っていなければロック表から取り除く
func (s *Store) releaseLockEntry(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		return
	}
	l.refs--
	if l.refs == 0 {
		delete(s.locks, key)
	}
}

// lockCount ロック表の大きさ
func (s *Store) lockCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

// unitOfWork 1トランザクション分のロックと未コミットの書き込み
type unitOfWork struct {
	store *Store
	held  map[string]*lockEntry

	members        map[string]*member.Member
	newMembers     map[string]bool
	rewards        map[string]*reward.Reward
	newRewards     map[string]bool
	redemptions    map[string]*redemption.Redemption
	newRedemptions map[string]bool
	entries        []*ledger.Entry
}

func (s *Store) begin() *unitOfWork {
	return &unitOfWork{
		store:          s,
		held:           make(map[string]*lockEntry),
		members:        make(map[string]*member.Member),
		newMembers:     make(map[string]bool),
		rewards:        make(map[string]*reward.Reward),
		newRewards:     make(map[string]bool),
		redemptions:    make(map[string]*redemption.Redemption),
		newRedemptions: make(map[string]bool),
	}
}

type uowKey struct{}

func contextWithUOW(ctx context.Context, u *unitOfWork) context.Context {
	return context.WithValue(ctx, uowKey{}, u)
}

func uowFromContext(ctx context.Context) (*unitOfWork, bool) {
	u, ok := ctx.Value(uowKey{}).(*unitOfWork)
	return u, ok
}

// lock 排他ロックを取得する。同じトランザクション内では再入可能
// 待機上限を超えた場合は transaction.ErrConflict を返す
func (u *unitOfWork) lock(ctx context.Context, key string) error {
	if _, ok := u.held[key]; ok {
		return nil
	}
	l := u.store.acquireLockEntry(key)

	timer := time.NewTimer(u.store.lockTimeout)
	defer timer.Stop()
	select {
	case l.ch <- struct{}{}:
		u.held[key] = l
		return nil
	case <-timer.C:
		u.store.releaseLockEntry(key)
		return fmt.Errorf("%w: lock wait timeout on %s", transaction.ErrConflict, key)
	case <-ctx.Done():
		u.store.releaseLockEntry(key)
		return ctx.Err()
	}
}

func (u *unitOfWork) release() {
	for key, l := range u.held {
		<-l.ch
		u.store.releaseLockEntry(key)
		delete(u.held, key)
	}
}

func (u *unitOfWork) rollback() {
	u.release()
}

// commit 書き込みを検証してから一括で反映する
func (u *unitOfWork) commit() error {
	defer u.release()

	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range u.newMembers {
		if _, exists := s.members[id]; exists {
			return member.ErrMemberAlreadyExists
		}
	}
	for id := range u.newRewards {
		if _, exists := s.rewards[id]; exists {
			return reward.ErrRewardAlreadyExists
		}
	}
	for id := range u.newRedemptions {
		rd := u.redemptions[id]
		if rd.IdempotencyKey() == "" {
			continue
		}
		if _, exists := s.redemptionByKey[idempotencyIndex(rd.MemberID(), rd.IdempotencyKey())]; exists {
			return redemption.ErrDuplicateIdempotencyKey
		}
	}
	for _, e := range u.entries {
		if _, exists := s.entryByRef[e.ReferenceNumber()]; exists {
			return ledger.ErrDuplicateReferenceNumber
		}
		if e.IdempotencyKey() == "" {
			continue
		}
		if _, exists := s.entryByKey[idempotencyIndex(e.MemberID(), e.IdempotencyKey())]; exists {
			return ledger.ErrDuplicateIdempotencyKey
		}
	}

	for id, m := range u.members {
		s.members[id] = m
	}
	for id, rw := range u.rewards {
		s.rewards[id] = rw
	}
	for id, rd := range u.redemptions {
		s.redemptions[id] = rd
		if rd.IdempotencyKey() != "" {
			s.redemptionByKey[idempotencyIndex(rd.MemberID(), rd.IdempotencyKey())] = id
		}
	}
	for _, e := range u.entries {
		s.entries[e.MemberID()] = append(s.entries[e.MemberID()], e)
		s.entryByRef[e.ReferenceNumber()] = e
		if e.IdempotencyKey() != "" {
			s.entryByKey[idempotencyIndex(e.MemberID(), e.IdempotencyKey())] = e
		}
	}
	return nil
}

// write コンテキストのトランザクションで書き込む。トランザクション外であれば即時にコミットする
func (s *Store) write(ctx context.Context, fn func(u *unitOfWork) error) error {
	if u, ok := uowFromContext(ctx); ok {
		return fn(u)
	}
	u := s.begin()
	if err := fn(u); err != nil {
		u.rollback()
		return err
	}
	return u.commit()
}

// TransactionManager メモリストアのトランザクション管理
type TransactionManager struct {
	store   *Store
	policy  transaction.RetryPolicy
	onRetry func(ctx context.Context, attempt int, err error)
}

var _ transaction.TransactionManager = (*TransactionManager)(nil)

// NewTransactionManager 新しいトランザクションマネージャーを作成
func NewTransactionManager(store *Store, policy transaction.RetryPolicy) *TransactionManager {
	return &TransactionManager{store: store, policy: policy}
}

// OnRetry 再実行時に呼ばれるフックを設定
func (tm *TransactionManager) OnRetry(fn func(ctx context.Context, attempt int, err error)) {
	tm.onRetry = fn
}

// WithTransaction トランザクション内で関数を実行
// 既にトランザクション中のコンテキストであれば、そのトランザクションに参加する
func (tm *TransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := uowFromContext(ctx); ok {
		return fn(ctx)
	}

	return tm.policy.Run(ctx, func() error {
		return tm.runOnce(ctx, fn)
	}, func(attempt int, err error) {
		if tm.onRetry != nil {
			tm.onRetry(ctx, attempt, err)
		}
	})
}

func (tm *TransactionManager) runOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	u := tm.store.begin()

	defer func() {
		if p := recover(); p != nil {
			u.rollback()
			panic(p)
		}
	}()

	if err := fn(contextWithUOW(ctx, u)); err != nil {
		u.rollback()
		return err
	}
	return u.commit()
}
