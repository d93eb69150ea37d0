package service

import (
	"context"
	"fmt"

	"loyalty-server/internal/domain/ledger"
	"loyalty-server/internal/domain/member"
)

// LedgerService 台帳への記帳を担うドメインサービス
// 会員残高の変更は必ずこのサービスを経由し、対になる台帳エントリを生成する
type LedgerService struct {
	memberRepo member.MemberRepository
	ledgerRepo ledger.LedgerRepository
	idGen      IDGenerator
}

// NewLedgerService 新しいLedgerServiceを作成
func NewLedgerService(memberRepo member.MemberRepository, ledgerRepo ledger.LedgerRepository, idGen IDGenerator) *LedgerService {
	return &LedgerService{
		memberRepo: memberRepo,
		ledgerRepo: ledgerRepo,
		idGen:      idGen,
	}
}

// PostRequest 記帳内容
type PostRequest struct {
	EntryType      ledger.EntryType
	Points         int64 // 正の値
	Description    string
	Links          ledger.Links
	IdempotencyKey string
}

// Post 排他ロック済みの会員に記帳する
// 会員残高の更新と台帳エントリの追記を行う。呼び出し側のトランザクション内で実行すること
func (s *LedgerService) Post(ctx context.Context, m *member.Member, req PostRequest) (*ledger.Entry, error) {
	if !req.EntryType.Valid() {
		return nil, ledger.ErrInvalidEntryType
	}
	if req.Points <= 0 || req.Points > ledger.MaxPoints {
		return nil, ledger.ErrInvalidPoints
	}

	if req.EntryType.IsDebit() {
		if err := m.Debit(req.Points); err != nil {
			return nil, err
		}
	} else {
		if err := m.Credit(req.Points, req.EntryType.AccruesLifetime()); err != nil {
			return nil, err
		}
	}

	entry, err := ledger.NewEntry(
		s.idGen.NewReferenceNumber(),
		m.MemberID(),
		req.EntryType,
		req.Points,
		m.AvailablePoints(),
		req.Links,
		req.Description,
		req.IdempotencyKey,
	)
	if err != nil {
		return nil, err
	}

	if err := s.memberRepo.Save(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to save member: %w", err)
	}
	if err := s.ledgerRepo.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return entry, nil
}

// Verify 会員の台帳を再生し、保存されている残高と一致するか検証する
// 検証中の記帳を防ぐため会員をロックする。呼び出し側のトランザクション内で実行すること
func (s *LedgerService) Verify(ctx context.Context, memberID string) (*member.Member, []*ledger.Entry, error) {
	m, err := s.memberRepo.FindByIDForUpdate(ctx, memberID)
	if err != nil {
		return nil, nil, err
	}
	entries, err := s.ledgerRepo.FindByMemberID(ctx, memberID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	if err := ledger.VerifyBalance(entries, m.AvailablePoints()); err != nil {
		return m, entries, fmt.Errorf("member %s: %w", memberID, err)
	}
	return m, entries, nil
}
