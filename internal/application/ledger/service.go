package ledger

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"loyalty-server/internal/domain/ledger"
	"loyalty-server/internal/domain/member"
	"loyalty-server/internal/domain/service"
	"loyalty-server/internal/domain/transaction"
	otelinfra "loyalty-server/internal/infrastructure/observability/otel"
)

// LedgerApplicationService 台帳アプリケーションサービス
type LedgerApplicationService struct {
	memberRepo    member.MemberRepository
	ledgerRepo    ledger.LedgerRepository
	txManager     transaction.TransactionManager
	ledgerService *service.LedgerService
	idemCache     transaction.IdempotencyCache
	logger        *otelinfra.Logger
	metrics       *otelinfra.Metrics
	tracer        trace.Tracer
}

// NewLedgerApplicationService 新しいLedgerApplicationServiceを作成
func NewLedgerApplicationService(
	memberRepo member.MemberRepository,
	ledgerRepo ledger.LedgerRepository,
	txManager transaction.TransactionManager,
	ledgerService *service.LedgerService,
	idemCache transaction.IdempotencyCache,
	logger *otelinfra.Logger,
	metrics *otelinfra.Metrics,
) *LedgerApplicationService {
	if idemCache == nil {
		idemCache = transaction.NopIdempotencyCache{}
	}
	return &LedgerApplicationService{
		memberRepo:    memberRepo,
		ledgerRepo:    ledgerRepo,
		txManager:     txManager,
		ledgerService: ledgerService,
		idemCache:     idemCache,
		logger:        logger,
		metrics:       metrics,
		tracer:        otel.Tracer("ledger-service"),
	}
}

// ApplyTransaction 会員の残高を変更し、台帳エントリを追記する
func (s *LedgerApplicationService) ApplyTransaction(ctx context.Context, req *ApplyTransactionRequest) (*ApplyTransactionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "LedgerApplicationService.ApplyTransaction")
	defer span.End()

	span.SetAttributes(
		attribute.String("member_id", req.MemberID),
		attribute.String("transaction_type", req.TransactionType),
		attribute.Int64("points", req.Points),
	)

	s.logger.Info(ctx, "Applying transaction", map[string]interface{}{
		"member_id":        req.MemberID,
		"transaction_type": req.TransactionType,
		"points":           req.Points,
	})

	entryType, err := ledger.NewEntryType(req.TransactionType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "invalid transaction type")
		return nil, err
	}
	if req.Points <= 0 || req.Points > ledger.MaxPoints {
		span.RecordError(ledger.ErrInvalidPoints)
		span.SetStatus(otelcodes.Error, "invalid points")
		return nil, ledger.ErrInvalidPoints
	}
	links := ledger.Links{RuleID: req.RuleID, RewardID: req.RewardID}
	if err := ledger.ValidateAttributes(links, req.Description, req.IdempotencyKey); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "invalid attributes")
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.findReplay(ctx, req, entryType)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			return nil, err
		}
		if existing != nil {
			span.SetAttributes(attribute.Bool("replayed", true))
			return &ApplyTransactionResponse{Entry: NewEntryResult(existing), Replayed: true}, nil
		}
	}

	var entry *ledger.Entry
	err = s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		m, err := s.memberRepo.FindByIDForUpdate(ctx, req.MemberID)
		if err != nil {
			return err
		}
		entry, err = s.ledgerService.Post(ctx, m, service.PostRequest{
			EntryType:      entryType,
			Points:         req.Points,
			Description:    req.Description,
			Links:          links,
			IdempotencyKey: req.IdempotencyKey,
		})
		return err
	})

	// 同じ冪等キーの並行リクエストに先を越された場合は、確定した方の結果を返す
	if err != nil && req.IdempotencyKey != "" && errors.Is(err, ledger.ErrDuplicateIdempotencyKey) {
		existing, lookupErr := s.findReplay(ctx, req, entryType)
		if lookupErr == nil && existing != nil {
			return &ApplyTransactionResponse{Entry: NewEntryResult(existing), Replayed: true}, nil
		}
		if lookupErr != nil {
			err = lookupErr
		}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.metrics.RecordError(ctx, "apply_transaction")
		s.logger.Warn(ctx, "Failed to apply transaction", map[string]interface{}{
			"member_id":        req.MemberID,
			"transaction_type": req.TransactionType,
			"points":           req.Points,
			"error":            err.Error(),
		})
		return nil, fmt.Errorf("failed to apply transaction: %w", err)
	}

	s.metrics.RecordLedgerEntry(ctx, entry.EntryType().String(), entry.Magnitude())
	if req.IdempotencyKey != "" {
		if err := s.idemCache.Remember(ctx, transaction.IdempotencyScopeLedger, req.MemberID, req.IdempotencyKey, entry.ReferenceNumber()); err != nil {
			s.logger.Warn(ctx, "Failed to cache idempotency key", map[string]interface{}{
				"member_id": req.MemberID,
				"error":     err.Error(),
			})
		}
	}

	span.SetAttributes(
		attribute.String("reference_number", entry.ReferenceNumber()),
		attribute.Int64("balance_after", entry.BalanceAfter()),
	)
	s.logger.Info(ctx, "Transaction applied", map[string]interface{}{
		"member_id":        req.MemberID,
		"reference_number": entry.ReferenceNumber(),
		"balance_after":    entry.BalanceAfter(),
	})

	return &ApplyTransactionResponse{Entry: NewEntryResult(entry)}, nil
}

// findReplay 冪等キーに対応する既存エントリを探す
// 見つからなければ nil を返し、内容が異なれば ErrIdempotencyConflict を返す
func (s *LedgerApplicationService) findReplay(ctx context.Context, req *ApplyTransactionRequest, entryType ledger.EntryType) (*ledger.Entry, error) {
	memberID, key := req.MemberID, req.IdempotencyKey
	var existing *ledger.Entry

	ref, ok, err := s.idemCache.Lookup(ctx, transaction.IdempotencyScopeLedger, memberID, key)
	if err != nil {
		s.logger.Warn(ctx, "Idempotency cache lookup failed", map[string]interface{}{
			"member_id": memberID,
			"error":     err.Error(),
		})
	}
	if ok {
		e, err := s.ledgerRepo.FindByReferenceNumber(ctx, ref)
		if err == nil && e.MemberID() == memberID {
			existing = e
		}
	}

	if existing == nil {
		e, err := s.ledgerRepo.FindByIdempotencyKey(ctx, memberID, key)
		if errors.Is(err, ledger.ErrEntryNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
		}
		existing = e
	}

	links := ledger.Links{RuleID: req.RuleID, RewardID: req.RewardID}
	if !existing.SameRequest(entryType, req.Points, links, req.Description) {
		return nil, transaction.ErrIdempotencyConflict
	}
	s.metrics.RecordIdempotentReplay(ctx, "apply_transaction")
	s.logger.Info(ctx, "Replaying transaction for idempotency key", map[string]interface{}{
		"member_id":        memberID,
		"reference_number": existing.ReferenceNumber(),
	})
	return existing, nil
}

// GetLedger 会員の台帳を時系列順に取得
func (s *LedgerApplicationService) GetLedger(ctx context.Context, req *GetLedgerRequest) (*GetLedgerResponse, error) {
	ctx, span := s.tracer.Start(ctx, "LedgerApplicationService.GetLedger")
	defer span.End()

	span.SetAttributes(attribute.String("member_id", req.MemberID))

	if _, err := s.memberRepo.FindByID(ctx, req.MemberID); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	entries, err := s.ledgerRepo.FindByMemberID(ctx, req.MemberID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.logger.Error(ctx, "Failed to load ledger", err, map[string]interface{}{
			"member_id": req.MemberID,
		})
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	results := make([]*EntryResult, 0, len(entries))
	for _, e := range entries {
		results = append(results, NewEntryResult(e))
	}
	span.SetAttributes(attribute.Int("entry_count", len(results)))

	return &GetLedgerResponse{
		MemberID: req.MemberID,
		Entries:  results,
	}, nil
}

// VerifyLedger 台帳を再生し、保存されている残高と一致するかを検証する
func (s *LedgerApplicationService) VerifyLedger(ctx context.Context, req *VerifyLedgerRequest) (*VerifyLedgerResponse, error) {
	ctx, span := s.tracer.Start(ctx, "LedgerApplicationService.VerifyLedger")
	defer span.End()

	span.SetAttributes(attribute.String("member_id", req.MemberID))

	var resp *VerifyLedgerResponse
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		m, entries, err := s.ledgerService.Verify(ctx, req.MemberID)
		if err != nil {
			return err
		}
		resp = &VerifyLedgerResponse{
			MemberID:        m.MemberID(),
			AvailablePoints: m.AvailablePoints(),
			EntryCount:      len(entries),
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		if errors.Is(err, ledger.ErrIntegrityViolation) {
			s.metrics.RecordIntegrityViolation(ctx, req.MemberID)
			s.logger.Error(ctx, "Ledger integrity violation", err, map[string]interface{}{
				"member_id": req.MemberID,
			})
		}
		return nil, err
	}

	s.logger.Info(ctx, "Ledger verified", map[string]interface{}{
		"member_id":   resp.MemberID,
		"entry_count": resp.EntryCount,
	})
	return resp, nil
}
