package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"loyalty-server/internal/domain/ledger"
	"loyalty-server/internal/domain/member"
	"loyalty-server/internal/domain/redemption"
	"loyalty-server/internal/domain/reward"
	"loyalty-server/internal/domain/service"
	"loyalty-server/internal/domain/transaction"
	otelinfra "loyalty-server/internal/infrastructure/observability/otel"
)

// 引き換え結果のメトリクスラベル
const (
	OutcomeSettled            = "settled"
	OutcomeReplayed           = "replayed"
	OutcomeNotFound           = "not_found"
	OutcomeInactive           = "inactive"
	OutcomeOutOfStock         = "out_of_stock"
	OutcomeInsufficientPoints = "insufficient_points"
	OutcomeConflict           = "conflict"
	OutcomeError              = "error"
)

// SettlementApplicationService 引き換え精算アプリケーションサービス
// ポイント減算・在庫減算・引き換え記録・台帳エントリを1つのトランザクションで確定する
type SettlementApplicationService struct {
	memberRepo     member.MemberRepository
	rewardRepo     reward.RewardRepository
	redemptionRepo redemption.RedemptionRepository
	ledgerRepo     ledger.LedgerRepository
	txManager      transaction.TransactionManager
	ledgerService  *service.LedgerService
	idGen          service.IDGenerator
	idemCache      transaction.IdempotencyCache
	logger         *otelinfra.Logger
	metrics        *otelinfra.Metrics
	tracer         trace.Tracer
	now            func() time.Time
}

// NewSettlementApplicationService 新しいSettlementApplicationServiceを作成
func NewSettlementApplicationService(
	memberRepo member.MemberRepository,
	rewardRepo reward.RewardRepository,
	redemptionRepo redemption.RedemptionRepository,
	ledgerRepo ledger.LedgerRepository,
	txManager transaction.TransactionManager,
	ledgerService *service.LedgerService,
	idGen service.IDGenerator,
	idemCache transaction.IdempotencyCache,
	logger *otelinfra.Logger,
	metrics *otelinfra.Metrics,
) *SettlementApplicationService {
	if idemCache == nil {
		idemCache = transaction.NopIdempotencyCache{}
	}
	return &SettlementApplicationService{
		memberRepo:     memberRepo,
		rewardRepo:     rewardRepo,
		redemptionRepo: redemptionRepo,
		ledgerRepo:     ledgerRepo,
		txManager:      txManager,
		ledgerService:  ledgerService,
		idGen:          idGen,
		idemCache:      idemCache,
		logger:         logger,
		metrics:        metrics,
		tracer:         otel.Tracer("settlement-service"),
		now:            time.Now,
	}
}

// Redeem 特典を引き換える
// ロック順序は常に 特典 → 会員
func (s *SettlementApplicationService) Redeem(ctx context.Context, req *RedeemRequest) (*RedeemResponse, error) {
	ctx, span := s.tracer.Start(ctx, "SettlementApplicationService.Redeem")
	defer span.End()

	span.SetAttributes(
		attribute.String("member_id", req.MemberID),
		attribute.String("reward_id", req.RewardID),
		attribute.String("channel", req.Channel),
	)

	s.logger.Info(ctx, "Redeeming reward", map[string]interface{}{
		"member_id": req.MemberID,
		"reward_id": req.RewardID,
		"channel":   req.Channel,
	})

	if err := redemption.ValidateRequest(req.Channel, req.IdempotencyKey); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "invalid redemption request")
		return nil, err
	}

	if req.IdempotencyKey != "" {
		resp, err := s.findReplay(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			return nil, err
		}
		if resp != nil {
			s.metrics.RecordRedemption(ctx, OutcomeReplayed)
			span.SetAttributes(attribute.Bool("replayed", true))
			return resp, nil
		}
	}

	var (
		rd             *redemption.Redemption
		entry          *ledger.Entry
		remainingStock int64
	)
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		rw, err := s.rewardRepo.FindByIDForUpdate(ctx, req.RewardID)
		if err != nil {
			return err
		}
		if err := rw.CheckRedeemable(s.now()); err != nil {
			return err
		}

		m, err := s.memberRepo.FindByIDForUpdate(ctx, req.MemberID)
		if err != nil {
			return err
		}

		redemptionID := s.idGen.NewRedemptionID()
		entry, err = s.ledgerService.Post(ctx, m, service.PostRequest{
			EntryType:   ledger.EntryTypeRedemption,
			Points:      rw.PointsRequired(),
			Description: "Redeemed: " + rw.Name(),
			Links: ledger.Links{
				RewardID:     rw.RewardID(),
				RedemptionID: redemptionID,
			},
		})
		if err != nil {
			return err
		}

		if err := rw.DecrementStock(); err != nil {
			return err
		}
		if err := s.rewardRepo.SaveStock(ctx, rw); err != nil {
			return fmt.Errorf("failed to save stock: %w", err)
		}
		remainingStock = rw.StockQuantity()

		rd, err = redemption.NewRedemption(
			redemptionID,
			m.MemberID(),
			rw.RewardID(),
			rw.PointsRequired(),
			rw.MonetaryValue(),
			req.Channel,
			rw.PartnerCode(),
			entry.ReferenceNumber(),
			req.IdempotencyKey,
		)
		if err != nil {
			return err
		}
		return s.redemptionRepo.Create(ctx, rd)
	})

	// 同じ冪等キーの並行リクエストに先を越された場合は、確定した方の結果を返す
	if err != nil && req.IdempotencyKey != "" && errors.Is(err, redemption.ErrDuplicateIdempotencyKey) {
		resp, lookupErr := s.findReplay(ctx, req)
		if lookupErr == nil && resp != nil {
			s.metrics.RecordRedemption(ctx, OutcomeReplayed)
			return resp, nil
		}
		if lookupErr != nil {
			err = lookupErr
		}
	}

	if err != nil {
		outcome := outcomeOf(err)
		s.metrics.RecordRedemption(ctx, outcome)
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.logger.Warn(ctx, "Redemption rejected", map[string]interface{}{
			"member_id": req.MemberID,
			"reward_id": req.RewardID,
			"outcome":   outcome,
			"error":     err.Error(),
		})
		return nil, fmt.Errorf("failed to redeem reward: %w", err)
	}

	s.metrics.RecordRedemption(ctx, OutcomeSettled)
	s.metrics.RecordLedgerEntry(ctx, entry.EntryType().String(), entry.Magnitude())
	s.metrics.RecordRewardStock(ctx, rd.RewardID(), remainingStock)
	if req.IdempotencyKey != "" {
		if err := s.idemCache.Remember(ctx, transaction.IdempotencyScopeRedemption, req.MemberID, req.IdempotencyKey, rd.RedemptionID()); err != nil {
			s.logger.Warn(ctx, "Failed to cache idempotency key", map[string]interface{}{
				"member_id": req.MemberID,
				"error":     err.Error(),
			})
		}
	}

	span.SetAttributes(
		attribute.String("redemption_id", rd.RedemptionID()),
		attribute.String("reference_number", entry.ReferenceNumber()),
	)
	s.logger.Info(ctx, "Reward redeemed", map[string]interface{}{
		"member_id":       req.MemberID,
		"reward_id":       req.RewardID,
		"redemption_id":   rd.RedemptionID(),
		"balance_after":   entry.BalanceAfter(),
		"remaining_stock": remainingStock,
	})

	return &RedeemResponse{
		Redemption:   NewRedemptionResult(rd),
		BalanceAfter: entry.BalanceAfter(),
	}, nil
}

// findReplay 冪等キーに対応する既存の引き換えを探す
func (s *SettlementApplicationService) findReplay(ctx context.Context, req *RedeemRequest) (*RedeemResponse, error) {
	var existing *redemption.Redemption

	id, ok, err := s.idemCache.Lookup(ctx, transaction.IdempotencyScopeRedemption, req.MemberID, req.IdempotencyKey)
	if err != nil {
		s.logger.Warn(ctx, "Idempotency cache lookup failed", map[string]interface{}{
			"member_id": req.MemberID,
			"error":     err.Error(),
		})
	}
	if ok {
		rd, err := s.redemptionRepo.FindByID(ctx, id)
		if err == nil && rd.MemberID() == req.MemberID {
			existing = rd
		}
	}

	if existing == nil {
		rd, err := s.redemptionRepo.FindByIdempotencyKey(ctx, req.MemberID, req.IdempotencyKey)
		if errors.Is(err, redemption.ErrRedemptionNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
		}
		existing = rd
	}

	if !existing.SameRequest(req.RewardID, req.Channel) {
		return nil, transaction.ErrIdempotencyConflict
	}

	var balanceAfter int64
	if entry, err := s.ledgerRepo.FindByReferenceNumber(ctx, existing.ReferenceNumber()); err == nil {
		balanceAfter = entry.BalanceAfter()
	}

	s.metrics.RecordIdempotentReplay(ctx, "redeem")
	s.logger.Info(ctx, "Replaying redemption for idempotency key", map[string]interface{}{
		"member_id":     req.MemberID,
		"redemption_id": existing.RedemptionID(),
	})
	return &RedeemResponse{
		Redemption:   NewRedemptionResult(existing),
		BalanceAfter: balanceAfter,
		Replayed:     true,
	}, nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, reward.ErrRewardNotFound), errors.Is(err, member.ErrMemberNotFound):
		return OutcomeNotFound
	case errors.Is(err, reward.ErrRewardInactive):
		return OutcomeInactive
	case errors.Is(err, reward.ErrOutOfStock):
		return OutcomeOutOfStock
	case errors.Is(err, member.ErrInsufficientPoints):
		return OutcomeInsufficientPoints
	case errors.Is(err, transaction.ErrConflict), errors.Is(err, transaction.ErrIdempotencyConflict):
		return OutcomeConflict
	default:
		return OutcomeError
	}
}

// UpdateFulfillmentStatus フルフィルメントステータスを更新する
// ポイントの返還は行わない。返還する場合は呼び出し側が reversal を記帳する
func (s *SettlementApplicationService) UpdateFulfillmentStatus(ctx context.Context, req *UpdateFulfillmentStatusRequest) (*RedemptionResult, error) {
	ctx, span := s.tracer.Start(ctx, "SettlementApplicationService.UpdateFulfillmentStatus")
	defer span.End()

	span.SetAttributes(
		attribute.String("redemption_id", req.RedemptionID),
		attribute.String("fulfillment_status", req.FulfillmentStatus),
	)

	next, err := redemption.NewFulfillmentStatus(req.FulfillmentStatus)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "invalid fulfillment status")
		return nil, err
	}

	var rd *redemption.Redemption
	err = s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		rd, err = s.redemptionRepo.FindByIDForUpdate(ctx, req.RedemptionID)
		if err != nil {
			return err
		}
		if err := rd.UpdateStatus(next); err != nil {
			return err
		}
		return s.redemptionRepo.UpdateStatus(ctx, rd)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.logger.Warn(ctx, "Failed to update fulfillment status", map[string]interface{}{
			"redemption_id": req.RedemptionID,
			"error":         err.Error(),
		})
		return nil, fmt.Errorf("failed to update fulfillment status: %w", err)
	}

	s.logger.Info(ctx, "Fulfillment status updated", map[string]interface{}{
		"redemption_id":      rd.RedemptionID(),
		"fulfillment_status": rd.Status().String(),
	})
	return NewRedemptionResult(rd), nil
}

// GetRedemption 引き換え記録を取得
func (s *SettlementApplicationService) GetRedemption(ctx context.Context, req *GetRedemptionRequest) (*RedemptionResult, error) {
	ctx, span := s.tracer.Start(ctx, "SettlementApplicationService.GetRedemption")
	defer span.End()

	span.SetAttributes(attribute.String("redemption_id", req.RedemptionID))

	rd, err := s.redemptionRepo.FindByID(ctx, req.RedemptionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}
	return NewRedemptionResult(rd), nil
}

// ListMemberRedemptions 会員の引き換え記録を新しい順に取得
func (s *SettlementApplicationService) ListMemberRedemptions(ctx context.Context, req *ListMemberRedemptionsRequest) (*ListMemberRedemptionsResponse, error) {
	ctx, span := s.tracer.Start(ctx, "SettlementApplicationService.ListMemberRedemptions")
	defer span.End()

	span.SetAttributes(attribute.String("member_id", req.MemberID))

	if _, err := s.memberRepo.FindByID(ctx, req.MemberID); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	list, err := s.redemptionRepo.FindByMemberID(ctx, req.MemberID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.logger.Error(ctx, "Failed to list redemptions", err, map[string]interface{}{
			"member_id": req.MemberID,
		})
		return nil, fmt.Errorf("failed to list redemptions: %w", err)
	}

	results := make([]*RedemptionResult, 0, len(list))
	for _, rd := range list {
		results = append(results, NewRedemptionResult(rd))
	}
	return &ListMemberRedemptionsResponse{
		MemberID:    req.MemberID,
		Redemptions: results,
	}, nil
}
