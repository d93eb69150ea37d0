package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"loyalty-server/internal/domain/reward"
	"loyalty-server/internal/domain/service"
	otelinfra "loyalty-server/internal/infrastructure/observability/otel"
)

// CatalogApplicationService 特典カタログアプリケーションサービス
type CatalogApplicationService struct {
	rewardRepo reward.RewardRepository
	idGen      service.IDGenerator
	logger     *otelinfra.Logger
	metrics    *otelinfra.Metrics
	tracer     trace.Tracer
}

// NewCatalogApplicationService 新しいCatalogApplicationServiceを作成
func NewCatalogApplicationService(
	rewardRepo reward.RewardRepository,
	idGen service.IDGenerator,
	logger *otelinfra.Logger,
	metrics *otelinfra.Metrics,
) *CatalogApplicationService {
	return &CatalogApplicationService{
		rewardRepo: rewardRepo,
		idGen:      idGen,
		logger:     logger,
		metrics:    metrics,
		tracer:     otel.Tracer("catalog-service"),
	}
}

// CreateReward 特典を作成
func (s *CatalogApplicationService) CreateReward(ctx context.Context, req *CreateRewardRequest) (*RewardResult, error) {
	ctx, span := s.tracer.Start(ctx, "CatalogApplicationService.CreateReward")
	defer span.End()

	rewardID := req.RewardID
	if rewardID == "" {
		rewardID = s.idGen.NewRewardID()
	}
	span.SetAttributes(
		attribute.String("reward_id", rewardID),
		attribute.Int64("points_required", req.PointsRequired),
		attribute.Int64("stock_quantity", req.StockQuantity),
	)

	r, err := buildReward(rewardID, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "invalid reward")
		return nil, err
	}

	if err := s.rewardRepo.Create(ctx, r); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.logger.Warn(ctx, "Failed to create reward", map[string]interface{}{
			"reward_id": rewardID,
			"error":     err.Error(),
		})
		return nil, fmt.Errorf("failed to create reward: %w", err)
	}

	s.metrics.RecordRewardStock(ctx, r.RewardID(), r.StockQuantity())
	s.logger.Info(ctx, "Reward created", map[string]interface{}{
		"reward_id":       r.RewardID(),
		"points_required": r.PointsRequired(),
		"stock_quantity":  r.StockQuantity(),
	})
	return NewRewardResult(r), nil
}

func buildReward(rewardID string, req *CreateRewardRequest) (*reward.Reward, error) {
	value := decimal.Zero
	if req.MonetaryValue != "" {
		v, err := decimal.NewFromString(req.MonetaryValue)
		if err != nil {
			return nil, fmt.Errorf("%w: monetary_value %q", reward.ErrInvalidReward, req.MonetaryValue)
		}
		value = v
	}

	status := reward.RewardStatusActive
	if req.Status != "" {
		st, err := reward.NewRewardStatus(req.Status)
		if err != nil {
			return nil, err
		}
		status = st
	}

	now := time.Now()
	return reward.ReconstructReward(
		rewardID,
		req.Name,
		req.PointsRequired,
		value,
		req.StockQuantity,
		status,
		req.ValidFrom,
		req.ValidUntil,
		req.PartnerCode,
		now,
		now,
	)
}

// GetReward 特典を取得
func (s *CatalogApplicationService) GetReward(ctx context.Context, req *GetRewardRequest) (*RewardResult, error) {
	ctx, span := s.tracer.Start(ctx, "CatalogApplicationService.GetReward")
	defer span.End()

	span.SetAttributes(attribute.String("reward_id", req.RewardID))

	r, err := s.rewardRepo.FindByID(ctx, req.RewardID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}
	return NewRewardResult(r), nil
}

// ListRewards 特典一覧を必要ポイントの昇順で取得
func (s *CatalogApplicationService) ListRewards(ctx context.Context, req *ListRewardsRequest) (*ListRewardsResponse, error) {
	ctx, span := s.tracer.Start(ctx, "CatalogApplicationService.ListRewards")
	defer span.End()

	span.SetAttributes(attribute.Bool("active_only", req.ActiveOnly))

	rewards, err := s.rewardRepo.FindAll(ctx, req.ActiveOnly)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.logger.Error(ctx, "Failed to list rewards", err, nil)
		return nil, fmt.Errorf("failed to list rewards: %w", err)
	}

	results := make([]*RewardResult, 0, len(rewards))
	for _, r := range rewards {
		results = append(results, NewRewardResult(r))
	}
	return &ListRewardsResponse{Rewards: results}, nil
}
