package membership

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"loyalty-server/internal/domain/member"
	otelinfra "loyalty-server/internal/infrastructure/observability/otel"
)

// MembershipApplicationService 会員アプリケーションサービス
type MembershipApplicationService struct {
	memberRepo member.MemberRepository
	logger     *otelinfra.Logger
	tracer     trace.Tracer
}

// NewMembershipApplicationService 新しいMembershipApplicationServiceを作成
func NewMembershipApplicationService(memberRepo member.MemberRepository, logger *otelinfra.Logger) *MembershipApplicationService {
	return &MembershipApplicationService{
		memberRepo: memberRepo,
		logger:     logger,
		tracer:     otel.Tracer("membership-service"),
	}
}

// Enroll 残高0の会員アカウントを作成
func (s *MembershipApplicationService) Enroll(ctx context.Context, req *EnrollRequest) (*MemberResult, error) {
	ctx, span := s.tracer.Start(ctx, "MembershipApplicationService.Enroll")
	defer span.End()

	span.SetAttributes(attribute.String("member_id", req.MemberID))

	m, err := member.NewMember(req.MemberID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "invalid member id")
		return nil, err
	}

	if err := s.memberRepo.Create(ctx, m); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.logger.Warn(ctx, "Failed to enroll member", map[string]interface{}{
			"member_id": req.MemberID,
			"error":     err.Error(),
		})
		return nil, fmt.Errorf("failed to enroll member: %w", err)
	}

	s.logger.Info(ctx, "Member enrolled", map[string]interface{}{
		"member_id": m.MemberID(),
	})
	return NewMemberResult(m), nil
}

// GetMember 会員アカウントを取得
func (s *MembershipApplicationService) GetMember(ctx context.Context, req *GetMemberRequest) (*MemberResult, error) {
	ctx, span := s.tracer.Start(ctx, "MembershipApplicationService.GetMember")
	defer span.End()

	span.SetAttributes(attribute.String("member_id", req.MemberID))

	m, err := s.memberRepo.FindByID(ctx, req.MemberID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}
	return NewMemberResult(m), nil
}
