package handler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	ledgerapp "loyalty-server/internal/application/ledger"
	membershipapp "loyalty-server/internal/application/membership"
	settlementapp "loyalty-server/internal/application/settlement"
	"loyalty-server/internal/domain/ledger"
	"loyalty-server/internal/domain/member"
	"loyalty-server/internal/domain/redemption"
	"loyalty-server/internal/domain/reward"
	"loyalty-server/internal/domain/transaction"
	"loyalty-server/internal/presentation/grpc/interceptor"
)

// idempotencyKeyMetadata 冪等キーを渡すメタデータ
const idempotencyKeyMetadata = "idempotency-key"

// LedgerHandler gRPC台帳サービスハンドラー
type LedgerHandler struct {
	membershipService *membershipapp.MembershipApplicationService
	ledgerService     *ledgerapp.LedgerApplicationService
	settlementService *settlementapp.SettlementApplicationService
}

// NewLedgerHandler 新しいLedgerHandlerを作成
func NewLedgerHandler(
	membershipService *membershipapp.MembershipApplicationService,
	ledgerService *ledgerapp.LedgerApplicationService,
	settlementService *settlementapp.SettlementApplicationService,
) *LedgerHandler {
	return &LedgerHandler{
		membershipService: membershipService,
		ledgerService:     ledgerService,
		settlementService: settlementService,
	}
}

// GetMember 会員の残高取得
func (h *LedgerHandler) GetMember(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	memberID := stringField(req, "member_id")
	if memberID == "" {
		return nil, status.Error(codes.InvalidArgument, "member_id is required")
	}
	if err := authorizeMember(ctx, memberID); err != nil {
		return nil, err
	}

	result, err := h.membershipService.GetMember(ctx, &membershipapp.GetMemberRequest{MemberID: memberID})
	if err != nil {
		return nil, handleError(err)
	}

	return structpb.NewStruct(memberFields(result))
}

// ApplyTransaction 台帳への記帳（スタッフのみ）
func (h *LedgerHandler) ApplyTransaction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := requireStaff(ctx); err != nil {
		return nil, err
	}

	memberID := stringField(req, "member_id")
	if memberID == "" {
		return nil, status.Error(codes.InvalidArgument, "member_id is required")
	}
	txType := stringField(req, "transaction_type")
	if txType == "" {
		return nil, status.Error(codes.InvalidArgument, "transaction_type is required")
	}
	points, err := strconv.ParseInt(stringField(req, "points"), 10, 64)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "points must be a decimal integer string")
	}

	key, err := idempotencyKey(ctx, stringField(req, "idempotency_key"))
	if err != nil {
		return nil, err
	}

	resp, err := h.ledgerService.ApplyTransaction(ctx, &ledgerapp.ApplyTransactionRequest{
		MemberID:        memberID,
		TransactionType: txType,
		Points:          points,
		Description:     stringField(req, "description"),
		RuleID:          stringField(req, "rule_id"),
		RewardID:        stringField(req, "reward_id"),
		IdempotencyKey:  key,
	})
	if err != nil {
		return nil, handleError(err)
	}

	return structpb.NewStruct(map[string]interface{}{
		"entry":    entryFields(resp.Entry),
		"replayed": resp.Replayed,
	})
}

// GetLedger 会員の台帳を時系列順に取得
func (h *LedgerHandler) GetLedger(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	memberID := stringField(req, "member_id")
	if memberID == "" {
		return nil, status.Error(codes.InvalidArgument, "member_id is required")
	}
	if err := authorizeMember(ctx, memberID); err != nil {
		return nil, err
	}

	resp, err := h.ledgerService.GetLedger(ctx, &ledgerapp.GetLedgerRequest{MemberID: memberID})
	if err != nil {
		return nil, handleError(err)
	}

	entries := make([]interface{}, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		entries = append(entries, entryFields(e))
	}

	return structpb.NewStruct(map[string]interface{}{
		"member_id": resp.MemberID,
		"entries":   entries,
	})
}

// VerifyLedger 台帳と残高の整合性を検証
func (h *LedgerHandler) VerifyLedger(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	memberID := stringField(req, "member_id")
	if memberID == "" {
		return nil, status.Error(codes.InvalidArgument, "member_id is required")
	}

	resp, err := h.ledgerService.VerifyLedger(ctx, &ledgerapp.VerifyLedgerRequest{MemberID: memberID})
	if err != nil {
		return nil, handleError(err)
	}

	return structpb.NewStruct(map[string]interface{}{
		"member_id":        resp.MemberID,
		"available_points": formatPoints(resp.AvailablePoints),
		"entry_count":      float64(resp.EntryCount),
		"status":           "consistent",
	})
}

// Redeem 特典の引き換え
func (h *LedgerHandler) Redeem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	memberID := stringField(req, "member_id")
	if memberID == "" {
		return nil, status.Error(codes.InvalidArgument, "member_id is required")
	}
	rewardID := stringField(req, "reward_id")
	if rewardID == "" {
		return nil, status.Error(codes.InvalidArgument, "reward_id is required")
	}
	if err := authorizeMember(ctx, memberID); err != nil {
		return nil, err
	}

	key, err := idempotencyKey(ctx, stringField(req, "idempotency_key"))
	if err != nil {
		return nil, err
	}

	resp, err := h.settlementService.Redeem(ctx, &settlementapp.RedeemRequest{
		MemberID:       memberID,
		RewardID:       rewardID,
		Channel:        stringField(req, "channel"),
		IdempotencyKey: key,
	})
	if err != nil {
		return nil, handleError(err)
	}

	return structpb.NewStruct(map[string]interface{}{
		"redemption":    redemptionFields(resp.Redemption),
		"balance_after": formatPoints(resp.BalanceAfter),
		"replayed":      resp.Replayed,
	})
}

// GetRedemption 引き換え記録の取得
func (h *LedgerHandler) GetRedemption(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	redemptionID := stringField(req, "redemption_id")
	if redemptionID == "" {
		return nil, status.Error(codes.InvalidArgument, "redemption_id is required")
	}

	result, err := h.settlementService.GetRedemption(ctx, &settlementapp.GetRedemptionRequest{RedemptionID: redemptionID})
	if err != nil {
		return nil, handleError(err)
	}
	if err := authorizeMember(ctx, result.MemberID); err != nil {
		return nil, err
	}

	return structpb.NewStruct(redemptionFields(result))
}

func stringField(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}

func formatPoints(p int64) string {
	return strconv.FormatInt(p, 10)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func memberFields(m *membershipapp.MemberResult) map[string]interface{} {
	return map[string]interface{}{
		"member_id":        m.MemberID,
		"available_points": formatPoints(m.AvailablePoints),
		"total_points":     formatPoints(m.TotalPoints),
		"lifetime_points":  formatPoints(m.LifetimePoints),
		"created_at":       formatTime(m.CreatedAt),
		"updated_at":       formatTime(m.UpdatedAt),
	}
}

func entryFields(e *ledgerapp.EntryResult) map[string]interface{} {
	return map[string]interface{}{
		"reference_number": e.ReferenceNumber,
		"member_id":        e.MemberID,
		"transaction_type": e.TransactionType,
		"points":           formatPoints(e.Points),
		"balance_after":    formatPoints(e.BalanceAfter),
		"rule_id":          e.RuleID,
		"reward_id":        e.RewardID,
		"redemption_id":    e.RedemptionID,
		"description":      e.Description,
		"created_at":       formatTime(e.CreatedAt),
	}
}

func redemptionFields(r *settlementapp.RedemptionResult) map[string]interface{} {
	return map[string]interface{}{
		"redemption_id":      r.RedemptionID,
		"member_id":          r.MemberID,
		"reward_id":          r.RewardID,
		"points_redeemed":    formatPoints(r.PointsRedeemed),
		"monetary_value":     r.MonetaryValue,
		"fulfillment_status": r.FulfillmentStatus,
		"channel":            r.Channel,
		"reference_number":   r.ReferenceNumber,
		"created_at":         formatTime(r.CreatedAt),
		"updated_at":         formatTime(r.UpdatedAt),
	}
}

// idempotencyKey メタデータとリクエストの冪等キーを突き合わせる
func idempotencyKey(ctx context.Context, fromBody string) (string, error) {
	var fromMD string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(idempotencyKeyMetadata); len(values) > 0 {
			fromMD = values[0]
		}
	}
	switch {
	case fromMD == "":
		return fromBody, nil
	case fromBody == "" || fromBody == fromMD:
		return fromMD, nil
	default:
		return "", status.Error(codes.InvalidArgument, "idempotency key in metadata and request differ")
	}
}

func authorizeMember(ctx context.Context, memberID string) error {
	p, ok := interceptor.PrincipalFromContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing principal")
	}
	if p.IsStaff() || p.ID == memberID {
		return nil
	}
	return status.Error(codes.PermissionDenied, "access to another member is not allowed")
}

func requireStaff(ctx context.Context) error {
	p, ok := interceptor.PrincipalFromContext(ctx)
	if !ok || !p.IsStaff() {
		return status.Error(codes.PermissionDenied, "staff role required")
	}
	return nil
}

// handleError エラーをgRPCステータスコードに変換
func handleError(err error) error {
	switch {
	case errors.Is(err, member.ErrMemberNotFound),
		errors.Is(err, reward.ErrRewardNotFound),
		errors.Is(err, redemption.ErrRedemptionNotFound),
		errors.Is(err, ledger.ErrEntryNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, member.ErrInsufficientPoints),
		errors.Is(err, reward.ErrOutOfStock),
		errors.Is(err, reward.ErrRewardInactive),
		errors.Is(err, redemption.ErrInvalidStatusTransition),
		errors.Is(err, member.ErrPointsOutOfRange):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, member.ErrMemberAlreadyExists),
		errors.Is(err, reward.ErrRewardAlreadyExists),
		errors.Is(err, transaction.ErrIdempotencyConflict):
		return status.Error(codes.AlreadyExists, err.Error())

	case errors.Is(err, ledger.ErrInvalidPoints),
		errors.Is(err, member.ErrInvalidPoints),
		errors.Is(err, ledger.ErrInvalidEntryType),
		errors.Is(err, member.ErrInvalidMemberID),
		errors.Is(err, reward.ErrInvalidReward),
		errors.Is(err, redemption.ErrInvalidFulfillmentStatus),
		errors.Is(err, ledger.ErrInvalidDescription),
		errors.Is(err, ledger.ErrInvalidLink),
		errors.Is(err, ledger.ErrInvalidIdempotencyKey),
		errors.Is(err, redemption.ErrInvalidChannel),
		errors.Is(err, redemption.ErrInvalidIdempotencyKey):
		return status.Error(codes.InvalidArgument, err.Error())

	// 再試行上限に達したロック競合
	case errors.Is(err, transaction.ErrConflict):
		return status.Error(codes.Unavailable, err.Error())

	case errors.Is(err, ledger.ErrIntegrityViolation):
		return status.Error(codes.Internal, err.Error())
	}

	return status.Error(codes.Internal, "internal server error")
}
