package handler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
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
	"loyalty-server/internal/domain/service"
	"loyalty-server/internal/domain/transaction"
	"loyalty-server/internal/infrastructure/idgen"
	otelinfra "loyalty-server/internal/infrastructure/observability/otel"
	"loyalty-server/internal/infrastructure/persistence/memory"
	"loyalty-server/internal/presentation/grpc/interceptor"
)

type handlerEnv struct {
	handler    *LedgerHandler
	membership *membershipapp.MembershipApplicationService
	rewards    *memory.RewardRepository
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	store := memory.NewStore(5 * time.Second)
	tm := memory.NewTransactionManager(store, transaction.DefaultRetryPolicy)
	members := memory.NewMemberRepository(store)
	entries := memory.NewLedgerRepository(store)
	rewards := memory.NewRewardRepository(store)
	redemptions := memory.NewRedemptionRepository(store)

	logger := otelinfra.NewLoggerWithZap(noop.NewTracerProvider().Tracer("test"), zap.NewNop())
	metrics, err := otelinfra.NewMetrics("test")
	require.NoError(t, err)

	ids := idgen.NewUUIDGenerator()
	ledgerService := service.NewLedgerService(members, entries, ids)

	membership := membershipapp.NewMembershipApplicationService(members, logger)
	h := NewLedgerHandler(
		membership,
		ledgerapp.NewLedgerApplicationService(members, entries, tm, ledgerService, nil, logger, metrics),
		settlementapp.NewSettlementApplicationService(members, rewards, redemptions, entries, tm, ledgerService, ids, nil, logger, metrics),
	)
	return &handlerEnv{handler: h, membership: membership, rewards: rewards}
}

func staffCtx() context.Context {
	return interceptor.ContextWithPrincipal(context.Background(), interceptor.Principal{ID: "staff-1", Role: interceptor.RoleStaff})
}

func memberCtx(id string) context.Context {
	return interceptor.ContextWithPrincipal(context.Background(), interceptor.Principal{ID: id, Role: interceptor.RoleMember})
}

func newStruct(t *testing.T, fields map[string]interface{}) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return s
}

// enroll 会員を登録し、pointsが正なら獲得として記帳する
func (env *handlerEnv) enroll(t *testing.T, memberID, points string) {
	t.Helper()
	_, err := env.membership.Enroll(context.Background(), &membershipapp.EnrollRequest{MemberID: memberID})
	require.NoError(t, err)
	if points != "" {
		_, err = env.handler.ApplyTransaction(staffCtx(), newStruct(t, map[string]interface{}{
			"member_id": memberID, "transaction_type": "accrual", "points": points,
		}))
		require.NoError(t, err)
	}
}

func TestLedgerHandler_GetMember(t *testing.T) {
	env := newHandlerEnv(t)
	env.enroll(t, "member-001", "250")

	tests := []struct {
		name     string
		ctx      context.Context
		memberID string
		wantCode codes.Code
	}{
		{name: "正常系: 本人", ctx: memberCtx("member-001"), memberID: "member-001", wantCode: codes.OK},
		{name: "正常系: スタッフ", ctx: staffCtx(), memberID: "member-001", wantCode: codes.OK},
		{name: "異常系: 他の会員", ctx: memberCtx("member-002"), memberID: "member-001", wantCode: codes.PermissionDenied},
		{name: "異常系: 呼び出し元なし", ctx: context.Background(), memberID: "member-001", wantCode: codes.Unauthenticated},
		{name: "異常系: member_idなし", ctx: staffCtx(), memberID: "", wantCode: codes.InvalidArgument},
		{name: "異常系: 存在しない会員", ctx: staffCtx(), memberID: "ghost", wantCode: codes.NotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := env.handler.GetMember(tt.ctx, newStruct(t, map[string]interface{}{"member_id": tt.memberID}))
			if tt.wantCode != codes.OK {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, status.Code(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "250", stringField(resp, "available_points"))
			assert.Equal(t, "250", stringField(resp, "lifetime_points"))
		})
	}
}

func TestLedgerHandler_ApplyTransaction(t *testing.T) {
	tests := []struct {
		name       string
		ctx        context.Context
		fields     map[string]interface{}
		wantCode   codes.Code
		wantPoints string
		wantAfter  string
	}{
		{
			name:       "正常系: 獲得",
			ctx:        staffCtx(),
			fields:     map[string]interface{}{"member_id": "member-001", "transaction_type": "accrual", "points": "40"},
			wantCode:   codes.OK,
			wantPoints: "40",
			wantAfter:  "140",
		},
		{
			name:       "正常系: 引き換えは負の値で記帳",
			ctx:        staffCtx(),
			fields:     map[string]interface{}{"member_id": "member-001", "transaction_type": "redemption", "points": "30"},
			wantCode:   codes.OK,
			wantPoints: "-30",
			wantAfter:  "70",
		},
		{
			name:     "異常系: 会員ロール",
			ctx:      memberCtx("member-001"),
			fields:   map[string]interface{}{"member_id": "member-001", "transaction_type": "accrual", "points": "40"},
			wantCode: codes.PermissionDenied,
		},
		{
			name:     "異常系: ポイントが数値でない",
			ctx:      staffCtx(),
			fields:   map[string]interface{}{"member_id": "member-001", "transaction_type": "accrual", "points": "abc"},
			wantCode: codes.InvalidArgument,
		},
		{
			name:     "異常系: 不正な種別",
			ctx:      staffCtx(),
			fields:   map[string]interface{}{"member_id": "member-001", "transaction_type": "gift", "points": "10"},
			wantCode: codes.InvalidArgument,
		},
		{
			name:     "異常系: 残高不足",
			ctx:      staffCtx(),
			fields:   map[string]interface{}{"member_id": "member-001", "transaction_type": "redemption", "points": "101"},
			wantCode: codes.FailedPrecondition,
		},
		{
			name:     "異常系: 存在しない会員",
			ctx:      staffCtx(),
			fields:   map[string]interface{}{"member_id": "ghost", "transaction_type": "accrual", "points": "10"},
			wantCode: codes.NotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newHandlerEnv(t)
			env.enroll(t, "member-001", "100")

			resp, err := env.handler.ApplyTransaction(tt.ctx, newStruct(t, tt.fields))
			if tt.wantCode != codes.OK {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, status.Code(err))
				return
			}
			require.NoError(t, err)
			entry := resp.GetFields()["entry"].GetStructValue()
			assert.Equal(t, tt.wantPoints, stringField(entry, "points"))
			assert.Equal(t, tt.wantAfter, stringField(entry, "balance_after"))
			assert.False(t, resp.GetFields()["replayed"].GetBoolValue())
		})
	}
}

func TestLedgerHandler_ApplyTransaction_Idempotency(t *testing.T) {
	env := newHandlerEnv(t)
	env.enroll(t, "member-001", "")

	req := map[string]interface{}{"member_id": "member-001", "transaction_type": "bonus", "points": "25"}
	ctx := metadata.NewIncomingContext(staffCtx(), metadata.Pairs(idempotencyKeyMetadata, "key-1"))

	first, err := env.handler.ApplyTransaction(ctx, newStruct(t, req))
	require.NoError(t, err)
	second, err := env.handler.ApplyTransaction(ctx, newStruct(t, req))
	require.NoError(t, err)

	assert.True(t, second.GetFields()["replayed"].GetBoolValue())
	assert.Equal(t,
		stringField(first.GetFields()["entry"].GetStructValue(), "reference_number"),
		stringField(second.GetFields()["entry"].GetStructValue(), "reference_number"))

	t.Run("異常系: 同じキーで内容が異なる", func(t *testing.T) {
		_, err := env.handler.ApplyTransaction(ctx, newStruct(t, map[string]interface{}{
			"member_id": "member-001", "transaction_type": "bonus", "points": "26",
		}))
		assert.Equal(t, codes.AlreadyExists, status.Code(err))
	})

	t.Run("異常系: メタデータとリクエストのキーが異なる", func(t *testing.T) {
		_, err := env.handler.ApplyTransaction(ctx, newStruct(t, map[string]interface{}{
			"member_id": "member-001", "transaction_type": "bonus", "points": "25", "idempotency_key": "key-2",
		}))
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	member, err := env.handler.GetMember(staffCtx(), newStruct(t, map[string]interface{}{"member_id": "member-001"}))
	require.NoError(t, err)
	assert.Equal(t, "25", stringField(member, "available_points"))
}

func TestLedgerHandler_GetLedgerAndVerify(t *testing.T) {
	env := newHandlerEnv(t)
	env.enroll(t, "member-001", "100")
	_, err := env.handler.ApplyTransaction(staffCtx(), newStruct(t, map[string]interface{}{
		"member_id": "member-001", "transaction_type": "redemption", "points": "60",
	}))
	require.NoError(t, err)

	resp, err := env.handler.GetLedger(memberCtx("member-001"), newStruct(t, map[string]interface{}{"member_id": "member-001"}))
	require.NoError(t, err)
	entries := resp.GetFields()["entries"].GetListValue().GetValues()
	require.Len(t, entries, 2)
	assert.Equal(t, "accrual", stringField(entries[0].GetStructValue(), "transaction_type"))
	assert.Equal(t, "-60", stringField(entries[1].GetStructValue(), "points"))

	_, err = env.handler.GetLedger(memberCtx("member-002"), newStruct(t, map[string]interface{}{"member_id": "member-001"}))
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	verified, err := env.handler.VerifyLedger(staffCtx(), newStruct(t, map[string]interface{}{"member_id": "member-001"}))
	require.NoError(t, err)
	assert.Equal(t, "40", stringField(verified, "available_points"))
	assert.Equal(t, float64(2), verified.GetFields()["entry_count"].GetNumberValue())
	assert.Equal(t, "consistent", stringField(verified, "status"))
}

func TestLedgerHandler_Redeem(t *testing.T) {
	tests := []struct {
		name      string
		ctx       context.Context
		rewardID  string
		wantCode  codes.Code
		wantAfter string
	}{
		{name: "正常系: 本人による引き換え", ctx: memberCtx("member-001"), rewardID: "coffee", wantCode: codes.OK, wantAfter: "30"},
		{name: "正常系: スタッフによる代理引き換え", ctx: staffCtx(), rewardID: "coffee", wantCode: codes.OK, wantAfter: "30"},
		{name: "異常系: 他の会員", ctx: memberCtx("member-002"), rewardID: "coffee", wantCode: codes.PermissionDenied},
		{name: "異常系: 残高不足", ctx: memberCtx("member-001"), rewardID: "cake", wantCode: codes.FailedPrecondition},
		{name: "異常系: 在庫切れ", ctx: memberCtx("member-001"), rewardID: "sold-out", wantCode: codes.FailedPrecondition},
		{name: "異常系: 存在しない特典", ctx: memberCtx("member-001"), rewardID: "ghost", wantCode: codes.NotFound},
		{name: "異常系: reward_idなし", ctx: memberCtx("member-001"), rewardID: "", wantCode: codes.InvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newHandlerEnv(t)
			env.enroll(t, "member-001", "150")
			require.NoError(t, env.rewards.Create(context.Background(), reward.MustNewReward("coffee", "Coffee", 120, 10)))
			require.NoError(t, env.rewards.Create(context.Background(), reward.MustNewReward("cake", "Cake", 500, 10)))
			require.NoError(t, env.rewards.Create(context.Background(), reward.MustNewReward("sold-out", "Sold out", 10, 0)))

			resp, err := env.handler.Redeem(tt.ctx, newStruct(t, map[string]interface{}{
				"member_id": "member-001", "reward_id": tt.rewardID,
			}))
			if tt.wantCode != codes.OK {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, status.Code(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAfter, stringField(resp, "balance_after"))

			rd := resp.GetFields()["redemption"].GetStructValue()
			assert.Equal(t, "120", stringField(rd, "points_redeemed"))
			assert.Equal(t, "1.20", stringField(rd, "monetary_value"))
			assert.Equal(t, "pending", stringField(rd, "fulfillment_status"))

			got, err := env.handler.GetRedemption(memberCtx("member-001"), newStruct(t, map[string]interface{}{
				"redemption_id": stringField(rd, "redemption_id"),
			}))
			require.NoError(t, err)
			assert.Equal(t, stringField(rd, "reference_number"), stringField(got, "reference_number"))

			_, err = env.handler.GetRedemption(memberCtx("member-002"), newStruct(t, map[string]interface{}{
				"redemption_id": stringField(rd, "redemption_id"),
			}))
			assert.Equal(t, codes.PermissionDenied, status.Code(err))
		})
	}
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{name: "会員が存在しない", err: member.ErrMemberNotFound, want: codes.NotFound},
		{name: "残高不足", err: fmt.Errorf("redeem: %w", member.ErrInsufficientPoints), want: codes.FailedPrecondition},
		{name: "非公開の特典", err: reward.ErrRewardInactive, want: codes.FailedPrecondition},
		{name: "冪等キーの再利用", err: transaction.ErrIdempotencyConflict, want: codes.AlreadyExists},
		{name: "不正なポイント", err: ledger.ErrInvalidPoints, want: codes.InvalidArgument},
		{name: "長すぎる説明", err: fmt.Errorf("apply: %w", ledger.ErrInvalidDescription), want: codes.InvalidArgument},
		{name: "長すぎるチャネル", err: redemption.ErrInvalidChannel, want: codes.InvalidArgument},
		{name: "長すぎる冪等キー", err: redemption.ErrInvalidIdempotencyKey, want: codes.InvalidArgument},
		{name: "ロック競合", err: transaction.ErrConflict, want: codes.Unavailable},
		{name: "整合性違反", err: ledger.ErrIntegrityViolation, want: codes.Internal},
		{name: "予期しないエラー", err: errors.New("boom"), want: codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, status.Code(handleError(tt.err)))
		})
	}
}
