package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	catalogapp "loyalty-server/internal/application/catalog"
	ledgerapp "loyalty-server/internal/application/ledger"
	membershipapp "loyalty-server/internal/application/membership"
	settlementapp "loyalty-server/internal/application/settlement"
	"loyalty-server/internal/domain/reward"
	"loyalty-server/internal/domain/service"
	"loyalty-server/internal/domain/transaction"
	"loyalty-server/internal/infrastructure/idgen"
	otelinfra "loyalty-server/internal/infrastructure/observability/otel"
	"loyalty-server/internal/infrastructure/persistence/memory"
	restmiddleware "loyalty-server/internal/presentation/rest/middleware"
)

// テスト用に呼び出し元を渡すヘッダー
const (
	testUserHeader = "X-Test-User"
	testRoleHeader = "X-Test-Role"
)

type handlerEnv struct {
	e           *echo.Echo
	rewards     *memory.RewardRepository
	redemptions *memory.RedemptionRepository
}

// newHandlerEnv メモリストア上に全ハンドラーを登録したEchoを作成
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

	memberHandler := NewMemberHandler(membershipapp.NewMembershipApplicationService(members, logger))
	transactionHandler := NewTransactionHandler(ledgerapp.NewLedgerApplicationService(
		members, entries, tm, ledgerService, nil, logger, metrics))
	rewardHandler := NewRewardHandler(catalogapp.NewCatalogApplicationService(rewards, ids, logger, metrics))
	redemptionHandler := NewRedemptionHandler(settlementapp.NewSettlementApplicationService(
		members, rewards, redemptions, entries, tm, ledgerService, ids, nil, logger, metrics))

	e := echo.New()
	e.Use(restmiddleware.ErrorHandlerMiddleware(logger))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if id := c.Request().Header.Get(testUserHeader); id != "" {
				restmiddleware.SetPrincipal(c, restmiddleware.Principal{
					ID:   id,
					Role: c.Request().Header.Get(testRoleHeader),
				})
			}
			return next(c)
		}
	})

	e.POST("/members", memberHandler.Enroll)
	e.GET("/members/:member_id", memberHandler.GetMember)
	e.POST("/members/:member_id/transactions", transactionHandler.ApplyTransaction)
	e.GET("/members/:member_id/transactions", transactionHandler.GetLedger)
	e.GET("/members/:member_id/ledger/verify", transactionHandler.VerifyLedger)
	e.GET("/members/:member_id/redemptions", redemptionHandler.ListMemberRedemptions)
	e.POST("/rewards", rewardHandler.CreateReward)
	e.GET("/rewards", rewardHandler.ListRewards)
	e.GET("/rewards/:reward_id", rewardHandler.GetReward)
	e.POST("/redemptions", redemptionHandler.Redeem)
	e.GET("/redemptions/:redemption_id", redemptionHandler.GetRedemption)
	e.PATCH("/redemptions/:redemption_id", redemptionHandler.UpdateFulfillmentStatus)

	return &handlerEnv{e: e, rewards: rewards, redemptions: redemptions}
}

type requestOption func(*http.Request)

func asMember(id string) requestOption {
	return func(r *http.Request) {
		r.Header.Set(testUserHeader, id)
		r.Header.Set(testRoleHeader, restmiddleware.RoleMember)
	}
}

func asStaff() requestOption {
	return func(r *http.Request) {
		r.Header.Set(testUserHeader, "staff-1")
		r.Header.Set(testRoleHeader, restmiddleware.RoleStaff)
	}
}

func withHeader(key, value string) requestOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

func (env *handlerEnv) do(t *testing.T, method, path string, body interface{}, opts ...requestOption) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

// enroll 会員を登録し、pointsが正なら獲得として記帳する
func (env *handlerEnv) enroll(t *testing.T, memberID string, points string) {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/members", EnrollRequest{MemberID: memberID}, asStaff())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	if points != "" && points != "0" {
		rec = env.do(t, http.MethodPost, "/members/"+memberID+"/transactions", ApplyTransactionRequest{
			TransactionType: "accrual",
			Points:          points,
		}, asStaff())
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
}

func (env *handlerEnv) addReward(t *testing.T, r *reward.Reward) {
	t.Helper()
	require.NoError(t, env.rewards.Create(context.Background(), r))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}
