package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	catalogapp "loyalty-server/internal/application/catalog"
	ledgerapp "loyalty-server/internal/application/ledger"
	membershipapp "loyalty-server/internal/application/membership"
	settlementapp "loyalty-server/internal/application/settlement"
	"loyalty-server/internal/infrastructure/config"
	otelinfra "loyalty-server/internal/infrastructure/observability/otel"
	"loyalty-server/internal/presentation/adminaccess"
	"loyalty-server/internal/presentation/rest/handler"
	restmiddleware "loyalty-server/internal/presentation/rest/middleware"
)

// Services ルーターが公開するアプリケーションサービス
type Services struct {
	Membership *membershipapp.MembershipApplicationService
	Ledger     *ledgerapp.LedgerApplicationService
	Catalog    *catalogapp.CatalogApplicationService
	Settlement *settlementapp.SettlementApplicationService
}

// Options ルーターの任意設定
type Options struct {
	// MetricsHandler Prometheus形式のメトリクスを返すハンドラー。nilなら/metricsを公開しない
	MetricsHandler http.Handler
	// HealthCheck ストレージ等の疎通確認。nilなら常にok
	HealthCheck func(ctx context.Context) error
}

// Router REST APIルーター
type Router struct {
	echo        *echo.Echo
	rateLimiter *restmiddleware.RateLimiter
}

// NewRouter 新しいRouterを作成
func NewRouter(
	cfg *config.Config,
	logger *otelinfra.Logger,
	metrics *otelinfra.Metrics,
	services Services,
	opts Options,
) (*Router, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout
	e.Server.IdleTimeout = cfg.Server.IdleTimeout

	// エラーはErrorHandlerMiddlewareでレスポンスに変換済み
	e.HTTPErrorHandler = func(err error, c echo.Context) {}

	setupMiddleware(e, logger, metrics)

	var rateLimiter *restmiddleware.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = restmiddleware.NewRateLimiter(&cfg.RateLimit, logger)
	}

	guard, err := adminaccess.NewGuard(&cfg.AdminAPI)
	if err != nil {
		return nil, fmt.Errorf("failed to configure admin API: %w", err)
	}

	setupRoutes(e, cfg, logger, rateLimiter, guard, services)
	setupOperationalRoutes(e, opts)
	SetupSwagger(e)

	return &Router{
		echo:        e,
		rateLimiter: rateLimiter,
	}, nil
}

// setupMiddleware ミドルウェアを設定
// ErrorHandlerMiddlewareを最後に置き、ログとメトリクスが変換後のステータスを見られるようにする
func setupMiddleware(e *echo.Echo, logger *otelinfra.Logger, metrics *otelinfra.Metrics) {
	e.Use(middleware.Recover())

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization,
			restmiddleware.APIKeyHeader, handler.IdempotencyKeyHeader,
		},
	}))

	e.Use(middleware.RequestID())
	e.Use(restmiddleware.SecurityHeadersMiddleware())
	e.Use(restmiddleware.TracingMiddleware())
	e.Use(restmiddleware.MetricsMiddleware(metrics))
	e.Use(restmiddleware.LoggingMiddleware(logger))
	e.Use(restmiddleware.ErrorHandlerMiddleware(logger))
}

// setupRoutes ルーティングを設定
func setupRoutes(
	e *echo.Echo,
	cfg *config.Config,
	logger *otelinfra.Logger,
	rateLimiter *restmiddleware.RateLimiter,
	guard *adminaccess.Guard,
	services Services,
) {
	memberHandler := handler.NewMemberHandler(services.Membership)
	transactionHandler := handler.NewTransactionHandler(services.Ledger)
	rewardHandler := handler.NewRewardHandler(services.Catalog)
	redemptionHandler := handler.NewRedemptionHandler(services.Settlement)

	groupMiddleware := []echo.MiddlewareFunc{restmiddleware.AuthMiddleware(&cfg.JWT, logger)}
	if rateLimiter != nil {
		groupMiddleware = append(groupMiddleware, rateLimiter.Middleware())
	}
	api := e.Group("/api/v1", groupMiddleware...)

	self := restmiddleware.RequireSelfOrStaff("member_id")
	staff := restmiddleware.RequireStaff()
	// 管理操作はスタッフロールとAPIキーの両方を要求する
	admin := []echo.MiddlewareFunc{staff, restmiddleware.APIKeyMiddleware(guard, logger)}

	// 会員
	api.POST("/members", memberHandler.Enroll, admin...)
	api.GET("/members/:member_id", memberHandler.GetMember, self)

	// 台帳
	api.POST("/members/:member_id/transactions", transactionHandler.ApplyTransaction, staff)
	api.GET("/members/:member_id/transactions", transactionHandler.GetLedger, self)
	api.GET("/members/:member_id/ledger/verify", transactionHandler.VerifyLedger, admin...)

	// 特典カタログ
	api.POST("/rewards", rewardHandler.CreateReward, admin...)
	api.GET("/rewards", rewardHandler.ListRewards)
	api.GET("/rewards/:reward_id", rewardHandler.GetReward)

	// 引き換え
	api.POST("/redemptions", redemptionHandler.Redeem)
	api.GET("/redemptions/:redemption_id", redemptionHandler.GetRedemption)
	api.PATCH("/redemptions/:redemption_id", redemptionHandler.UpdateFulfillmentStatus, admin...)
	api.GET("/members/:member_id/redemptions", redemptionHandler.ListMemberRedemptions, self)
}

// setupOperationalRoutes ヘルスチェックとメトリクス（認証不要）
func setupOperationalRoutes(e *echo.Echo, opts Options) {
	e.GET("/health", func(c echo.Context) error {
		if opts.HealthCheck != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			defer cancel()
			if err := opts.HealthCheck(ctx); err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
					"error":  err.Error(),
				})
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	if opts.MetricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(opts.MetricsHandler))
	}
}

// Handler http.Handlerとして返す
func (r *Router) Handler() http.Handler {
	return r.echo
}

// StartRateLimiterCleanup 使われなくなったレート制限の状態を定期的に破棄する
func (r *Router) StartRateLimiterCleanup(ctx context.Context, interval time.Duration) {
	if r.rateLimiter != nil {
		r.rateLimiter.StartCleanup(ctx, interval)
	}
}

// Start サーバーを起動
func (r *Router) Start(address string) error {
	return r.echo.Start(address)
}

// Shutdown 処理中のリクエストを待ってサーバーを停止
func (r *Router) Shutdown(ctx context.Context) error {
	return r.echo.Shutdown(ctx)
}
