package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"loyalty-server/internal/domain/ledger"
	"loyalty-server/internal/domain/member"
	"loyalty-server/internal/domain/redemption"
	"loyalty-server/internal/domain/reward"
	"loyalty-server/internal/domain/transaction"
	otelinfra "loyalty-server/internal/infrastructure/observability/otel"
)

// ErrorResponse エラーレスポンス
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// RetryAfterSeconds 競合で失敗したリクエストに返す再試行までの秒数
const RetryAfterSeconds = "1"

// errorMapping ドメインエラーとHTTPレスポンスの対応
type errorMapping struct {
	target error
	status int
	code   string
}

// errorMappings 上から順に評価する
var errorMappings = []errorMapping{
	// NotFound
	{member.ErrMemberNotFound, http.StatusNotFound, "member_not_found"},
	{reward.ErrRewardNotFound, http.StatusNotFound, "reward_not_found"},
	{redemption.ErrRedemptionNotFound, http.StatusNotFound, "redemption_not_found"},
	{ledger.ErrEntryNotFound, http.StatusNotFound, "entry_not_found"},

	// 事前条件違反
	{member.ErrInsufficientPoints, http.StatusConflict, "insufficient_points"},
	{reward.ErrOutOfStock, http.StatusConflict, "out_of_stock"},
	{reward.ErrRewardInactive, http.StatusUnprocessableEntity, "reward_inactive"},
	{redemption.ErrInvalidStatusTransition, http.StatusUnprocessableEntity, "invalid_status_transition"},
	{member.ErrPointsOutOfRange, http.StatusUnprocessableEntity, "points_out_of_range"},

	// 重複・冪等
	{member.ErrMemberAlreadyExists, http.StatusConflict, "member_already_exists"},
	{reward.ErrRewardAlreadyExists, http.StatusConflict, "reward_already_exists"},
	{transaction.ErrIdempotencyConflict, http.StatusConflict, "idempotency_conflict"},

	// 入力不正
	{ledger.ErrInvalidPoints, http.StatusBadRequest, "invalid_points"},
	{member.ErrInvalidPoints, http.StatusBadRequest, "invalid_points"},
	{ledger.ErrInvalidEntryType, http.StatusBadRequest, "invalid_transaction_type"},
	{member.ErrInvalidMemberID, http.StatusBadRequest, "invalid_member_id"},
	{reward.ErrInvalidReward, http.StatusBadRequest, "invalid_reward"},
	{redemption.ErrInvalidFulfillmentStatus, http.StatusBadRequest, "invalid_fulfillment_status"},
	{ledger.ErrInvalidDescription, http.StatusBadRequest, "invalid_description"},
	{ledger.ErrInvalidLink, http.StatusBadRequest, "invalid_link"},
	{ledger.ErrInvalidIdempotencyKey, http.StatusBadRequest, "invalid_idempotency_key"},
	{redemption.ErrInvalidChannel, http.StatusBadRequest, "invalid_channel"},
	{redemption.ErrInvalidIdempotencyKey, http.StatusBadRequest, "invalid_idempotency_key"},
}

// ErrorHandlerMiddleware エラーハンドリングミドルウェア
func ErrorHandlerMiddleware(logger *otelinfra.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			return handleError(c, err, logger)
		}
	}
}

// handleError エラーを処理して適切なHTTPレスポンスを返す
func handleError(c echo.Context, err error, logger *otelinfra.Logger) error {
	ctx := c.Request().Context()

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			logger.Warn(ctx, "Request rejected", map[string]interface{}{
				"code":  m.code,
				"error": err.Error(),
			})
			return c.JSON(m.status, ErrorResponse{
				Error:   m.code,
				Message: err.Error(),
			})
		}
	}

	// 再試行上限に達したロック競合
	if errors.Is(err, transaction.ErrConflict) {
		logger.Warn(ctx, "Transaction conflict", map[string]interface{}{
			"error": err.Error(),
		})
		c.Response().Header().Set("Retry-After", RetryAfterSeconds)
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "conflict_retryable",
			Message: "The resource is busy, retry the request",
		})
	}

	if errors.Is(err, ledger.ErrIntegrityViolation) {
		logger.Error(ctx, "Ledger integrity violation", err, map[string]interface{}{
			"path": c.Request().URL.Path,
		})
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "integrity_violation",
			Message: err.Error(),
		})
	}

	// EchoのHTTPエラー
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		logger.Warn(ctx, "HTTP error", map[string]interface{}{
			"status_code": httpErr.Code,
			"message":     httpErr.Message,
		})
		message := ""
		if msg, ok := httpErr.Message.(string); ok {
			message = msg
		} else {
			message = http.StatusText(httpErr.Code)
		}
		return c.JSON(httpErr.Code, ErrorResponse{
			Error:   http.StatusText(httpErr.Code),
			Message: message,
		})
	}

	// 予期しないエラー
	logger.Error(ctx, "Internal server error", err, map[string]interface{}{
		"path": c.Request().URL.Path,
	})
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_server_error",
		Message: "An unexpected error occurred",
	})
}
