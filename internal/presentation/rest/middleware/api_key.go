package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	otelinfra "loyalty-server/internal/infrastructure/observability/otel"
	"loyalty-server/internal/presentation/adminaccess"
)

// APIKeyHeader 管理APIのキーを渡すヘッダー
const APIKeyHeader = "X-API-Key"

// APIKeyMiddleware 管理APIにAPIキーと接続元IPの検証を要求するミドルウェア
func APIKeyMiddleware(guard *adminaccess.Guard, logger *otelinfra.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			clientIP := adminaccess.ClientIP(
				req.Header.Get("X-Forwarded-For"),
				req.Header.Get("X-Real-IP"),
				req.RemoteAddr,
			)

			err := guard.Check(req.Header.Get(APIKeyHeader), clientIP)
			if err == nil {
				return next(c)
			}

			logger.Warn(req.Context(), "Admin API access denied", map[string]interface{}{
				"reason": err.Error(),
				"ip":     clientIP,
				"path":   req.URL.Path,
			})

			if errors.Is(err, adminaccess.ErrMissingAPIKey) || errors.Is(err, adminaccess.ErrInvalidAPIKey) {
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "unauthorized",
					Message: err.Error(),
				})
			}
			return c.JSON(http.StatusForbidden, ErrorResponse{
				Error:   "forbidden",
				Message: err.Error(),
			})
		}
	}
}
