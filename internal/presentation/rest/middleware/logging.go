package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	otelinfra "loyalty-server/internal/infrastructure/observability/otel"
)

// LoggingMiddleware ログミドルウェア
func LoggingMiddleware(logger *otelinfra.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			logger.Debug(req.Context(), "HTTP request started", map[string]interface{}{
				"method":      req.Method,
				"path":        req.URL.Path,
				"remote_addr": req.RemoteAddr,
				"user_agent":  req.UserAgent(),
			})

			err := next(c)

			fields := map[string]interface{}{
				"method":      req.Method,
				"path":        req.URL.Path,
				"route":       c.Path(),
				"status_code": c.Response().Status,
				"duration_ms": time.Since(start).Milliseconds(),
			}
			if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
				fields["request_id"] = id
			}
			if p, ok := PrincipalFromContext(c); ok {
				fields["principal_id"] = p.ID
				fields["principal_role"] = p.Role
			}

			// 後段の処理でリクエストコンテキストにスパンが載っている
			ctx := c.Request().Context()
			switch {
			case err != nil:
				logger.Error(ctx, "HTTP request failed", err, fields)
			case c.Response().Status >= 500:
				logger.Error(ctx, "HTTP request completed with server error", nil, fields)
			default:
				logger.Info(ctx, "HTTP request completed", fields)
			}

			return err
		}
	}
}
