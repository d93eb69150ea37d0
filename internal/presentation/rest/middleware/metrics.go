package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	otelinfra "loyalty-server/internal/infrastructure/observability/otel"
)

// MetricsMiddleware メトリクス記録ミドルウェア
func MetricsMiddleware(metrics *otelinfra.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			ctx := c.Request().Context()
			method := c.Request().Method

			metrics.RecordRequest(ctx, method, c.Path())

			err := next(c)

			metrics.RecordResponseTime(ctx, method, c.Path(), time.Since(start).Seconds())

			// ErrorHandlerMiddlewareより外側ではエラーはレスポンスに変換済みなのでステータスで判定する
			status := c.Response().Status
			if err != nil && status < 400 {
				status = 500
			}
			if status >= 400 {
				errorType := "client_error"
				if status >= 500 {
					errorType = "server_error"
				}
				metrics.RecordError(ctx, errorType)
			}

			return err
		}
	}
}
