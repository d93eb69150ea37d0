package middleware

import (
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	otelinfra "loyalty-server/internal/infrastructure/observability/otel"
)

// TracingMiddleware OpenTelemetryトレーシングミドルウェア
// 認証後に判明する呼び出し元はハンドラー実行後にスパンへ付与する
func TracingMiddleware() echo.MiddlewareFunc {
	tracer := otel.Tracer(otelinfra.InstrumentationName)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))

			ctx, span := tracer.Start(ctx, req.Method+" "+c.Path(),
				trace.WithSpanKind(trace.SpanKindServer),
			)
			defer span.End()

			span.SetAttributes(
				attribute.String("http.method", req.Method),
				attribute.String("http.url", req.URL.String()),
				attribute.String("http.route", c.Path()),
				attribute.String("http.user_agent", req.UserAgent()),
			)
			if memberID := c.Param("member_id"); memberID != "" {
				span.SetAttributes(attribute.String("loyalty.member_id", memberID))
			}

			c.SetRequest(req.WithContext(ctx))

			err := next(c)

			status := c.Response().Status
			span.SetAttributes(attribute.Int("http.status_code", status))
			if requestID := c.Response().Header().Get(echo.HeaderXRequestID); requestID != "" {
				span.SetAttributes(attribute.String("http.request_id", requestID))
			}
			if p, ok := PrincipalFromContext(c); ok {
				span.SetAttributes(
					attribute.String("enduser.id", p.ID),
					attribute.String("enduser.role", p.Role),
				)
			}
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else if status >= 500 {
				span.SetStatus(codes.Error, "server error")
			}

			return err
		}
	}
}
