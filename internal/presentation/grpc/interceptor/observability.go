package interceptor

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	otelinfra "loyalty-server/internal/infrastructure/observability/otel"
)

// metadataCarrier gRPCメタデータをTextMapCarrierとして扱う
type metadataCarrier metadata.MD

var _ propagation.TextMapCarrier = metadataCarrier{}

func (c metadataCarrier) Get(key string) string {
	if v := metadata.MD(c).Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

func (c metadataCarrier) Set(key, value string) {
	metadata.MD(c).Set(key, value)
}

func (c metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// isServerError 呼び出し側の誤りではない失敗かどうか
func isServerError(code codes.Code) bool {
	switch code {
	case codes.Unknown, codes.Internal, codes.Unavailable, codes.DataLoss, codes.DeadlineExceeded, codes.Unimplemented:
		return true
	default:
		return false
	}
}

// TracingInterceptor 受信メタデータのトレースコンテキストを引き継いでスパンを開始する
func TracingInterceptor() grpc.UnaryServerInterceptor {
	tracer := otel.Tracer(otelinfra.InstrumentationName)

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			ctx = otel.GetTextMapPropagator().Extract(ctx, metadataCarrier(md))
		}

		ctx, span := tracer.Start(ctx, info.FullMethod, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		span.SetAttributes(
			attribute.String("rpc.system", "grpc"),
			attribute.String("rpc.method", info.FullMethod),
		)

		resp, err := handler(ctx, req)

		code := status.Code(err)
		span.SetAttributes(attribute.String("rpc.grpc.status_code", code.String()))
		if err != nil && isServerError(code) {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
		}
		return resp, err
	}
}

// MetricsInterceptor リクエスト数・応答時間・エラー数を記録する
func MetricsInterceptor(metrics *otelinfra.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		metrics.RecordRequest(ctx, "GRPC", info.FullMethod)

		resp, err := handler(ctx, req)

		metrics.RecordResponseTime(ctx, "GRPC", info.FullMethod, time.Since(start).Seconds())
		if err != nil {
			errorType := "client_error"
			if isServerError(status.Code(err)) {
				errorType = "server_error"
			}
			metrics.RecordError(ctx, errorType)
		}
		return resp, err
	}
}
