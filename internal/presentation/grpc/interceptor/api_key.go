package interceptor

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	otelinfra "loyalty-server/internal/infrastructure/observability/otel"
	"loyalty-server/internal/presentation/adminaccess"
)

// APIKeyInterceptor 管理用メソッドにスタッフロールとAPIキーを要求するインターセプター
// AuthInterceptorの後ろに連結する
func APIKeyInterceptor(guard *adminaccess.Guard, adminMethods map[string]bool, logger *otelinfra.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if !adminMethods[info.FullMethod] {
			return handler(ctx, req)
		}

		if p, ok := PrincipalFromContext(ctx); !ok || !p.IsStaff() {
			return nil, status.Error(codes.PermissionDenied, "staff role required")
		}

		md, _ := metadata.FromIncomingContext(ctx)
		ip := clientIP(ctx, md)

		err := guard.Check(first(md, "x-api-key"), ip)
		if err == nil {
			return handler(ctx, req)
		}

		logger.Warn(ctx, "Admin API access denied", map[string]interface{}{
			"reason": err.Error(),
			"ip":     ip,
			"method": info.FullMethod,
		})
		if errors.Is(err, adminaccess.ErrMissingAPIKey) || errors.Is(err, adminaccess.ErrInvalidAPIKey) {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return nil, status.Error(codes.PermissionDenied, err.Error())
	}
}

func first(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

// clientIP プロキシのメタデータ、なければ接続元アドレスからIPを得る
func clientIP(ctx context.Context, md metadata.MD) string {
	var remote string
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		remote = p.Addr.String()
	}
	return adminaccess.ClientIP(first(md, "x-forwarded-for"), first(md, "x-real-ip"), remote)
}
