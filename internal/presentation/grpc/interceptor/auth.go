package interceptor

import (
	"context"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"loyalty-server/internal/infrastructure/config"
	otelinfra "loyalty-server/internal/infrastructure/observability/otel"
)

// ロール
const (
	RoleMember = "member"
	RoleStaff  = "staff"
	RoleAdmin  = "admin"
)

// Principal 検証済みトークンから得た呼び出し元
type Principal struct {
	ID   string
	Role string
}

// IsStaff スタッフ以上の権限を持つかを返す
func (p Principal) IsStaff() bool {
	return p.Role == RoleStaff || p.Role == RoleAdmin
}

type principalKey struct{}

// ContextWithPrincipal 呼び出し元を設定したコンテキストを返す
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext コンテキストから呼び出し元を取り出す
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// publicMethodPrefixes 認証不要のサービス
var publicMethodPrefixes = []string{
	"/grpc.health.v1.Health/",
	"/grpc.reflection.",
}

func isPublicMethod(fullMethod string) bool {
	for _, prefix := range publicMethodPrefixes {
		if strings.HasPrefix(fullMethod, prefix) {
			return true
		}
	}
	return false
}

// AuthInterceptor JWT認証インターセプター
func AuthInterceptor(cfg *config.JWTConfig, logger *otelinfra.Logger) grpc.UnaryServerInterceptor {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if isPublicMethod(info.FullMethod) {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			logger.Warn(ctx, "Missing metadata", nil)
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		authHeaders := md.Get("authorization")
		if len(authHeaders) == 0 {
			logger.Warn(ctx, "Missing authorization header", nil)
			return nil, status.Error(codes.Unauthenticated, "missing authorization header")
		}

		parts := strings.Split(authHeaders[0], " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			logger.Warn(ctx, "Invalid authorization header format", nil)
			return nil, status.Error(codes.Unauthenticated, "invalid authorization header format")
		}

		claims := jwt.MapClaims{}
		token, err := parser.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(cfg.Secret), nil
		})
		if err != nil || !token.Valid {
			fields := map[string]interface{}{"method": info.FullMethod}
			if err != nil {
				fields["error"] = err.Error()
			}
			logger.Warn(ctx, "Invalid token", fields)
			return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
		}

		userID, ok := claims["user_id"].(string)
		if !ok || userID == "" {
			logger.Warn(ctx, "Missing user_id in token claims", nil)
			return nil, status.Error(codes.Unauthenticated, "missing user_id in token")
		}

		role, _ := claims["role"].(string)
		switch role {
		case "":
			role = RoleMember
		case RoleMember, RoleStaff, RoleAdmin:
		default:
			logger.Warn(ctx, "Unknown role in token claims", map[string]interface{}{
				"role": role,
			})
			return nil, status.Error(codes.PermissionDenied, "unknown role")
		}

		trace.SpanFromContext(ctx).SetAttributes(
			attribute.String("enduser.id", userID),
			attribute.String("enduser.role", role),
		)
		return handler(ContextWithPrincipal(ctx, Principal{ID: userID, Role: role}), req)
	}
}
