package interceptor

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"loyalty-server/internal/infrastructure/config"
	otelinfra "loyalty-server/internal/infrastructure/observability/otel"
)

func signToken(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestAuthInterceptor(t *testing.T) {
	cfg := &config.JWTConfig{Secret: "test-secret"}

	tests := []struct {
		name          string
		method        string
		md            metadata.MD
		wantCode      codes.Code
		wantMessage   string
		wantPrincipal *Principal
	}{
		{
			name:        "異常系: メタデータなし",
			method:      "/loyalty.v1.LedgerService/GetMember",
			wantCode:    codes.Unauthenticated,
			wantMessage: "missing metadata",
		},
		{
			name:        "異常系: Authorizationなし",
			method:      "/loyalty.v1.LedgerService/GetMember",
			md:          metadata.Pairs(),
			wantCode:    codes.Unauthenticated,
			wantMessage: "missing authorization header",
		},
		{
			name:        "異常系: Bearer形式でない",
			method:      "/loyalty.v1.LedgerService/GetMember",
			md:          metadata.Pairs("authorization", "Token abc"),
			wantCode:    codes.Unauthenticated,
			wantMessage: "invalid authorization header format",
		},
		{
			name:        "異常系: 不正なトークン",
			method:      "/loyalty.v1.LedgerService/GetMember",
			md:          metadata.Pairs("authorization", "Bearer invalid"),
			wantCode:    codes.Unauthenticated,
			wantMessage: "invalid or expired token",
		},
		{
			name:   "異常系: 期限切れ",
			method: "/loyalty.v1.LedgerService/GetMember",
			md: metadata.Pairs("authorization", "Bearer "+signToken(t, "test-secret", jwt.SigningMethodHS256, jwt.MapClaims{
				"user_id": "member-001", "exp": time.Now().Add(-time.Minute).Unix(),
			})),
			wantCode: codes.Unauthenticated,
		},
		{
			name:   "異常系: HS256以外",
			method: "/loyalty.v1.LedgerService/GetMember",
			md: metadata.Pairs("authorization", "Bearer "+signToken(t, "test-secret", jwt.SigningMethodHS384, jwt.MapClaims{
				"user_id": "member-001",
			})),
			wantCode: codes.Unauthenticated,
		},
		{
			name:   "異常系: user_idなし",
			method: "/loyalty.v1.LedgerService/GetMember",
			md: metadata.Pairs("authorization", "Bearer "+signToken(t, "test-secret", jwt.SigningMethodHS256, jwt.MapClaims{
				"sub": "member-001",
			})),
			wantCode:    codes.Unauthenticated,
			wantMessage: "missing user_id in token",
		},
		{
			name:   "異常系: 未知のロール",
			method: "/loyalty.v1.LedgerService/GetMember",
			md: metadata.Pairs("authorization", "Bearer "+signToken(t, "test-secret", jwt.SigningMethodHS256, jwt.MapClaims{
				"user_id": "member-001", "role": "root",
			})),
			wantCode: codes.PermissionDenied,
		},
		{
			name:   "正常系: ロール省略時は member",
			method: "/loyalty.v1.LedgerService/GetMember",
			md: metadata.Pairs("authorization", "Bearer "+signToken(t, "test-secret", jwt.SigningMethodHS256, jwt.MapClaims{
				"user_id": "member-001",
			})),
			wantCode:      codes.OK,
			wantPrincipal: &Principal{ID: "member-001", Role: RoleMember},
		},
		{
			name:   "正常系: スタッフ",
			method: "/loyalty.v1.LedgerService/ApplyTransaction",
			md: metadata.Pairs("authorization", "Bearer "+signToken(t, "test-secret", jwt.SigningMethodHS256, jwt.MapClaims{
				"user_id": "staff-1", "role": "staff",
			})),
			wantCode:      codes.OK,
			wantPrincipal: &Principal{ID: "staff-1", Role: RoleStaff},
		},
		{
			name:     "正常系: ヘルスチェックは認証不要",
			method:   "/grpc.health.v1.Health/Check",
			wantCode: codes.OK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := otelinfra.NewLogger(noop.NewTracerProvider().Tracer("test"))
			interceptor := AuthInterceptor(cfg, logger)

			ctx := context.Background()
			if tt.md != nil {
				ctx = metadata.NewIncomingContext(ctx, tt.md)
			}

			var got *Principal
			_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: tt.method},
				func(ctx context.Context, req interface{}) (interface{}, error) {
					if p, ok := PrincipalFromContext(ctx); ok {
						got = &p
					}
					return "success", nil
				})

			if tt.wantCode != codes.OK {
				require.Error(t, err)
				st, ok := status.FromError(err)
				require.True(t, ok)
				assert.Equal(t, tt.wantCode, st.Code())
				if tt.wantMessage != "" {
					assert.Contains(t, st.Message(), tt.wantMessage)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPrincipal, got)
		})
	}
}
