package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"loyalty-server/internal/infrastructure/config"
	otelinfra "loyalty-server/internal/infrastructure/observability/otel"
)

func signToken(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestAuthMiddleware(t *testing.T) {
	cfg := &config.JWTConfig{Secret: "test-secret", Issuer: "auth.example.com"}

	tests := []struct {
		name          string
		header        string
		wantStatus    int
		wantPrincipal Principal
	}{
		{
			name:       "異常系: Authorizationヘッダーなし",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "異常系: Bearer形式でない",
			header:     "InvalidFormat token",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "異常系: 不正なトークン",
			header:     "Bearer invalid-token",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "正常系: ロール省略時は member",
			header: "Bearer " + signToken(t, "test-secret", jwt.SigningMethodHS256, jwt.MapClaims{
				"user_id": "member-001", "iss": "auth.example.com",
			}),
			wantStatus:    http.StatusOK,
			wantPrincipal: Principal{ID: "member-001", Role: RoleMember},
		},
		{
			name: "正常系: staff ロール",
			header: "Bearer " + signToken(t, "test-secret", jwt.SigningMethodHS256, jwt.MapClaims{
				"user_id": "staff-1", "role": "staff", "iss": "auth.example.com",
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			wantStatus:    http.StatusOK,
			wantPrincipal: Principal{ID: "staff-1", Role: RoleStaff},
		},
		{
			name: "異常系: 未知のロール",
			header: "Bearer " + signToken(t, "test-secret", jwt.SigningMethodHS256, jwt.MapClaims{
				"user_id": "member-001", "role": "root", "iss": "auth.example.com",
			}),
			wantStatus: http.StatusForbidden,
		},
		{
			name: "異常系: user_idなし",
			header: "Bearer " + signToken(t, "test-secret", jwt.SigningMethodHS256, jwt.MapClaims{
				"other_claim": "value", "iss": "auth.example.com",
			}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "異常系: user_idが文字列でない",
			header: "Bearer " + signToken(t, "test-secret", jwt.SigningMethodHS256, jwt.MapClaims{
				"user_id": 123, "iss": "auth.example.com",
			}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "異常系: 異なるシークレット",
			header: "Bearer " + signToken(t, "wrong-secret", jwt.SigningMethodHS256, jwt.MapClaims{
				"user_id": "member-001", "iss": "auth.example.com",
			}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "異常系: 期限切れ",
			header: "Bearer " + signToken(t, "test-secret", jwt.SigningMethodHS256, jwt.MapClaims{
				"user_id": "member-001", "iss": "auth.example.com",
				"exp": time.Now().Add(-time.Minute).Unix(),
			}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "異常系: 発行者が異なる",
			header: "Bearer " + signToken(t, "test-secret", jwt.SigningMethodHS256, jwt.MapClaims{
				"user_id": "member-001", "iss": "evil.example.com",
			}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "異常系: HS256以外の署名方式",
			header: "Bearer " + signToken(t, "test-secret", jwt.SigningMethodHS512, jwt.MapClaims{
				"user_id": "member-001", "iss": "auth.example.com",
			}),
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := otelinfra.NewLogger(noop.NewTracerProvider().Tracer("test"))

			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			var got Principal
			handler := AuthMiddleware(cfg, logger)(func(c echo.Context) error {
				p, ok := PrincipalFromContext(c)
				assert.True(t, ok)
				got = p
				return c.String(http.StatusOK, "ok")
			})

			require.NoError(t, handler(c))
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantPrincipal, got)
			}
		})
	}
}

func TestRequireSelfOrStaff(t *testing.T) {
	tests := []struct {
		name       string
		principal  *Principal
		memberID   string
		wantStatus int
	}{
		{name: "正常系: 本人", principal: &Principal{ID: "member-001", Role: RoleMember}, memberID: "member-001", wantStatus: http.StatusOK},
		{name: "正常系: スタッフは他の会員も参照できる", principal: &Principal{ID: "staff-1", Role: RoleStaff}, memberID: "member-001", wantStatus: http.StatusOK},
		{name: "正常系: 管理者", principal: &Principal{ID: "admin-1", Role: RoleAdmin}, memberID: "member-001", wantStatus: http.StatusOK},
		{name: "異常系: 他の会員", principal: &Principal{ID: "member-002", Role: RoleMember}, memberID: "member-001", wantStatus: http.StatusForbidden},
		{name: "異常系: 認証なし", memberID: "member-001", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.SetParamNames("member_id")
			c.SetParamValues(tt.memberID)
			if tt.principal != nil {
				c.Set(principalKey, *tt.principal)
			}

			handler := RequireSelfOrStaff("member_id")(func(c echo.Context) error {
				return c.String(http.StatusOK, "ok")
			})

			require.NoError(t, handler(c))
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRequireStaff(t *testing.T) {
	tests := []struct {
		name       string
		role       string
		wantStatus int
	}{
		{name: "正常系: staff", role: RoleStaff, wantStatus: http.StatusOK},
		{name: "正常系: admin", role: RoleAdmin, wantStatus: http.StatusOK},
		{name: "異常系: member", role: RoleMember, wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
			c.Set(principalKey, Principal{ID: "x", Role: tt.role})

			handler := RequireStaff()(func(c echo.Context) error {
				return c.String(http.StatusOK, "ok")
			})

			require.NoError(t, handler(c))
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}
