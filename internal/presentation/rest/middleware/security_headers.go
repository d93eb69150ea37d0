package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	// apiCSP JSONのみを返すAPI用
	apiCSP = "default-src 'none'; frame-ancestors 'none'"
	// docsCSP Swagger UI用にCDNを許可する
	docsCSP = "default-src 'self'; script-src 'self' 'unsafe-inline' https://unpkg.com https://cdn.jsdelivr.net; style-src 'self' 'unsafe-inline' https://unpkg.com https://fonts.googleapis.com; font-src 'self' https://fonts.gstatic.com; img-src 'self' data: https:;"
)

// SecurityHeadersMiddleware セキュリティヘッダーを設定するミドルウェア
func SecurityHeadersMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "no-referrer")

			path := c.Request().URL.Path
			if isDocsPath(path) {
				h.Set("Content-Security-Policy", docsCSP)
			} else {
				h.Set("Content-Security-Policy", apiCSP)
			}

			// 残高や台帳はキャッシュさせない
			if strings.HasPrefix(path, "/api/") {
				h.Set("Cache-Control", "no-store")
			}

			if c.Scheme() == "https" {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			return next(c)
		}
	}
}

// isDocsPath APIドキュメント関連のパスかどうかを判定
func isDocsPath(path string) bool {
	return path == "/openapi.yaml" || path == "/redoc" || path == "/swagger" || strings.HasPrefix(path, "/swagger/")
}
