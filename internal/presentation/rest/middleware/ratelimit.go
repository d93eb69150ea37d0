package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"loyalty-server/internal/infrastructure/config"
	otelinfra "loyalty-server/internal/infrastructure/observability/otel"
	"loyalty-server/internal/presentation/adminaccess"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter 呼び出し元ごとのトークンバケット
// 認証済みなら会員ID、未認証ならクライアントIPをキーにする
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	logger   *otelinfra.Logger
}

// NewRateLimiter 新しいRateLimiterを作成
func NewRateLimiter(cfg *config.RateLimitConfig, logger *otelinfra.Logger) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(cfg.RequestsPerSecond),
		burst:    cfg.Burst,
		logger:   logger,
	}
}

func (rl *RateLimiter) getLimiter(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	e, ok := rl.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// Middleware レート制限ミドルウェア
// 認証ミドルウェアより後ろに置くと会員単位で制限される
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			key := "ip:" + adminaccess.ClientIP(
				req.Header.Get("X-Forwarded-For"),
				req.Header.Get("X-Real-IP"),
				req.RemoteAddr,
			)
			if p, ok := PrincipalFromContext(c); ok {
				key = "member:" + p.ID
			}

			if !rl.getLimiter(key, time.Now()).Allow() {
				rl.logger.Warn(c.Request().Context(), "Rate limit exceeded", map[string]interface{}{
					"key":    key,
					"path":   c.Path(),
					"method": c.Request().Method,
				})
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(rl.rate)))
				return c.JSON(http.StatusTooManyRequests, ErrorResponse{
					Error:   "rate_limited",
					Message: "Too many requests",
				})
			}
			return next(c)
		}
	}
}

// Cleanup 指定時間使われていないリミッタを削除
func (rl *RateLimiter) Cleanup(idle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-idle)
	for key, e := range rl.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
		}
	}
}

// StartCleanup ctx が終了するまで定期的にCleanupを実行する
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Cleanup(2 * interval)
			}
		}
	}()
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func retryAfterSeconds(r rate.Limit) int {
	if r <= 0 {
		return 1
	}
	secs := int(1 / float64(r))
	if secs < 1 {
		return 1
	}
	return secs
}
