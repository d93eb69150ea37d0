// Package adminaccess 管理API（RESTとgRPC共通）のAPIキーと接続元IPの判定
package adminaccess

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"strings"

	"loyalty-server/internal/infrastructure/config"
)

var (
	// ErrDisabled 管理APIが無効化されている
	ErrDisabled = errors.New("admin API is disabled")
	// ErrMissingAPIKey APIキーが指定されていない
	ErrMissingAPIKey = errors.New("missing API key")
	// ErrInvalidAPIKey APIキーが一致しない
	ErrInvalidAPIKey = errors.New("invalid API key")
	// ErrIPNotAllowed 接続元IPが許可リストにない
	ErrIPNotAllowed = errors.New("IP address not allowed")
)

// Guard 管理APIのアクセス判定
type Guard struct {
	enabled bool
	apiKey  []byte
	allowed []*net.IPNet // 空なら全IPを許可
}

// NewGuard 設定からGuardを作成
// 許可リストは単一アドレスとCIDR表記の両方を受け付け、不正な値はエラーにする
func NewGuard(cfg *config.AdminAPIConfig) (*Guard, error) {
	g := &Guard{
		enabled: cfg.Enabled,
		apiKey:  []byte(cfg.APIKey),
	}
	for _, entry := range cfg.AllowedIPs {
		network, err := parseAllowed(strings.TrimSpace(entry))
		if err != nil {
			return nil, err
		}
		g.allowed = append(g.allowed, network)
	}
	return g, nil
}

func parseAllowed(entry string) (*net.IPNet, error) {
	if strings.Contains(entry, "/") {
		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed IP %q: %w", entry, err)
		}
		return network, nil
	}
	ip := net.ParseIP(entry)
	if ip == nil {
		return nil, fmt.Errorf("invalid allowed IP %q", entry)
	}
	bits := 8 * net.IPv6len
	if v4 := ip.To4(); v4 != nil {
		ip, bits = v4, 8*net.IPv4len
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
}

// Check APIキーと接続元IPを検証する
func (g *Guard) Check(apiKey, clientIP string) error {
	if !g.enabled {
		return ErrDisabled
	}
	if apiKey == "" {
		return ErrMissingAPIKey
	}
	if subtle.ConstantTimeCompare([]byte(apiKey), g.apiKey) != 1 {
		return ErrInvalidAPIKey
	}
	if !g.ipAllowed(clientIP) {
		return ErrIPNotAllowed
	}
	return nil
}

func (g *Guard) ipAllowed(clientIP string) bool {
	if len(g.allowed) == 0 {
		return true
	}
	ip := net.ParseIP(clientIP)
	if ip == nil {
		return false
	}
	for _, network := range g.allowed {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP プロキシヘッダー、なければ接続元アドレスからIPを得る
func ClientIP(forwardedFor, realIP, remoteAddr string) string {
	if forwardedFor != "" {
		return strings.TrimSpace(strings.Split(forwardedFor, ",")[0])
	}
	if realIP != "" {
		return strings.TrimSpace(realIP)
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
