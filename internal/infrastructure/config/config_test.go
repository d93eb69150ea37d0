package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		wantError   bool
		checkConfig func(*testing.T, *Config)
	}{
		{
			name: "正常系: デフォルト値で設定を読み込む",
			env: map[string]string{
				"JWT_SECRET":    "test-secret",
				"ADMIN_API_KEY": "admin-key",
			},
			checkConfig: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, "loyalty_db", cfg.Database.Database)
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 8081, cfg.Server.GRPCPort)
				assert.Equal(t, StorageDriverMySQL, cfg.Storage.Driver)
				assert.Equal(t, 3, cfg.Ledger.MaxRetries)
				assert.Equal(t, 10*time.Millisecond, cfg.Ledger.RetryBackoff)
				assert.Equal(t, 5*time.Second, cfg.Ledger.LockTimeout)
				assert.Equal(t, 24*time.Hour, cfg.Redis.IdempotencyTTL)
				assert.Equal(t, "info", cfg.Log.Level)
				assert.True(t, cfg.RateLimit.Enabled)
				assert.Equal(t, float64(20), cfg.RateLimit.RequestsPerSecond)
			},
		},
		{
			name: "正常系: 環境変数から設定を読み込む",
			env: map[string]string{
				"ENVIRONMENT":           "production",
				"SERVER_PORT":           "9000",
				"GRPC_PORT":             "9100",
				"DB_HOST":               "db.example.com",
				"DB_PORT":               "3307",
				"DB_NAME":               "prod_db",
				"DB_AUTO_MIGRATE":       "true",
				"JWT_SECRET":            "prod-secret",
				"ADMIN_API_KEY":         "admin-key",
				"ADMIN_API_ALLOWED_IPS": "10.0.0.1, 10.0.1.0/24",
				"LEDGER_MAX_RETRIES":    "5",
				"LEDGER_LOCK_TIMEOUT":   "2s",
				"RATE_LIMIT_RPS":        "2.5",
				"LOG_LEVEL":             "debug",
			},
			checkConfig: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "production", cfg.Environment)
				assert.Equal(t, 9000, cfg.Server.Port)
				assert.Equal(t, 9100, cfg.Server.GRPCPort)
				assert.Equal(t, "db.example.com", cfg.Database.Host)
				assert.Equal(t, 3307, cfg.Database.Port)
				assert.Equal(t, "prod_db", cfg.Database.Database)
				assert.True(t, cfg.Database.AutoMigrate)
				assert.Equal(t, []string{"10.0.0.1", "10.0.1.0/24"}, cfg.AdminAPI.AllowedIPs)
				assert.Equal(t, 5, cfg.Ledger.MaxRetries)
				assert.Equal(t, 2*time.Second, cfg.Ledger.LockTimeout)
				assert.Equal(t, 2.5, cfg.RateLimit.RequestsPerSecond)
				assert.Equal(t, "debug", cfg.Log.Level)
			},
		},
		{
			name: "正常系: メモリドライバ",
			env: map[string]string{
				"STORAGE_DRIVER":    "memory",
				"JWT_SECRET":        "test-secret",
				"ADMIN_API_ENABLED": "false",
			},
			checkConfig: func(t *testing.T, cfg *Config) {
				assert.Equal(t, StorageDriverMemory, cfg.Storage.Driver)
				assert.False(t, cfg.AdminAPI.Enabled)
			},
		},
		{
			name: "異常系: JWT_SECRETが空",
			env: map[string]string{
				"ADMIN_API_KEY": "admin-key",
			},
			wantError: true,
		},
		{
			name: "異常系: 管理API有効時にADMIN_API_KEYが空",
			env: map[string]string{
				"JWT_SECRET": "test-secret",
			},
			wantError: true,
		},
		{
			name: "異常系: 未対応のドライバ",
			env: map[string]string{
				"STORAGE_DRIVER": "postgres",
				"JWT_SECRET":     "test-secret",
				"ADMIN_API_KEY":  "admin-key",
			},
			wantError: true,
		},
		{
			name: "異常系: 負の再実行回数",
			env: map[string]string{
				"JWT_SECRET":         "test-secret",
				"ADMIN_API_KEY":      "admin-key",
				"LEDGER_MAX_RETRIES": "-1",
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()

			if tt.wantError {
				assert.Error(t, err)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)
				if tt.checkConfig != nil {
					tt.checkConfig(t, cfg)
				}
			}
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		User:     "testuser",
		Password: "testpass",
		Host:     "localhost",
		Port:     3306,
		Database: "testdb",
	}

	dsn := cfg.DSN()
	assert.Equal(t, "testuser:testpass@tcp(localhost:3306)/testdb?charset=utf8mb4&parseTime=True&loc=UTC&multiStatements=true", dsn)
}

func TestRedisConfig_Address(t *testing.T) {
	cfg := RedisConfig{
		Host: "redis.example.com",
		Port: 6379,
	}

	address := cfg.Address()
	assert.Equal(t, "redis.example.com:6379", address)
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue int
		want         int
	}{
		{
			name:         "環境変数が設定されている",
			envValue:     "123",
			defaultValue: 0,
			want:         123,
		},
		{
			name:         "環境変数が空",
			envValue:     "",
			defaultValue: 456,
			want:         456,
		},
		{
			name:         "環境変数が無効な値",
			envValue:     "invalid",
			defaultValue: 789,
			want:         789,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Setenv("TEST_INT", tt.envValue)
			defer os.Unsetenv("TEST_INT")

			got := getEnvAsInt("TEST_INT", tt.defaultValue)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetEnvAsBool(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		want         bool
	}{
		{name: "環境変数がtrue", envValue: "true", defaultValue: false, want: true},
		{name: "環境変数がfalse", envValue: "false", defaultValue: true, want: false},
		{name: "環境変数が空", envValue: "", defaultValue: true, want: true},
		{name: "環境変数が無効な値", envValue: "invalid", defaultValue: false, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.envValue)
			assert.Equal(t, tt.want, getEnvAsBool("TEST_BOOL", tt.defaultValue))
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue time.Duration
		want         time.Duration
	}{
		{name: "環境変数が有効な時間", envValue: "1h", defaultValue: time.Minute, want: time.Hour},
		{name: "環境変数が空", envValue: "", defaultValue: time.Minute, want: time.Minute},
		{name: "環境変数が無効な値", envValue: "invalid", defaultValue: time.Hour, want: time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.envValue)
			assert.Equal(t, tt.want, getEnvAsDuration("TEST_DURATION", tt.defaultValue))
		})
	}
}

func TestGetEnvAsSlice(t *testing.T) {
	t.Setenv("TEST_SLICE", " a, ,b ,c")
	assert.Equal(t, []string{"a", "b", "c"}, getEnvAsSlice("TEST_SLICE"))

	t.Setenv("TEST_SLICE", "")
	assert.Nil(t, getEnvAsSlice("TEST_SLICE"))
}
