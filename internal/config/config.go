package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	// MinFetchConcurrency はプロフィール取得ワーカー数の下限。
	MinFetchConcurrency = 1
	// MaxFetchConcurrency はプロフィール取得ワーカー数の上限。
	MaxFetchConcurrency = 10
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Redis（空の場合はプロセス内キャッシュを使用する）
	RedisURL string

	// FACEIT
	FaceitAPIKey    string
	FaceitBaseURL   string
	TrackedGame     string
	AvatarFallback  string
	RemoteRateLimit float64
	RemoteRateBurst int

	// Fetch
	ProfileCacheTTL    time.Duration
	FetchTimeout       time.Duration
	FetchMaxConcurrent int
	RefreshInterval    time.Duration

	// Rate Limit（req/min/IP）
	RateLimitGeneral int
	RateLimitAdmin   int

	// Admin
	AdminToken string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// FACEIT_API_KEY は必須としない。未設定の場合、起動は継続し
// リーダーボード取得と管理操作が Unconfigured を返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.FaceitAPIKey = os.Getenv("FACEIT_API_KEY")
	cfg.FaceitBaseURL = getEnvString("FACEIT_BASE_URL", "https://open.faceit.com/data/v4")
	cfg.TrackedGame = getEnvString("TRACKED_GAME", "cs2")
	cfg.AvatarFallback = getEnvString("AVATAR_FALLBACK", "https://via.placeholder.com/36")
	cfg.RemoteRateLimit = getEnvFloat("REMOTE_RATE_LIMIT", 10)
	cfg.RemoteRateBurst = getEnvInt("REMOTE_RATE_BURST", 10)
	cfg.ProfileCacheTTL = getEnvDuration("PROFILE_CACHE_TTL", 30*time.Second)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 5*time.Second)
	cfg.FetchMaxConcurrent = ClampConcurrency(getEnvInt("FETCH_MAX_CONCURRENT", 5))
	cfg.RefreshInterval = getEnvDuration("REFRESH_INTERVAL", 30*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAdmin = getEnvInt("RATE_LIMIT_ADMIN", 30)
	cfg.AdminToken = getEnvString("ADMIN_TOKEN", "")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// FaceitConfigured はFACEIT APIキーが設定されているかを返す。
func (c *Config) FaceitConfigured() bool {
	return c.FaceitAPIKey != ""
}

// ClampConcurrency はワーカー数を [MinFetchConcurrency, MaxFetchConcurrency] に丸める。
func ClampConcurrency(n int) int {
	if n < MinFetchConcurrency {
		return MinFetchConcurrency
	}
	if n > MaxFetchConcurrency {
		return MaxFetchConcurrency
	}
	return n
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
