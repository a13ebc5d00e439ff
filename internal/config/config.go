package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// 検索プロバイダーの種類。
const (
	SearchProviderNone = ""
	SearchProviderAPI  = "api"
	SearchProviderRSS  = "rss"
)

// レート制限の状態保存先。
const (
	RateLimitBackendMemory   = "memory"
	RateLimitBackendPostgres = "postgres"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Identity provider
	IdentityURL     string
	IdentityAPIKey  string
	IdentityTimeout time.Duration

	// LLM
	LLMAPIURL  string
	LLMAPIKey  string
	LLMModel   string
	LLMTimeout time.Duration

	// Search
	SearchProvider   string
	SearchAPIURL     string
	SearchAPIKey     string
	SearchRSSURL     string // クエリを埋め込む %s を含むURLテンプレート
	SearchTimeout    time.Duration
	SearchMaxResults int

	// Rate Limit
	RateLimitBackend   string
	RateLimitChat      int
	RateLimitWindow    time.Duration
	RateLimitGeneral   int
	RateLimitSubscribe int

	// Retry
	RetryMaxAttempts  int
	RetryInitialDelay time.Duration

	// Ideas
	IdeasPageSize int

	// Cleanup
	CleanupInterval     time.Duration
	SubscriberRetention time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合、または列挙値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.IdentityURL = strings.TrimRight(os.Getenv("IDENTITY_URL"), "/")
	if cfg.IdentityURL == "" {
		missing = append(missing, "IDENTITY_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.IdentityAPIKey = getEnvString("IDENTITY_API_KEY", "")
	cfg.IdentityTimeout = getEnvDuration("IDENTITY_TIMEOUT", 5*time.Second)

	cfg.LLMAPIURL = strings.TrimRight(getEnvString("LLM_API_URL", ""), "/")
	cfg.LLMAPIKey = getEnvString("LLM_API_KEY", "")
	cfg.LLMModel = getEnvString("LLM_MODEL", "gpt-4o-mini")
	cfg.LLMTimeout = getEnvDuration("LLM_TIMEOUT", 30*time.Second)

	cfg.SearchProvider = strings.ToLower(getEnvString("SEARCH_PROVIDER", SearchProviderNone))
	cfg.SearchAPIURL = getEnvString("SEARCH_API_URL", "")
	cfg.SearchAPIKey = getEnvString("SEARCH_API_KEY", "")
	cfg.SearchRSSURL = getEnvString("SEARCH_RSS_URL", "")
	cfg.SearchTimeout = getEnvDuration("SEARCH_TIMEOUT", 8*time.Second)
	cfg.SearchMaxResults = getEnvInt("SEARCH_MAX_RESULTS", 5)

	cfg.RateLimitBackend = strings.ToLower(getEnvString("RATE_LIMIT_BACKEND", RateLimitBackendMemory))
	cfg.RateLimitChat = getEnvInt("RATE_LIMIT_CHAT", 10)
	cfg.RateLimitWindow = getEnvDuration("RATE_LIMIT_WINDOW", time.Minute)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSubscribe = getEnvInt("RATE_LIMIT_SUBSCRIBE", 5)

	cfg.RetryMaxAttempts = getEnvInt("RETRY_MAX_ATTEMPTS", 3)
	cfg.RetryInitialDelay = getEnvDuration("RETRY_INITIAL_DELAY", time.Second)

	cfg.IdeasPageSize = getEnvInt("IDEAS_PAGE_SIZE", 20)

	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", time.Hour)
	cfg.SubscriberRetention = getEnvDuration("SUBSCRIBER_RETENTION", 30*24*time.Hour)

	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	switch cfg.SearchProvider {
	case SearchProviderNone, SearchProviderAPI, SearchProviderRSS:
	default:
		return nil, fmt.Errorf("SEARCH_PROVIDER must be one of \"\", %q, %q: got %q",
			SearchProviderAPI, SearchProviderRSS, cfg.SearchProvider)
	}

	switch cfg.RateLimitBackend {
	case RateLimitBackendMemory, RateLimitBackendPostgres:
	default:
		return nil, fmt.Errorf("RATE_LIMIT_BACKEND must be %q or %q: got %q",
			RateLimitBackendMemory, RateLimitBackendPostgres, cfg.RateLimitBackend)
	}

	return cfg, nil
}

// ChatEnabled はLLMの接続設定が揃っているかを返す。
func (c *Config) ChatEnabled() bool {
	return c.LLMAPIURL != "" && c.LLMAPIKey != ""
}

// SearchEnabled は検索補強に必要な設定が揃っているかを返す。
func (c *Config) SearchEnabled() bool {
	switch c.SearchProvider {
	case SearchProviderAPI:
		return c.SearchAPIURL != "" && c.SearchAPIKey != ""
	case SearchProviderRSS:
		return strings.Contains(c.SearchRSSURL, "%s")
	default:
		return false
	}
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

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
