package app

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/hitoshi/tradedesk/internal/chat"
	"github.com/hitoshi/tradedesk/internal/config"
	"github.com/hitoshi/tradedesk/internal/metrics"
	"github.com/hitoshi/tradedesk/internal/middleware"
	"github.com/hitoshi/tradedesk/internal/ratelimit"
	"github.com/hitoshi/tradedesk/internal/repository"
	"github.com/hitoshi/tradedesk/internal/resilience"
	"github.com/hitoshi/tradedesk/internal/search"
	"github.com/hitoshi/tradedesk/internal/security"
)

// newRetryConfig は設定値からリトライ設定を組み立てる。
// 再試行のたびにWARNログとメトリクスを記録し、打ち切り時にもメトリクスを記録する。
func newRetryConfig(cfg *config.Config, collector *metrics.Collector, logger *slog.Logger) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:  cfg.RetryMaxAttempts,
		InitialDelay: cfg.RetryInitialDelay,
		OnRetry: func(a resilience.Attempt) {
			logger.Warn("操作に失敗したため再試行します",
				slog.String("operation", a.Operation),
				slog.Int("attempt", a.Number),
				slog.Int("max_attempts", a.MaxAttempts),
				slog.Int64("next_delay_ms", a.NextDelay.Milliseconds()),
				slog.String("error", a.LastError.Error()),
			)
			if collector != nil {
				collector.RecordRetry(a.Operation)
			}
		},
		OnGiveUp: func(a resilience.Attempt) {
			if collector != nil {
				collector.RecordRetryExhausted(a.Operation)
			}
		},
	}
}

// newRateLimiterConfig はAPI全般と購読のトークンバケット設定を組み立てる。
func newRateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rlCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rlCfg.General = middleware.PerMinute(cfg.RateLimitGeneral)
	}
	if cfg.RateLimitSubscribe > 0 {
		rlCfg.Subscribe = middleware.PerMinute(cfg.RateLimitSubscribe)
	}
	return rlCfg
}

// newChatLimiterConfig はチャットの固定ウィンドウ設定を返す。未設定の値は既定値を使う。
func newChatLimiterConfig(cfg *config.Config) ratelimit.Config {
	rlCfg := ratelimit.DefaultConfig()
	if cfg.RateLimitChat > 0 {
		rlCfg.MaxRequests = cfg.RateLimitChat
	}
	if cfg.RateLimitWindow > 0 {
		rlCfg.Window = cfg.RateLimitWindow
	}
	return rlCfg
}

// newChatLimiter はRATE_LIMIT_BACKENDに応じてチャット用の固定ウィンドウ制限を生成する。
// postgresの場合は複数インスタンスでカウンタを共有する。
func newChatLimiter(cfg *config.Config, db *sql.DB) ratelimit.Limiter {
	rlCfg := newChatLimiterConfig(cfg)
	if cfg.RateLimitBackend == config.RateLimitBackendPostgres && db != nil {
		return repository.NewPostgresRateLimitRepo(db, rlCfg)
	}
	return ratelimit.NewMemoryLimiter(rlCfg)
}

// newSearchProvider は設定に応じた検索プロバイダーを生成する。設定が不足している場合はnilを返す。
// 外部への取得はSSRF対策済みのクライアントで行う。
func newSearchProvider(cfg *config.Config, httpClient *http.Client, sanitizer security.TextSanitizer) search.Provider {
	if !cfg.SearchEnabled() {
		return nil
	}
	switch cfg.SearchProvider {
	case config.SearchProviderAPI:
		return search.NewAPIProvider(httpClient, cfg.SearchAPIURL, cfg.SearchAPIKey, sanitizer)
	case config.SearchProviderRSS:
		return search.NewRSSProvider(httpClient, cfg.SearchRSSURL, sanitizer)
	default:
		return nil
	}
}

// newChatService はチャットサービスを生成する。
// LLMの設定がない場合はCHAT_UNAVAILABLEを返すサービスになる。
func newChatService(cfg *config.Config, retry resilience.RetryConfig, collector *metrics.Collector, logger *slog.Logger) *chat.Service {
	sanitizer := security.NewTextSanitizer()
	guard := security.NewSSRFGuard()

	var llm chat.Completer
	if cfg.ChatEnabled() {
		llm = chat.NewOpenAIClient(&http.Client{Timeout: cfg.LLMTimeout}, cfg.LLMAPIURL, cfg.LLMAPIKey, cfg.LLMModel)
	} else {
		logger.Warn("LLM_API_URL または LLM_API_KEY が未設定のため、チャットは無効です")
	}

	provider := newSearchProvider(cfg, guard.NewSafeClient(cfg.SearchTimeout, search.MaxResponseSize), sanitizer)
	if provider == nil && cfg.SearchProvider != config.SearchProviderNone {
		logger.Warn("検索プロバイダーの設定が不足しているため、検索補強は無効です",
			slog.String("provider", cfg.SearchProvider),
		)
	}

	opts := chat.Options{
		Search:        provider,
		SearchLimit:   cfg.SearchMaxResults,
		SearchTimeout: cfg.SearchTimeout,
		Logger:        logger,
	}
	if collector != nil {
		opts.Metrics = collector
	}
	return chat.NewService(llm, sanitizer, retry, opts)
}
