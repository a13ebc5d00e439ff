package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/tradedesk/internal/config"
	"github.com/hitoshi/tradedesk/internal/database"
	"github.com/hitoshi/tradedesk/internal/handler"
	"github.com/hitoshi/tradedesk/internal/identity"
	"github.com/hitoshi/tradedesk/internal/ideas"
	"github.com/hitoshi/tradedesk/internal/logger"
	"github.com/hitoshi/tradedesk/internal/metrics"
	"github.com/hitoshi/tradedesk/internal/middleware"
	"github.com/hitoshi/tradedesk/internal/newsletter"
	"github.com/hitoshi/tradedesk/internal/profile"
	"github.com/hitoshi/tradedesk/internal/repository"
	"github.com/hitoshi/tradedesk/internal/savedidea"
	"github.com/hitoshi/tradedesk/internal/watchlist"
	"github.com/hitoshi/tradedesk/internal/worker/cleanup"
)

const (
	dbPingTimeout   = 5 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w, slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	log := slog.Default()

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.Ping(context.Background(), db, dbPingTimeout); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("database connection established")

	// 2. メトリクスとリトライ
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)
	retry := newRetryConfig(cfg, collector, log)

	// 3. リポジトリの初期化
	ideaRepo := repository.NewPostgresIdeaRepo(db)
	subscriberRepo := repository.NewPostgresSubscriberRepo(db)
	watchlistRepo := repository.NewPostgresWatchlistRepo(db)
	savedIdeaRepo := repository.NewPostgresSavedIdeaRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)

	// 4. ドメインサービスの初期化
	ideaService := ideas.NewService(ideaRepo, retry, collector, log)
	newsletterService := newsletter.NewService(subscriberRepo, retry, log)
	watchlistService := watchlist.NewService(watchlistRepo, retry, log)
	savedIdeaService := savedidea.NewService(savedIdeaRepo, ideaService, retry, log)
	profileService := profile.NewService(profileRepo, watchlistRepo, savedIdeaRepo, retry, log)
	chatService := newChatService(cfg, retry, collector, log)

	identityClient := identity.NewClient(
		&http.Client{Timeout: cfg.IdentityTimeout},
		cfg.IdentityURL, cfg.IdentityAPIKey, log,
	)

	// 5. レート制限
	rateLimiter := middleware.NewRateLimiter(newRateLimiterConfig(cfg), collector)
	defer rateLimiter.Stop()

	// 6. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		Identity:          identityClient,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		ChatLimiter:       newChatLimiter(cfg, db),
		Metrics:           collector,

		DB:             db,
		MetricsHandler: metrics.Handler(registry),

		IdeaService:       ideaService,
		IdeasPageSize:     cfg.IdeasPageSize,
		NewsletterService: newsletterService,
		WatchlistService:  watchlistService,
		SavedIdeaService:  savedIdeaService,
		ProfileService:    profileService,
		ChatService:       chatService,
	})

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LLMTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.Bool("chat_enabled", cfg.ChatEnabled()),
			slog.Bool("search_enabled", cfg.SearchEnabled()),
			slog.String("rate_limit_backend", cfg.RateLimitBackend),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	log.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れのレート制限エントリと、保持期間を過ぎた解除済み購読者を定期的に削除する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	log := slog.Default()

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.Ping(context.Background(), db, dbPingTimeout); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("database connection established (worker)")

	var rateLimits cleanup.RateLimitCleaner
	if cfg.RateLimitBackend == config.RateLimitBackendPostgres {
		rateLimits = repository.NewPostgresRateLimitRepo(db, newChatLimiterConfig(cfg))
	}
	job := cleanup.NewCleanupJob(rateLimits, repository.NewPostgresSubscriberRepo(db), log)
	job.Retention = cfg.SubscriberRetention

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		log.Info("shutting down worker...")
		cancel()
	}()

	log.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Duration("subscriber_retention", cfg.SubscriberRetention),
	)

	// ブロッキング
	job.Start(ctx, cfg.CleanupInterval)

	log.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.Version(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// 解析できないURLは全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
