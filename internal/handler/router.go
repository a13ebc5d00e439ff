package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/tradedesk/internal/identity"
	"github.com/hitoshi/tradedesk/internal/middleware"
	"github.com/hitoshi/tradedesk/internal/ratelimit"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Identity          identity.Resolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	ChatLimiter       ratelimit.Limiter
	Metrics           RouterMetrics

	// ヘルスチェック・メトリクス
	DB             Pinger
	MetricsHandler http.Handler

	// サービス
	IdeaService       IdeaServiceInterface
	IdeasPageSize     int
	NewsletterService NewsletterServiceInterface
	WatchlistService  WatchlistServiceInterface
	SavedIdeaService  SavedIdeaServiceInterface
	ProfileService    ProfileServiceInterface
	ChatService       ChatServiceInterface
}

// RouterMetrics はルーターが記録するメトリクスのインターフェース。
type RouterMetrics interface {
	middleware.StatusRecorder
	middleware.RateLimitRecorder
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Recovery → Logging → StatusMetrics → SecurityHeaders → CORS
//
// 認証が必要なルートには Auth → RateLimit(General) を追加し、
// /api/chat にはさらに固定ウィンドウ方式のチャット制限を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(middleware.NewStatusMetricsMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	var recorder middleware.RateLimitRecorder
	if deps.Metrics != nil {
		recorder = deps.Metrics
	}

	ideaHandler := NewIdeaHandler(deps.IdeaService, deps.IdeasPageSize)
	newsletterHandler := NewNewsletterHandler(deps.NewsletterService)
	watchlistHandler := NewWatchlistHandler(deps.WatchlistService)
	savedIdeaHandler := NewSavedIdeaHandler(deps.SavedIdeaService)
	profileHandler := NewProfileHandler(deps.ProfileService)
	chatHandler := NewChatHandler(deps.ChatService)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.DB))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/ideas", ideaHandler.ListIdeas)
		r.Get("/api/ideas/{id}", ideaHandler.GetIdea)

		r.Route("/api/newsletter", func(r chi.Router) {
			r.With(deps.RateLimiter.SubscribeMiddleware()).Post("/subscribe", newsletterHandler.Subscribe)
			r.Post("/unsubscribe", newsletterHandler.Unsubscribe)
		})
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.Identity))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/watchlists", func(r chi.Router) {
			r.Get("/", watchlistHandler.List)
			r.Post("/", watchlistHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", watchlistHandler.Get)
				r.Patch("/", watchlistHandler.Rename)
				r.Delete("/", watchlistHandler.Delete)
				r.Post("/tickers", watchlistHandler.AddTicker)
				r.Delete("/tickers/{ticker}", watchlistHandler.RemoveTicker)
			})
		})

		r.Route("/api/saved-ideas", func(r chi.Router) {
			r.Get("/", savedIdeaHandler.List)
			r.Post("/", savedIdeaHandler.Save)
			r.Patch("/{id}", savedIdeaHandler.UpdateNote)
			r.Delete("/{id}", savedIdeaHandler.Delete)
		})

		r.Route("/api/profile", func(r chi.Router) {
			r.Get("/", profileHandler.Get)
			r.Put("/", profileHandler.Update)
			r.Delete("/", profileHandler.Delete)
		})

		chatLimit := middleware.NewFixedWindowMiddleware(middleware.LimiterChat, deps.ChatLimiter, middleware.UserKey, recorder)
		r.With(chatLimit).Post("/api/chat", chatHandler.Reply)
	})

	return r
}
