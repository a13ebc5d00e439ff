package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/tradedesk/internal/model"
	"github.com/hitoshi/tradedesk/internal/ratelimit"
)

// RateLimitRecorder はレート制限による拒否を記録するインターフェース。
// metrics.MetricsCollectorが実装する。
type RateLimitRecorder interface {
	RecordRateLimited(limiter string)
}

// リミッター名。メトリクスのラベルとログに使う。
const (
	LimiterGeneral   = "general"
	LimiterSubscribe = "subscribe"
	LimiterChat      = "chat"
)

// TokenBucketConfig はトークンバケット1種類分の設定。
type TokenBucketConfig struct {
	Rate  rate.Limit // 補充レート（req/sec）
	Burst int        // バーストサイズ
}

// PerMinute は1分あたりn件を許容するトークンバケット設定を返す。
func PerMinute(n int) TokenBucketConfig {
	return TokenBucketConfig{
		Rate:  rate.Limit(float64(n) / 60.0),
		Burst: n,
	}
}

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	General         TokenBucketConfig // API全般（ユーザー単位）
	Subscribe       TokenBucketConfig // ニュースレター購読（クライアントIP単位）
	CleanupInterval time.Duration     // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/user、購読 5 req/min/IP。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		General:         PerMinute(120),
		Subscribe:       PerMinute(5),
		CleanupInterval: 5 * time.Minute,
	}
}

// keyedLimiter はキーごとのレートリミッターとアクセス時刻を保持する。
type keyedLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet はキーごとのトークンバケットの集合。
type limiterSet struct {
	config TokenBucketConfig

	mu       sync.Mutex
	limiters map[string]*keyedLimiter
}

func newLimiterSet(config TokenBucketConfig) *limiterSet {
	return &limiterSet{
		config:   config,
		limiters: make(map[string]*keyedLimiter),
	}
}

// get はキーのリミッターを取得または作成する。
func (s *limiterSet) get(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if kl, ok := s.limiters[key]; ok {
		kl.lastAccess = now
		return kl.limiter
	}

	limiter := rate.NewLimiter(s.config.Rate, s.config.Burst)
	s.limiters[key] = &keyedLimiter{limiter: limiter, lastAccess: now}
	return limiter
}

// evict はlastAccessがttlより古いエントリを削除する。
func (s *limiterSet) evict(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, kl := range s.limiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(s.limiters, key)
		}
	}
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// RateLimiter はトークンバケット方式のレート制限を管理する。
// API全般（ユーザー単位）と購読（クライアントIP単位）の2種類を提供する。
type RateLimiter struct {
	config    RateLimiterConfig
	general   *limiterSet
	subscribe *limiterSet
	recorder  RateLimitRecorder

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。recorderはnilでもよい。
func NewRateLimiter(config RateLimiterConfig, recorder RateLimitRecorder) *RateLimiter {
	rl := &RateLimiter{
		config:    config,
		general:   newLimiterSet(config.General),
		subscribe: newLimiterSet(config.Subscribe),
		recorder:  recorder,
		stopCh:    make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// 認証ミドルウェアの後に配置する。ユーザーIDがない場合はクライアントIPで数える。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(LimiterGeneral, rl.general, UserOrIPKey)
}

// SubscribeMiddleware はニュースレター購読用のレート制限ミドルウェアを返す。
// 未認証のエンドポイントのため、クライアントIP単位で数える。
func (rl *RateLimiter) SubscribeMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(LimiterSubscribe, rl.subscribe, ClientIP)
}

func (rl *RateLimiter) middleware(name string, set *limiterSet, key func(*http.Request) string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if !set.get(k, time.Now()).Allow() {
				if rl.recorder != nil {
					rl.recorder.RecordRateLimited(name)
				}
				slog.Warn("rate limit exceeded",
					slog.String("key", k),
					slog.String("limit_type", name),
				)
				writeRateLimitResponse(w, tokenRetryAfter(set.config.Rate))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.len()
}

// SubscribeLimiterCount は現在管理されている購読リミッターのエントリ数を返す。
func (rl *RateLimiter) SubscribeLimiterCount() int {
	return rl.subscribe.len()
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.config.CleanupInterval * 2
	rl.general.evict(now, ttl)
	rl.subscribe.evict(now, ttl)
}

// NewFixedWindowMiddleware は固定ウィンドウ方式のレート制限ミドルウェアを返す。
// keyが返す識別子ごとにlimiterで判定し、超過時はResetAtまでの秒数をRetry-Afterに設定して429を返す。
// limiterがエラーを返した場合はリクエストを通す。
func NewFixedWindowMiddleware(name string, limiter ratelimit.Limiter, key func(*http.Request) string, recorder RateLimitRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			k := key(r)

			decision, err := limiter.Allow(r.Context(), k)
			if err != nil {
				slog.Warn("rate limiter unavailable, allowing request",
					slog.String("limit_type", name),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			remaining := decision.Limit - decision.Count
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !decision.Allowed {
				if recorder != nil {
					recorder.RecordRateLimited(name)
				}
				slog.Warn("rate limit exceeded",
					slog.String("key", k),
					slog.String("limit_type", name),
					slog.Int("count", decision.Count),
				)
				writeRateLimitResponse(w, decision.RetryAfterSeconds(now))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// UserKey はコンテキストのユーザーIDを返す。認証前のリクエストでは空文字を返す。
func UserKey(r *http.Request) string {
	userID, _ := UserIDFromContext(r.Context())
	return userID
}

// UserOrIPKey はユーザーIDを返し、なければクライアントIPを返す。
func UserOrIPKey(r *http.Request) string {
	if userID := UserKey(r); userID != "" {
		return "user:" + userID
	}
	return "ip:" + ClientIP(r)
}

// ClientIP はリクエスト元のIPアドレスを返す。
// ルーターでchiのRealIPミドルウェアを通している前提で、RemoteAddrからポートを除いた値を使う。
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// tokenRetryAfter は1トークンが補充されるまでの秒数を返す。最小1秒。
func tokenRetryAfter(r rate.Limit) int {
	if r <= 0 {
		return 60
	}
	sec := int(math.Ceil(1.0 / float64(r)))
	if sec < 1 {
		return 1
	}
	return sec
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
func writeRateLimitResponse(w http.ResponseWriter, retryAfterSec int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError(retryAfterSec))
}
