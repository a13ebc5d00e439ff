// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェアやサービス層から利用する。
type MetricsCollector interface {
	RecordRetry(operation string)
	RecordRetryExhausted(operation string)
	RecordRateLimited(limiter string)
	RecordIdeasServed(count int, fallback bool)
	RecordChatRequest(outcome string)
	RecordSearch(provider, outcome string)
	RecordHTTPStatus(statusCode int)
	RecordUpstreamLatency(operation string, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	retries         *prometheus.CounterVec
	retryExhausted  *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	ideasServed     prometheus.Counter
	fallbackServed  prometheus.Counter
	chatRequests    *prometheus.CounterVec
	searches        *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradedesk_retry_attempts_total",
			Help: "再試行の対象となった失敗の合計数",
		}, []string{"operation"}),
		retryExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradedesk_retry_exhausted_total",
			Help: "全試行が失敗した呼び出しの合計数",
		}, []string{"operation"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradedesk_rate_limited_total",
			Help: "レート制限で拒否したリクエスト数",
		}, []string{"limiter"}),
		ideasServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradedesk_ideas_served_total",
			Help: "配信した正規化済みアイデアの合計数",
		}),
		fallbackServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradedesk_ideas_fallback_total",
			Help: "フォールバックのアイデアを返した回数",
		}),
		chatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradedesk_chat_requests_total",
			Help: "結果別のチャットリクエスト数",
		}, []string{"outcome"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradedesk_search_augmentations_total",
			Help: "プロバイダー・結果別の検索補強回数",
		}, []string{"provider", "outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradedesk_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradedesk_upstream_latency_seconds",
			Help:    "上流呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	reg.MustRegister(
		c.retries,
		c.retryExhausted,
		c.rateLimited,
		c.ideasServed,
		c.fallbackServed,
		c.chatRequests,
		c.searches,
		c.httpStatus,
		c.upstreamLatency,
	)

	return c
}

// RecordRetry は再試行を1回記録する。
func (c *Collector) RecordRetry(operation string) {
	c.retries.WithLabelValues(operation).Inc()
}

// RecordRetryExhausted は全試行の失敗を記録する。
func (c *Collector) RecordRetryExhausted(operation string) {
	c.retryExhausted.WithLabelValues(operation).Inc()
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited(limiter string) {
	c.rateLimited.WithLabelValues(limiter).Inc()
}

// RecordIdeasServed は配信したアイデア数を記録する。
func (c *Collector) RecordIdeasServed(count int, fallback bool) {
	c.ideasServed.Add(float64(count))
	if fallback {
		c.fallbackServed.Inc()
	}
}

// RecordChatRequest はチャットリクエストの結果を記録する。
func (c *Collector) RecordChatRequest(outcome string) {
	c.chatRequests.WithLabelValues(outcome).Inc()
}

// RecordSearch は検索補強の結果を記録する。
func (c *Collector) RecordSearch(provider, outcome string) {
	c.searches.WithLabelValues(provider, outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordUpstreamLatency は上流呼び出しのレイテンシを記録する。
func (c *Collector) RecordUpstreamLatency(operation string, duration time.Duration) {
	c.upstreamLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
