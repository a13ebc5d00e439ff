package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は指定名のメトリクスファミリーから、ラベルが一致する系列を探す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return nil
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordRetry_CountsByOperation は再試行が操作名ごとに数えられることを検証する。
func TestRecordRetry_CountsByOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRetry("fetch trading ideas")
	c.RecordRetry("fetch trading ideas")
	c.RecordRetry("chat completion")
	c.RecordRetryExhausted("chat completion")

	m := findMetric(t, reg, "tradedesk_retry_attempts_total", map[string]string{"operation": "fetch trading ideas"})
	if v := m.GetCounter().GetValue(); v != 2 {
		t.Errorf("retry_attempts_total{fetch trading ideas} = %v, want 2", v)
	}
	m = findMetric(t, reg, "tradedesk_retry_exhausted_total", map[string]string{"operation": "chat completion"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("retry_exhausted_total = %v, want 1", v)
	}
}

// TestRecordIdeasServed_TracksFallback はフォールバック配信が別途数えられることを検証する。
func TestRecordIdeasServed_TracksFallback(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordIdeasServed(5, false)
	c.RecordIdeasServed(3, true)

	if v := findMetric(t, reg, "tradedesk_ideas_served_total", nil).GetCounter().GetValue(); v != 8 {
		t.Errorf("ideas_served_total = %v, want 8", v)
	}
	if v := findMetric(t, reg, "tradedesk_ideas_fallback_total", nil).GetCounter().GetValue(); v != 1 {
		t.Errorf("ideas_fallback_total = %v, want 1", v)
	}
}

// TestRecordRateLimited_CountsByLimiter はリミッター別に拒否数が数えられることを検証する。
func TestRecordRateLimited_CountsByLimiter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRateLimited("chat")
	c.RecordRateLimited("chat")
	c.RecordRateLimited("general")

	if v := findMetric(t, reg, "tradedesk_rate_limited_total", map[string]string{"limiter": "chat"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("rate_limited_total{chat} = %v, want 2", v)
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はステータスコードラベル付きで記録されることを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(429)
	c.RecordHTTPStatus(429)

	if v := findMetric(t, reg, "tradedesk_http_status_total", map[string]string{"status_code": "429"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("http_status_total{429} = %v, want 2", v)
	}
}

// TestRecordUpstreamLatency_ObservesHistogram はレイテンシがヒストグラムに記録されることを検証する。
func TestRecordUpstreamLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUpstreamLatency("chat completion", 500*time.Millisecond)

	h := findMetric(t, reg, "tradedesk_upstream_latency_seconds", map[string]string{"operation": "chat completion"}).GetHistogram()
	if h.GetSampleCount() != 1 {
		t.Errorf("sample count = %d, want 1", h.GetSampleCount())
	}
	if h.GetSampleSum() != 0.5 {
		t.Errorf("sample sum = %v, want 0.5", h.GetSampleSum())
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRetry("fetch trading ideas")
	c.RecordChatRequest("ok")
	c.RecordSearch("rss", "ok")
	c.RecordHTTPStatus(200)
	c.RecordIdeasServed(3, false)

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	expectedMetrics := []string{
		"tradedesk_retry_attempts_total",
		"tradedesk_chat_requests_total",
		"tradedesk_search_augmentations_total",
		"tradedesk_http_status_total",
		"tradedesk_ideas_served_total",
	}
	for _, metric := range expectedMetrics {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestMultipleCollectors_IndependentRegistries は異なるレジストリで独立に動作することを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)

	c1.RecordChatRequest("ok")
	c2.RecordChatRequest("ok")
	c2.RecordChatRequest("ok")

	if v := findMetric(t, reg1, "tradedesk_chat_requests_total", map[string]string{"outcome": "ok"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("reg1 chat_requests = %v, want 1", v)
	}
	if v := findMetric(t, reg2, "tradedesk_chat_requests_total", map[string]string{"outcome": "ok"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("reg2 chat_requests = %v, want 2", v)
	}
}
