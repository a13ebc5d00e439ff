package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/tradedesk/internal/model"
	"github.com/hitoshi/tradedesk/internal/resilience"
	"github.com/hitoshi/tradedesk/internal/search"
	"github.com/hitoshi/tradedesk/internal/security"
)

// チャットリクエストの結果区分。メトリクスのラベルに使う。
const (
	OutcomeOK          = "ok"
	OutcomeUnavailable = "unavailable"
	OutcomeFailed      = "failed"
)

// 検索補強の結果区分。
const (
	searchOutcomeOK      = "ok"
	searchOutcomeEmpty   = "empty"
	searchOutcomeFailed  = "failed"
	searchOutcomeSkipped = "skipped"
)

// MetricsRecorder はチャットのメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordChatRequest(outcome string)
	RecordSearch(provider, outcome string)
	RecordUpstreamLatency(operation string, d time.Duration)
}

// Options はServiceの任意設定。
type Options struct {
	// Search は検索補強のプロバイダー。nilの場合は検索を行わない。
	Search search.Provider
	// SearchLimit は検索結果の最大件数。
	SearchLimit int
	// SearchTimeout は検索1回の時間上限。0なら上限なし。
	SearchTimeout time.Duration
	Metrics       MetricsRecorder
	Logger        *slog.Logger
}

// Service はチャットのサービス層。
type Service struct {
	llm           Completer
	search        search.Provider
	searchLimit   int
	searchTimeout time.Duration
	sanitizer     security.TextSanitizer
	retry         resilience.RetryConfig
	metrics       MetricsRecorder
	logger        *slog.Logger
}

// NewService はServiceを生成する。llmがnilの場合、Replyは常にCHAT_UNAVAILABLEを返す。
func NewService(llm Completer, sanitizer security.TextSanitizer, retry resilience.RetryConfig, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := opts.SearchLimit
	if limit <= 0 {
		limit = 5
	}
	return &Service{
		llm:           llm,
		search:        opts.Search,
		searchLimit:   limit,
		searchTimeout: opts.SearchTimeout,
		sanitizer:     sanitizer,
		retry:         retry,
		metrics:       opts.Metrics,
		logger:        logger,
	}
}

// Reply は検証済みのリクエストに対するアシスタントの返答を返す。
// 検索補強の失敗はチャット自体を失敗させない。
// LLMの呼び出しは1回分をWithRetryで包み、使い切った場合はCHAT_UNAVAILABLEを返す。
func (s *Service) Reply(ctx context.Context, userID string, req *Request) (*model.ChatMessage, error) {
	if s.llm == nil {
		s.recordChat(OutcomeUnavailable)
		return nil, model.NewChatUnavailableError()
	}

	searchBlock := s.searchBlock(ctx, req.LastUserMessage())
	system := BuildSystemPrompt(req.TradingContext(), searchBlock)

	messages := make([]model.ChatMessage, 0, len(req.Messages)+1)
	messages = append(messages, model.ChatMessage{Role: model.ChatRoleSystem, Content: system})
	messages = append(messages, req.Conversation()...)

	start := time.Now()
	reply, err := resilience.WithRetry(ctx, "chat completion", s.retry,
		func(ctx context.Context) (string, error) {
			return s.llm.Complete(ctx, messages)
		})
	if s.metrics != nil {
		s.metrics.RecordUpstreamLatency("chat completion", time.Since(start))
	}
	if err != nil {
		s.logger.Error("チャット応答の生成に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		s.recordChat(OutcomeFailed)
		return nil, model.NewChatUnavailableError()
	}

	content := s.sanitizer.Sanitize(reply)
	if content == "" {
		s.recordChat(OutcomeFailed)
		return nil, model.NewChatUnavailableError()
	}

	s.recordChat(OutcomeOK)
	return &model.ChatMessage{Role: model.ChatRoleAssistant, Content: content}, nil
}

// searchBlock はシステムプロンプトに入れる検索ブロックを返す。
func (s *Service) searchBlock(ctx context.Context, message string) string {
	if s.search == nil {
		return SearchNotConfigured
	}
	provider := s.search.Name()
	if !NeedsSearch(message) {
		s.recordSearch(provider, searchOutcomeSkipped)
		return searchSkipped
	}

	query := BuildSearchQuery(message)
	searchCtx := ctx
	if s.searchTimeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, s.searchTimeout)
		defer cancel()
	}

	start := time.Now()
	results, err := s.search.Search(searchCtx, query, s.searchLimit)
	if s.metrics != nil {
		s.metrics.RecordUpstreamLatency("search", time.Since(start))
	}
	if err != nil {
		s.logger.Warn("検索補強に失敗しました",
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
		s.recordSearch(provider, searchOutcomeFailed)
		return SearchUnavailable
	}
	if len(results) == 0 {
		s.recordSearch(provider, searchOutcomeEmpty)
	} else {
		s.recordSearch(provider, searchOutcomeOK)
	}
	return FormatSearchResults(query, results)
}

func (s *Service) recordChat(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordChatRequest(outcome)
	}
}

func (s *Service) recordSearch(provider, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordSearch(provider, outcome)
	}
}
