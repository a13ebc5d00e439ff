package ideas

import (
	"context"
	"log/slog"

	"github.com/hitoshi/tradedesk/internal/model"
	"github.com/hitoshi/tradedesk/internal/resilience"
)

const (
	// DefaultPageSize はアイデア一覧の既定取得件数。
	DefaultPageSize = 20
	// MaxPageSize はアイデア一覧の最大取得件数。
	MaxPageSize = 100
	// maxFragmentsPerRow は一括形式の1行に含まれうる断片数の想定上限。
	// ID指定の取得で走査する行の範囲に使う。
	maxFragmentsPerRow = 50
)

// IdeaReader はアイデア行の読み取りインターフェース。
type IdeaReader interface {
	// ListRecent は作成日時の降順でアイデア行を返す。
	ListRecent(ctx context.Context, limit, offset int) ([]model.RawIdeaRow, error)
	// ListByIDRange はminID以上maxID以下のIDを持つ行を返す。
	ListByIDRange(ctx context.Context, minID, maxID int64) ([]model.RawIdeaRow, error)
}

// MetricsRecorder はアイデア配信のメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordIdeasServed(count int, fallback bool)
}

// Page はアイデア一覧の1ページ分。
type Page struct {
	Ideas    []model.TradingIdea
	Page     int
	PageSize int
	Fallback bool
}

// Service はアイデアフィードのサービス層。
// ストレージ呼び出しをリトライで包み、取得した行をNormalizeで正規化する。
type Service struct {
	repo    IdeaReader
	retry   resilience.RetryConfig
	metrics MetricsRecorder
	logger  *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
// metricsはnilでもよい。
func NewService(repo IdeaReader, retry resilience.RetryConfig, metrics MetricsRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		retry:   retry,
		metrics: metrics,
		logger:  logger,
	}
}

// ListIdeas は指定ページのアイデアを正規化して返す。
// pageは1始まり。範囲外の値は既定値に丸める。
// ストレージが再試行後も失敗した場合はUPSTREAM_UNAVAILABLEを返す。
func (s *Service) ListIdeas(ctx context.Context, page, pageSize int) (*Page, error) {
	page, pageSize = normalizePaging(page, pageSize)

	rows, err := resilience.WithRetry(ctx, "fetch trading ideas", s.retry,
		func(ctx context.Context) ([]model.RawIdeaRow, error) {
			return s.repo.ListRecent(ctx, pageSize, (page-1)*pageSize)
		})
	if err != nil {
		s.logger.Error("アイデアの取得に失敗しました",
			slog.Int("page", page),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUpstreamUnavailableError("fetch trading ideas")
	}

	res := NormalizeDetailed(rows)
	if res.Dropped > 0 {
		s.logger.Debug("解析できない断片を除外しました",
			slog.Int("dropped", res.Dropped),
			slog.Int("rows", len(rows)),
		)
	}
	if s.metrics != nil {
		s.metrics.RecordIdeasServed(len(res.Ideas), res.Fallback)
	}

	return &Page{
		Ideas:    res.Ideas,
		Page:     page,
		PageSize: pageSize,
		Fallback: res.Fallback,
	}, nil
}

// GetIdea は正規化後のIDでアイデアを1件返す。
// 一括形式ではIDが元の行ID＋断片位置となるため、ID以下の近傍の行を取得して探す。
// 取得範囲はフィードのページとは別の行集合になるので、バッチ単位ではなく行ごとに形式を判定する。
// フォールバックのサンプルは保存されたアイデアではないため対象にしない。
// 見つからない場合はIDEA_NOT_FOUNDを返す。
func (s *Service) GetIdea(ctx context.Context, id int64) (*model.TradingIdea, error) {
	minID := id - maxFragmentsPerRow
	if minID < 0 {
		minID = 0
	}

	rows, err := resilience.WithRetry(ctx, "fetch trading idea", s.retry,
		func(ctx context.Context) ([]model.RawIdeaRow, error) {
			return s.repo.ListByIDRange(ctx, minID, id)
		})
	if err != nil {
		s.logger.Error("アイデアの取得に失敗しました",
			slog.Int64("idea_id", id),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUpstreamUnavailableError("fetch trading idea")
	}

	if idea, ok := findIdea(rows, id); ok {
		return &idea, nil
	}
	return nil, model.NewIdeaNotFoundError(id)
}

// findIdea はrowsを1行ずつ正規化し、idに一致するアイデアを返す。
// IDが重複する場合は作成日時が新しいものを優先する。
func findIdea(rows []model.RawIdeaRow, id int64) (model.TradingIdea, bool) {
	var (
		found model.TradingIdea
		ok    bool
	)
	consider := func(idea model.TradingIdea) {
		if idea.ID != id {
			return
		}
		if !ok || idea.CreatedAt.After(found.CreatedAt) {
			found, ok = idea, true
		}
	}

	for _, row := range rows {
		if !IsBulkRow(row) {
			consider(model.TradingIdea(row))
			continue
		}
		for _, idea := range ParseBulkRow(row) {
			consider(idea)
		}
	}
	return found, ok
}

// normalizePaging はページ番号とページサイズを有効範囲に丸める。
func normalizePaging(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}
