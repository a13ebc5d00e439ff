package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tradedesk/internal/ideas"
	"github.com/hitoshi/tradedesk/internal/middleware"
	"github.com/hitoshi/tradedesk/internal/model"
)

// IdeaServiceInterface はアイデアハンドラーが必要とするサービスインターフェース。
type IdeaServiceInterface interface {
	// ListIdeas は指定ページの正規化済みアイデアを返す。
	ListIdeas(ctx context.Context, page, pageSize int) (*ideas.Page, error)
	// GetIdea は正規化後のIDでアイデアを1件返す。
	GetIdea(ctx context.Context, id int64) (*model.TradingIdea, error)
}

// IdeaHandler はアイデアフィードのHTTPハンドラー。
type IdeaHandler struct {
	service         IdeaServiceInterface
	defaultPageSize int
}

// NewIdeaHandler はIdeaHandlerを生成する。defaultPageSizeが0以下の場合はideas.DefaultPageSizeを使う。
func NewIdeaHandler(service IdeaServiceInterface, defaultPageSize int) *IdeaHandler {
	if defaultPageSize <= 0 {
		defaultPageSize = ideas.DefaultPageSize
	}
	return &IdeaHandler{service: service, defaultPageSize: defaultPageSize}
}

// ideaResponse はアイデアのAPIレスポンス。
type ideaResponse struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Theme     string    `json:"theme"`
	Analysis  string    `json:"analysis"`
	Tickers   string    `json:"tickers"`
}

// ideaPageResponse はアイデア一覧のAPIレスポンス。
type ideaPageResponse struct {
	Ideas    []ideaResponse `json:"ideas"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
	Fallback bool           `json:"fallback"`
}

// ListIdeas はアイデア一覧を返す。
// GET /api/ideas?page=&page_size=
func (h *IdeaHandler) ListIdeas(w http.ResponseWriter, r *http.Request) {
	page, ok := queryInt(w, r, "page", 1)
	if !ok {
		return
	}
	pageSize, ok := queryInt(w, r, "page_size", h.defaultPageSize)
	if !ok {
		return
	}

	result, err := h.service.ListIdeas(r.Context(), page, pageSize)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := ideaPageResponse{
		Ideas:    make([]ideaResponse, len(result.Ideas)),
		Page:     result.Page,
		PageSize: result.PageSize,
		Fallback: result.Fallback,
	}
	for i, idea := range result.Ideas {
		resp.Ideas[i] = toIdeaResponse(idea)
	}
	writeData(w, http.StatusOK, resp, "")
}

// GetIdea はアイデアを1件返す。
// GET /api/ideas/{id}
func (h *IdeaHandler) GetIdea(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 0 {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("アイデアIDは0以上の整数で指定してください。", nil))
		return
	}

	idea, err := h.service.GetIdea(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, toIdeaResponse(*idea), "")
}

func toIdeaResponse(idea model.TradingIdea) ideaResponse {
	return ideaResponse{
		ID:        idea.ID,
		CreatedAt: idea.CreatedAt,
		Theme:     idea.Theme,
		Analysis:  idea.Analysis,
		Tickers:   idea.Tickers,
	}
}

// queryInt はクエリパラメータを整数として取得する。未指定の場合はdefを返す。
// 整数でない場合は400レスポンスを書き込み、falseを返す。
func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError(name+" は整数で指定してください。", map[string]string{name: raw}))
		return 0, false
	}
	return v, true
}
