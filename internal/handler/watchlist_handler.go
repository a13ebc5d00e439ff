package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tradedesk/internal/model"
)

// WatchlistServiceInterface はウォッチリストハンドラーが必要とするサービスインターフェース。
type WatchlistServiceInterface interface {
	List(ctx context.Context, userID string) ([]*model.Watchlist, error)
	Create(ctx context.Context, userID, name string, tickers []string) (*model.Watchlist, error)
	Get(ctx context.Context, userID, id string) (*model.Watchlist, error)
	Rename(ctx context.Context, userID, id, name string) (*model.Watchlist, error)
	AddTicker(ctx context.Context, userID, id, ticker string) (*model.Watchlist, error)
	RemoveTicker(ctx context.Context, userID, id, ticker string) (*model.Watchlist, error)
	Delete(ctx context.Context, userID, id string) error
}

// WatchlistHandler はウォッチリスト管理のHTTPハンドラー。
type WatchlistHandler struct {
	service WatchlistServiceInterface
}

// NewWatchlistHandler はWatchlistHandlerを生成する。
func NewWatchlistHandler(service WatchlistServiceInterface) *WatchlistHandler {
	return &WatchlistHandler{service: service}
}

type createWatchlistRequest struct {
	Name    string   `json:"name"`
	Tickers []string `json:"tickers"`
}

type renameWatchlistRequest struct {
	Name string `json:"name"`
}

type addTickerRequest struct {
	Ticker string `json:"ticker"`
}

type watchlistResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Tickers   []string  `json:"tickers"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func requireName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name を指定してください。")
	}
	return nil
}

// List はユーザーのウォッチリスト一覧を返す。
// GET /api/watchlists
func (h *WatchlistHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	lists, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]watchlistResponse, len(lists))
	for i, wl := range lists {
		resp[i] = toWatchlistResponse(wl)
	}
	writeData(w, http.StatusOK, resp, "")
}

// Create はウォッチリストを作成する。
// POST /api/watchlists
func (h *WatchlistHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	req, ok := decodeRequest(w, r, func(req *createWatchlistRequest) error {
		return requireName(req.Name)
	})
	if !ok {
		return
	}

	wl, err := h.service.Create(r.Context(), userID, req.Name, req.Tickers)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, toWatchlistResponse(wl), "")
}

// Get はウォッチリストを1件返す。
// GET /api/watchlists/{id}
func (h *WatchlistHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	wl, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, toWatchlistResponse(wl), "")
}

// Rename はウォッチリストの名前を変更する。
// PATCH /api/watchlists/{id}
func (h *WatchlistHandler) Rename(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	req, ok := decodeRequest(w, r, func(req *renameWatchlistRequest) error {
		return requireName(req.Name)
	})
	if !ok {
		return
	}

	wl, err := h.service.Rename(r.Context(), userID, chi.URLParam(r, "id"), req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, toWatchlistResponse(wl), "")
}

// AddTicker はウォッチリストにティッカーを追加する。
// POST /api/watchlists/{id}/tickers
func (h *WatchlistHandler) AddTicker(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	req, ok := decodeRequest(w, r, func(req *addTickerRequest) error {
		if strings.TrimSpace(req.Ticker) == "" {
			return errors.New("ticker を指定してください。")
		}
		return nil
	})
	if !ok {
		return
	}

	wl, err := h.service.AddTicker(r.Context(), userID, chi.URLParam(r, "id"), req.Ticker)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, toWatchlistResponse(wl), "")
}

// RemoveTicker はウォッチリストからティッカーを削除する。
// DELETE /api/watchlists/{id}/tickers/{ticker}
func (h *WatchlistHandler) RemoveTicker(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	wl, err := h.service.RemoveTicker(r.Context(), userID, chi.URLParam(r, "id"), chi.URLParam(r, "ticker"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, toWatchlistResponse(wl), "")
}

// Delete はウォッチリストを削除する。
// DELETE /api/watchlists/{id}
func (h *WatchlistHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toWatchlistResponse(wl *model.Watchlist) watchlistResponse {
	tickers := wl.Tickers
	if tickers == nil {
		tickers = []string{}
	}
	return watchlistResponse{
		ID:        wl.ID,
		Name:      wl.Name,
		Tickers:   tickers,
		CreatedAt: wl.CreatedAt,
		UpdatedAt: wl.UpdatedAt,
	}
}
