package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tradedesk/internal/chat"
	"github.com/hitoshi/tradedesk/internal/ideas"
	"github.com/hitoshi/tradedesk/internal/middleware"
	"github.com/hitoshi/tradedesk/internal/model"
	"github.com/hitoshi/tradedesk/internal/profile"
)

// --- モック定義 ---

type mockIdeaService struct {
	listIdeasFn func(ctx context.Context, page, pageSize int) (*ideas.Page, error)
	getIdeaFn   func(ctx context.Context, id int64) (*model.TradingIdea, error)
}

func (m *mockIdeaService) ListIdeas(ctx context.Context, page, pageSize int) (*ideas.Page, error) {
	return m.listIdeasFn(ctx, page, pageSize)
}

func (m *mockIdeaService) GetIdea(ctx context.Context, id int64) (*model.TradingIdea, error) {
	return m.getIdeaFn(ctx, id)
}

type mockNewsletterService struct {
	subscribeFn   func(ctx context.Context, email, source string) (*model.Subscriber, error)
	unsubscribeFn func(ctx context.Context, token string) error
}

func (m *mockNewsletterService) Subscribe(ctx context.Context, email, source string) (*model.Subscriber, error) {
	return m.subscribeFn(ctx, email, source)
}

func (m *mockNewsletterService) Unsubscribe(ctx context.Context, token string) error {
	return m.unsubscribeFn(ctx, token)
}

type mockWatchlistService struct {
	listFn         func(ctx context.Context, userID string) ([]*model.Watchlist, error)
	createFn       func(ctx context.Context, userID, name string, tickers []string) (*model.Watchlist, error)
	getFn          func(ctx context.Context, userID, id string) (*model.Watchlist, error)
	renameFn       func(ctx context.Context, userID, id, name string) (*model.Watchlist, error)
	addTickerFn    func(ctx context.Context, userID, id, ticker string) (*model.Watchlist, error)
	removeTickerFn func(ctx context.Context, userID, id, ticker string) (*model.Watchlist, error)
	deleteFn       func(ctx context.Context, userID, id string) error
}

func (m *mockWatchlistService) List(ctx context.Context, userID string) ([]*model.Watchlist, error) {
	return m.listFn(ctx, userID)
}

func (m *mockWatchlistService) Create(ctx context.Context, userID, name string, tickers []string) (*model.Watchlist, error) {
	return m.createFn(ctx, userID, name, tickers)
}

func (m *mockWatchlistService) Get(ctx context.Context, userID, id string) (*model.Watchlist, error) {
	return m.getFn(ctx, userID, id)
}

func (m *mockWatchlistService) Rename(ctx context.Context, userID, id, name string) (*model.Watchlist, error) {
	return m.renameFn(ctx, userID, id, name)
}

func (m *mockWatchlistService) AddTicker(ctx context.Context, userID, id, ticker string) (*model.Watchlist, error) {
	return m.addTickerFn(ctx, userID, id, ticker)
}

func (m *mockWatchlistService) RemoveTicker(ctx context.Context, userID, id, ticker string) (*model.Watchlist, error) {
	return m.removeTickerFn(ctx, userID, id, ticker)
}

func (m *mockWatchlistService) Delete(ctx context.Context, userID, id string) error {
	return m.deleteFn(ctx, userID, id)
}

type mockSavedIdeaService struct {
	listFn       func(ctx context.Context, userID string) ([]*model.SavedIdea, error)
	saveFn       func(ctx context.Context, userID string, ideaID int64, note string) (*model.SavedIdea, error)
	updateNoteFn func(ctx context.Context, userID, id, note string) (*model.SavedIdea, error)
	deleteFn     func(ctx context.Context, userID, id string) error
}

func (m *mockSavedIdeaService) List(ctx context.Context, userID string) ([]*model.SavedIdea, error) {
	return m.listFn(ctx, userID)
}

func (m *mockSavedIdeaService) Save(ctx context.Context, userID string, ideaID int64, note string) (*model.SavedIdea, error) {
	return m.saveFn(ctx, userID, ideaID, note)
}

func (m *mockSavedIdeaService) UpdateNote(ctx context.Context, userID, id, note string) (*model.SavedIdea, error) {
	return m.updateNoteFn(ctx, userID, id, note)
}

func (m *mockSavedIdeaService) Delete(ctx context.Context, userID, id string) error {
	return m.deleteFn(ctx, userID, id)
}

type mockProfileService struct {
	getFn               func(ctx context.Context, userID string) (*model.Profile, error)
	updateFn            func(ctx context.Context, userID string, in profile.UpdateInput) (*model.Profile, error)
	deleteAccountDataFn func(ctx context.Context, userID string) error
}

func (m *mockProfileService) Get(ctx context.Context, userID string) (*model.Profile, error) {
	return m.getFn(ctx, userID)
}

func (m *mockProfileService) Update(ctx context.Context, userID string, in profile.UpdateInput) (*model.Profile, error) {
	return m.updateFn(ctx, userID, in)
}

func (m *mockProfileService) DeleteAccountData(ctx context.Context, userID string) error {
	return m.deleteAccountDataFn(ctx, userID)
}

type mockChatService struct {
	replyFn func(ctx context.Context, userID string, req *chat.Request) (*model.ChatMessage, error)
}

func (m *mockChatService) Reply(ctx context.Context, userID string, req *chat.Request) (*model.ChatMessage, error) {
	return m.replyFn(ctx, userID, req)
}

// --- ヘルパー ---

// newRequest はボディ付きリクエストを生成する。userIDが空でなければ認証済みコンテキストを付与する。
func newRequest(method, target, body, userID string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req = req.WithContext(middleware.ContextWithUserID(req.Context(), userID))
	}
	return req
}

// decodeData は{data: ...}エンベロープのdataをvに読み込む。
func decodeData(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode response: %v\nbody: %s", err, w.Body.String())
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("failed to decode data: %v\ndata: %s", err, env.Data)
	}
}

// decodeError はエラーレスポンスを読み込む。
func decodeError(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v\nbody: %s", err, w.Body.String())
	}
	return body
}

// withURLParams はchiのURLパラメータをリクエストに設定する。
func withURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}
