package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hitoshi/tradedesk/internal/model"
	"github.com/hitoshi/tradedesk/internal/resilience"
	"github.com/hitoshi/tradedesk/internal/security"
)

// APIProvider はAPIキーで認証するJSON検索APIのプロバイダー。
// リクエストは {"q": ..., "num": ...} をPOSTし、news または organic の配列を結果として読む。
type APIProvider struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	sanitizer  security.TextSanitizer
}

// NewAPIProvider はAPIProviderを生成する。
func NewAPIProvider(httpClient *http.Client, endpoint, apiKey string, sanitizer security.TextSanitizer) *APIProvider {
	return &APIProvider{
		httpClient: httpClient,
		endpoint:   endpoint,
		apiKey:     apiKey,
		sanitizer:  sanitizer,
	}
}

// Name はプロバイダー名を返す。
func (p *APIProvider) Name() string { return "api" }

type apiRequest struct {
	Query string `json:"q"`
	Num   int    `json:"num"`
}

type apiResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

type apiResponse struct {
	News    []apiResult `json:"news"`
	Organic []apiResult `json:"organic"`
}

// Search は検索APIを呼び出して結果を返す。
func (p *APIProvider) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	payload, err := json.Marshal(apiRequest{Query: query, Num: limit})
	if err != nil {
		return nil, fmt.Errorf("検索リクエストのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("検索APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if err := resilience.CheckResponse("search api", resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	// ニュース結果を優先し、なければ通常の検索結果を使う
	items := parsed.News
	if len(items) == 0 {
		items = parsed.Organic
	}

	results := make([]model.SearchResult, 0, min(len(items), limit))
	for _, item := range items {
		if len(results) >= limit {
			break
		}
		if r, ok := cleanResult(p.sanitizer, item.Title, item.Snippet, item.Link); ok {
			results = append(results, r)
		}
	}
	return results, nil
}
