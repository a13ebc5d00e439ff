package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/tradedesk/internal/model"
	"github.com/hitoshi/tradedesk/internal/resilience"
	"github.com/hitoshi/tradedesk/internal/security"
)

// RSSProvider はニュース検索のRSSフィードを結果として使うプロバイダー。
// URLテンプレートの %s にURLエンコードしたクエリを埋め込む。
type RSSProvider struct {
	httpClient  *http.Client
	urlTemplate string
	sanitizer   security.TextSanitizer
}

// NewRSSProvider はRSSProviderを生成する。
func NewRSSProvider(httpClient *http.Client, urlTemplate string, sanitizer security.TextSanitizer) *RSSProvider {
	return &RSSProvider{
		httpClient:  httpClient,
		urlTemplate: urlTemplate,
		sanitizer:   sanitizer,
	}
}

// Name はプロバイダー名を返す。
func (p *RSSProvider) Name() string { return "rss" }

// Search はRSS検索フィードを取得し、先頭limit件の記事を返す。
func (p *RSSProvider) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	feedURL := strings.Replace(p.urlTemplate, "%s", url.QueryEscape(query), 1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "Tradedesk/1.0 News Search")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("RSS検索の呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if err := resilience.CheckResponse("search rss", resp); err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("フィードのパースに失敗しました: %w", err)
	}

	results := make([]model.SearchResult, 0, min(len(feed.Items), limit))
	for _, item := range feed.Items {
		if len(results) >= limit {
			break
		}
		snippet := item.Description
		if snippet == "" {
			snippet = item.Content
		}
		if r, ok := cleanResult(p.sanitizer, item.Title, snippet, item.Link); ok {
			results = append(results, r)
		}
	}
	return results, nil
}
