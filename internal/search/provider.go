// Package search はチャットの検索補強に使うニュース検索プロバイダーを提供する。
package search

import (
	"context"

	"github.com/hitoshi/tradedesk/internal/model"
	"github.com/hitoshi/tradedesk/internal/security"
)

const (
	// maxSnippetRunes はスニペットの最大文字数。
	maxSnippetRunes = 300
	// maxTitleRunes はタイトルの最大文字数。
	maxTitleRunes = 200
	// MaxResponseSize は検索応答として読み取る最大バイト数。
	MaxResponseSize = 2 * 1024 * 1024
)

// Provider はフリーテキストのクエリに対して少数の検索結果を返すインターフェース。
type Provider interface {
	// Name はメトリクスとログに使うプロバイダー名を返す。
	Name() string
	// Search はクエリに一致する結果を最大limit件返す。
	Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error)
}

// cleanResult はHTML除去と長さの切り詰めを行い、安全でないURLを取り除く。
// タイトルもスニペットも空になった結果はokがfalseになる。
func cleanResult(s security.TextSanitizer, title, snippet, link string) (model.SearchResult, bool) {
	r := model.SearchResult{
		Title:   security.SanitizeSnippet(s, title, maxTitleRunes),
		Snippet: security.SanitizeSnippet(s, snippet, maxSnippetRunes),
		URL:     security.PublicURL(link),
	}
	return r, r.Title != "" || r.Snippet != ""
}
