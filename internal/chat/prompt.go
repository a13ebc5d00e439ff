package chat

import (
	"fmt"
	"strings"

	"github.com/hitoshi/tradedesk/internal/model"
)

const (
	// SearchNotConfigured は検索プロバイダーが未設定の場合にプロンプトへ入れる文言。
	SearchNotConfigured = "Web search is not configured."
	// SearchUnavailable は検索が失敗した場合にプロンプトへ入れる文言。
	SearchUnavailable = "Web search is temporarily unavailable. Answer from general knowledge and say that recent data could not be checked."
	// searchNoResults は検索結果が0件の場合の文言。
	searchNoResults = "Web search returned no relevant results."
	// searchSkipped は検索が不要と判断された場合の文言。
	searchSkipped = "Web search was not needed for this question."
)

const rolePrompt = `You are the research assistant of a trading newsletter.
Explain ideas clearly and concisely for retail traders.
You do not give personalized financial advice. Mention relevant risks and remind the user to do their own research when discussing specific trades.
Answer in plain text or simple Markdown. Do not output HTML.`

// BuildSystemPrompt は役割説明、トレード文脈、検索ブロックからシステムプロンプトを組み立てる。
func BuildSystemPrompt(tc *model.TradingContext, searchBlock string) string {
	var b strings.Builder
	b.WriteString(rolePrompt)

	if tc != nil {
		if tc.Idea != nil {
			b.WriteString("\n\n## Idea under discussion\n")
			fmt.Fprintf(&b, "Theme: %s\n", tc.Idea.Theme)
			if tc.Idea.Tickers != "" {
				fmt.Fprintf(&b, "Tickers: %s\n", tc.Idea.Tickers)
			}
			fmt.Fprintf(&b, "Analysis:\n%s\n", tc.Idea.Analysis)
		}
		if len(tc.Watchlist) > 0 {
			fmt.Fprintf(&b, "\n## User watchlist\n%s\n", strings.Join(tc.Watchlist, ", "))
		}
		if tc.RiskProfile.Valid() {
			fmt.Fprintf(&b, "\n## Risk profile\nThe user describes their risk tolerance as %s. Keep suggestions consistent with it.\n", tc.RiskProfile)
		}
	}

	b.WriteString("\n\n## Recent information\n")
	b.WriteString(searchBlock)
	return b.String()
}

// FormatSearchResults は検索結果をプロンプト用のテキストに整形する。
func FormatSearchResults(query string, results []model.SearchResult) string {
	if len(results) == 0 {
		return searchNoResults
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Web search results for %q:\n", query)
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s", i+1, r.Title)
		if r.Snippet != "" {
			fmt.Fprintf(&b, " - %s", r.Snippet)
		}
		if r.URL != "" {
			fmt.Fprintf(&b, " (%s)", r.URL)
		}
		b.WriteString("\n")
	}
	b.WriteString("Cite sources by URL when you rely on them.")
	return b.String()
}
