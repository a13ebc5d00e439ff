package ideas

import (
	"time"

	"github.com/hitoshi/tradedesk/internal/model"
)

// fallbackCreatedAt はフォールバックアイデアの固定作成日時。
var fallbackCreatedAt = time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC)

// fallbackIdeas は表示できるアイデアが1件もない場合に返すサンプル。
// フィードを空にしないための製品上の決定であり、エラー経路ではない。
var fallbackIdeas = []model.TradingIdea{
	{
		ID:        1,
		CreatedAt: fallbackCreatedAt,
		Theme:     "AI Infrastructure Build-Out",
		Analysis:  "Hyperscaler capex guidance keeps rising. Chip and networking suppliers with backlog visibility remain the cleanest way to express the theme; watch for pullbacks to the 50-day average rather than chasing gaps.",
		Tickers:   "NVDA, AVGO, ANET",
	},
	{
		ID:        2,
		CreatedAt: fallbackCreatedAt.Add(-time.Hour),
		Theme:     "Rate-Cut Beneficiaries",
		Analysis:  "If yields keep drifting lower, small caps and homebuilders tend to outperform. Size positions modestly until the next inflation print confirms the trend.",
		Tickers:   "IWM, DHI, LEN",
	},
	{
		ID:        3,
		CreatedAt: fallbackCreatedAt.Add(-2 * time.Hour),
		Theme:     "Defensive Rotation",
		Analysis:  "Breadth is narrowing. Staples and utilities with steady dividends can cushion a portfolio if momentum names stall; consider trimming winners into strength.",
		Tickers:   "XLP, XLU, PG",
	},
}

// FallbackIdeas はフォールバックアイデアのコピーを返す。
func FallbackIdeas() []model.TradingIdea {
	out := make([]model.TradingIdea, len(fallbackIdeas))
	copy(out, fallbackIdeas)
	return out
}
