package model

// ChatRole はチャットメッセージの話者。
type ChatRole string

const (
	// ChatRoleUser はユーザーの発言。
	ChatRoleUser ChatRole = "user"
	// ChatRoleAssistant はアシスタントの発言。
	ChatRoleAssistant ChatRole = "assistant"
	// ChatRoleSystem はシステムプロンプト。クライアントからは受け付けない。
	ChatRoleSystem ChatRole = "system"
)

// ChatMessage は会話中の1メッセージ。
type ChatMessage struct {
	Role    ChatRole
	Content string
}

// IdeaContext はチャットに添付する単一アイデアの文脈。
type IdeaContext struct {
	Theme    string
	Analysis string
	Tickers  string
}

// TradingContext はチャットリクエストに任意で付与されるトレード文脈。
type TradingContext struct {
	Idea        *IdeaContext
	Watchlist   []string
	RiskProfile RiskProfile
}

// SearchResult は検索補強コラボレーターが返す1件の結果。
type SearchResult struct {
	Title   string
	Snippet string
	URL     string
}
