package model

import "time"

// SavedIdea はユーザーが保存したトレードアイデアを表す。
// IdeaIDは正規化後のTradingIdea.IDを指す。
type SavedIdea struct {
	ID        string
	UserID    string
	IdeaID    int64
	Theme     string
	Tickers   string
	Note      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
