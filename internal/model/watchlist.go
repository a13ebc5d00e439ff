package model

import "time"

// Watchlist はユーザーごとのティッカー監視リストを表す。
type Watchlist struct {
	ID        string
	UserID    string
	Name      string
	Tickers   []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasTicker は指定ティッカーがリストに含まれるかを返す。
func (w *Watchlist) HasTicker(ticker string) bool {
	for _, t := range w.Tickers {
		if t == ticker {
			return true
		}
	}
	return false
}
