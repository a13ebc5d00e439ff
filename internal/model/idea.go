// Package model はドメインモデルを定義する。
package model

import "time"

// TradingIdea は画面に表示する正規化済みのトレードアイデアを表す。
// 読み取りのたびに生成され、正規化後の形では永続化しない。
type TradingIdea struct {
	ID        int64
	CreatedAt time.Time
	Theme     string
	Analysis  string
	Tickers   string // カンマ区切りの大文字ティッカー。空の場合もある
}

// RawIdeaRow はtrading_ideasテーブルの1行を表す。
// 1行1アイデアの形式と、区切り文字で複数アイデアを詰め込んだ一括形式の2通りがある。
// 外部の生成ジョブが書き込み、このシステムからは読み取り専用。
type RawIdeaRow struct {
	ID        int64
	CreatedAt time.Time
	Theme     string
	Analysis  string
	Tickers   string
}
