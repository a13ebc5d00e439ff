// Command tradedesk はトレードアイデア配信・ニュースレター・チャットのAPIサーバーを起動する。
//
// 使い方:
//
//	tradedesk [serve]               APIサーバー（デフォルト）
//	tradedesk worker                定期クリーンアップワーカー
//	tradedesk migrate               DBマイグレーション
//	tradedesk healthcheck           /health への疎通確認
//	tradedesk ideas normalize -f F  行データのJSONを正規化して出力
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/tradedesk/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
