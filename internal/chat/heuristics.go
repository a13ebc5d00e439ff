package chat

import (
	"regexp"
	"strings"
)

// maxQueryRunes は検索クエリの最大文字数。
const maxQueryRunes = 200

var (
	// lookupPattern は最新情報の参照を必要としそうな語句。
	lookupPattern = regexp.MustCompile(`(?i)\b(price|prices|quote|trading at|earnings|news|headline|today|latest|this week|yesterday|right now|currently|market cap|guidance|forecast|outlook|rate (cut|hike)|fomc|cpi|inflation|jobs report|ipo|dividend|split|analyst|upgrade|downgrade|52[- ]week)\b`)

	dollarTickerPattern = regexp.MustCompile(`\$([A-Za-z]{1,5})\b`)
	bareTickerPattern   = regexp.MustCompile(`\b[A-Z]{2,5}\b`)
)

// tickerStopWords はティッカーと誤認しやすい大文字の略語。
var tickerStopWords = map[string]bool{
	"AI": true, "AM": true, "PM": true, "OK": true, "US": true, "USA": true,
	"UK": true, "EU": true, "CEO": true, "CFO": true, "CTO": true, "IPO": true,
	"ETF": true, "GDP": true, "CPI": true, "PPI": true, "FED": true, "FOMC": true,
	"EPS": true, "PE": true, "YOY": true, "QOQ": true, "ATH": true, "IMO": true,
	"FYI": true, "FAQ": true, "API": true, "EST": true, "PST": true, "USD": true,
	"EUR": true, "JPY": true, "THE": true, "AND": true, "FOR": true, "BUY": true,
	"SELL": true, "HOLD": true, "LONG": true, "SHORT": true, "RSI": true, "MACD": true,
	"DCF": true, "SEC": true, "IRA": true, "ROI": true, "TLDR": true, "ELI": true,
}

// ExtractTickers はメッセージ中のティッカーらしい語を出現順に重複なく返す。
// $付きの語は大文字小文字を問わず採用し、$なしは2〜5文字の大文字語のうち略語リストにないものを採用する。
func ExtractTickers(message string) []string {
	var tickers []string
	seen := make(map[string]bool)
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			tickers = append(tickers, t)
		}
	}

	for _, m := range dollarTickerPattern.FindAllStringSubmatch(message, -1) {
		add(strings.ToUpper(m[1]))
	}
	for _, m := range bareTickerPattern.FindAllString(message, -1) {
		if !tickerStopWords[m] {
			add(m)
		}
	}
	return tickers
}

// NeedsSearch はメッセージが最新情報の参照を必要としそうかを判定する。
func NeedsSearch(message string) bool {
	return lookupPattern.MatchString(message) || len(ExtractTickers(message)) > 0
}

// BuildSearchQuery は検索に投げるクエリを組み立てる。
// ティッカーがあればティッカーとニュースを組み合わせ、なければメッセージ自体を短くして使う。
func BuildSearchQuery(message string) string {
	if tickers := ExtractTickers(message); len(tickers) > 0 {
		if len(tickers) > 3 {
			tickers = tickers[:3]
		}
		return strings.Join(tickers, " ") + " stock news"
	}
	q := strings.Join(strings.Fields(message), " ")
	if r := []rune(q); len(r) > maxQueryRunes {
		q = string(r[:maxQueryRunes])
	}
	return q
}
