// Package ideas はトレードアイデアの取得と正規化を提供する。
//
// trading_ideasテーブルには1行1アイデアの行と、外部の生成ジョブが書き込む
// 一括形式の行（analysisとtickersに区切り文字で複数アイデアを詰め込んだ行）が混在しうる。
// Normalizeはどちらの形式でも表示用の一様なTradingIdeaのリストに変換する。
package ideas

import (
	"regexp"
	"sort"
	"strings"

	"github.com/hitoshi/tradedesk/internal/model"
)

const (
	// bulkMarker は一括形式ブロックの先頭を示す文字列。
	bulkMarker = "IDEA 1"
	// fragmentDelimiter は一括形式のブロック区切り。
	fragmentDelimiter = "---"
	// maxTickerLineLength はティッカー行とみなす行の最大文字数。
	maxTickerLineLength = 50
)

var (
	// themeLinePattern は "IDEA <数字> - <テーマ>" 形式の行にマッチする。
	themeLinePattern = regexp.MustCompile(`^IDEA\s+\d+\s*-\s*(.+)$`)
	// tickerLinePattern は大文字・カンマ・空白のみからなる行にマッチする。
	tickerLinePattern = regexp.MustCompile(`^[A-Z,\s]+$`)
)

// Result はNormalizeDetailedの結果。
type Result struct {
	Ideas    []model.TradingIdea
	Bulk     bool // バッチが一括形式と判定されたか
	Fallback bool // フォールバックのサンプルアイデアを返したか
	Dropped  int  // 一括形式の解析で捨てた断片・行の数
}

// Normalize は生の行をフラットで作成日時降順のアイデアリストに変換する。
// 結果が空になる場合は固定のフォールバックリストを返すため、戻り値は常に空でない。
// エラーを返さず、入力を変更しない。
func Normalize(rows []model.RawIdeaRow) []model.TradingIdea {
	return NormalizeDetailed(rows).Ideas
}

// NormalizeDetailed はNormalizeと同じ変換を行い、判定結果の内訳も返す。
//
// バッチ内のいずれかの行が一括形式であれば、バッチ全体を一括形式として扱う。
// その場合、一括形式の条件を満たさない行は出力に含まれない。
func NormalizeDetailed(rows []model.RawIdeaRow) Result {
	var res Result

	for i := range rows {
		if IsBulkRow(rows[i]) {
			res.Bulk = true
			break
		}
	}

	var out []model.TradingIdea
	if res.Bulk {
		for _, row := range rows {
			if !IsBulkRow(row) {
				res.Dropped++
				continue
			}
			parsed, dropped := parseBulkRow(row)
			out = append(out, parsed...)
			res.Dropped += dropped
		}
	} else {
		out = make([]model.TradingIdea, 0, len(rows))
		for _, row := range rows {
			out = append(out, model.TradingIdea{
				ID:        row.ID,
				CreatedAt: row.CreatedAt,
				Theme:     row.Theme,
				Analysis:  row.Analysis,
				Tickers:   row.Tickers,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if len(out) == 0 {
		res.Fallback = true
		out = FallbackIdeas()
	}

	res.Ideas = out
	return res
}

// IsBulkRow は行のanalysisが一括形式（"IDEA 1" と "---" の両方を含む）かを判定する。
func IsBulkRow(row model.RawIdeaRow) bool {
	return strings.Contains(row.Analysis, bulkMarker) && strings.Contains(row.Analysis, fragmentDelimiter)
}

// ParseBulkRow は一括形式の1行を個別のアイデアに分解する。
func ParseBulkRow(row model.RawIdeaRow) []model.TradingIdea {
	ideas, _ := parseBulkRow(row)
	return ideas
}

// parseBulkRow は一括形式の1行を分解し、捨てた断片の数とともに返す。
// IDは元の行のIDに断片の位置（0始まり）を足したもの。
func parseBulkRow(row model.RawIdeaRow) ([]model.TradingIdea, int) {
	analysisParts := strings.Split(row.Analysis, fragmentDelimiter)
	tickerParts := strings.Split(row.Tickers, fragmentDelimiter)

	var ideas []model.TradingIdea
	dropped := 0

	for i, fragment := range analysisParts {
		if strings.TrimSpace(fragment) == "" {
			continue
		}

		theme, body, ok := parseFragment(fragment)
		if !ok || theme == "" || body == "" {
			dropped++
			continue
		}

		tickers := ""
		if i < len(tickerParts) {
			tickers = CleanTickers(tickerParts[i])
		}

		ideas = append(ideas, model.TradingIdea{
			ID:        row.ID + int64(i),
			CreatedAt: row.CreatedAt,
			Theme:     theme,
			Analysis:  body,
			Tickers:   tickers,
		})
	}

	return ideas, dropped
}

// parseFragment は1断片からテーマと本文を取り出す。
// テーマ行が見つからない場合はokがfalseになる。
func parseFragment(fragment string) (theme, body string, ok bool) {
	lines := strings.Split(fragment, "\n")

	themeIdx := -1
	for i, line := range lines {
		m := themeLinePattern.FindStringSubmatch(strings.TrimSpace(line))
		if m != nil {
			theme = strings.TrimSpace(m[1])
			themeIdx = i
			break
		}
	}
	if themeIdx < 0 {
		return "", "", false
	}

	bodyLines := make([]string, 0, len(lines)-themeIdx-1)
	for _, line := range lines[themeIdx+1:] {
		trimmed := strings.TrimSpace(line)
		if isTickerLine(trimmed) {
			continue
		}
		bodyLines = append(bodyLines, trimmed)
	}

	return theme, strings.TrimSpace(strings.Join(bodyLines, "\n")), true
}

// isTickerLine はティッカーだけが並んだ行かを判定する。
// 分析本文に紛れ込んだティッカー行を本文から除外するために使う。
func isTickerLine(line string) bool {
	return len(line) <= maxTickerLineLength && tickerLinePattern.MatchString(line)
}

// CleanTickers はティッカー断片を整形する。
// 前後の空白を除き、先頭のカンマを1つだけ取り除き、内部の空白・改行を単一スペースに畳む。
func CleanTickers(fragment string) string {
	s := strings.TrimSpace(fragment)
	s = strings.TrimPrefix(s, ",")
	return strings.Join(strings.Fields(s), " ")
}
