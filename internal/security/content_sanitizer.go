package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は外部由来のテキスト（検索スニペット、LLMの応答）からHTMLを取り除く。
// 結果はHTMLとして解釈されないプレーンテキストになる。
type TextSanitizer interface {
	// Sanitize はタグをすべて除去し、エンティティを文字に戻したテキストを返す。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

// textSanitizer はbluemondayのStrictPolicyによるTextSanitizerの実装。
// bluemonday.Policyは並行利用できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去したプレーンテキストを返す。
// エンティティで隠されたタグ（&lt;script&gt;）も、復号後にもう一度除去する。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	text := html.UnescapeString(s.policy.Sanitize(raw))
	if strings.ContainsAny(text, "<>") {
		text = html.UnescapeString(s.policy.Sanitize(text))
	}
	return strings.TrimSpace(text)
}

// SanitizeSnippet は検索スニペット向けに、タグ除去に加えて空白・改行を単一スペースに畳み、
// maxRunes文字で切り詰める。maxRunesが0以下なら切り詰めない。
func SanitizeSnippet(s TextSanitizer, raw string, maxRunes int) string {
	text := strings.Join(strings.Fields(s.Sanitize(raw)), " ")
	if maxRunes <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return strings.TrimSpace(string(runes[:maxRunes])) + "…"
}
