// Package chat はトレード文脈付きのチャット応答を提供する。
// 会話の検証、検索補強、システムプロンプトの組み立て、LLM呼び出しを含む。
package chat

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/tradedesk/internal/model"
)

const (
	// MaxMessages は1リクエストに含められる会話メッセージの上限。
	MaxMessages = 20
	// MaxMessageLength は1メッセージの最大文字数。
	MaxMessageLength = 2000
	// maxContextTickers は文脈として受け付けるウォッチリストの最大件数。
	maxContextTickers = 50
	// maxContextFieldLength はアイデア文脈の各項目の最大文字数。
	maxContextFieldLength = 4000
)

// MessageInput はクライアントから受け取る1メッセージ。
type MessageInput struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// IdeaInput はチャットに添付されたアイデア。
type IdeaInput struct {
	Theme    string `json:"theme"`
	Analysis string `json:"analysis"`
	Tickers  string `json:"tickers"`
}

// ContextInput はチャットに添付される任意のトレード文脈。
type ContextInput struct {
	Idea        *IdeaInput `json:"idea,omitempty"`
	Watchlist   []string   `json:"watchlist,omitempty"`
	RiskProfile string     `json:"risk_profile,omitempty"`
}

// Request はPOST /api/chat のリクエストボディ。
type Request struct {
	Messages []MessageInput `json:"messages"`
	Context  *ContextInput  `json:"context,omitempty"`
}

// Validate は会話が1〜20件で、各メッセージのroleがuserかassistant、
// 内容が1〜2000文字、最後のメッセージがユーザーの発言であることを確認する。
func (r *Request) Validate() error {
	if len(r.Messages) == 0 {
		return errors.New("messages を1件以上指定してください。")
	}
	if len(r.Messages) > MaxMessages {
		return fmt.Errorf("messages は%d件以内で指定してください。", MaxMessages)
	}

	for i, m := range r.Messages {
		switch model.ChatRole(m.Role) {
		case model.ChatRoleUser, model.ChatRoleAssistant:
		default:
			return fmt.Errorf("messages[%d].role は user または assistant を指定してください。", i)
		}
		n := utf8.RuneCountInString(strings.TrimSpace(m.Content))
		if n == 0 {
			return fmt.Errorf("messages[%d].content が空です。", i)
		}
		if utf8.RuneCountInString(m.Content) > MaxMessageLength {
			return fmt.Errorf("messages[%d].content は%d文字以内で入力してください。", i, MaxMessageLength)
		}
	}

	if model.ChatRole(r.Messages[len(r.Messages)-1].Role) != model.ChatRoleUser {
		return errors.New("最後のメッセージはユーザーの発言である必要があります。")
	}

	if c := r.Context; c != nil {
		if len(c.Watchlist) > maxContextTickers {
			return fmt.Errorf("context.watchlist は%d件以内で指定してください。", maxContextTickers)
		}
		if c.RiskProfile != "" && !model.RiskProfile(c.RiskProfile).Valid() {
			return errors.New("context.risk_profile は conservative、moderate、aggressive のいずれかを指定してください。")
		}
		if c.Idea != nil {
			for _, field := range []string{c.Idea.Theme, c.Idea.Analysis, c.Idea.Tickers} {
				if utf8.RuneCountInString(field) > maxContextFieldLength {
					return fmt.Errorf("context.idea の各項目は%d文字以内で指定してください。", maxContextFieldLength)
				}
			}
		}
	}

	return nil
}

// Conversation はメッセージをドメイン型に変換する。
func (r *Request) Conversation() []model.ChatMessage {
	msgs := make([]model.ChatMessage, len(r.Messages))
	for i, m := range r.Messages {
		msgs[i] = model.ChatMessage{Role: model.ChatRole(m.Role), Content: strings.TrimSpace(m.Content)}
	}
	return msgs
}

// LastUserMessage は最後のメッセージの内容を返す。Validate済みであること。
func (r *Request) LastUserMessage() string {
	return strings.TrimSpace(r.Messages[len(r.Messages)-1].Content)
}

// TradingContext は添付文脈をドメイン型に変換する。文脈がなければnilを返す。
func (r *Request) TradingContext() *model.TradingContext {
	c := r.Context
	if c == nil {
		return nil
	}
	tc := &model.TradingContext{RiskProfile: model.RiskProfile(c.RiskProfile)}
	if c.Idea != nil {
		tc.Idea = &model.IdeaContext{
			Theme:    strings.TrimSpace(c.Idea.Theme),
			Analysis: strings.TrimSpace(c.Idea.Analysis),
			Tickers:  strings.TrimSpace(c.Idea.Tickers),
		}
	}
	for _, t := range c.Watchlist {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			tc.Watchlist = append(tc.Watchlist, t)
		}
	}
	return tc
}
