// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, ideas, watchlist, newsletter, chat, system
	Action   string // ユーザー向け対処方法
	Details  any    // 任意の補足情報（バリデーション失敗時のペイロード等）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInvalidEmail        = "INVALID_EMAIL"
	ErrCodeAlreadySubscribed   = "ALREADY_SUBSCRIBED"
	ErrCodeSubscriberNotFound  = "SUBSCRIBER_NOT_FOUND"
	ErrCodeIdeaNotFound        = "IDEA_NOT_FOUND"
	ErrCodeIdeaAlreadySaved    = "IDEA_ALREADY_SAVED"
	ErrCodeSavedIdeaNotFound   = "SAVED_IDEA_NOT_FOUND"
	ErrCodeInvalidTicker       = "INVALID_TICKER"
	ErrCodeDuplicateTicker     = "DUPLICATE_TICKER"
	ErrCodeTickerNotFound      = "TICKER_NOT_FOUND"
	ErrCodeWatchlistLimit      = "WATCHLIST_LIMIT"
	ErrCodeWatchlistNotFound   = "WATCHLIST_NOT_FOUND"
	ErrCodeInvalidRiskProfile  = "INVALID_RISK_PROFILE"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeChatUnavailable     = "CHAT_UNAVAILABLE"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewValidationError はリクエスト検証エラーを生成する。
// detailsには問題のあったペイロードなどを格納する。
func NewValidationError(message string, details any) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  message,
		Category: "validation",
		Action:   "入力内容を確認してください。",
		Details:  details,
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidEmailError はメールアドレス形式エラーを生成する。
func NewInvalidEmailError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  fmt.Sprintf("無効なメールアドレスです: %s", email),
		Category: "validation",
		Action:   "正しいメールアドレスを入力してください。",
	}
}

// NewAlreadySubscribedError は購読済みメールアドレスの再登録エラーを生成する。
func NewAlreadySubscribedError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadySubscribed,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "newsletter",
		Action:   "受信トレイをご確認ください。",
	}
}

// NewSubscriberNotFoundError は購読者が見つからない場合のエラーを生成する。
func NewSubscriberNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeSubscriberNotFound,
		Message:  "購読情報が見つかりません。",
		Category: "newsletter",
		Action:   "メールに記載された解除リンクを使用してください。",
	}
}

// NewIdeaNotFoundError はアイデア未検出エラーを生成する。
func NewIdeaNotFoundError(ideaID int64) *APIError {
	return &APIError{
		Code:     ErrCodeIdeaNotFound,
		Message:  fmt.Sprintf("指定されたアイデアが見つかりません: %d", ideaID),
		Category: "ideas",
		Action:   "アイデア一覧を再読み込みしてください。",
	}
}

// NewIdeaAlreadySavedError はアイデアの重複保存エラーを生成する。
func NewIdeaAlreadySavedError(ideaID int64) *APIError {
	return &APIError{
		Code:     ErrCodeIdeaAlreadySaved,
		Message:  fmt.Sprintf("このアイデアは既に保存されています: %d", ideaID),
		Category: "ideas",
		Action:   "保存済み一覧から確認してください。",
	}
}

// NewSavedIdeaNotFoundError は保存済みアイデアが見つからない場合のエラーを生成する。
func NewSavedIdeaNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeSavedIdeaNotFound,
		Message:  fmt.Sprintf("保存済みアイデアが見つかりません: %s", id),
		Category: "ideas",
		Action:   "保存済み一覧を再読み込みしてください。",
	}
}

// NewInvalidTickerError はティッカー形式エラーを生成する。
func NewInvalidTickerError(ticker string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTicker,
		Message:  fmt.Sprintf("無効なティッカーです: %s", ticker),
		Category: "validation",
		Action:   "ティッカーは1〜5文字の英字で指定してください。",
	}
}

// NewDuplicateTickerError はウォッチリスト内のティッカー重複エラーを生成する。
func NewDuplicateTickerError(ticker string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateTicker,
		Message:  fmt.Sprintf("%s は既にウォッチリストに含まれています。", ticker),
		Category: "watchlist",
		Action:   "別のティッカーを指定してください。",
	}
}

// NewTickerNotFoundError はウォッチリストにティッカーが存在しない場合のエラーを生成する。
func NewTickerNotFoundError(ticker string) *APIError {
	return &APIError{
		Code:     ErrCodeTickerNotFound,
		Message:  fmt.Sprintf("%s はウォッチリストに含まれていません。", ticker),
		Category: "watchlist",
		Action:   "ウォッチリストを再読み込みしてください。",
	}
}

// NewWatchlistLimitError はウォッチリストのティッカー上限エラーを生成する。
func NewWatchlistLimitError(limit int) *APIError {
	return &APIError{
		Code:     ErrCodeWatchlistLimit,
		Message:  fmt.Sprintf("ウォッチリストのティッカー数が上限（%d件）に達しています。", limit),
		Category: "watchlist",
		Action:   "不要なティッカーを削除してから追加してください。",
	}
}

// NewWatchlistNotFoundError はウォッチリストが見つからない場合のエラーを生成する。
func NewWatchlistNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeWatchlistNotFound,
		Message:  fmt.Sprintf("指定されたウォッチリストが見つかりません: %s", id),
		Category: "watchlist",
		Action:   "ウォッチリストIDを確認してください。",
	}
}

// NewInvalidRiskProfileError はリスク許容度の値が不正な場合のエラーを生成する。
func NewInvalidRiskProfileError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRiskProfile,
		Message:  fmt.Sprintf("無効なリスク許容度です: %s", value),
		Category: "validation",
		Action:   "conservative、moderate、aggressive のいずれかを指定してください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
// retryAfterSecは再試行までの推奨待機秒数。
func NewRateLimitedError(retryAfterSec int) *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   fmt.Sprintf("%d秒後に再度お試しください。", retryAfterSec),
		Details:  map[string]int{"retry_after": retryAfterSec},
	}
}

// NewChatUnavailableError はチャットバックエンドが利用できない場合のエラーを生成する。
func NewChatUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeChatUnavailable,
		Message:  "アシスタントは現在ご利用いただけません。",
		Category: "chat",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUpstreamUnavailableError はストレージ等の上流障害エラーを生成する。
func NewUpstreamUnavailableError(operation string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamUnavailable,
		Message:  fmt.Sprintf("一時的に処理できませんでした: %s", operation),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
