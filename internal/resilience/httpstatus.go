package resilience

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// StatusClass はHTTPステータスコードをリトライ可否で分類したもの。
type StatusClass int

const (
	// StatusOK は成功（2xx）。
	StatusOK StatusClass = iota
	// StatusRetryable は時間をおけば回復しうる失敗（408/425/429/5xx）。
	StatusRetryable
	// StatusPermanent はリトライしても結果が変わらない失敗（その他の4xx等）。
	StatusPermanent
)

// maxErrorBodySize はエラー応答から読み取る本文の最大バイト数。
const maxErrorBodySize = 512

// ClassifyHTTPStatus はHTTPステータスコードを分類する。
func ClassifyHTTPStatus(statusCode int) StatusClass {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return StatusOK
	case statusCode == http.StatusRequestTimeout,
		statusCode == http.StatusTooEarly,
		statusCode == http.StatusTooManyRequests:
		return StatusRetryable
	case statusCode >= 500:
		return StatusRetryable
	default:
		return StatusPermanent
	}
}

// HTTPStatusError は上流が成功以外のステータスを返したことを表す。
type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Body       string // 先頭の一部のみ
}

// Error はerrorインターフェースを実装する。
func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// CheckResponse は応答のステータスを検査する。
// 2xxならnil、リトライ可能ならHTTPStatusError、それ以外はPermanentで包んだHTTPStatusErrorを返す。
// エラーを返す場合は本文の先頭だけを読み取る。本文のCloseは呼び出し側が行う。
func CheckResponse(operation string, resp *http.Response) error {
	class := ClassifyHTTPStatus(resp.StatusCode)
	if class == StatusOK {
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	err := &HTTPStatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(snippet)),
	}
	if class == StatusPermanent {
		return Permanent(err)
	}
	return err
}
