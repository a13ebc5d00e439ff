package resilience

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const (
	// maxEchoBytes は検証失敗時にエコーバックするペイロードの最大バイト数。
	maxEchoBytes = 500
	// DefaultMaxBodyBytes はリクエストボディの既定読み取り上限。
	DefaultMaxBodyBytes = 64 << 10
)

// ValidationError はボディの解析または検証に失敗したことを表す。
// Payloadには問題のあったボディを最大500バイトまで保持する。
type ValidationError struct {
	Message string
	Payload string
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	return e.Message
}

// ReadBody はrから最大limitバイトを読み取る。上限を超えた場合はエラーを返す。
func ReadBody(r io.Reader, limit int64) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("リクエストボディの読み取りに失敗しました: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("リクエストボディが大きすぎます（上限 %d バイト）", limit)
	}
	return body, nil
}

// DecodeBody はrawをJSONとしてTに解析し、validateで検証する。
// 解析失敗・検証失敗のいずれもValidationErrorとして返し、panicはしない。
// validateがnilの場合は解析のみ行う。
func DecodeBody[T any](raw []byte, validate func(*T) error) (*T, *ValidationError) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &ValidationError{Message: "リクエストボディが空です。", Payload: ""}
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, &ValidationError{
			Message: fmt.Sprintf("リクエストボディの解析に失敗しました: %v", err),
			Payload: truncatePayload(raw),
		}
	}

	if validate != nil {
		if err := validate(&v); err != nil {
			return nil, &ValidationError{
				Message: err.Error(),
				Payload: truncatePayload(raw),
			}
		}
	}

	return &v, nil
}

// truncatePayload はペイロードをmaxEchoBytesまでに切り詰める。
func truncatePayload(raw []byte) string {
	if len(raw) <= maxEchoBytes {
		return string(raw)
	}
	return strings.ToValidUTF8(string(raw[:maxEchoBytes]), "") + "..."
}
