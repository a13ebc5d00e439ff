// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/tradedesk/internal/middleware"
	"github.com/hitoshi/tradedesk/internal/model"
	"github.com/hitoshi/tradedesk/internal/resilience"
)

// maxRequestBodyBytes はJSONリクエストボディの読み取り上限。
const maxRequestBodyBytes = resilience.DefaultMaxBodyBytes

// successResponse は成功時のレスポンスエンベロープ。
type successResponse struct {
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeData は{data, message}形式の成功レスポンスを書き込む。
func writeData(w http.ResponseWriter, statusCode int, data any, message string) {
	writeJSON(w, statusCode, successResponse{Data: data, Message: message})
}

// decodeRequest はリクエストボディを読み取り、Tに解析してvalidateで検証する。
// 失敗時は400レスポンスを書き込み、falseを返す。
func decodeRequest[T any](w http.ResponseWriter, r *http.Request, validate func(*T) error) (*T, bool) {
	raw, err := resilience.ReadBody(r.Body, maxRequestBodyBytes)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError(err.Error(), nil))
		return nil, false
	}

	v, verr := resilience.DecodeBody(raw, validate)
	if verr != nil {
		var details any
		if verr.Payload != "" {
			details = map[string]string{"payload": verr.Payload}
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError(verr.Message, details))
		return nil, false
	}
	return v, true
}

// requireUserID はコンテキストからユーザーIDを取得する。
// 取得できない場合は401レスポンスを書き込み、falseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return userID, true
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		if apiErr.Code == model.ErrCodeRateLimited {
			if d, ok := apiErr.Details.(map[string]int); ok {
				w.Header().Set("Retry-After", strconv.Itoa(d["retry_after"]))
			}
		}
		middleware.WriteErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidRequest, model.ErrCodeInvalidEmail, model.ErrCodeInvalidTicker,
		model.ErrCodeInvalidRiskProfile:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeSubscriberNotFound, model.ErrCodeIdeaNotFound, model.ErrCodeSavedIdeaNotFound,
		model.ErrCodeWatchlistNotFound, model.ErrCodeTickerNotFound:
		return http.StatusNotFound
	case model.ErrCodeAlreadySubscribed, model.ErrCodeIdeaAlreadySaved, model.ErrCodeDuplicateTicker,
		model.ErrCodeWatchlistLimit:
		return http.StatusConflict
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeChatUnavailable, model.ErrCodeUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
