package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/tradedesk/internal/chat"
	"github.com/hitoshi/tradedesk/internal/model"
)

// ChatServiceInterface はチャットハンドラーが必要とするサービスインターフェース。
type ChatServiceInterface interface {
	Reply(ctx context.Context, userID string, req *chat.Request) (*model.ChatMessage, error)
}

// ChatHandler はトレードアシスタントチャットのHTTPハンドラー。
type ChatHandler struct {
	service ChatServiceInterface
}

// NewChatHandler はChatHandlerを生成する。
func NewChatHandler(service ChatServiceInterface) *ChatHandler {
	return &ChatHandler{service: service}
}

type chatMessageResponse struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Reply は会話に対するアシスタントの返答を返す。
// POST /api/chat
func (h *ChatHandler) Reply(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	req, ok := decodeRequest(w, r, (*chat.Request).Validate)
	if !ok {
		return
	}

	msg, err := h.service.Reply(r.Context(), userID, req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, chatMessageResponse{
		Role:    string(msg.Role),
		Content: msg.Content,
	}, "")
}
