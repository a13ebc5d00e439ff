package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/tradedesk/internal/model"
)

// NewsletterServiceInterface はニュースレターハンドラーが必要とするサービスインターフェース。
type NewsletterServiceInterface interface {
	Subscribe(ctx context.Context, email, source string) (*model.Subscriber, error)
	Unsubscribe(ctx context.Context, token string) error
}

// NewsletterHandler はニュースレター購読のHTTPハンドラー。
type NewsletterHandler struct {
	service NewsletterServiceInterface
}

// NewNewsletterHandler はNewsletterHandlerを生成する。
func NewNewsletterHandler(service NewsletterServiceInterface) *NewsletterHandler {
	return &NewsletterHandler{service: service}
}

type subscribeRequest struct {
	Email  string `json:"email"`
	Source string `json:"source"`
}

type unsubscribeRequest struct {
	Token string `json:"token"`
}

type subscriberResponse struct {
	Email        string    `json:"email"`
	Source       string    `json:"source"`
	SubscribedAt time.Time `json:"subscribed_at"`
}

// Subscribe はニュースレターの購読を登録する。
// POST /api/newsletter/subscribe
func (h *NewsletterHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r, func(req *subscribeRequest) error {
		if strings.TrimSpace(req.Email) == "" {
			return errors.New("email を指定してください。")
		}
		return nil
	})
	if !ok {
		return
	}

	sub, err := h.service.Subscribe(r.Context(), req.Email, req.Source)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeData(w, http.StatusCreated, subscriberResponse{
		Email:        sub.Email,
		Source:       sub.Source,
		SubscribedAt: sub.SubscribedAt,
	}, "ニュースレターの購読を登録しました。")
}

// Unsubscribe は解除トークンでニュースレターの購読を解除する。
// POST /api/newsletter/unsubscribe
func (h *NewsletterHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r, func(req *unsubscribeRequest) error {
		if strings.TrimSpace(req.Token) == "" {
			return errors.New("token を指定してください。")
		}
		return nil
	})
	if !ok {
		return
	}

	if err := h.service.Unsubscribe(r.Context(), strings.TrimSpace(req.Token)); err != nil {
		handleServiceError(w, err)
		return
	}

	writeData(w, http.StatusOK, nil, "ニュースレターの購読を解除しました。")
}
