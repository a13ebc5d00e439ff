package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tradedesk/internal/model"
)

// SavedIdeaServiceInterface は保存済みアイデアハンドラーが必要とするサービスインターフェース。
type SavedIdeaServiceInterface interface {
	List(ctx context.Context, userID string) ([]*model.SavedIdea, error)
	Save(ctx context.Context, userID string, ideaID int64, note string) (*model.SavedIdea, error)
	UpdateNote(ctx context.Context, userID, id, note string) (*model.SavedIdea, error)
	Delete(ctx context.Context, userID, id string) error
}

// SavedIdeaHandler は保存済みアイデアのHTTPハンドラー。
type SavedIdeaHandler struct {
	service SavedIdeaServiceInterface
}

// NewSavedIdeaHandler はSavedIdeaHandlerを生成する。
func NewSavedIdeaHandler(service SavedIdeaServiceInterface) *SavedIdeaHandler {
	return &SavedIdeaHandler{service: service}
}

type saveIdeaRequest struct {
	IdeaID *int64 `json:"idea_id"`
	Note   string `json:"note"`
}

type updateNoteRequest struct {
	Note *string `json:"note"`
}

type savedIdeaResponse struct {
	ID        string    `json:"id"`
	IdeaID    int64     `json:"idea_id"`
	Theme     string    `json:"theme"`
	Tickers   string    `json:"tickers"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// List は保存済みアイデアの一覧を返す。
// GET /api/saved-ideas
func (h *SavedIdeaHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	saved, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]savedIdeaResponse, len(saved))
	for i, s := range saved {
		resp[i] = toSavedIdeaResponse(s)
	}
	writeData(w, http.StatusOK, resp, "")
}

// Save はアイデアを保存する。
// POST /api/saved-ideas
func (h *SavedIdeaHandler) Save(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	req, ok := decodeRequest(w, r, func(req *saveIdeaRequest) error {
		if req.IdeaID == nil || *req.IdeaID < 0 {
			return errors.New("idea_id を0以上の整数で指定してください。")
		}
		return nil
	})
	if !ok {
		return
	}

	saved, err := h.service.Save(r.Context(), userID, *req.IdeaID, req.Note)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, toSavedIdeaResponse(saved), "アイデアを保存しました。")
}

// UpdateNote は保存済みアイデアのメモを更新する。
// PATCH /api/saved-ideas/{id}
func (h *SavedIdeaHandler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	req, ok := decodeRequest(w, r, func(req *updateNoteRequest) error {
		if req.Note == nil {
			return errors.New("note を指定してください。")
		}
		return nil
	})
	if !ok {
		return
	}

	saved, err := h.service.UpdateNote(r.Context(), userID, chi.URLParam(r, "id"), *req.Note)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, toSavedIdeaResponse(saved), "")
}

// Delete は保存済みアイデアを削除する。
// DELETE /api/saved-ideas/{id}
func (h *SavedIdeaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toSavedIdeaResponse(s *model.SavedIdea) savedIdeaResponse {
	return savedIdeaResponse{
		ID:        s.ID,
		IdeaID:    s.IdeaID,
		Theme:     s.Theme,
		Tickers:   s.Tickers,
		Note:      s.Note,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}
