package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hitoshi/tradedesk/internal/model"
	"github.com/hitoshi/tradedesk/internal/profile"
)

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	Get(ctx context.Context, userID string) (*model.Profile, error)
	Update(ctx context.Context, userID string, in profile.UpdateInput) (*model.Profile, error)
	DeleteAccountData(ctx context.Context, userID string) error
}

// ProfileHandler はプロフィールのHTTPハンドラー。
type ProfileHandler struct {
	service ProfileServiceInterface
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{service: service}
}

type updateProfileRequest struct {
	DisplayName *string `json:"display_name"`
	RiskProfile *string `json:"risk_profile"`
}

type profileResponse struct {
	DisplayName string     `json:"display_name"`
	RiskProfile string     `json:"risk_profile"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// Get はプロフィールを返す。未作成の場合は既定値を返す。
// GET /api/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	p, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, toProfileResponse(p), "")
}

// Update はプロフィールを更新する。
// PUT /api/profile
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	req, ok := decodeRequest(w, r, func(req *updateProfileRequest) error {
		if req.DisplayName == nil && req.RiskProfile == nil {
			return errors.New("display_name または risk_profile を指定してください。")
		}
		return nil
	})
	if !ok {
		return
	}

	p, err := h.service.Update(r.Context(), userID, profile.UpdateInput{
		DisplayName: req.DisplayName,
		RiskProfile: req.RiskProfile,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, toProfileResponse(p), "")
}

// Delete はユーザーのアカウントデータ（保存済みアイデア、ウォッチリスト、プロフィール）を削除する。
// DELETE /api/profile
func (h *ProfileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteAccountData(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toProfileResponse(p *model.Profile) profileResponse {
	resp := profileResponse{
		DisplayName: p.DisplayName,
		RiskProfile: string(p.RiskProfile),
	}
	if !p.UpdatedAt.IsZero() {
		updated := p.UpdatedAt
		resp.UpdatedAt = &updated
	}
	return resp
}
