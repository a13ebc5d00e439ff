// Package profile はユーザープロフィールとアカウントデータの削除を提供する。
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/tradedesk/internal/model"
	"github.com/hitoshi/tradedesk/internal/repository"
	"github.com/hitoshi/tradedesk/internal/resilience"
)

// MaxDisplayNameLength は表示名の最大文字数。
const MaxDisplayNameLength = 100

// Service はプロフィールのサービス層。
type Service struct {
	profileRepo   repository.ProfileRepository
	watchlistRepo repository.WatchlistRepository
	savedIdeaRepo repository.SavedIdeaRepository
	retry         resilience.RetryConfig
	logger        *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	profileRepo repository.ProfileRepository,
	watchlistRepo repository.WatchlistRepository,
	savedIdeaRepo repository.SavedIdeaRepository,
	retry resilience.RetryConfig,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		profileRepo:   profileRepo,
		watchlistRepo: watchlistRepo,
		savedIdeaRepo: savedIdeaRepo,
		retry:         retry,
		logger:        logger,
	}
}

// Get はユーザーのプロフィールを返す。未作成の場合は既定値を返す。
func (s *Service) Get(ctx context.Context, userID string) (*model.Profile, error) {
	p, err := resilience.WithRetry(ctx, "fetch profile", s.retry,
		func(ctx context.Context) (*model.Profile, error) {
			return s.profileRepo.FindByUserID(ctx, userID)
		})
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if p == nil {
		return &model.Profile{UserID: userID, RiskProfile: model.RiskModerate}, nil
	}
	return p, nil
}

// UpdateInput はプロフィール更新の入力。nilの項目は変更しない。
type UpdateInput struct {
	DisplayName *string
	RiskProfile *string
}

// Update はプロフィールを更新する。行がなければ作成する。
func (s *Service) Update(ctx context.Context, userID string, in UpdateInput) (*model.Profile, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.DisplayName != nil {
		name := strings.TrimSpace(*in.DisplayName)
		if utf8.RuneCountInString(name) > MaxDisplayNameLength {
			return nil, model.NewValidationError(
				fmt.Sprintf("表示名は%d文字以内で入力してください。", MaxDisplayNameLength), nil)
		}
		p.DisplayName = name
	}
	if in.RiskProfile != nil {
		risk := model.RiskProfile(strings.ToLower(strings.TrimSpace(*in.RiskProfile)))
		if !risk.Valid() {
			return nil, model.NewInvalidRiskProfileError(*in.RiskProfile)
		}
		p.RiskProfile = risk
	}

	if _, err := resilience.WithRetry(ctx, "update profile", s.retry,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.profileRepo.Upsert(ctx, p)
		}); err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	return p, nil
}

// DeleteAccountData はユーザーの保存済みアイデア、ウォッチリスト、プロフィールをこの順に削除する。
// 認証情報そのものはIDプロバイダー側で管理されるため対象外。
func (s *Service) DeleteAccountData(ctx context.Context, userID string) error {
	steps := []struct {
		operation string
		fn        func(ctx context.Context, userID string) error
	}{
		{"delete saved ideas", s.savedIdeaRepo.DeleteByUserID},
		{"delete watchlists", s.watchlistRepo.DeleteByUserID},
		{"delete profile", s.profileRepo.DeleteByUserID},
	}

	for _, step := range steps {
		if _, err := resilience.WithRetry(ctx, step.operation, s.retry,
			func(ctx context.Context) (struct{}, error) {
				return struct{}{}, step.fn(ctx, userID)
			}); err != nil {
			s.logger.Error("アカウントデータの削除に失敗しました",
				slog.String("user_id", userID),
				slog.String("operation", step.operation),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("アカウントデータの削除に失敗しました: %w", err)
		}
	}

	s.logger.Info("アカウントデータを削除しました",
		slog.String("user_id", userID),
		slog.Time("deleted_at", time.Now()),
	)
	return nil
}
