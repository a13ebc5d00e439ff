// Package savedidea はユーザーによるトレードアイデアの保存を管理する。
package savedidea

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/tradedesk/internal/model"
	"github.com/hitoshi/tradedesk/internal/repository"
	"github.com/hitoshi/tradedesk/internal/resilience"
)

// MaxNoteLength はメモの最大文字数。
const MaxNoteLength = 1000

// IdeaLookup は正規化済みアイデアの取得インターフェース。
type IdeaLookup interface {
	GetIdea(ctx context.Context, id int64) (*model.TradingIdea, error)
}

// Service は保存済みアイデアのサービス層。
type Service struct {
	repo   repository.SavedIdeaRepository
	ideas  IdeaLookup
	retry  resilience.RetryConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.SavedIdeaRepository, ideas IdeaLookup, retry resilience.RetryConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		ideas:  ideas,
		retry:  retry,
		logger: logger,
		now:    time.Now,
	}
}

// List はユーザーの保存済みアイデアを新しい順に返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.SavedIdea, error) {
	list, err := resilience.WithRetry(ctx, "list saved ideas", s.retry,
		func(ctx context.Context) ([]*model.SavedIdea, error) {
			return s.repo.ListByUserID(ctx, userID)
		})
	if err != nil {
		return nil, fmt.Errorf("保存済みアイデア一覧の取得に失敗しました: %w", err)
	}
	if list == nil {
		list = []*model.SavedIdea{}
	}
	return list, nil
}

// Save はアイデアを保存する。アイデアのテーマとティッカーは保存時点の値を複製する。
// 既に保存済みの場合はIDEA_ALREADY_SAVEDを返す。
// 作成は冪等でないためリトライで包まない。
func (s *Service) Save(ctx context.Context, userID string, ideaID int64, note string) (*model.SavedIdea, error) {
	if err := validateNote(note); err != nil {
		return nil, err
	}

	idea, err := s.ideas.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}

	existing, err := resilience.WithRetry(ctx, "check saved idea", s.retry,
		func(ctx context.Context) (*model.SavedIdea, error) {
			return s.repo.FindByUserAndIdea(ctx, userID, ideaID)
		})
	if err != nil {
		return nil, fmt.Errorf("保存済みアイデアの確認に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewIdeaAlreadySavedError(ideaID)
	}

	now := s.now().UTC()
	saved := &model.SavedIdea{
		ID:        uuid.New().String(),
		UserID:    userID,
		IdeaID:    idea.ID,
		Theme:     idea.Theme,
		Tickers:   idea.Tickers,
		Note:      note,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, saved); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewIdeaAlreadySavedError(ideaID)
		}
		return nil, fmt.Errorf("保存済みアイデアの作成に失敗しました: %w", err)
	}

	s.logger.Info("アイデアを保存しました",
		slog.String("user_id", userID),
		slog.Int64("idea_id", ideaID),
	)
	return saved, nil
}

// UpdateNote はメモを更新する。
func (s *Service) UpdateNote(ctx context.Context, userID, id, note string) (*model.SavedIdea, error) {
	if err := validateNote(note); err != nil {
		return nil, err
	}
	saved, err := s.find(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if _, err := resilience.WithRetry(ctx, "update saved idea note", s.retry,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.repo.UpdateNote(ctx, id, note)
		}); err != nil {
		return nil, fmt.Errorf("メモの更新に失敗しました: %w", err)
	}

	saved.Note = note
	saved.UpdatedAt = s.now().UTC()
	return saved, nil
}

// Delete は保存済みアイデアを削除する。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.find(ctx, userID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("保存済みアイデアの削除に失敗しました: %w", err)
	}
	return nil
}

// find はユーザーが所有する保存済みアイデアを返す。他人のものは存在しない扱い。
func (s *Service) find(ctx context.Context, userID, id string) (*model.SavedIdea, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewSavedIdeaNotFoundError(id)
	}
	saved, err := resilience.WithRetry(ctx, "find saved idea", s.retry,
		func(ctx context.Context) (*model.SavedIdea, error) {
			return s.repo.FindByID(ctx, id)
		})
	if err != nil {
		return nil, fmt.Errorf("保存済みアイデアの取得に失敗しました: %w", err)
	}
	if saved == nil || saved.UserID != userID {
		return nil, model.NewSavedIdeaNotFoundError(id)
	}
	return saved, nil
}

func validateNote(note string) error {
	if utf8.RuneCountInString(note) > MaxNoteLength {
		return model.NewValidationError(
			fmt.Sprintf("メモは%d文字以内で入力してください。", MaxNoteLength), nil)
	}
	return nil
}
