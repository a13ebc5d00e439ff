// Package watchlist はユーザーごとのティッカー監視リストを管理する。
package watchlist

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/tradedesk/internal/model"
	"github.com/hitoshi/tradedesk/internal/repository"
	"github.com/hitoshi/tradedesk/internal/resilience"
)

const (
	// MaxTickers は1つのウォッチリストに登録できるティッカーの上限。
	MaxTickers = 50
	// MaxNameLength はウォッチリスト名の最大文字数。
	MaxNameLength = 60
)

var tickerPattern = regexp.MustCompile(`^[A-Z]{1,5}$`)

// NormalizeTicker は前後の空白と先頭の$を除去して大文字化する。
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(ticker), "$"))
}

// ValidTicker はティッカーが1〜5文字の英大文字かを返す。
func ValidTicker(ticker string) bool {
	return tickerPattern.MatchString(ticker)
}

// Service はウォッチリストのサービス層。
// 他人のウォッチリストは存在しないものとして扱う。
type Service struct {
	repo   repository.WatchlistRepository
	retry  resilience.RetryConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.WatchlistRepository, retry resilience.RetryConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		retry:  retry,
		logger: logger,
		now:    time.Now,
	}
}

// List はユーザーのウォッチリスト一覧を返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Watchlist, error) {
	lists, err := resilience.WithRetry(ctx, "list watchlists", s.retry,
		func(ctx context.Context) ([]*model.Watchlist, error) {
			return s.repo.ListByUserID(ctx, userID)
		})
	if err != nil {
		return nil, fmt.Errorf("ウォッチリスト一覧の取得に失敗しました: %w", err)
	}
	if lists == nil {
		lists = []*model.Watchlist{}
	}
	return lists, nil
}

// Create はウォッチリストを作成する。tickersは正規化・重複除去してから保存する。
func (s *Service) Create(ctx context.Context, userID, name string, tickers []string) (*model.Watchlist, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}
	normalized, err := normalizeTickers(tickers)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	w := &model.Watchlist{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		Tickers:   normalized,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("ウォッチリストの作成に失敗しました: %w", err)
	}

	s.logger.Info("ウォッチリストを作成しました",
		slog.String("user_id", userID),
		slog.String("watchlist_id", w.ID),
		slog.Int("tickers", len(w.Tickers)),
	)
	return w, nil
}

// Get はユーザーが所有するウォッチリストを返す。
func (s *Service) Get(ctx context.Context, userID, id string) (*model.Watchlist, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewWatchlistNotFoundError(id)
	}

	w, err := resilience.WithRetry(ctx, "find watchlist", s.retry,
		func(ctx context.Context) (*model.Watchlist, error) {
			return s.repo.FindByID(ctx, id)
		})
	if err != nil {
		return nil, fmt.Errorf("ウォッチリストの取得に失敗しました: %w", err)
	}
	if w == nil || w.UserID != userID {
		return nil, model.NewWatchlistNotFoundError(id)
	}
	return w, nil
}

// Rename はウォッチリスト名を変更する。
func (s *Service) Rename(ctx context.Context, userID, id, name string) (*model.Watchlist, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}
	w, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	w.Name = name
	return s.save(ctx, w)
}

// AddTicker はティッカーを末尾に追加する。
// 既に含まれる場合はDUPLICATE_TICKER、上限に達している場合はWATCHLIST_LIMITを返す。
func (s *Service) AddTicker(ctx context.Context, userID, id, ticker string) (*model.Watchlist, error) {
	ticker = NormalizeTicker(ticker)
	if !ValidTicker(ticker) {
		return nil, model.NewInvalidTickerError(ticker)
	}
	w, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if w.HasTicker(ticker) {
		return nil, model.NewDuplicateTickerError(ticker)
	}
	if len(w.Tickers) >= MaxTickers {
		return nil, model.NewWatchlistLimitError(MaxTickers)
	}
	w.Tickers = append(w.Tickers, ticker)
	return s.save(ctx, w)
}

// RemoveTicker はティッカーを削除する。含まれない場合はTICKER_NOT_FOUNDを返す。
func (s *Service) RemoveTicker(ctx context.Context, userID, id, ticker string) (*model.Watchlist, error) {
	ticker = NormalizeTicker(ticker)
	w, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !w.HasTicker(ticker) {
		return nil, model.NewTickerNotFoundError(ticker)
	}
	kept := make([]string, 0, len(w.Tickers)-1)
	for _, t := range w.Tickers {
		if t != ticker {
			kept = append(kept, t)
		}
	}
	w.Tickers = kept
	return s.save(ctx, w)
}

// Delete はウォッチリストを削除する。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("ウォッチリストの削除に失敗しました: %w", err)
	}
	s.logger.Info("ウォッチリストを削除しました",
		slog.String("user_id", userID),
		slog.String("watchlist_id", id),
	)
	return nil
}

func (s *Service) save(ctx context.Context, w *model.Watchlist) (*model.Watchlist, error) {
	w.UpdatedAt = s.now().UTC()
	if _, err := resilience.WithRetry(ctx, "update watchlist", s.retry,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.repo.Update(ctx, w)
		}); err != nil {
		return nil, fmt.Errorf("ウォッチリストの更新に失敗しました: %w", err)
	}
	return w, nil
}

// validateName は名前をトリムし、1〜60文字であることを確認する。
func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n == 0 || n > MaxNameLength {
		return "", model.NewValidationError(
			fmt.Sprintf("ウォッチリスト名は1〜%d文字で指定してください。", MaxNameLength), nil)
	}
	return name, nil
}

// normalizeTickers はティッカーを正規化し、重複を除いて元の順序で返す。
func normalizeTickers(tickers []string) ([]string, error) {
	result := make([]string, 0, len(tickers))
	seen := make(map[string]bool, len(tickers))
	for _, raw := range tickers {
		t := NormalizeTicker(raw)
		if !ValidTicker(t) {
			return nil, model.NewInvalidTickerError(raw)
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		result = append(result, t)
	}
	if len(result) > MaxTickers {
		return nil, model.NewWatchlistLimitError(MaxTickers)
	}
	return result, nil
}
