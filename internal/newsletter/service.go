// Package newsletter はニュースレター購読の登録と解除を提供する。
package newsletter

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/tradedesk/internal/model"
	"github.com/hitoshi/tradedesk/internal/repository"
	"github.com/hitoshi/tradedesk/internal/resilience"
)

const (
	// maxEmailLength はメールアドレスの最大長（RFC 5321）。
	maxEmailLength = 320
	// maxSourceLength は登録元ラベルの最大長。
	maxSourceLength = 64
	// defaultSource は登録元が指定されない場合の値。
	defaultSource = "website"
)

// Service はニュースレター購読のサービス層。
type Service struct {
	repo   repository.SubscriberRepository
	retry  resilience.RetryConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.SubscriberRepository, retry resilience.RetryConfig, logger *slog.Logger) *Service {
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

// NormalizeEmail は前後の空白を除去して小文字化する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail はメールアドレスの形式を検証する。
// 表示名付きの形式は受け付けず、ドメイン部にドットを含むことを要求する。
func ValidateEmail(email string) bool {
	if email == "" || len(email) > maxEmailLength {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return false
	}
	at := strings.LastIndex(email, "@")
	domain := email[at+1:]
	dot := strings.Index(domain, ".")
	return dot > 0 && dot < len(domain)-1
}

// Subscribe はメールアドレスを購読者として登録する。
// 有効な購読が既にある場合はALREADY_SUBSCRIBEDを返す。
// 解除済みの購読者は再度有効にする。
func (s *Service) Subscribe(ctx context.Context, email, source string) (*model.Subscriber, error) {
	email = NormalizeEmail(email)
	if !ValidateEmail(email) {
		return nil, model.NewInvalidEmailError(email)
	}
	source = normalizeSource(source)

	existing, err := resilience.WithRetry(ctx, "check subscriber", s.retry,
		func(ctx context.Context) (*model.Subscriber, error) {
			return s.repo.FindByEmail(ctx, email)
		})
	if err != nil {
		return nil, s.upstreamError("check subscriber", err)
	}

	now := s.now().UTC()

	if existing != nil {
		if existing.Active() {
			return nil, model.NewAlreadySubscribedError()
		}
		if _, err := resilience.WithRetry(ctx, "reactivate subscriber", s.retry,
			func(ctx context.Context) (struct{}, error) {
				return struct{}{}, s.repo.Reactivate(ctx, existing.ID, source, now)
			}); err != nil {
			return nil, s.upstreamError("reactivate subscriber", err)
		}
		existing.Source = source
		existing.SubscribedAt = now
		existing.UnsubscribedAt = nil
		s.logger.Info("購読を再開しました", slog.String("subscriber_id", existing.ID))
		return existing, nil
	}

	sub := &model.Subscriber{
		ID:               uuid.New().String(),
		Email:            email,
		Source:           source,
		UnsubscribeToken: uuid.New().String(),
		SubscribedAt:     now,
	}

	// 同じIDで再実行されるため、一意制約違反は先行する試行の成功か同時登録を意味する
	_, err = resilience.WithRetry(ctx, "create subscriber", s.retry,
		func(ctx context.Context) (struct{}, error) {
			err := s.repo.Create(ctx, sub)
			if errors.Is(err, repository.ErrDuplicate) {
				return struct{}{}, resilience.Permanent(err)
			}
			return struct{}{}, err
		})
	if errors.Is(err, repository.ErrDuplicate) {
		// 応答が失われた先行試行で登録済みなら、このリクエストの成功として扱う
		stored, findErr := s.repo.FindByEmail(ctx, email)
		if findErr != nil {
			return nil, s.upstreamError("find subscriber", findErr)
		}
		if stored == nil || stored.ID != sub.ID {
			return nil, model.NewAlreadySubscribedError()
		}
		err = nil
	}
	if err != nil {
		return nil, s.upstreamError("create subscriber", err)
	}

	s.logger.Info("購読者を登録しました",
		slog.String("subscriber_id", sub.ID),
		slog.String("source", source),
	)
	return sub, nil
}

// Unsubscribe は解除トークンに対応する購読を解除する。
// 既に解除済みの場合は何もしない。
func (s *Service) Unsubscribe(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if _, err := uuid.Parse(token); err != nil {
		return model.NewSubscriberNotFoundError()
	}

	sub, err := resilience.WithRetry(ctx, "find subscriber", s.retry,
		func(ctx context.Context) (*model.Subscriber, error) {
			return s.repo.FindByToken(ctx, token)
		})
	if err != nil {
		return s.upstreamError("find subscriber", err)
	}
	if sub == nil {
		return model.NewSubscriberNotFoundError()
	}
	if !sub.Active() {
		return nil
	}

	now := s.now().UTC()
	if _, err := resilience.WithRetry(ctx, "unsubscribe", s.retry,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.repo.MarkUnsubscribed(ctx, sub.ID, now)
		}); err != nil {
		return s.upstreamError("unsubscribe", err)
	}

	s.logger.Info("購読を解除しました", slog.String("subscriber_id", sub.ID))
	return nil
}

func (s *Service) upstreamError(operation string, err error) error {
	s.logger.Error("購読者ストレージの呼び出しに失敗しました",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
	return model.NewUpstreamUnavailableError(operation)
}

// normalizeSource は登録元ラベルを整える。
func normalizeSource(source string) string {
	source = strings.TrimSpace(source)
	if source == "" {
		return defaultSource
	}
	if len(source) > maxSourceLength {
		source = source[:maxSourceLength]
	}
	return source
}
