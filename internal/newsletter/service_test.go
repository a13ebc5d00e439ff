package newsletter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/tradedesk/internal/model"
	"github.com/hitoshi/tradedesk/internal/repository"
	"github.com/hitoshi/tradedesk/internal/resilience"
)

// --- モック ---

type mockSubscriberRepo struct {
	findByEmailFn      func(ctx context.Context, email string) (*model.Subscriber, error)
	findByTokenFn      func(ctx context.Context, token string) (*model.Subscriber, error)
	createFn           func(ctx context.Context, sub *model.Subscriber) error
	reactivateFn       func(ctx context.Context, id, source string, at time.Time) error
	markUnsubscribedFn func(ctx context.Context, id string, at time.Time) error
}

func (m *mockSubscriberRepo) FindByEmail(ctx context.Context, email string) (*model.Subscriber, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}
func (m *mockSubscriberRepo) FindByToken(ctx context.Context, token string) (*model.Subscriber, error) {
	if m.findByTokenFn != nil {
		return m.findByTokenFn(ctx, token)
	}
	return nil, nil
}
func (m *mockSubscriberRepo) Create(ctx context.Context, sub *model.Subscriber) error {
	if m.createFn != nil {
		return m.createFn(ctx, sub)
	}
	return nil
}
func (m *mockSubscriberRepo) Reactivate(ctx context.Context, id, source string, at time.Time) error {
	if m.reactivateFn != nil {
		return m.reactivateFn(ctx, id, source, at)
	}
	return nil
}
func (m *mockSubscriberRepo) MarkUnsubscribed(ctx context.Context, id string, at time.Time) error {
	if m.markUnsubscribedFn != nil {
		return m.markUnsubscribedFn(ctx, id, at)
	}
	return nil
}
func (m *mockSubscriberRepo) DeleteUnsubscribedBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError with code %s, got %v", code, err)
	}
	if apiErr.Code != code {
		t.Errorf("Code = %s, want %s", apiErr.Code, code)
	}
}

// --- テスト ---

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"trader@example.com", true},
		{"first.last+news@sub.example.co.jp", true},
		{"", false},
		{"no-at-sign", false},
		{"user@localhost", false},
		{"user@.com", false},
		{"user@example.", false},
		{"Trader <trader@example.com>", false},
		{"a@b@example.com", false},
	}

	for _, tt := range tests {
		if got := ValidateEmail(tt.email); got != tt.want {
			t.Errorf("ValidateEmail(%q) = %v, want %v", tt.email, got, tt.want)
		}
	}
}

func TestService_Subscribe_CreatesNormalizedSubscriber(t *testing.T) {
	var created *model.Subscriber
	repo := &mockSubscriberRepo{
		findByEmailFn: func(_ context.Context, email string) (*model.Subscriber, error) {
			if email != "trader@example.com" {
				t.Errorf("FindByEmail(%q), want normalized address", email)
			}
			return nil, nil
		},
		createFn: func(_ context.Context, sub *model.Subscriber) error {
			created = sub
			return nil
		},
	}
	svc := NewService(repo, fastRetry(), nil)

	sub, err := svc.Subscribe(context.Background(), "  Trader@Example.COM ", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created == nil || created != sub {
		t.Fatal("Createが呼ばれていない")
	}
	if sub.Email != "trader@example.com" || sub.Source != defaultSource {
		t.Errorf("subscriber = %+v", sub)
	}
	if sub.ID == "" || sub.UnsubscribeToken == "" || sub.ID == sub.UnsubscribeToken {
		t.Errorf("IDとトークンは別々に生成されるべき: %+v", sub)
	}
	if !sub.Active() {
		t.Error("新規購読者は有効であるべき")
	}
}

func TestService_Subscribe_InvalidEmail(t *testing.T) {
	repo := &mockSubscriberRepo{
		findByEmailFn: func(_ context.Context, _ string) (*model.Subscriber, error) {
			t.Error("不正なアドレスでストレージを呼んではならない")
			return nil, nil
		},
	}
	svc := NewService(repo, fastRetry(), nil)

	_, err := svc.Subscribe(context.Background(), "not-an-email", "footer")
	assertCode(t, err, model.ErrCodeInvalidEmail)
}

func TestService_Subscribe_AlreadySubscribed(t *testing.T) {
	repo := &mockSubscriberRepo{
		findByEmailFn: func(_ context.Context, email string) (*model.Subscriber, error) {
			return &model.Subscriber{ID: "s-1", Email: email}, nil
		},
		createFn: func(_ context.Context, _ *model.Subscriber) error {
			t.Error("既存の購読者に対してCreateを呼んではならない")
			return nil
		},
	}
	svc := NewService(repo, fastRetry(), nil)

	_, err := svc.Subscribe(context.Background(), "trader@example.com", "landing")
	assertCode(t, err, model.ErrCodeAlreadySubscribed)
}

func TestService_Subscribe_ReactivatesUnsubscribed(t *testing.T) {
	past := time.Now().Add(-48 * time.Hour)
	var reactivatedID, reactivatedSource string
	repo := &mockSubscriberRepo{
		findByEmailFn: func(_ context.Context, email string) (*model.Subscriber, error) {
			return &model.Subscriber{ID: "s-9", Email: email, UnsubscribedAt: &past}, nil
		},
		reactivateFn: func(_ context.Context, id, source string, _ time.Time) error {
			reactivatedID, reactivatedSource = id, source
			return nil
		},
	}
	svc := NewService(repo, fastRetry(), nil)

	sub, err := svc.Subscribe(context.Background(), "trader@example.com", "pricing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reactivatedID != "s-9" || reactivatedSource != "pricing" {
		t.Errorf("Reactivate(%q, %q)", reactivatedID, reactivatedSource)
	}
	if !sub.Active() {
		t.Error("再開後の購読者は有効であるべき")
	}
}

func TestService_Subscribe_RetriesExistenceCheck(t *testing.T) {
	calls := 0
	repo := &mockSubscriberRepo{
		findByEmailFn: func(_ context.Context, _ string) (*model.Subscriber, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("connection refused")
			}
			return nil, nil
		},
	}
	svc := NewService(repo, fastRetry(), nil)

	if _, err := svc.Subscribe(context.Background(), "trader@example.com", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("FindByEmail calls = %d, want 2", calls)
	}
}

func TestService_Subscribe_DuplicateInsertIsConflict(t *testing.T) {
	calls := 0
	repo := &mockSubscriberRepo{
		createFn: func(_ context.Context, _ *model.Subscriber) error {
			calls++
			return repository.ErrDuplicate
		},
	}
	svc := NewService(repo, fastRetry(), nil)

	_, err := svc.Subscribe(context.Background(), "trader@example.com", "")
	assertCode(t, err, model.ErrCodeAlreadySubscribed)
	if calls != 1 {
		t.Errorf("一意制約違反はリトライしない: calls = %d", calls)
	}
}

func TestService_Subscribe_StorageDown(t *testing.T) {
	repo := &mockSubscriberRepo{
		findByEmailFn: func(_ context.Context, _ string) (*model.Subscriber, error) {
			return nil, errors.New("database error")
		},
	}
	svc := NewService(repo, fastRetry(), nil)

	_, err := svc.Subscribe(context.Background(), "trader@example.com", "")
	assertCode(t, err, model.ErrCodeUpstreamUnavailable)
}

func TestService_Unsubscribe(t *testing.T) {
	const token = "0d8f6c8e-4a4b-4c8e-9d55-1a2b3c4d5e6f"
	var markedID string
	repo := &mockSubscriberRepo{
		findByTokenFn: func(_ context.Context, tok string) (*model.Subscriber, error) {
			if tok != token {
				return nil, nil
			}
			return &model.Subscriber{ID: "s-1", UnsubscribeToken: tok}, nil
		},
		markUnsubscribedFn: func(_ context.Context, id string, _ time.Time) error {
			markedID = id
			return nil
		},
	}
	svc := NewService(repo, fastRetry(), nil)

	if err := svc.Unsubscribe(context.Background(), token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if markedID != "s-1" {
		t.Errorf("MarkUnsubscribed id = %q, want s-1", markedID)
	}
}

func TestService_Unsubscribe_UnknownToken(t *testing.T) {
	svc := NewService(&mockSubscriberRepo{}, fastRetry(), nil)

	err := svc.Unsubscribe(context.Background(), "1b4e28ba-2fa1-11d2-883f-0016d3cca427")
	assertCode(t, err, model.ErrCodeSubscriberNotFound)

	err = svc.Unsubscribe(context.Background(), "not-a-uuid")
	assertCode(t, err, model.ErrCodeSubscriberNotFound)
}

func TestService_Unsubscribe_AlreadyUnsubscribedIsNoop(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	repo := &mockSubscriberRepo{
		findByTokenFn: func(_ context.Context, tok string) (*model.Subscriber, error) {
			return &model.Subscriber{ID: "s-1", UnsubscribedAt: &past}, nil
		},
		markUnsubscribedFn: func(_ context.Context, _ string, _ time.Time) error {
			t.Error("解除済みの購読者を再度更新してはならない")
			return nil
		},
	}
	svc := NewService(repo, fastRetry(), nil)

	if err := svc.Unsubscribe(context.Background(), "1b4e28ba-2fa1-11d2-883f-0016d3cca427"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestService_Subscribe_RetryAfterCommittedAttemptSucceeds(t *testing.T) {
	var stored *model.Subscriber
	calls := 0
	repo := &mockSubscriberRepo{
		findByEmailFn: func(_ context.Context, _ string) (*model.Subscriber, error) {
			return stored, nil
		},
		createFn: func(_ context.Context, sub *model.Subscriber) error {
			calls++
			if calls == 1 {
				// 書き込みは成功したが応答が失われた
				copied := *sub
				stored = &copied
				return errors.New("connection reset by peer")
			}
			return repository.ErrDuplicate
		},
	}
	svc := NewService(repo, fastRetry(), nil)

	sub, err := svc.Subscribe(context.Background(), "trader@example.com", "footer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if sub.ID != stored.ID || sub.Email != "trader@example.com" {
		t.Errorf("sub = %+v, want stored subscriber %s", sub, stored.ID)
	}
}

func TestService_Subscribe_DuplicateFromOtherRequestConflicts(t *testing.T) {
	checked := false
	repo := &mockSubscriberRepo{
		findByEmailFn: func(_ context.Context, email string) (*model.Subscriber, error) {
			if !checked {
				checked = true
				return nil, nil
			}
			// 同時に別のリクエストが登録した
			return &model.Subscriber{ID: "other-request", Email: email, SubscribedAt: time.Now()}, nil
		},
		createFn: func(_ context.Context, _ *model.Subscriber) error {
			return repository.ErrDuplicate
		},
	}
	svc := NewService(repo, fastRetry(), nil)

	_, err := svc.Subscribe(context.Background(), "trader@example.com", "")
	assertCode(t, err, model.ErrCodeAlreadySubscribed)
}
