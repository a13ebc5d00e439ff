// Package resilience はストレージやLLMなど不安定な上流呼び出しを包む共通処理を提供する。
// 指数バックオフ付きリトライと、リクエストボディの検証を含む。
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultMaxAttempts はリトライの既定最大試行回数。
	DefaultMaxAttempts = 3
	// DefaultInitialDelay は指数バックオフの既定初回遅延。
	DefaultInitialDelay = 1 * time.Second
	// maxBackoffShift はシフト演算のオーバーフローを防ぐ上限。
	maxBackoffShift = 30
)

// RetryConfig はWithRetryの動作設定。
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration

	// OnRetry は失敗後、次の試行を待つ直前に呼ばれる。ログやメトリクス用。nilでもよい。
	OnRetry func(Attempt)
	// OnGiveUp は全試行の失敗、または恒久エラーで打ち切る時に1回だけ呼ばれる。nilでもよい。
	OnGiveUp func(Attempt)
}

// DefaultRetryConfig は最大3回、初回1秒の設定を返す。
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
	}
}

// Attempt は1回の失敗した試行の記録。呼び出しスタック上にのみ存在する。
type Attempt struct {
	Operation   string
	Number      int // 1始まり
	MaxAttempts int
	LastError   error
	NextDelay   time.Duration
}

// RetryError は全試行が失敗した（または恒久エラーで打ち切った）ことを表す。
// Errには最後の試行のエラーを保持する。
type RetryError struct {
	Operation string
	Attempts  int
	Err       error
}

// Error はerrorインターフェースを実装する。
func (e *RetryError) Error() string {
	return fmt.Sprintf("%s failed (attempt %d): %v", e.Operation, e.Attempts, e.Err)
}

// Unwrap は最後の試行のエラーを返す。
func (e *RetryError) Unwrap() error {
	return e.Err
}

// permanentError はリトライしても回復しないエラーの印。
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent はerrをリトライ不可としてマークする。
// WithRetryはこの印のあるエラーを受け取ると即座に打ち切る。
// 印のないエラーはすべて一時的なものとして扱われる。
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent はerrがPermanentでマークされているかを返す。
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// CalculateBackoff はattempt回目（1始まり）の失敗後に待つ時間を返す。
// initialDelay * 2^(attempt-1)。ジッターは付けない。
func CalculateBackoff(initialDelay time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	shift := attempt - 1
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	return initialDelay * time.Duration(1<<shift)
}

// WithRetry はopを最大cfg.MaxAttempts回まで実行し、最初の成功結果を返す。
// 失敗のたびにCalculateBackoffの時間だけ待ってから再実行する。
// 全試行が失敗した場合は最後のエラーを操作名付きのRetryErrorで包んで返す。
//
// opは冪等であること。非冪等な作成処理は呼び出し側で重複確認してから実行する。
// 待機中にctxがキャンセルされた場合はその時点で打ち切る。
func WithRetry[T any](ctx context.Context, operation string, cfg RetryConfig, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if IsPermanent(err) {
			cfg.giveUp(operation, attempt, maxAttempts, err)
			return zero, &RetryError{Operation: operation, Attempts: attempt, Err: err}
		}
		if attempt == maxAttempts {
			break
		}

		delay := CalculateBackoff(cfg.InitialDelay, attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(Attempt{
				Operation:   operation,
				Number:      attempt,
				MaxAttempts: maxAttempts,
				LastError:   err,
				NextDelay:   delay,
			})
		}

		if err := sleep(ctx, delay); err != nil {
			return zero, &RetryError{Operation: operation, Attempts: attempt, Err: fmt.Errorf("%w (last error: %v)", err, lastErr)}
		}
	}

	cfg.giveUp(operation, maxAttempts, maxAttempts, lastErr)
	return zero, &RetryError{Operation: operation, Attempts: maxAttempts, Err: lastErr}
}

func (cfg RetryConfig) giveUp(operation string, attempt, maxAttempts int, err error) {
	if cfg.OnGiveUp == nil {
		return
	}
	cfg.OnGiveUp(Attempt{
		Operation:   operation,
		Number:      attempt,
		MaxAttempts: maxAttempts,
		LastError:   err,
	})
}

// sleep はdだけ待つ。ctxがキャンセルされた場合はctx.Err()を返す。
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
