// Package ratelimit は識別子ごとの固定ウィンドウ方式レート制限を提供する。
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// Config は固定ウィンドウの設定。
type Config struct {
	MaxRequests int           // 1ウィンドウあたりの許容リクエスト数
	Window      time.Duration // ウィンドウ長
}

// DefaultConfig は1分あたり10リクエストの設定を返す。
func DefaultConfig() Config {
	return Config{
		MaxRequests: 10,
		Window:      time.Minute,
	}
}

// Decision はレート制限の判定結果。
type Decision struct {
	Allowed bool
	Count   int       // 現在のウィンドウで観測したリクエスト数
	Limit   int       // ウィンドウあたりの上限
	ResetAt time.Time // カウントが0に戻る時刻
}

// RetryAfterSeconds はResetAtまでの秒数を切り上げで返す。最小1秒。
func (d Decision) RetryAfterSeconds(now time.Time) int {
	sec := int(math.Ceil(d.ResetAt.Sub(now).Seconds()))
	if sec < 1 {
		return 1
	}
	return sec
}

// Limiter は識別子ごとのレート制限判定のインターフェース。
// 単一プロセス用のMemoryLimiterと、複数インスタンスで状態を共有する
// repository.PostgresRateLimitRepoが実装する。
type Limiter interface {
	Allow(ctx context.Context, identity string) (Decision, error)
}

// entry は識別子ごとのカウンタ。
type entry struct {
	count         int
	windowResetAt time.Time
}

// MemoryLimiter はプロセス内マップによる固定ウィンドウ制限。
// エントリは明示的に削除しない。再起動で全員のカウントがリセットされる。
type MemoryLimiter struct {
	config Config
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

// NewMemoryLimiter はMemoryLimiterを生成する。
func NewMemoryLimiter(config Config) *MemoryLimiter {
	return &MemoryLimiter{
		config:  config,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Allow はidentityのリクエストを1件数え、許可するかを判定する。
// ウィンドウ内の最初のリクエストでcount=1とし、ResetAt=now+Windowを設定する。
// countが上限を超えるとAllowed=falseとなる。ResetAt経過後の最初のリクエストで新しいウィンドウを開始する。
func (l *MemoryLimiter) Allow(_ context.Context, identity string) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[identity]
	if !ok || !now.Before(e.windowResetAt) {
		e = &entry{count: 0, windowResetAt: now.Add(l.config.Window)}
		l.entries[identity] = e
	}
	e.count++

	return Decision{
		Allowed: e.count <= l.config.MaxRequests,
		Count:   e.count,
		Limit:   l.config.MaxRequests,
		ResetAt: e.windowResetAt,
	}, nil
}

// Len は管理しているエントリ数を返す。テスト用。
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// compile-time interface check
var _ Limiter = (*MemoryLimiter)(nil)
