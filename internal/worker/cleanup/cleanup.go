// Package cleanup は不要になった行の定期削除ジョブを提供する。
// 期限切れのレート制限エントリと、保持期間を過ぎた解除済みの購読者を削除する。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetention は解除済み購読者の既定保持期間。
const DefaultRetention = 30 * 24 * time.Hour

// RateLimitCleaner は期限切れのレート制限エントリを削除するインターフェース。
type RateLimitCleaner interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SubscriberCleaner は解除済み購読者を削除するインターフェース。
type SubscriberCleaner interface {
	DeleteUnsubscribedBefore(ctx context.Context, before time.Time) (int64, error)
}

// Result は1回のクリーンアップで削除した件数。
type Result struct {
	RateLimits  int64
	Subscribers int64
}

// CleanupJob は定期削除ジョブ。削除はすべて冪等で、対象がなくてもエラーにならない。
type CleanupJob struct {
	rateLimits  RateLimitCleaner
	subscribers SubscriberCleaner
	logger      *slog.Logger
	now         func() time.Time

	Retention time.Duration // 解除済み購読者の保持期間（デフォルト: 30日）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// rateLimitsはレート制限をメモリで持つ構成ではnilでもよい。
func NewCleanupJob(rateLimits RateLimitCleaner, subscribers SubscriberCleaner, logger *slog.Logger) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		rateLimits:  rateLimits,
		subscribers: subscribers,
		logger:      logger,
		now:         time.Now,
		Retention:   DefaultRetention,
	}
}

// Run はクリーンアップを1回実行する。
// 片方の削除が失敗してももう片方は実行し、エラーはまとめて返す。
func (j *CleanupJob) Run(ctx context.Context) (Result, error) {
	start := j.now()
	var res Result
	var errs []error

	if j.rateLimits != nil {
		n, err := j.rateLimits.DeleteExpired(ctx, start)
		if err != nil {
			j.logger.Error("レート制限エントリの削除に失敗しました",
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("レート制限エントリの削除に失敗しました: %w", err))
		}
		res.RateLimits = n
	}

	if j.subscribers != nil {
		before := start.Add(-j.Retention)
		n, err := j.subscribers.DeleteUnsubscribedBefore(ctx, before)
		if err != nil {
			j.logger.Error("解除済み購読者の削除に失敗しました",
				slog.String("error", err.Error()),
				slog.Time("before", before),
			)
			errs = append(errs, fmt.Errorf("解除済み購読者の削除に失敗しました: %w", err))
		}
		res.Subscribers = n
	}

	if len(errs) > 0 {
		return res, errors.Join(errs...)
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("rate_limits_deleted", res.RateLimits),
		slog.Int64("subscribers_deleted", res.Subscribers),
		slog.Duration("retention", j.Retention),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return res, nil
}

// Start はinterval間隔でRunを繰り返す。起動直後に1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("クリーンアップジョブを開始しました",
		slog.Duration("interval", interval),
	)

	j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}
