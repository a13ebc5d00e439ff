package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/tradedesk/internal/ratelimit"
)

// PostgresRateLimitRepo はrate_limitsテーブルで固定ウィンドウのカウンタを共有するレート制限。
// 複数インスタンスで同じ上限を適用する場合に使う。
// 判定は1文のUPSERTで行うため、同一識別子への同時リクエストでも上限を超えて許可しない。
type PostgresRateLimitRepo struct {
	db     *sql.DB
	config ratelimit.Config
	now    func() time.Time
}

// NewPostgresRateLimitRepo はPostgresRateLimitRepoを生成する。
func NewPostgresRateLimitRepo(db *sql.DB, config ratelimit.Config) *PostgresRateLimitRepo {
	return &PostgresRateLimitRepo{
		db:     db,
		config: config,
		now:    time.Now,
	}
}

// Allow はidentityのリクエストを1件数え、許可するかを判定する。
// ウィンドウが終了している場合はcount=1から新しいウィンドウを開始する。
func (r *PostgresRateLimitRepo) Allow(ctx context.Context, identity string) (ratelimit.Decision, error) {
	now := r.now().UTC()
	resetAt := now.Add(r.config.Window)

	var count int
	var windowResetAt time.Time
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO rate_limits (identity, count, window_reset_at)
		 VALUES ($1, 1, $3)
		 ON CONFLICT (identity) DO UPDATE
		 SET count = CASE WHEN rate_limits.window_reset_at <= $2 THEN 1 ELSE rate_limits.count + 1 END,
		     window_reset_at = CASE WHEN rate_limits.window_reset_at <= $2 THEN $3 ELSE rate_limits.window_reset_at END
		 RETURNING count, window_reset_at`,
		identity, now, resetAt,
	).Scan(&count, &windowResetAt)
	if err != nil {
		return ratelimit.Decision{}, fmt.Errorf("レート制限カウンタの更新に失敗しました: %w", err)
	}

	return ratelimit.Decision{
		Allowed: count <= r.config.MaxRequests,
		Count:   count,
		Limit:   r.config.MaxRequests,
		ResetAt: windowResetAt,
	}, nil
}

// DeleteExpired はウィンドウが終了したエントリを削除し、削除件数を返す。
func (r *PostgresRateLimitRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM rate_limits WHERE window_reset_at < $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("期限切れレート制限エントリの削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}
	return n, nil
}
