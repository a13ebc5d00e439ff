package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/tradedesk/internal/model"
)

// PostgresSubscriberRepo はPostgreSQLを使用したニュースレター購読者リポジトリ。
type PostgresSubscriberRepo struct {
	db *sql.DB
}

// NewPostgresSubscriberRepo はPostgresSubscriberRepoを生成する。
func NewPostgresSubscriberRepo(db *sql.DB) *PostgresSubscriberRepo {
	return &PostgresSubscriberRepo{db: db}
}

const subscriberColumns = `id, email, source, unsubscribe_token, subscribed_at, unsubscribed_at`

// FindByEmail はメールアドレスで購読者を検索する。見つからない場合はnilを返す。
func (r *PostgresSubscriberRepo) FindByEmail(ctx context.Context, email string) (*model.Subscriber, error) {
	sub, err := scanSubscriber(r.db.QueryRowContext(ctx,
		`SELECT `+subscriberColumns+` FROM newsletter_subscribers WHERE email = $1`,
		email,
	))
	if err != nil {
		return nil, fmt.Errorf("メールアドレスによる購読者の検索に失敗しました: %w", err)
	}
	return sub, nil
}

// FindByToken は解除トークンで購読者を検索する。見つからない場合はnilを返す。
func (r *PostgresSubscriberRepo) FindByToken(ctx context.Context, token string) (*model.Subscriber, error) {
	sub, err := scanSubscriber(r.db.QueryRowContext(ctx,
		`SELECT `+subscriberColumns+` FROM newsletter_subscribers WHERE unsubscribe_token = $1`,
		token,
	))
	if err != nil {
		return nil, fmt.Errorf("トークンによる購読者の検索に失敗しました: %w", err)
	}
	return sub, nil
}

// Create は購読者を作成する。
func (r *PostgresSubscriberRepo) Create(ctx context.Context, sub *model.Subscriber) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO newsletter_subscribers (id, email, source, unsubscribe_token, subscribed_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		sub.ID, sub.Email, sub.Source, sub.UnsubscribeToken, sub.SubscribedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("購読者の作成に失敗しました: %w", err)
	}
	return nil
}

// Reactivate は解除済みの購読者を再度有効にする。
func (r *PostgresSubscriberRepo) Reactivate(ctx context.Context, id, source string, at time.Time) error {
	return r.execOne(ctx, "購読者の再登録",
		`UPDATE newsletter_subscribers
		 SET source = $2, subscribed_at = $3, unsubscribed_at = NULL
		 WHERE id = $1`,
		id, source, at,
	)
}

// MarkUnsubscribed は購読者を解除済みにする。
func (r *PostgresSubscriberRepo) MarkUnsubscribed(ctx context.Context, id string, at time.Time) error {
	return r.execOne(ctx, "購読の解除",
		`UPDATE newsletter_subscribers SET unsubscribed_at = $2 WHERE id = $1`,
		id, at,
	)
}

// DeleteUnsubscribedBefore はbefore以前に解除された購読者を削除し、削除件数を返す。
func (r *PostgresSubscriberRepo) DeleteUnsubscribedBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM newsletter_subscribers WHERE unsubscribed_at IS NOT NULL AND unsubscribed_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("解除済み購読者の削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}
	return n, nil
}

// execOne は1行だけを更新するクエリを実行する。対象行がない場合はエラーを返す。
func (r *PostgresSubscriberRepo) execOne(ctx context.Context, label, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%sに失敗しました: %w", label, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("購読者が見つかりません: %v", args[0])
	}
	return nil
}

// scanSubscriber は1行を読み取る。行がない場合は(nil, nil)を返す。
func scanSubscriber(row *sql.Row) (*model.Subscriber, error) {
	sub := &model.Subscriber{}
	var unsubscribedAt sql.NullTime
	err := row.Scan(&sub.ID, &sub.Email, &sub.Source, &sub.UnsubscribeToken, &sub.SubscribedAt, &unsubscribedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if unsubscribedAt.Valid {
		t := unsubscribedAt.Time
		sub.UnsubscribedAt = &t
	}
	return sub, nil
}
