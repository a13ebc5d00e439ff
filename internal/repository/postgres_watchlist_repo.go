package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/tradedesk/internal/model"
)

// PostgresWatchlistRepo はPostgreSQLを使用したウォッチリストリポジトリ。
// ティッカーはTEXT[]列に順序を保って格納する。
type PostgresWatchlistRepo struct {
	db *sql.DB
}

// NewPostgresWatchlistRepo はPostgresWatchlistRepoを生成する。
func NewPostgresWatchlistRepo(db *sql.DB) *PostgresWatchlistRepo {
	return &PostgresWatchlistRepo{db: db}
}

// ListByUserID はユーザーのウォッチリスト一覧を作成日時の昇順で返す。
func (r *PostgresWatchlistRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Watchlist, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, tickers, created_at, updated_at
		 FROM watchlists WHERE user_id = $1 ORDER BY created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("ウォッチリスト一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var lists []*model.Watchlist
	for rows.Next() {
		w := &model.Watchlist{}
		if err := rows.Scan(&w.ID, &w.UserID, &w.Name, pq.Array(&w.Tickers), &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ウォッチリスト行の読み取りに失敗しました: %w", err)
		}
		lists = append(lists, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ウォッチリスト一覧の走査に失敗しました: %w", err)
	}
	return lists, nil
}

// FindByID は指定IDのウォッチリストを取得する。見つからない場合はnilを返す。
func (r *PostgresWatchlistRepo) FindByID(ctx context.Context, id string) (*model.Watchlist, error) {
	w := &model.Watchlist{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, tickers, created_at, updated_at
		 FROM watchlists WHERE id = $1`,
		id,
	).Scan(&w.ID, &w.UserID, &w.Name, pq.Array(&w.Tickers), &w.CreatedAt, &w.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ウォッチリストの取得に失敗しました: %w", err)
	}
	return w, nil
}

// Create はウォッチリストを作成する。
func (r *PostgresWatchlistRepo) Create(ctx context.Context, w *model.Watchlist) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO watchlists (id, user_id, name, tickers, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		w.ID, w.UserID, w.Name, pq.Array(nonNilStrings(w.Tickers)), w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ウォッチリストの作成に失敗しました: %w", err)
	}
	return nil
}

// Update は名前とティッカーを上書き更新する。
func (r *PostgresWatchlistRepo) Update(ctx context.Context, w *model.Watchlist) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE watchlists SET name = $2, tickers = $3, updated_at = $4 WHERE id = $1`,
		w.ID, w.Name, pq.Array(nonNilStrings(w.Tickers)), w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ウォッチリストの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("ウォッチリストが見つかりません: %s", w.ID)
	}
	return nil
}

// Delete は指定IDのウォッチリストを削除する。
func (r *PostgresWatchlistRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM watchlists WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ウォッチリストの削除に失敗しました: %w", err)
	}
	return nil
}

// DeleteByUserID はユーザーの全ウォッチリストを削除する。
func (r *PostgresWatchlistRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM watchlists WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("ユーザーのウォッチリスト一括削除に失敗しました: %w", err)
	}
	return nil
}

// nonNilStrings はnilスライスを空スライスに置き換える。
// TEXT[] NOT NULL列にNULLを書き込まないために使う。
func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
