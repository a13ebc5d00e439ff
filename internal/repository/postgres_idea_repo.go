package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/tradedesk/internal/model"
)

// PostgresIdeaRepo はPostgreSQLを使用したアイデアリポジトリ。
type PostgresIdeaRepo struct {
	db *sql.DB
}

// NewPostgresIdeaRepo はPostgresIdeaRepoを生成する。
func NewPostgresIdeaRepo(db *sql.DB) *PostgresIdeaRepo {
	return &PostgresIdeaRepo{db: db}
}

// ListRecent は作成日時の降順でアイデア行を返す。
func (r *PostgresIdeaRepo) ListRecent(ctx context.Context, limit, offset int) ([]model.RawIdeaRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, created_at, theme, analysis, tickers
		 FROM trading_ideas
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("アイデア一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanIdeaRows(rows)
}

// ListByIDRange はminID以上maxID以下のIDを持つ行を返す。
func (r *PostgresIdeaRepo) ListByIDRange(ctx context.Context, minID, maxID int64) ([]model.RawIdeaRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, created_at, theme, analysis, tickers
		 FROM trading_ideas
		 WHERE id BETWEEN $1 AND $2
		 ORDER BY id ASC`,
		minID, maxID,
	)
	if err != nil {
		return nil, fmt.Errorf("アイデアの範囲取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanIdeaRows(rows)
}

// scanIdeaRows はクエリ結果をRawIdeaRowのスライスに変換する。
// NULLのテキスト列は空文字として扱う。
func scanIdeaRows(rows *sql.Rows) ([]model.RawIdeaRow, error) {
	var out []model.RawIdeaRow
	for rows.Next() {
		var row model.RawIdeaRow
		var theme, analysis, tickers sql.NullString
		if err := rows.Scan(&row.ID, &row.CreatedAt, &theme, &analysis, &tickers); err != nil {
			return nil, fmt.Errorf("アイデア行の読み取りに失敗しました: %w", err)
		}
		row.Theme = theme.String
		row.Analysis = analysis.String
		row.Tickers = tickers.String
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("アイデア一覧の走査に失敗しました: %w", err)
	}
	return out, nil
}
