package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/tradedesk/internal/model"
)

// PostgresSavedIdeaRepo はPostgreSQLを使用した保存済みアイデアリポジトリ。
type PostgresSavedIdeaRepo struct {
	db *sql.DB
}

// NewPostgresSavedIdeaRepo はPostgresSavedIdeaRepoを生成する。
func NewPostgresSavedIdeaRepo(db *sql.DB) *PostgresSavedIdeaRepo {
	return &PostgresSavedIdeaRepo{db: db}
}

const savedIdeaColumns = `id, user_id, idea_id, theme, tickers, note, created_at, updated_at`

// ListByUserID はユーザーの保存済みアイデアを保存日時の降順で返す。
func (r *PostgresSavedIdeaRepo) ListByUserID(ctx context.Context, userID string) ([]*model.SavedIdea, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+savedIdeaColumns+` FROM saved_ideas WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("保存済みアイデア一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var out []*model.SavedIdea
	for rows.Next() {
		s := &model.SavedIdea{}
		if err := rows.Scan(&s.ID, &s.UserID, &s.IdeaID, &s.Theme, &s.Tickers, &s.Note, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("保存済みアイデア行の読み取りに失敗しました: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("保存済みアイデア一覧の走査に失敗しました: %w", err)
	}
	return out, nil
}

// FindByID は指定IDの保存済みアイデアを取得する。見つからない場合はnilを返す。
func (r *PostgresSavedIdeaRepo) FindByID(ctx context.Context, id string) (*model.SavedIdea, error) {
	s, err := scanSavedIdea(r.db.QueryRowContext(ctx,
		`SELECT `+savedIdeaColumns+` FROM saved_ideas WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("保存済みアイデアの取得に失敗しました: %w", err)
	}
	return s, nil
}

// FindByUserAndIdea はユーザーIDとアイデアIDで検索する。見つからない場合はnilを返す。
func (r *PostgresSavedIdeaRepo) FindByUserAndIdea(ctx context.Context, userID string, ideaID int64) (*model.SavedIdea, error) {
	s, err := scanSavedIdea(r.db.QueryRowContext(ctx,
		`SELECT `+savedIdeaColumns+` FROM saved_ideas WHERE user_id = $1 AND idea_id = $2`,
		userID, ideaID,
	))
	if err != nil {
		return nil, fmt.Errorf("ユーザーとアイデアによる保存済みアイデアの検索に失敗しました: %w", err)
	}
	return s, nil
}

// Create は保存済みアイデアを作成する。
func (r *PostgresSavedIdeaRepo) Create(ctx context.Context, s *model.SavedIdea) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO saved_ideas (id, user_id, idea_id, theme, tickers, note, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.UserID, s.IdeaID, s.Theme, s.Tickers, s.Note, s.CreatedAt, s.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("保存済みアイデアの作成に失敗しました: %w", err)
	}
	return nil
}

// UpdateNote はメモを更新する。
func (r *PostgresSavedIdeaRepo) UpdateNote(ctx context.Context, id, note string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE saved_ideas SET note = $2, updated_at = NOW() WHERE id = $1`,
		id, note,
	)
	if err != nil {
		return fmt.Errorf("メモの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("保存済みアイデアが見つかりません: %s", id)
	}
	return nil
}

// Delete は指定IDの保存済みアイデアを削除する。
func (r *PostgresSavedIdeaRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM saved_ideas WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("保存済みアイデアの削除に失敗しました: %w", err)
	}
	return nil
}

// DeleteByUserID はユーザーの全保存済みアイデアを削除する。
func (r *PostgresSavedIdeaRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM saved_ideas WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの保存済みアイデア一括削除に失敗しました: %w", err)
	}
	return nil
}

// scanSavedIdea は1行を読み取る。行がない場合は(nil, nil)を返す。
func scanSavedIdea(row *sql.Row) (*model.SavedIdea, error) {
	s := &model.SavedIdea{}
	err := row.Scan(&s.ID, &s.UserID, &s.IdeaID, &s.Theme, &s.Tickers, &s.Note, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
