// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/tradedesk/internal/model"
)

// IdeaRepository はtrading_ideasテーブルの読み取りインターフェース。
// 書き込みは外部の生成ジョブが行うため、このシステムは読み取りのみを行う。
type IdeaRepository interface {
	// ListRecent は作成日時の降順でアイデア行を返す。
	ListRecent(ctx context.Context, limit, offset int) ([]model.RawIdeaRow, error)

	// ListByIDRange はminID以上maxID以下のIDを持つ行を返す。
	ListByIDRange(ctx context.Context, minID, maxID int64) ([]model.RawIdeaRow, error)
}

// SubscriberRepository はニュースレター購読者の永続化インターフェース。
type SubscriberRepository interface {
	// FindByEmail はメールアドレスで購読者を検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Subscriber, error)

	// FindByToken は解除トークンで購読者を検索する。見つからない場合はnilを返す。
	FindByToken(ctx context.Context, token string) (*model.Subscriber, error)

	// Create は購読者を作成する。
	Create(ctx context.Context, subscriber *model.Subscriber) error

	// Reactivate は解除済みの購読者を再度有効にする。
	Reactivate(ctx context.Context, id, source string, at time.Time) error

	// MarkUnsubscribed は購読者を解除済みにする。
	MarkUnsubscribed(ctx context.Context, id string, at time.Time) error

	// DeleteUnsubscribedBefore はbefore以前に解除された購読者を削除し、削除件数を返す。
	DeleteUnsubscribedBefore(ctx context.Context, before time.Time) (int64, error)
}

// WatchlistRepository はウォッチリストの永続化インターフェース。
type WatchlistRepository interface {
	// ListByUserID はユーザーのウォッチリスト一覧を作成日時の昇順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Watchlist, error)

	// FindByID は指定IDのウォッチリストを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Watchlist, error)

	// Create はウォッチリストを作成する。
	Create(ctx context.Context, watchlist *model.Watchlist) error

	// Update は名前とティッカーを上書き更新する。
	Update(ctx context.Context, watchlist *model.Watchlist) error

	// Delete は指定IDのウォッチリストを削除する。
	Delete(ctx context.Context, id string) error

	// DeleteByUserID はユーザーの全ウォッチリストを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// SavedIdeaRepository は保存済みアイデアの永続化インターフェース。
type SavedIdeaRepository interface {
	// ListByUserID はユーザーの保存済みアイデアを保存日時の降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.SavedIdea, error)

	// FindByID は指定IDの保存済みアイデアを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.SavedIdea, error)

	// FindByUserAndIdea はユーザーIDとアイデアIDで検索する。見つからない場合はnilを返す。
	FindByUserAndIdea(ctx context.Context, userID string, ideaID int64) (*model.SavedIdea, error)

	// Create は保存済みアイデアを作成する。
	Create(ctx context.Context, saved *model.SavedIdea) error

	// UpdateNote はメモを更新する。
	UpdateNote(ctx context.Context, id, note string) error

	// Delete は指定IDの保存済みアイデアを削除する。
	Delete(ctx context.Context, id string) error

	// DeleteByUserID はユーザーの全保存済みアイデアを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// ProfileRepository はプロフィールの永続化インターフェース。
type ProfileRepository interface {
	// FindByUserID はユーザーのプロフィールを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Profile, error)

	// Upsert はプロフィールを作成または更新する。
	Upsert(ctx context.Context, profile *model.Profile) error

	// DeleteByUserID はユーザーのプロフィールを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// RateLimitCleaner は期限切れのレート制限エントリの削除インターフェース。
type RateLimitCleaner interface {
	// DeleteExpired はウィンドウが終了したエントリを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
