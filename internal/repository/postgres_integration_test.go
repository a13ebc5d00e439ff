package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/tradedesk/internal/ideas"
	"github.com/hitoshi/tradedesk/internal/model"
	"github.com/hitoshi/tradedesk/internal/ratelimit"
)

func TestPostgresIdeaRepo_ListRecentAndNormalize(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewPostgresIdeaRepo(db)

	base := time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC)
	_, err := db.ExecContext(ctx,
		`INSERT INTO trading_ideas (id, created_at, theme, analysis, tickers) VALUES
		 (100, $1, '', $2, $3),
		 (200, $4, 'Ignored single', 'plain', 'AMD')`,
		base,
		"IDEA 1 - Tech Momentum\nStrong breakout.\n---\nIDEA 2 - EV Weakness\nMixed signals.",
		"AAPL, NVDA\n---\n,TSLA, RIVN",
		base.Add(-time.Hour),
	)
	require.NoError(t, err)

	rows, err := repo.ListRecent(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(100), rows[0].ID, "created_at降順")

	out := ideas.Normalize(rows)
	require.Len(t, out, 2)
	assert.Equal(t, "Tech Momentum", out[0].Theme)
	assert.Equal(t, "TSLA, RIVN", out[1].Tickers)

	ranged, err := repo.ListByIDRange(ctx, 50, 150)
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, int64(100), ranged[0].ID)
}

func TestPostgresSubscriberRepo_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewPostgresSubscriberRepo(db)

	now := time.Now().UTC().Truncate(time.Microsecond)
	sub := &model.Subscriber{
		ID:               uuid.New().String(),
		Email:            "reader@example.com",
		Source:           "landing",
		UnsubscribeToken: uuid.New().String(),
		SubscribedAt:     now,
	}
	require.NoError(t, repo.Create(ctx, sub))

	dup := *sub
	dup.ID = uuid.New().String()
	dup.UnsubscribeToken = uuid.New().String()
	require.ErrorIs(t, repo.Create(ctx, &dup), ErrDuplicate)

	found, err := repo.FindByEmail(ctx, "reader@example.com")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, found.Active())

	missing, err := repo.FindByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.MarkUnsubscribed(ctx, sub.ID, now))
	byToken, err := repo.FindByToken(ctx, sub.UnsubscribeToken)
	require.NoError(t, err)
	require.NotNil(t, byToken)
	assert.False(t, byToken.Active())

	n, err := repo.DeleteUnsubscribedBefore(ctx, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPostgresWatchlistRepo_CRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewPostgresWatchlistRepo(db)

	userID := uuid.New().String()
	now := time.Now().UTC()
	w := &model.Watchlist{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      "Semis",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.Create(ctx, w))

	w.Tickers = []string{"NVDA", "AMD"}
	w.Name = "Chips"
	require.NoError(t, repo.Update(ctx, w))

	got, err := repo.FindByID(ctx, w.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Chips", got.Name)
	assert.Equal(t, []string{"NVDA", "AMD"}, got.Tickers)

	lists, err := repo.ListByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, lists, 1)

	require.NoError(t, repo.DeleteByUserID(ctx, userID))
	got, err = repo.FindByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPostgresSavedIdeaRepo_CRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewPostgresSavedIdeaRepo(db)

	userID := uuid.New().String()
	now := time.Now().UTC()
	s := &model.SavedIdea{
		ID:        uuid.New().String(),
		UserID:    userID,
		IdeaID:    101,
		Theme:     "EV Weakness",
		Tickers:   "TSLA, RIVN",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.Create(ctx, s))

	again := *s
	again.ID = uuid.New().String()
	require.ErrorIs(t, repo.Create(ctx, &again), ErrDuplicate, "同じユーザーとアイデアの組は一意")

	found, err := repo.FindByUserAndIdea(ctx, userID, 101)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, s.ID, found.ID)

	require.NoError(t, repo.UpdateNote(ctx, s.ID, "watch earnings"))
	found, err = repo.FindByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "watch earnings", found.Note)

	require.Error(t, repo.UpdateNote(ctx, uuid.New().String(), "x"), "存在しないIDの更新はエラー")

	require.NoError(t, repo.Delete(ctx, s.ID))
	list, err := repo.ListByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPostgresProfileRepo_Upsert(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewPostgresProfileRepo(db)

	userID := uuid.New().String()
	p := &model.Profile{UserID: userID, DisplayName: "Trader", RiskProfile: model.RiskAggressive, UpdatedAt: time.Now().UTC()}
	require.NoError(t, repo.Upsert(ctx, p))
	created := p.CreatedAt

	p.RiskProfile = model.RiskConservative
	p.UpdatedAt = time.Now().UTC().Add(time.Minute)
	require.NoError(t, repo.Upsert(ctx, p))

	got, err := repo.FindByUserID(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.RiskConservative, got.RiskProfile)
	assert.True(t, got.CreatedAt.Equal(created), "created_atは維持される")

	require.NoError(t, repo.DeleteByUserID(ctx, userID))
	got, err = repo.FindByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPostgresRateLimitRepo_FixedWindow(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	repo := NewPostgresRateLimitRepo(db, ratelimit.Config{MaxRequests: 3, Window: time.Minute})
	clock := time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return clock }

	for i := 1; i <= 3; i++ {
		d, err := repo.Allow(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, i, d.Count)
	}

	d, err := repo.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.True(t, d.ResetAt.Equal(clock.Add(time.Minute)))

	clock = clock.Add(time.Minute)
	d, err = repo.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "ウィンドウ経過後は許可される")
	assert.Equal(t, 1, d.Count)

	n, err := repo.DeleteExpired(ctx, clock.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPostgresRateLimitRepo_ConcurrentRequestsNeverExceedCeiling(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewPostgresRateLimitRepo(db, ratelimit.Config{MaxRequests: 10, Window: time.Hour})

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := repo.Allow(ctx, "burst")
			if err != nil {
				return
			}
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, allowed)
}
