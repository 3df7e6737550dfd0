package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docmind/internal/model"
)

func newRedisJobStore(t *testing.T) (*RedisJobStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisJobStore(rdb, "test:", time.Hour), mr
}

func TestJobStores(t *testing.T) {
	stores := map[string]func(t *testing.T) JobStore{
		"memory": func(*testing.T) JobStore { return NewMemoryJobStore() },
		"redis": func(t *testing.T) JobStore {
			s, _ := newRedisJobStore(t)
			return s
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			base := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

			_, err := s.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.Latest(ctx, "acme")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, s.Update(ctx, &model.Job{ID: "missing"}), ErrNotFound)

			first := &model.Job{ID: "j1", EntityID: "acme", Status: model.JobQueued, CreatedAt: base, UpdatedAt: base}
			second := &model.Job{ID: "j2", EntityID: "acme", Status: model.JobQueued, CreatedAt: base, UpdatedAt: base.Add(time.Minute)}
			require.NoError(t, s.Create(ctx, first))
			require.NoError(t, s.Create(ctx, second))
			assert.Error(t, s.Create(ctx, first), "duplicate id")

			latest, err := s.Latest(ctx, "acme")
			require.NoError(t, err)
			assert.Equal(t, "j2", latest.ID)

			first.Status = model.JobDone
			first.Summary = "résumé"
			first.UpdatedAt = base.Add(time.Hour)
			require.NoError(t, s.Update(ctx, first))

			got, err := s.Get(ctx, "j1")
			require.NoError(t, err)
			assert.Equal(t, model.JobDone, got.Status)
			assert.Equal(t, "résumé", got.Summary)

			latest, err = s.Latest(ctx, "acme")
			require.NoError(t, err)
			assert.Equal(t, "j1", latest.ID)

			_, err = s.Latest(ctx, "other")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestMemoryJobStoreCopies(t *testing.T) {
	s := NewMemoryJobStore()
	ctx := context.Background()
	job := &model.Job{ID: "j1", EntityID: "acme", Status: model.JobQueued}
	require.NoError(t, s.Create(ctx, job))

	job.Status = model.JobFailed
	got, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.JobQueued, got.Status)

	got.Status = model.JobDone
	again, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.JobQueued, again.Status)
}

func TestRedisJobStoreTTL(t *testing.T) {
	s, mr := newRedisJobStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &model.Job{ID: "j1", EntityID: "acme"}))

	assert.Equal(t, time.Hour, mr.TTL("test:job:j1"))
	mr.FastForward(2 * time.Hour)

	_, err := s.Get(ctx, "j1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisJobStoreCorrupt(t *testing.T) {
	s, mr := newRedisJobStore(t)
	require.NoError(t, mr.Set("test:job:bad", "{not json"))

	_, err := s.Get(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestRedisJobStoreLatestDropsExpired(t *testing.T) {
	s, mr := newRedisJobStore(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, s.Create(ctx, &model.Job{ID: "old", EntityID: "acme", UpdatedAt: now.Add(-time.Minute)}))
	require.NoError(t, s.Create(ctx, &model.Job{ID: "new", EntityID: "acme", UpdatedAt: now}))
	assert.Equal(t, time.Hour, mr.TTL("test:entity:acme:jobs"))

	// 最新任务的键单独过期，集合里仍留着它的成员
	mr.Del("test:job:new")

	latest, err := s.Latest(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "old", latest.ID)

	members, err := mr.ZMembers("test:entity:acme:jobs")
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, members)

	t.Run("全部过期", func(t *testing.T) {
		mr.Del("test:job:old")
		_, err := s.Latest(ctx, "acme")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.False(t, mr.Exists("test:entity:acme:jobs"))
	})

	t.Run("集合随任务一起过期", func(t *testing.T) {
		require.NoError(t, s.Create(ctx, &model.Job{ID: "j2", EntityID: "beta", UpdatedAt: now}))
		mr.FastForward(2 * time.Hour)
		assert.False(t, mr.Exists("test:entity:beta:jobs"))
		_, err := s.Latest(ctx, "beta")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
