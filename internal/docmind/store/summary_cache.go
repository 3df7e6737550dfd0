package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/docmind/internal/model"
)

// CachedSummaryStore 在 SummaryStore 前加一层 Redis 缓存。
// 缓存读写失败只记录日志，结果以底层存储为准。
type CachedSummaryStore struct {
	inner  SummaryStore
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewCachedSummaryStore 创建带缓存的摘要存储。
func NewCachedSummaryStore(inner SummaryStore, rdb goredis.UniversalClient, prefix string, ttl time.Duration) *CachedSummaryStore {
	if prefix == "" {
		prefix = "docmind:"
	}
	return &CachedSummaryStore{inner: inner, rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *CachedSummaryStore) key(entityID, docIdentity string) string {
	return c.prefix + "summary:" + entityID + ":" + docIdentity
}

func (c *CachedSummaryStore) Get(ctx context.Context, entityID, docIdentity string) (*model.DocumentSummary, error) {
	key := c.key(entityID, docIdentity)
	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var s model.DocumentSummary
		if jerr := json.Unmarshal(data, &s); jerr == nil {
			return &s, nil
		}
		logger.Warnw("corrupt cached summary, deleting", "key", key)
		_ = c.rdb.Del(ctx, key).Err()
	case !errors.Is(err, goredis.Nil):
		logger.Warnw("summary cache read failed", "key", key, "error", err.Error())
	}

	s, err := c.inner.Get(ctx, entityID, docIdentity)
	if err != nil {
		return nil, err
	}
	c.store(ctx, s)
	return s, nil
}

func (c *CachedSummaryStore) Put(ctx context.Context, s *model.DocumentSummary) error {
	if err := c.inner.Put(ctx, s); err != nil {
		return err
	}
	c.store(ctx, s)
	return nil
}

func (c *CachedSummaryStore) store(ctx context.Context, s *model.DocumentSummary) {
	data, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, c.key(s.EntityID, s.DocIdentity), data, c.ttl).Err(); err != nil {
		logger.Warnw("summary cache write failed", "error", err.Error())
	}
}

var _ SummaryStore = (*CachedSummaryStore)(nil)
