package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/docmind/internal/model"
)

// MemoryJobStore 进程内任务存储，用于单实例部署与测试。
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
}

// NewMemoryJobStore 创建进程内任务存储。
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*model.Job)}
}

func (s *MemoryJobStore) Create(_ context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, jobID string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *MemoryJobStore) Update(_ context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return ErrNotFound
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *MemoryJobStore) Latest(_ context.Context, entityID string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *model.Job
	for _, job := range s.jobs {
		if job.EntityID != entityID {
			continue
		}
		if latest == nil || job.UpdatedAt.After(latest.UpdatedAt) {
			latest = job
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

// RedisJobStore 以 Redis 保存任务状态，进程重启与多实例间共享。
//
//	<prefix>job:<id>              任务 JSON
//	<prefix>entity:<entity>:jobs  按 updated_at 排序的任务集合
type RedisJobStore struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisJobStore 创建 Redis 任务存储，ttl <= 0 表示不过期。
func NewRedisJobStore(rdb goredis.UniversalClient, prefix string, ttl time.Duration) *RedisJobStore {
	if prefix == "" {
		prefix = "docmind:"
	}
	return &RedisJobStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisJobStore) jobKey(id string) string {
	return s.prefix + "job:" + id
}

func (s *RedisJobStore) entityKey(entity string) string {
	return s.prefix + "entity:" + entity + ":jobs"
}

func (s *RedisJobStore) Create(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, s.jobKey(job.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	if !ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	return s.index(ctx, job)
}

func (s *RedisJobStore) Get(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.rdb.Get(ctx, s.jobKey(jobID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return &job, nil
}

func (s *RedisJobStore) Update(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetXX(ctx, s.jobKey(job.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return s.index(ctx, job)
}

func (s *RedisJobStore) index(ctx context.Context, job *model.Job) error {
	key := s.entityKey(job.EntityID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZAdd(ctx, key, goredis.Z{
			Score:  float64(job.UpdatedAt.UnixMilli()),
			Member: job.ID,
		})
		// 集合随最近一次写入续期，不会比其中最新的任务活得更久
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("index job: %w", err)
	}
	return nil
}

// Latest 返回实体最近更新的任务。任务键已过期的成员会被移出集合。
func (s *RedisJobStore) Latest(ctx context.Context, entityID string) (*model.Job, error) {
	key := s.entityKey(entityID)
	for {
		ids, err := s.rdb.ZRevRange(ctx, key, 0, 0).Result()
		if err != nil {
			return nil, fmt.Errorf("latest job: %w", err)
		}
		if len(ids) == 0 {
			return nil, ErrNotFound
		}
		job, err := s.Get(ctx, ids[0])
		if !errors.Is(err, ErrNotFound) {
			return job, err
		}
		if err := s.rdb.ZRem(ctx, key, ids[0]).Err(); err != nil {
			return nil, fmt.Errorf("drop stale job: %w", err)
		}
	}
}

var (
	_ JobStore = (*MemoryJobStore)(nil)
	_ JobStore = (*RedisJobStore)(nil)
)
