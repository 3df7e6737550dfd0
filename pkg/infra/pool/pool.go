// Package pool wraps ants worker pools used to bound access to scarce backends.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/semaphore"
)

// Type defines the type of worker pool.
type Type string

const (
	// GenerationPool 生成服务调用池（槽位稀缺）
	GenerationPool Type = "generation"
)

// Config defines the configuration for the worker pool.
type Config struct {
	// Capacity 池容量（最大并发 goroutine 数）
	Capacity int
	// ExpiryDuration goroutine 空闲过期时间
	ExpiryDuration time.Duration
	// PreAlloc 是否预分配内存
	PreAlloc bool
	// Nonblocking 提交任务是否非阻塞（若池满则返回错误）
	Nonblocking bool
	// MaxBlockingTasks 当 Nonblocking=false 时，最大等待任务数（0 表示无限制）
	MaxBlockingTasks int
	// WaitWithContext 为 true 时调用方在 SubmitWithContext 中按 ctx 排队等待槽位
	WaitWithContext bool
	// PanicHandler 恐慌处理函数
	PanicHandler func(interface{})
}

// GenerationPoolConfig 返回生成调用池配置：少量槽位，调用方排队等待。
func GenerationPoolConfig(slots int) *Config {
	if slots <= 0 {
		slots = 2
	}
	return &Config{
		Capacity:        slots,
		ExpiryDuration:  60 * time.Second,
		PreAlloc:        true,
		Nonblocking:     false,
		WaitWithContext: true,
	}
}

// Pool represents a worker pool.
type Pool struct {
	name     string
	typ      Type
	pool     *ants.Pool
	slots    *semaphore.Weighted
	stats    poolStatsCounter
	closed   atomic.Bool
	closedMu sync.Mutex
}

type poolStatsCounter struct {
	SubmittedTasks  atomic.Int64
	CompletedTasks  atomic.Int64
	RejectedTasks   atomic.Int64
	PanicRecovered  atomic.Int64
	TotalWaitTimeNs atomic.Int64
}

// Stats contains statistics about the worker pool.
type Stats struct {
	SubmittedTasks  int64
	CompletedTasks  int64
	RejectedTasks   int64
	PanicRecovered  int64
	TotalWaitTimeNs int64
}

// NewPool creates a new worker pool with the given configuration.
func NewPool(name string, typ Type, config *Config) (*Pool, error) {
	if config == nil {
		return nil, ErrInvalidPoolConfig
	}
	if config.Capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive", ErrInvalidPoolConfig)
	}

	p := &Pool{name: name, typ: typ}

	pool, err := ants.NewPool(config.Capacity, buildAntsOptions(name, config)...)
	if err != nil {
		return nil, fmt.Errorf("创建 ants 池失败: %w", err)
	}
	p.pool = pool
	if config.WaitWithContext {
		p.slots = semaphore.NewWeighted(int64(config.Capacity))
	}

	logger.Infow("Worker pool created",
		"name", name,
		"type", string(typ),
		"capacity", config.Capacity,
	)
	return p, nil
}

func buildAntsOptions(name string, config *Config) []ants.Option {
	opts := []ants.Option{
		ants.WithExpiryDuration(config.ExpiryDuration),
		ants.WithPreAlloc(config.PreAlloc),
		ants.WithNonblocking(config.Nonblocking),
		ants.WithMaxBlockingTasks(config.MaxBlockingTasks),
	}

	handler := config.PanicHandler
	if handler == nil {
		handler = func(p interface{}) {
			logger.Errorw("Worker panic recovered", "pool", name, "panic", p)
		}
	}
	return append(opts, ants.WithPanicHandler(handler))
}

// Name 返回池名称
func (p *Pool) Name() string {
	return p.name
}

// Cap 返回池容量
func (p *Pool) Cap() int {
	return p.pool.Cap()
}

// Running 返回正在运行的 goroutine 数量
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Submit 提交任务到池中执行
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	startTime := time.Now()
	p.stats.SubmittedTasks.Add(1)
	err := p.pool.Submit(func() {
		p.stats.TotalWaitTimeNs.Add(int64(time.Since(startTime)))
		defer func() {
			if r := recover(); r != nil {
				p.stats.PanicRecovered.Add(1)
				panic(r)
			}
			p.stats.CompletedTasks.Add(1)
		}()
		task()
	})
	if err != nil {
		p.stats.RejectedTasks.Add(1)
		if errors.Is(err, ants.ErrPoolOverload) {
			return ErrPoolOverload
		}
		if errors.Is(err, ants.ErrPoolClosed) {
			return ErrPoolClosed
		}
		return err
	}
	return nil
}

// SubmitWithContext skips the task if ctx is done before a worker picks it up.
// With WaitWithContext the caller waits for a free slot until ctx is done.
func (p *Pool) SubmitWithContext(ctx context.Context, task func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.slots == nil {
		return p.Submit(func() {
			if ctx.Err() != nil {
				return
			}
			task()
		})
	}

	if p.closed.Load() {
		return ErrPoolClosed
	}
	if err := p.slots.Acquire(ctx, 1); err != nil {
		p.stats.RejectedTasks.Add(1)
		return err
	}
	err := p.Submit(func() {
		defer p.slots.Release(1)
		if ctx.Err() != nil {
			return
		}
		task()
	})
	if err != nil {
		p.slots.Release(1)
	}
	return err
}

// Do runs fn on the pool and blocks until it returns or ctx is done.
// A call abandoned by ctx still occupies its slot until fn returns.
func Do[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}

	var zero T
	done := make(chan result, 1)
	err := p.SubmitWithContext(ctx, func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("task panic: %v", r)}
			}
		}()
		v, err := fn(ctx)
		done <- result{val: v, err: err}
	})
	if err != nil {
		return zero, err
	}

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Release 关闭池并释放资源
func (p *Pool) Release() {
	p.closedMu.Lock()
	defer p.closedMu.Unlock()

	if p.closed.Load() {
		return
	}
	p.closed.Store(true)
	p.pool.Release()
	logger.Infow("Worker pool released", "name", p.name)
}

// Stats 返回池统计信息快照
func (p *Pool) Stats() Stats {
	return Stats{
		SubmittedTasks:  p.stats.SubmittedTasks.Load(),
		CompletedTasks:  p.stats.CompletedTasks.Load(),
		RejectedTasks:   p.stats.RejectedTasks.Load(),
		PanicRecovered:  p.stats.PanicRecovered.Load(),
		TotalWaitTimeNs: p.stats.TotalWaitTimeNs.Load(),
	}
}
