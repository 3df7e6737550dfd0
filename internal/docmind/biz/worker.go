package biz

import (
	"context"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docmind/internal/model"
)

// JobRunner 执行单个任务。
type JobRunner interface {
	Run(ctx context.Context, job *model.Job) (*model.DocumentSummary, error)
}

// BatchWorkerConfig 批处理配置。
type BatchWorkerConfig struct {
	// BatchSize 批次达到该数量时立即处理。
	BatchSize int
	// IdleFlush 距上次处理超过该时长时处理未满的批次。
	IdleFlush time.Duration
	// PollInterval 单次等待队列的时长。
	PollInterval time.Duration
}

// DefaultBatchWorkerConfig 返回默认配置：5 个任务或 10 秒。
func DefaultBatchWorkerConfig() BatchWorkerConfig {
	return BatchWorkerConfig{BatchSize: 5, IdleFlush: 10 * time.Second, PollInterval: time.Second}
}

// BatchWorker 从队列收集任务并按批次顺序执行。
type BatchWorker struct {
	name   string
	queue  *JobQueue
	runner JobRunner
	config BatchWorkerConfig
}

// NewBatchWorker 创建批处理 worker。
func NewBatchWorker(name string, queue *JobQueue, runner JobRunner, config BatchWorkerConfig) *BatchWorker {
	if config.BatchSize <= 0 {
		config.BatchSize = 5
	}
	if config.IdleFlush <= 0 {
		config.IdleFlush = 10 * time.Second
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	return &BatchWorker{name: name, queue: queue, runner: runner, config: config}
}

// Run 运行直到 ctx 结束。正在执行的任务会完成，尚未开始的任务放回队列。
func (w *BatchWorker) Run(ctx context.Context) {
	logger.Infow("batch worker started", "worker", w.name, "batch_size", w.config.BatchSize)
	defer logger.Infow("batch worker stopped", "worker", w.name)

	var batch []*model.Job
	lastFlush := time.Now()
	for {
		pollCtx, cancel := context.WithTimeout(ctx, w.config.PollInterval)
		job, err := w.queue.Pop(pollCtx)
		cancel()

		if ctx.Err() != nil {
			if job != nil {
				batch = append(batch, job)
			}
			w.requeue(batch)
			return
		}
		if err == nil {
			batch = append(batch, job)
			logger.Debugw("job added to batch", "worker", w.name, "job_id", job.ID, "batch", len(batch))
		}

		if len(batch) > 0 && (len(batch) >= w.config.BatchSize || time.Since(lastFlush) >= w.config.IdleFlush) {
			rest := w.process(ctx, batch)
			if len(rest) > 0 {
				w.requeue(rest)
				return
			}
			batch = batch[:0]
			lastFlush = time.Now()
		}
	}
}

// process 顺序执行批次，ctx 结束时返回未执行的任务。
func (w *BatchWorker) process(ctx context.Context, batch []*model.Job) []*model.Job {
	logger.Infow("processing batch", "worker", w.name, "jobs", len(batch))
	start := time.Now()

	for i, job := range batch {
		if ctx.Err() != nil {
			return batch[i:]
		}
		// 任务一旦开始即运行到结束
		if _, err := w.runner.Run(context.WithoutCancel(ctx), job); err != nil {
			logger.Errorw("job failed", "worker", w.name, "job_id", job.ID, "error", err.Error())
		}
	}

	logger.Infow("batch done", "worker", w.name, "jobs", len(batch), "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (w *BatchWorker) requeue(jobs []*model.Job) {
	for _, job := range jobs {
		w.queue.Push(job)
	}
	if len(jobs) > 0 {
		logger.Infow("requeued pending jobs", "worker", w.name, "jobs", len(jobs))
	}
}
