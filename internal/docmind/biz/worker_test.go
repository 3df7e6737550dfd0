package biz

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docmind/internal/model"
)

// recordingRunner 记录执行顺序，release 非空时每个任务等待放行。
type recordingRunner struct {
	mu      sync.Mutex
	ran     []string
	started chan string
	release chan struct{}
}

func newRecordingRunner() *recordingRunner {
	return &recordingRunner{started: make(chan string, 64)}
}

func (r *recordingRunner) Run(ctx context.Context, job *model.Job) (*model.DocumentSummary, error) {
	r.started <- job.ID
	if r.release != nil {
		<-r.release
	}
	r.mu.Lock()
	r.ran = append(r.ran, job.ID)
	r.mu.Unlock()
	return &model.DocumentSummary{JobID: job.ID}, ctx.Err()
}

func (r *recordingRunner) jobs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ran...)
}

func waitStarted(t *testing.T, r *recordingRunner) string {
	t.Helper()
	select {
	case id := <-r.started:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("runner was not called")
		return ""
	}
}

func runWorker(ctx context.Context, w *BatchWorker) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	return done
}

func TestBatchWorkerFlushesFullBatch(t *testing.T) {
	q := NewJobQueue()
	runner := newRecordingRunner()
	w := NewBatchWorker("w", q, runner, BatchWorkerConfig{BatchSize: 2, IdleFlush: time.Hour, PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := runWorker(ctx, w)

	q.Push(&model.Job{ID: "j1", Priority: 2})
	q.Push(&model.Job{ID: "j2", Priority: 1})
	waitStarted(t, runner)
	waitStarted(t, runner)
	assert.Eventually(t, func() bool { return len(runner.jobs()) == 2 }, time.Second, 5*time.Millisecond)

	// 未满的批次在空闲时限前不执行，退出时放回队列
	q.Push(&model.Job{ID: "j3"})
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, runner.jobs(), 2)

	cancel()
	<-done
	assert.Equal(t, 1, q.Len())
	job, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, "j3", job.ID)
}

func TestBatchWorkerIdleFlush(t *testing.T) {
	q := NewJobQueue()
	runner := newRecordingRunner()
	w := NewBatchWorker("w", q, runner, BatchWorkerConfig{BatchSize: 10, IdleFlush: 30 * time.Millisecond, PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runWorker(ctx, w)

	q.Push(&model.Job{ID: "lonely"})
	assert.Equal(t, "lonely", waitStarted(t, runner))

	cancel()
	<-done
	assert.Equal(t, []string{"lonely"}, runner.jobs())
	assert.Equal(t, 0, q.Len())
}

func TestBatchWorkerShutdownFinishesCurrentJob(t *testing.T) {
	q := NewJobQueue()
	runner := newRecordingRunner()
	runner.release = make(chan struct{})
	w := NewBatchWorker("w", q, runner, BatchWorkerConfig{BatchSize: 2, IdleFlush: time.Hour, PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := runWorker(ctx, w)

	q.Push(&model.Job{ID: "first", Priority: 1})
	q.Push(&model.Job{ID: "second", Priority: 2})
	assert.Equal(t, "first", waitStarted(t, runner))

	cancel()
	close(runner.release)
	<-done

	// 已开始的任务运行结束，未开始的任务放回队列
	assert.Equal(t, []string{"first"}, runner.jobs())
	job, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, "second", job.ID)
}
