package biz

import (
	"container/heap"
	"context"
	"sync"

	"github.com/kart-io/docmind/internal/model"
)

// UnknownPagesPriority 页数未知时的优先级。
const UnknownPagesPriority = 10

// EstimatePriority 由页数估算优先级，数值越小越先处理。
func EstimatePriority(pages int) int {
	if pages < 10 {
		return pages
	}
	return pages / 3
}

type queueItem struct {
	job *model.Job
	seq uint64
}

type jobHeap []queueItem

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].job.Priority != h[j].job.Priority {
		return h[i].job.Priority < h[j].job.Priority
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(queueItem)) }

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = queueItem{}
	*h = old[:n-1]
	return item
}

// JobQueue 并发安全的优先级队列，同优先级先进先出。
type JobQueue struct {
	mu     sync.Mutex
	items  jobHeap
	seq    uint64
	notify chan struct{}
}

// NewJobQueue 创建空队列。
func NewJobQueue() *JobQueue {
	return &JobQueue{notify: make(chan struct{}, 1)}
}

// Push 入队。
func (q *JobQueue) Push(job *model.Job) {
	q.mu.Lock()
	q.seq++
	heap.Push(&q.items, queueItem{job: job, seq: q.seq})
	q.mu.Unlock()
	q.signal()
}

// TryPop 非阻塞出队。
func (q *JobQueue) TryPop() (*model.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	item := heap.Pop(&q.items).(queueItem)
	if len(q.items) > 0 {
		q.signal()
	}
	return item.job, true
}

// Pop 阻塞直到有任务或 ctx 结束。
func (q *JobQueue) Pop(ctx context.Context) (*model.Job, error) {
	for {
		if job, ok := q.TryPop(); ok {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

// Len 返回排队任务数。
func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *JobQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
