package biz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docmind/internal/model"
)

func TestEstimatePriority(t *testing.T) {
	tests := []struct {
		name  string
		pages int
		want  int
	}{
		{"单页", 1, 1},
		{"九页", 9, 9},
		{"十页", 10, 3},
		{"三十页", 30, 10},
		{"大文档", 300, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimatePriority(tt.pages))
		})
	}
}

func TestJobQueueOrder(t *testing.T) {
	q := NewJobQueue()
	q.Push(&model.Job{ID: "big", Priority: 40})
	q.Push(&model.Job{ID: "a", Priority: 3})
	q.Push(&model.Job{ID: "small", Priority: 1})
	q.Push(&model.Job{ID: "b", Priority: 3})
	q.Push(&model.Job{ID: "c", Priority: 3})
	assert.Equal(t, 5, q.Len())

	var got []string
	for {
		job, ok := q.TryPop()
		if !ok {
			break
		}
		got = append(got, job.ID)
	}
	// 同优先级先进先出
	assert.Equal(t, []string{"small", "a", "b", "c", "big"}, got)
	assert.Equal(t, 0, q.Len())
}

func TestJobQueuePopBlocks(t *testing.T) {
	q := NewJobQueue()
	done := make(chan *model.Job, 1)
	go func() {
		job, err := q.Pop(context.Background())
		if err == nil {
			done <- job
		}
	}()

	select {
	case <-done:
		t.Fatal("Pop returned on empty queue")
	case <-time.After(30 * time.Millisecond):
	}

	q.Push(&model.Job{ID: "late"})
	select {
	case job := <-done:
		assert.Equal(t, "late", job.ID)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake up")
	}
}

func TestJobQueuePopCancelled(t *testing.T) {
	q := NewJobQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	job, err := q.Pop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, job)
}

func TestJobQueueConcurrentConsumers(t *testing.T) {
	q := NewJobQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	const n = 20
	results := make(chan string, n)
	for i := 0; i < 3; i++ {
		go func() {
			for {
				job, err := q.Pop(ctx)
				if err != nil {
					return
				}
				results <- job.ID
			}
		}()
	}
	for i := 0; i < n; i++ {
		q.Push(&model.Job{ID: string(rune('a' + i))})
	}

	seen := make(map[string]bool)
	for i := 0; i < n; i++ {
		select {
		case id := <-results:
			assert.False(t, seen[id], "job %s popped twice", id)
			seen[id] = true
		case <-ctx.Done():
			t.Fatalf("only %d of %d jobs consumed", len(seen), n)
		}
	}
}
