package store

import (
	"context"
	"sort"
	"sync"

	"github.com/kart-io/docmind/internal/model"
	"github.com/kart-io/docmind/internal/pkg/rag/textutil"
)

type memoryVector struct {
	jobID     string
	filename  string
	embedding []float32
	norm      float64
}

// MemoryIndex 进程内向量索引，按实体分区，增量写入。
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string][]memoryVector
}

// NewMemoryIndex 创建进程内向量索引。
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string][]memoryVector)}
}

// Upsert 写入或替换 (entity, job, filename) 对应的向量。
func (m *MemoryIndex) Upsert(_ context.Context, e VectorEntry) error {
	vec := memoryVector{
		jobID:     e.JobID,
		filename:  e.Filename,
		embedding: append([]float32(nil), e.Embedding...),
		norm:      textutil.Norm(e.Embedding),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.entries[e.EntityID]
	for i := range list {
		if list[i].jobID == e.JobID && list[i].filename == e.Filename {
			list[i] = vec
			return nil
		}
	}
	m.entries[e.EntityID] = append(list, vec)
	return nil
}

// Search 返回内积除以被索引向量范数最高的 topK 个文档。jobID 为空时不过滤任务。
func (m *MemoryIndex) Search(_ context.Context, entityID, jobID string, query []float32, topK int) ([]VectorHit, error) {
	if topK <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	var hits []VectorHit
	for _, v := range m.entries[entityID] {
		if jobID != "" && v.jobID != jobID {
			continue
		}
		if v.norm == 0 || len(v.embedding) != len(query) {
			continue
		}
		hits = append(hits, VectorHit{
			JobID:    v.jobID,
			Filename: v.filename,
			Score:    textutil.InnerProduct(query, v.embedding) / v.norm,
		})
	}
	m.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Rebuild 以 records 替换全部内容。
func (m *MemoryIndex) Rebuild(_ context.Context, records []*model.DocumentMetadata) error {
	entries := make(map[string][]memoryVector)
	for entityID, list := range rebuildEntries(records) {
		vecs := make([]memoryVector, len(list))
		for i, e := range list {
			vecs[i] = memoryVector{
				jobID:     e.JobID,
				filename:  e.Filename,
				embedding: append([]float32(nil), e.Embedding...),
				norm:      textutil.Norm(e.Embedding),
			}
		}
		entries[entityID] = vecs
	}

	m.mu.Lock()
	m.entries = entries
	m.mu.Unlock()
	return nil
}

// Count 返回所有实体的向量数量。
func (m *MemoryIndex) Count(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, list := range m.entries {
		n += int64(len(list))
	}
	return n, nil
}

// Len 返回实体下的向量数量。
func (m *MemoryIndex) Len(entityID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries[entityID])
}

var _ VectorIndex = (*MemoryIndex)(nil)
