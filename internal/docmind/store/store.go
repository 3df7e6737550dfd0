// Package store 提供 docmind 的数据存储层。
//
// 关系型数据（单元、中间摘要、最终摘要、元数据、会话、任务历史）由 gorm 持久化，
// 向量检索由 VectorIndex 提供（进程内或 Milvus），任务状态与摘要缓存可选使用 Redis。
package store

import (
	"context"
	"errors"

	"github.com/kart-io/docmind/internal/model"
)

// ErrNotFound 记录不存在。
var ErrNotFound = errors.New("record not found")

// Factory defines the factory interface for creating stores.
type Factory interface {
	Units() UnitStore
	Intermediates() IntermediateStore
	Summaries() SummaryStore
	Metadata() MetadataStore
	Sessions() SessionStore
	History() HistoryStore
	Close() error
}

// UnitStore 单元存储，(entity, job, sequence) 唯一。
type UnitStore interface {
	Save(ctx context.Context, unit *model.Unit) error
	// List 按 sequence 升序返回。
	List(ctx context.Context, entityID, jobID string) ([]*model.Unit, error)
}

// IntermediateStore 中间摘要存储。
type IntermediateStore interface {
	Save(ctx context.Context, s *model.IntermediateSummary) error
	List(ctx context.Context, entityID, jobID string) ([]*model.IntermediateSummary, error)
}

// SummaryStore 最终摘要存储，以 (entity, docIdentity) 为键。
type SummaryStore interface {
	// Get 不存在时返回 ErrNotFound。
	Get(ctx context.Context, entityID, docIdentity string) (*model.DocumentSummary, error)
	Put(ctx context.Context, s *model.DocumentSummary) error
}

// TextHit 全文检索命中。
type TextHit struct {
	Filename string
	Snippet  string
	Resume   string
}

// MetadataStore 文档元数据存储与全文检索。jobID 为空表示该实体下的所有任务。
type MetadataStore interface {
	Create(ctx context.Context, rec *model.DocumentMetadata) error
	List(ctx context.Context, entityID, jobID string) ([]*model.DocumentMetadata, error)
	SearchText(ctx context.Context, entityID, jobID, query string, limit int) ([]TextHit, error)
	// ListAll 返回所有实体的记录，用于启动时重建向量索引。
	ListAll(ctx context.Context) ([]*model.DocumentMetadata, error)
}

// SessionStore 会话问答记录，只追加。
type SessionStore interface {
	Append(ctx context.Context, it *model.Interaction) error
	// List 按时间戳、ID 升序返回。
	List(ctx context.Context, sessionID string) ([]*model.Interaction, error)
	Clear(ctx context.Context, sessionID string) error
}

// HistoryStore 按实体、按天的任务历史。
type HistoryStore interface {
	Append(ctx context.Context, e *model.JobHistoryEntry) error
	List(ctx context.Context, entityID, day string) ([]*model.JobHistoryEntry, error)
}

// JobStore 任务状态存储。
type JobStore interface {
	Create(ctx context.Context, job *model.Job) error
	// Get 不存在时返回 ErrNotFound。
	Get(ctx context.Context, jobID string) (*model.Job, error)
	Update(ctx context.Context, job *model.Job) error
	// Latest 返回实体最近更新的任务。
	Latest(ctx context.Context, entityID string) (*model.Job, error)
}

// VectorEntry 一条文档向量。
type VectorEntry struct {
	EntityID  string
	JobID     string
	Filename  string
	Embedding []float32
}

// VectorHit 向量检索命中，Score 为内积除以被索引向量的范数。
type VectorHit struct {
	JobID    string
	Filename string
	Score    float64
}

// VectorIndex 文档向量索引。Upsert 完成后对下一次 Search 可见。
type VectorIndex interface {
	Upsert(ctx context.Context, e VectorEntry) error
	Search(ctx context.Context, entityID, jobID string, query []float32, topK int) ([]VectorHit, error)
	// Rebuild 用关系库中的元数据重建索引，同一 (entity, job, filename) 只保留最后一条。
	Rebuild(ctx context.Context, records []*model.DocumentMetadata) error
	// Count 返回索引中的向量总数。
	Count(ctx context.Context) (int64, error)
}

type vectorKey struct {
	entityID, jobID, filename string
}

// rebuildEntries 按实体分组并去重带向量的记录，后出现的记录覆盖先前的。
func rebuildEntries(records []*model.DocumentMetadata) map[string][]VectorEntry {
	byEntity := make(map[string][]VectorEntry)
	pos := make(map[vectorKey]int)
	for _, r := range records {
		if len(r.Embedding) == 0 {
			continue
		}
		e := VectorEntry{
			EntityID:  r.EntityID,
			JobID:     r.JobID,
			Filename:  r.Filename,
			Embedding: r.Embedding,
		}
		k := vectorKey{r.EntityID, r.JobID, r.Filename}
		if i, ok := pos[k]; ok {
			byEntity[r.EntityID][i] = e
			continue
		}
		pos[k] = len(byEntity[r.EntityID])
		byEntity[r.EntityID] = append(byEntity[r.EntityID], e)
	}
	return byEntity
}
