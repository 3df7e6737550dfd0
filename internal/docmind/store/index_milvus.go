package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/kart-io/docmind/internal/model"
	"github.com/kart-io/docmind/internal/pkg/rag/textutil"
	"github.com/kart-io/docmind/pkg/component/milvus"
)

// milvusAPI 是 MilvusIndex 用到的 milvus.Client 方法子集。
type milvusAPI interface {
	EnsureCollection(ctx context.Context, schema *milvus.CollectionSchema) error
	Insert(ctx context.Context, collectionName string, data *milvus.InsertData) ([]int64, error)
	Search(ctx context.Context, req milvus.SearchRequest) ([]milvus.SearchResult, error)
	DeleteByFilter(ctx context.Context, collectionName, expr string) error
	RowCount(ctx context.Context, collectionName string) (int64, error)
}

const (
	fieldEntityID = "entity_id"
	fieldJobID    = "job_id"
	fieldFilename = "filename"
	fieldNorm     = "norm"
)

// MilvusIndex 基于 Milvus 的文档向量索引，度量为 IP，原始向量的范数单独存储。
type MilvusIndex struct {
	client     milvusAPI
	collection string
}

// NewMilvusIndex 确保集合存在并返回索引。
func NewMilvusIndex(ctx context.Context, client milvusAPI, collection string, dimension int) (*MilvusIndex, error) {
	schema := &milvus.CollectionSchema{
		Name:        collection,
		Description: "docmind document embeddings",
		Dimension:   dimension,
		Metric:      entity.IP,
		MetaFields: []milvus.MetaField{
			{Name: fieldEntityID, DataType: entity.FieldTypeVarChar, MaxLen: 128},
			{Name: fieldJobID, DataType: entity.FieldTypeVarChar, MaxLen: 64},
			{Name: fieldFilename, DataType: entity.FieldTypeVarChar, MaxLen: 255},
			{Name: fieldNorm, DataType: entity.FieldTypeFloat},
		},
	}
	if err := client.EnsureCollection(ctx, schema); err != nil {
		return nil, err
	}
	return &MilvusIndex{client: client, collection: collection}, nil
}

func scopeFilter(entityID, jobID string) string {
	expr := fieldEntityID + " == " + strconv.Quote(entityID)
	if jobID != "" {
		expr += " && " + fieldJobID + " == " + strconv.Quote(jobID)
	}
	return expr
}

// Upsert 删除同一 (entity, job, filename) 的旧向量后插入。
func (m *MilvusIndex) Upsert(ctx context.Context, e VectorEntry) error {
	expr := scopeFilter(e.EntityID, e.JobID) + " && " + fieldFilename + " == " + strconv.Quote(e.Filename)
	if err := m.client.DeleteByFilter(ctx, m.collection, expr); err != nil {
		return err
	}
	return m.insert(ctx, []VectorEntry{e})
}

func (m *MilvusIndex) insert(ctx context.Context, entries []VectorEntry) error {
	if len(entries) == 0 {
		return nil
	}
	data := &milvus.InsertData{
		Embeddings: make([][]float32, len(entries)),
		Metadata: map[string][]any{
			fieldEntityID: make([]any, len(entries)),
			fieldJobID:    make([]any, len(entries)),
			fieldFilename: make([]any, len(entries)),
			fieldNorm:     make([]any, len(entries)),
		},
	}
	for i, e := range entries {
		data.Embeddings[i] = e.Embedding
		data.Metadata[fieldEntityID][i] = e.EntityID
		data.Metadata[fieldJobID][i] = e.JobID
		data.Metadata[fieldFilename][i] = e.Filename
		data.Metadata[fieldNorm][i] = float32(textutil.Norm(e.Embedding))
	}
	if _, err := m.client.Insert(ctx, m.collection, data); err != nil {
		return fmt.Errorf("insert vectors: %w", err)
	}
	return nil
}

// Search 在 (entity, job) 范围内检索，分数为内积除以存储的范数。
func (m *MilvusIndex) Search(ctx context.Context, entityID, jobID string, query []float32, topK int) ([]VectorHit, error) {
	if topK <= 0 {
		return nil, nil
	}
	results, err := m.client.Search(ctx, milvus.SearchRequest{
		Collection:   m.collection,
		Vector:       query,
		TopK:         topK,
		Filter:       scopeFilter(entityID, jobID),
		OutputFields: []string{fieldJobID, fieldFilename, fieldNorm},
	})
	if err != nil {
		return nil, err
	}

	hits := make([]VectorHit, 0, len(results))
	for _, r := range results {
		jobID, _ := r.Metadata[fieldJobID].(string)
		filename, _ := r.Metadata[fieldFilename].(string)
		norm, _ := r.Metadata[fieldNorm].(float32)
		if norm == 0 {
			continue
		}
		hits = append(hits, VectorHit{JobID: jobID, Filename: filename, Score: float64(r.Score) / float64(norm)})
	}
	return hits, nil
}

// Rebuild 按实体清空后批量写入 records。
func (m *MilvusIndex) Rebuild(ctx context.Context, records []*model.DocumentMetadata) error {
	for entityID, entries := range rebuildEntries(records) {
		if err := m.client.DeleteByFilter(ctx, m.collection, scopeFilter(entityID, "")); err != nil {
			return err
		}
		if err := m.insert(ctx, entries); err != nil {
			return err
		}
	}
	return nil
}

func (m *MilvusIndex) Count(ctx context.Context) (int64, error) {
	return m.client.RowCount(ctx, m.collection)
}

var _ VectorIndex = (*MilvusIndex)(nil)
