package store

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docmind/internal/model"
	"github.com/kart-io/docmind/pkg/component/milvus"
)

func TestMemoryIndexSearch(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, VectorEntry{EntityID: "acme", JobID: "j1", Filename: "a.pdf", Embedding: []float32{1, 0}}))
	require.NoError(t, idx.Upsert(ctx, VectorEntry{EntityID: "acme", JobID: "j2", Filename: "b.pdf", Embedding: []float32{0, 2}}))
	require.NoError(t, idx.Upsert(ctx, VectorEntry{EntityID: "acme", JobID: "j3", Filename: "zero.pdf", Embedding: []float32{0, 0}}))
	require.NoError(t, idx.Upsert(ctx, VectorEntry{EntityID: "acme", JobID: "j4", Filename: "short.pdf", Embedding: []float32{1}}))
	require.NoError(t, idx.Upsert(ctx, VectorEntry{EntityID: "other", JobID: "j1", Filename: "c.pdf", Embedding: []float32{1, 0}}))

	hits, err := idx.Search(ctx, "acme", "", []float32{0.6, 0.8}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "b.pdf", hits[0].Filename)
	assert.Equal(t, "j2", hits[0].JobID)
	assert.InDelta(t, 0.8, hits[0].Score, 1e-6)
	assert.Equal(t, "a.pdf", hits[1].Filename)
	assert.InDelta(t, 0.6, hits[1].Score, 1e-6)

	hits, err = idx.Search(ctx, "acme", "j1", []float32{0.6, 0.8}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a.pdf", hits[0].Filename)

	hits, err = idx.Search(ctx, "acme", "", []float32{0.6, 0.8}, 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = idx.Search(ctx, "acme", "", []float32{0.6, 0.8}, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryIndexUpsertReplaces(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, VectorEntry{EntityID: "acme", JobID: "j1", Filename: "a.pdf", Embedding: []float32{1, 0}}))
	require.NoError(t, idx.Upsert(ctx, VectorEntry{EntityID: "acme", JobID: "j1", Filename: "a.pdf", Embedding: []float32{0, 1}}))
	assert.Equal(t, 1, idx.Len("acme"))

	hits, err := idx.Search(ctx, "acme", "", []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestMemoryIndexRebuild(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, VectorEntry{EntityID: "stale", Filename: "old.pdf", Embedding: []float32{1}}))

	require.NoError(t, idx.Rebuild(ctx, []*model.DocumentMetadata{
		{EntityID: "acme", JobID: "j1", Filename: "a.pdf", Embedding: model.Vector{1, 0}},
		{EntityID: "acme", JobID: "j2", Filename: "empty.pdf"},
	}))
	assert.Equal(t, 0, idx.Len("stale"))
	assert.Equal(t, 1, idx.Len("acme"))
}

func TestMemoryIndexRebuildDedupes(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	require.NoError(t, idx.Rebuild(ctx, []*model.DocumentMetadata{
		{EntityID: "acme", JobID: "j1", Filename: "a.pdf", Embedding: model.Vector{1, 0}},
		{EntityID: "acme", JobID: "j2", Filename: "a.pdf", Embedding: model.Vector{1, 0}},
		{EntityID: "other", JobID: "j1", Filename: "a.pdf", Embedding: model.Vector{1, 0}},
		{EntityID: "acme", JobID: "j1", Filename: "a.pdf", Embedding: model.Vector{0, 1}},
	}))
	assert.Equal(t, 2, idx.Len("acme"))
	assert.Equal(t, 1, idx.Len("other"))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	// 后写入的向量生效
	hits, err := idx.Search(ctx, "acme", "j1", []float32{0, 1}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

type fakeMilvus struct {
	schema   *milvus.CollectionSchema
	inserted []*milvus.InsertData
	deleted  []string
	lastReq  milvus.SearchRequest
	results  []milvus.SearchResult
	rows     int64
	rowsErr  error
}

func (f *fakeMilvus) EnsureCollection(_ context.Context, schema *milvus.CollectionSchema) error {
	f.schema = schema
	return nil
}

func (f *fakeMilvus) Insert(_ context.Context, _ string, data *milvus.InsertData) ([]int64, error) {
	f.inserted = append(f.inserted, data)
	return make([]int64, len(data.Embeddings)), nil
}

func (f *fakeMilvus) Search(_ context.Context, req milvus.SearchRequest) ([]milvus.SearchResult, error) {
	f.lastReq = req
	return f.results, nil
}

func (f *fakeMilvus) DeleteByFilter(_ context.Context, _ string, expr string) error {
	f.deleted = append(f.deleted, expr)
	return nil
}

func (f *fakeMilvus) RowCount(context.Context, string) (int64, error) {
	return f.rows, f.rowsErr
}

func TestMilvusIndexUpsert(t *testing.T) {
	fake := &fakeMilvus{}
	idx, err := NewMilvusIndex(context.Background(), fake, "docs", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.schema.Dimension)
	assert.Len(t, fake.schema.MetaFields, 4)

	require.NoError(t, idx.Upsert(context.Background(), VectorEntry{
		EntityID: "acme", JobID: "j1", Filename: "a.pdf", Embedding: []float32{3, 4},
	}))
	require.Len(t, fake.deleted, 1)
	assert.Equal(t, `entity_id == "acme" && job_id == "j1" && filename == "a.pdf"`, fake.deleted[0])
	require.Len(t, fake.inserted, 1)
	assert.Equal(t, []any{float32(5)}, fake.inserted[0].Metadata["norm"])
}

func TestMilvusIndexSearch(t *testing.T) {
	fake := &fakeMilvus{results: []milvus.SearchResult{
		{Score: 4, Metadata: map[string]any{"job_id": "j1", "filename": "a.pdf", "norm": float32(5)}},
		{Score: 1, Metadata: map[string]any{"filename": "zero.pdf", "norm": float32(0)}},
	}}
	idx, err := NewMilvusIndex(context.Background(), fake, "docs", 2)
	require.NoError(t, err)

	hits, err := idx.Search(context.Background(), "ac\"me", "", []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a.pdf", hits[0].Filename)
	assert.Equal(t, "j1", hits[0].JobID)
	assert.InDelta(t, 0.8, hits[0].Score, 1e-6)
	assert.Equal(t, `entity_id == "ac\"me"`, fake.lastReq.Filter)
	assert.Equal(t, 3, fake.lastReq.TopK)
}

func TestMilvusIndexRebuild(t *testing.T) {
	fake := &fakeMilvus{}
	idx, err := NewMilvusIndex(context.Background(), fake, "docs", 2)
	require.NoError(t, err)

	require.NoError(t, idx.Rebuild(context.Background(), []*model.DocumentMetadata{
		{EntityID: "acme", JobID: "j1", Filename: "a.pdf", Embedding: model.Vector{1, 0}},
		{EntityID: "acme", JobID: "j2", Filename: "b.pdf", Embedding: model.Vector{0, 1}},
		{EntityID: "acme", JobID: "j3", Filename: "none.pdf"},
	}))
	require.Len(t, fake.deleted, 1)
	assert.False(t, strings.Contains(fake.deleted[0], "job_id"))
	require.Len(t, fake.inserted, 1)
	assert.Len(t, fake.inserted[0].Embeddings, 2)
}

func TestMilvusIndexRebuildDedupes(t *testing.T) {
	fake := &fakeMilvus{}
	idx, err := NewMilvusIndex(context.Background(), fake, "docs", 2)
	require.NoError(t, err)

	require.NoError(t, idx.Rebuild(context.Background(), []*model.DocumentMetadata{
		{EntityID: "acme", JobID: "j1", Filename: "a.pdf", Embedding: model.Vector{1, 0}},
		{EntityID: "acme", JobID: "j1", Filename: "a.pdf", Embedding: model.Vector{0, 1}},
	}))
	require.Len(t, fake.inserted, 1)
	require.Len(t, fake.inserted[0].Embeddings, 1)
	assert.Equal(t, []float32{0, 1}, fake.inserted[0].Embeddings[0])
}

func TestMilvusIndexCount(t *testing.T) {
	fake := &fakeMilvus{rows: 12}
	idx, err := NewMilvusIndex(context.Background(), fake, "docs", 2)
	require.NoError(t, err)

	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	fake.rowsErr = assert.AnError
	_, err = idx.Count(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
}
