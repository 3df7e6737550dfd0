package biz

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/docmind/internal/docmind/store"
	"github.com/kart-io/docmind/internal/model"
	"github.com/kart-io/docmind/internal/pkg/rag/textutil"
	"github.com/kart-io/docmind/pkg/llm"
)

// resumeExcerptRunes 综合提示中每个文档的摘要长度。
const resumeExcerptRunes = 500

// 检索命中来源。
const (
	HitSourceKeyword   = "keyword"
	HitSourceEmbedding = "embedding"
)

// DocumentHit 混合检索命中的文档。
type DocumentHit struct {
	Filename string
	Snippet  string
	Excerpt  string
	Score    float64
	Source   string
}

// Indexer 维护文档元数据的关系型记录与向量索引。
type Indexer struct {
	metadata store.MetadataStore
	vectors  store.VectorIndex
	embedder llm.EmbeddingProvider
}

// NewIndexer 创建索引器。
func NewIndexer(metadata store.MetadataStore, vectors store.VectorIndex, embedder llm.EmbeddingProvider) *Indexer {
	return &Indexer{metadata: metadata, vectors: vectors, embedder: embedder}
}

// Register 先写入关系型记录，再写入向量索引。没有向量的记录只参与全文检索。
func (ix *Indexer) Register(ctx context.Context, rec *model.DocumentMetadata) error {
	if err := ix.metadata.Create(ctx, rec); err != nil {
		return fmt.Errorf("create metadata: %w", err)
	}
	if len(rec.Embedding) == 0 {
		logger.Warnw("metadata registered without embedding", "entity", rec.EntityID, "job_id", rec.JobID, "filename", rec.Filename)
		return nil
	}
	err := ix.vectors.Upsert(ctx, store.VectorEntry{
		EntityID:  rec.EntityID,
		JobID:     rec.JobID,
		Filename:  rec.Filename,
		Embedding: rec.Embedding,
	})
	if err != nil {
		return fmt.Errorf("index embedding: %w", err)
	}
	return nil
}

// Rehydrate 由关系型存储重建向量索引。
func (ix *Indexer) Rehydrate(ctx context.Context) error {
	recs, err := ix.metadata.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list metadata: %w", err)
	}
	if err := ix.vectors.Rebuild(ctx, recs); err != nil {
		return fmt.Errorf("rebuild vector index: %w", err)
	}
	vectors, err := ix.vectors.Count(ctx)
	if err != nil {
		logger.Warnw("count vectors failed", "error", err.Error())
	}
	logger.Infow("vector index rebuilt", "records", len(recs), "vectors", vectors)
	return nil
}

// VectorCount 返回向量索引中的条目数。
func (ix *Indexer) VectorCount(ctx context.Context) (int64, error) {
	return ix.vectors.Count(ctx)
}

// HybridSearch 关键词命中优先，剩余名额由关键词与主题文本的向量相似度补足，按文件名去重。
// jobID 为空时检索实体下的全部文档；questionEmbedding 为空时只做关键词检索。
func (ix *Indexer) HybridSearch(ctx context.Context, entityID, jobID, question string, questionEmbedding []float32, topK int) []DocumentHit {
	if topK <= 0 {
		return nil
	}

	hits := make([]DocumentHit, 0, topK)
	seen := make(map[string]struct{}, topK)

	textHits, err := ix.metadata.SearchText(ctx, entityID, jobID, question, topK)
	if err != nil {
		logger.Warnw("keyword search failed", "entity", entityID, "error", err.Error())
	}
	for _, h := range textHits {
		if _, ok := seen[h.Filename]; ok {
			continue
		}
		seen[h.Filename] = struct{}{}
		hits = append(hits, DocumentHit{
			Filename: h.Filename,
			Snippet:  h.Snippet,
			Excerpt:  textutil.TruncateString(h.Resume, resumeExcerptRunes),
			Source:   HitSourceKeyword,
		})
		if len(hits) == topK {
			return hits
		}
	}

	if len(questionEmbedding) == 0 {
		return hits
	}
	return append(hits, ix.embeddingHits(ctx, entityID, jobID, questionEmbedding, seen, topK-len(hits))...)
}

func (ix *Indexer) embeddingHits(ctx context.Context, entityID, jobID string, query []float32, seen map[string]struct{}, limit int) []DocumentHit {
	recs, err := ix.metadata.List(ctx, entityID, jobID)
	if err != nil {
		logger.Warnw("list metadata failed", "entity", entityID, "error", err.Error())
		return nil
	}

	var scored []DocumentHit
	for _, rec := range recs {
		if _, ok := seen[rec.Filename]; ok {
			continue
		}
		terms := strings.TrimSpace(strings.Join(append(append([]string{}, rec.Keywords...), rec.Themes...), " "))
		if terms == "" {
			continue
		}
		vec, err := ix.embedder.EmbedSingle(ctx, terms)
		if err != nil {
			logger.Warnw("embed keywords failed", "filename", rec.Filename, "error", err.Error())
			continue
		}
		seen[rec.Filename] = struct{}{}
		scored = append(scored, DocumentHit{
			Filename: rec.Filename,
			Snippet:  terms,
			Excerpt:  textutil.TruncateString(rec.Resume, resumeExcerptRunes),
			Score:    textutil.CosineSimilarity(query, vec),
			Source:   HitSourceEmbedding,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}
