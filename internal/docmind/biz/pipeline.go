package biz

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docmind/internal/docmind/store"
	"github.com/kart-io/docmind/internal/model"
	"github.com/kart-io/docmind/internal/pkg/rag/docutil"
	"github.com/kart-io/docmind/internal/pkg/rag/textutil"
	"github.com/kart-io/docmind/pkg/llm"
)

// TextSource 文档文本来源，页码从 1 开始。
type TextSource interface {
	PageLineReader
	PageCount(ctx context.Context, path string) (int, error)
	ExtractPages(ctx context.Context, path string, first, last int) (string, error)
}

// 元数据关键词数量。
const (
	metadataKeywords = 12
	metadataThemes   = 8
)

// PipelineDeps 摘要流水线依赖。
type PipelineDeps struct {
	Source        TextSource
	Summarizer    *UnitSummarizer
	Merger        *Merger
	Embedder      llm.EmbeddingProvider
	Indexer       *Indexer
	Units         store.UnitStore
	Intermediates store.IntermediateStore
	Summaries     store.SummaryStore
	History       store.HistoryStore
	Jobs          store.JobStore
}

// PipelineConfig 摘要流水线配置。
type PipelineConfig struct {
	Planner           Planner
	Preparer          TextPreparer
	AppendixScanPages int
	// ModelName 记录在摘要与任务历史中的模型名。
	ModelName string
}

// Pipeline 文档摘要流水线。
type Pipeline struct {
	deps     PipelineDeps
	config   PipelineConfig
	appendix *AppendixDetector
	keywords *textutil.KeywordExtractor
	now      func() time.Time
}

// NewPipeline 创建摘要流水线。
func NewPipeline(deps PipelineDeps, config PipelineConfig) *Pipeline {
	return &Pipeline{
		deps:     deps,
		config:   config,
		appendix: NewAppendixDetector(deps.Source, config.AppendixScanPages),
		keywords: textutil.NewKeywordExtractor(),
		now:      time.Now,
	}
}

// Run 处理一个任务并维护其状态：processing，然后 done 或 failed。
// 同一来源已有摘要时直接返回缓存结果。
func (p *Pipeline) Run(ctx context.Context, job *model.Job) (*model.DocumentSummary, error) {
	start := p.now()
	if job.EntityID == "" {
		job.EntityID = model.DefaultEntity
	}
	if job.DocIdentity == "" {
		job.DocIdentity = textutil.DocumentIdentity(job.SourceURI)
	}

	p.setStatus(ctx, job, model.JobProcessing, "")
	logger.Infow("job started",
		"job_id", job.ID,
		"entity", job.EntityID,
		"priority", job.Priority,
		"path", job.LocalPath,
	)

	summary, err := p.process(ctx, job)
	duration := p.now().Sub(start)

	if err != nil {
		logger.Errorw("job failed", "job_id", job.ID, "duration_ms", duration.Milliseconds(), "error", err.Error())
		p.setStatus(ctx, job, model.JobFailed, err.Error())
		p.recordHistory(ctx, job, duration, err)
		return nil, err
	}

	job.Summary = summary.SummaryText
	job.Score = summary.QualityScore
	p.setStatus(ctx, job, model.JobDone, "")
	p.recordHistory(ctx, job, duration, nil)
	logger.Infow("job done", "job_id", job.ID, "score", summary.QualityScore, "duration_ms", duration.Milliseconds())
	return summary, nil
}

func (p *Pipeline) process(ctx context.Context, job *model.Job) (*model.DocumentSummary, error) {
	cached, err := p.deps.Summaries.Get(ctx, job.EntityID, job.DocIdentity)
	switch {
	case err == nil:
		logger.Infow("summary cache hit", "job_id", job.ID, "doc_identity", job.DocIdentity)
		return cached, nil
	case !stderrors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("summary lookup: %w", err)
	}

	total, err := p.deps.Source.PageCount(ctx, job.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("page count: %w", err)
	}
	plans := p.config.Planner.PlanUnits(total)
	cutoff := p.appendix.Detect(ctx, job.LocalPath, total)
	plans = ApplyCutoff(plans, cutoff)
	logger.Infow("document planned", "job_id", job.ID, "pages", total, "units", len(plans), "cutoff", cutoff)

	// 与 units.document_id、document_metadata.filename 的列宽保持一致
	filename := textutil.TruncateString(docutil.FilenameFromURL(job.SourceURI, job.DocIdentity+".pdf"), model.MaxFilenameLen)
	summaries, err := p.summarizeUnits(ctx, job, filename, plans)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, fmt.Errorf("no summarizable content in %d pages", total)
	}

	merged, err := p.deps.Merger.Merge(ctx, summaries)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	for _, im := range merged.Intermediates {
		err := p.deps.Intermediates.Save(ctx, &model.IntermediateSummary{
			EntityID:    job.EntityID,
			JobID:       job.ID,
			Sequence:    im.Sequence,
			UnitRange:   im.Range,
			SummaryText: im.Text,
		})
		if err != nil {
			return nil, fmt.Errorf("save intermediate %s: %w", im.Range, err)
		}
	}

	summary := &model.DocumentSummary{
		EntityID:     job.EntityID,
		DocIdentity:  job.DocIdentity,
		JobID:        job.ID,
		SourceURI:    job.SourceURI,
		Filename:     filename,
		SummaryText:  merged.Final,
		QualityScore: merged.Score,
		UnitCount:    len(summaries),
		ModelUsed:    p.config.ModelName,
	}
	if err := p.deps.Summaries.Put(ctx, summary); err != nil {
		return nil, fmt.Errorf("save summary: %w", err)
	}

	// 元数据索引失败不影响已生成的摘要
	if err := p.register(ctx, job, summary, merged, total); err != nil {
		logger.Errorw("metadata registration failed", "job_id", job.ID, "error", err.Error())
	}
	return summary, nil
}

func (p *Pipeline) summarizeUnits(ctx context.Context, job *model.Job, filename string, plans []UnitPlan) ([]UnitSummary, error) {
	out := make([]UnitSummary, 0, len(plans))
	for _, plan := range plans {
		raw, err := p.deps.Source.ExtractPages(ctx, job.LocalPath, plan.FirstPage+1, plan.LastPage+1)
		if err != nil {
			return nil, fmt.Errorf("extract pages %d-%d: %w", plan.FirstPage+1, plan.LastPage+1, err)
		}
		text, placeholder := p.config.Preparer.Prepare(raw)

		best := p.deps.Summarizer.Summarize(ctx, text)
		unit := &model.Unit{
			EntityID:      job.EntityID,
			JobID:         job.ID,
			Sequence:      plan.Sequence,
			DocumentID:    filename,
			FirstPage:     plan.FirstPage,
			LastPage:      plan.LastPage,
			RawText:       text,
			SummaryText:   best.Text,
			QualityScore:  best.Score,
			WasTranslated: best.Translated,
		}
		if best.Text != "" {
			vec, err := p.deps.Embedder.EmbedSingle(ctx, best.Text)
			if err != nil {
				logger.Warnw("unit embedding failed", "job_id", job.ID, "sequence", plan.Sequence, "error", err.Error())
			} else {
				unit.Embedding = vec
			}
		}
		if err := p.deps.Units.Save(ctx, unit); err != nil {
			return nil, fmt.Errorf("save unit %d: %w", plan.Sequence, err)
		}

		logger.Infow("unit summarized",
			"job_id", job.ID,
			"sequence", plan.Sequence,
			"pages", fmt.Sprintf("%d-%d", plan.FirstPage+1, plan.LastPage+1),
			"score", best.Score,
			"translated", best.Translated,
			"placeholder", placeholder,
		)
		if best.Text != "" {
			out = append(out, UnitSummary{Sequence: plan.Sequence, Text: best.Text})
		}
	}
	return out, nil
}

func (p *Pipeline) register(ctx context.Context, job *model.Job, summary *model.DocumentSummary, merged *MergeResult, pages int) error {
	partials := make([]string, len(merged.Intermediates))
	for i, im := range merged.Intermediates {
		partials[i] = im.Text
	}

	rec := &model.DocumentMetadata{
		EntityID:  job.EntityID,
		JobID:     job.ID,
		Filename:  summary.Filename,
		PageCount: pages,
		UnitCount: summary.UnitCount,
		Resume:    summary.SummaryText,
		Keywords:  p.keywords.Extract(summary.SummaryText, metadataKeywords),
		Themes:    p.keywords.Extract(strings.Join(partials, "\n"), metadataThemes),
	}
	vec, err := p.deps.Embedder.EmbedSingle(ctx, summary.SummaryText)
	if err != nil {
		logger.Warnw("summary embedding failed", "job_id", job.ID, "error", err.Error())
	} else {
		rec.Embedding = vec
	}
	return p.deps.Indexer.Register(ctx, rec)
}

func (p *Pipeline) setStatus(ctx context.Context, job *model.Job, status model.JobStatus, errText string) {
	job.Status = status
	job.Error = errText
	job.UpdatedAt = p.now().UTC()
	if p.deps.Jobs == nil {
		return
	}
	if err := p.deps.Jobs.Update(ctx, job); err != nil {
		logger.Warnw("job status update failed", "job_id", job.ID, "status", status, "error", err.Error())
	}
}

func (p *Pipeline) recordHistory(ctx context.Context, job *model.Job, duration time.Duration, runErr error) {
	if p.deps.History == nil {
		return
	}
	entry := &model.JobHistoryEntry{
		EntityID:   job.EntityID,
		Day:        p.now().UTC().Format(time.DateOnly),
		JobID:      job.ID,
		SourceURI:  job.SourceURI,
		Status:     job.Status,
		ModelUsed:  p.config.ModelName,
		DurationMs: duration.Milliseconds(),
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}
	if err := p.deps.History.Append(ctx, entry); err != nil {
		logger.Warnw("job history append failed", "job_id", job.ID, "error", err.Error())
	}
}
