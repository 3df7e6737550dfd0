package biz

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docmind/internal/docmind/store"
	"github.com/kart-io/docmind/internal/model"
	"github.com/kart-io/docmind/internal/pkg/rag/docutil"
	"github.com/kart-io/docmind/internal/pkg/rag/textutil"
	"github.com/kart-io/docmind/pkg/id"
	"github.com/kart-io/docmind/pkg/llm/gateway"
	"github.com/kart-io/docmind/pkg/llm/resilience"
	"github.com/kart-io/docmind/pkg/utils/errors"
)

// 提交结果模式。
const (
	ModeCache = "cache"
	ModeAsync = "async"
)

// Fetcher 下载文档到本地路径。
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string) error
}

// PageCounter 统计文档页数。
type PageCounter interface {
	PageCount(ctx context.Context, path string) (int, error)
}

// SubmitRequest 提交文档请求。
type SubmitRequest struct {
	URL      string `json:"pdf_url"`
	EntityID string `json:"entity_id"`
}

// SubmitResult 提交结果。缓存命中时 Summary 非空。
type SubmitResult struct {
	Mode    string                 `json:"mode"`
	JobID   string                 `json:"job_id"`
	Status  string                 `json:"status,omitempty"`
	Summary *model.DocumentSummary `json:"summary,omitempty"`
}

// VectorCounter 报告向量索引条目数。
type VectorCounter interface {
	VectorCount(ctx context.Context) (int64, error)
}

// GenerationStats 报告生成槽位使用情况。
type GenerationStats interface {
	Stats() gateway.Stats
}

// BreakerStats 报告熔断器状态。
type BreakerStats interface {
	Stats() resilience.Stats
}

// Health 服务状态快照。熔断器打开或向量库不可达时 Status 为 degraded。
type Health struct {
	Status           string         `json:"status"`
	QueueLen         int            `json:"queue_len"`
	Vectors          int64          `json:"vectors"`
	Generation       *gateway.Stats `json:"generation,omitempty"`
	EmbeddingBreaker string         `json:"embedding_breaker,omitempty"`
}

// 健康状态。
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// ServiceDeps 服务依赖。Vectors、Generation 与 Breaker 只用于健康检查，可为 nil。
type ServiceDeps struct {
	Fetcher   Fetcher
	Pages     PageCounter
	Runner    JobRunner
	Jobs      store.JobStore
	Summaries store.SummaryStore
	Sessions  store.SessionStore
	History   store.HistoryStore
	QA        *QAEngine
	Queue     *JobQueue

	Vectors    VectorCounter
	Generation GenerationStats
	Breaker    BreakerStats
}

// ServiceConfig 服务配置。
type ServiceConfig struct {
	WorkDir string
	Workers int
	Batch   BatchWorkerConfig
}

// Service 组合任务提交、排队、状态查询与问答。
type Service struct {
	deps   ServiceDeps
	config ServiceConfig
	now    func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService 创建服务，Queue 为 nil 时创建新队列。
func NewService(deps ServiceDeps, config ServiceConfig) *Service {
	if deps.Queue == nil {
		deps.Queue = NewJobQueue()
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	return &Service{deps: deps, config: config, now: time.Now}
}

// Start 启动后台 worker。
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	for i := 0; i < s.config.Workers; i++ {
		w := NewBatchWorker(fmt.Sprintf("worker-%d", i), s.deps.Queue, s.deps.Runner, s.config.Batch)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			w.Run(ctx)
		}()
	}
}

// Stop 停止 worker 并等待当前任务结束。
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
}

// Submit 提交文档。已有摘要时直接返回，否则下载、估算优先级并入队。
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	url := strings.TrimSpace(req.URL)
	if url == "" {
		return nil, errors.ErrMissingURL
	}
	entity := strings.TrimSpace(req.EntityID)
	if entity == "" {
		entity = model.DefaultEntity
	}
	docID := textutil.DocumentIdentity(url)

	cached, err := s.deps.Summaries.Get(ctx, entity, docID)
	switch {
	case err == nil:
		logger.Infow("submit served from cache", "entity", entity, "doc_identity", docID)
		return &SubmitResult{Mode: ModeCache, JobID: cached.JobID, Summary: cached}, nil
	case !stderrors.Is(err, store.ErrNotFound):
		return nil, errors.ErrDatabase.WithCause(err)
	}

	jobID := id.NewJobID()
	dest := docutil.StoragePath(s.config.WorkDir, docID, jobID)
	if err := s.deps.Fetcher.Fetch(ctx, url, dest); err != nil {
		if stderrors.Is(err, docutil.ErrNotPDF) {
			return nil, errors.ErrInvalidPDF.WithCause(err)
		}
		return nil, errors.ErrDownloadFailed.WithCause(err)
	}

	priority := UnknownPagesPriority
	if pages, err := s.deps.Pages.PageCount(ctx, dest); err != nil {
		logger.Warnw("page count failed, using default priority", "job_id", jobID, "error", err.Error())
	} else {
		priority = EstimatePriority(pages)
	}

	now := s.now().UTC()
	job := &model.Job{
		ID:          jobID,
		EntityID:    entity,
		Priority:    priority,
		SourceURI:   url,
		LocalPath:   dest,
		DocIdentity: docID,
		Status:      model.JobQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.deps.Jobs.Create(ctx, job); err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	s.deps.Queue.Push(job)

	logger.Infow("job queued", "job_id", jobID, "entity", entity, "priority", priority, "queue_len", s.deps.Queue.Len())
	return &SubmitResult{Mode: ModeAsync, JobID: jobID, Status: string(model.JobProcessing)}, nil
}

// Status 返回任务状态。
func (s *Service) Status(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := s.deps.Jobs.Get(ctx, jobID)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.ErrJobNotFound.WithMessagef("job %s not found", jobID)
	}
	if err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return job, nil
}

// LatestJob 返回实体最近更新的任务。
func (s *Service) LatestJob(ctx context.Context, entityID string) (*model.Job, error) {
	job, err := s.deps.Jobs.Latest(ctx, entityID)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.ErrEntityNotFound.WithMessagef("no job for entity %s", entityID)
	}
	if err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return job, nil
}

// History 返回实体某天的任务历史，day 为空时取当天。
func (s *Service) History(ctx context.Context, entityID, day string) ([]*model.JobHistoryEntry, error) {
	if day == "" {
		day = s.now().UTC().Format(time.DateOnly)
	}
	if _, err := time.Parse(time.DateOnly, day); err != nil {
		return nil, errors.ErrInvalidParam.WithMessagef("invalid day %q", day)
	}
	entries, err := s.deps.History.List(ctx, entityID, day)
	if err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return entries, nil
}

// Ask 回答问题。
func (s *Service) Ask(ctx context.Context, req AskRequest) (*Answer, error) {
	return s.deps.QA.Answer(ctx, req)
}

// Session 返回会话记录。
func (s *Service) Session(ctx context.Context, sessionID string) ([]*model.Interaction, error) {
	items, err := s.deps.Sessions.List(ctx, sessionID)
	if err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return items, nil
}

// ClearSession 删除会话记录。
func (s *Service) ClearSession(ctx context.Context, sessionID string) error {
	if err := s.deps.Sessions.Clear(ctx, sessionID); err != nil {
		return errors.ErrDatabase.WithCause(err)
	}
	logger.Infow("session cleared", "session_id", sessionID)
	return nil
}

// QueueLen 返回排队任务数。
func (s *Service) QueueLen() int {
	return s.deps.Queue.Len()
}

// Health 汇总队列、向量索引、生成槽位与嵌入熔断器的状态。
func (s *Service) Health(ctx context.Context) *Health {
	h := &Health{Status: HealthOK, QueueLen: s.QueueLen()}
	if s.deps.Vectors != nil {
		n, err := s.deps.Vectors.VectorCount(ctx)
		if err != nil {
			logger.Warnw("health: count vectors failed", "error", err.Error())
			h.Status = HealthDegraded
		}
		h.Vectors = n
	}
	if s.deps.Generation != nil {
		st := s.deps.Generation.Stats()
		h.Generation = &st
	}
	if s.deps.Breaker != nil {
		h.EmbeddingBreaker = s.deps.Breaker.Stats().State
		if h.EmbeddingBreaker == resilience.StateOpen.String() {
			h.Status = HealthDegraded
		}
	}
	return h
}
