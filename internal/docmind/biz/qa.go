package biz

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docmind/internal/docmind/store"
	"github.com/kart-io/docmind/internal/model"
	"github.com/kart-io/docmind/internal/pkg/rag/enhancer"
	"github.com/kart-io/docmind/internal/pkg/rag/textutil"
	"github.com/kart-io/docmind/pkg/id"
	"github.com/kart-io/docmind/pkg/llm"
	"github.com/kart-io/docmind/pkg/llm/gateway"
	"github.com/kart-io/docmind/pkg/utils/errors"
)

// Reranker 对候选证据重新排序，返回输入的子集。
type Reranker interface {
	Rerank(ctx context.Context, question string, candidates []enhancer.Candidate, topK int) []enhancer.Candidate
}

// AskRequest 问答请求。
type AskRequest struct {
	Question    string `json:"question"`
	JobID       string `json:"job_id"`
	EntityID    string `json:"entity_id"`
	SessionID   string `json:"session_id,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	Reformulate bool   `json:"reformulate,omitempty"`
}

// Answer 问答结果。Degraded 表示没有单元达到相关性阈值，证据为全局最高分单元。
type Answer struct {
	Text      string   `json:"answer"`
	Scope     Scope    `json:"scope"`
	Evidence  []string `json:"evidence"`
	Degraded  bool     `json:"degraded"`
	SessionID string   `json:"session_id"`
}

// QAConfig 问答引擎配置。
type QAConfig struct {
	RelevanceThreshold float64
	ShortlistSize      int
	EvidenceSize       int
	GeneralTopK        int
	AnswerTokens       int
	Temperature        float64
	EnableRerank       bool
}

// DefaultQAConfig 返回默认问答配置。
func DefaultQAConfig() QAConfig {
	return QAConfig{
		RelevanceThreshold: 0.4,
		ShortlistSize:      5,
		EvidenceSize:       3,
		GeneralTopK:        5,
		AnswerTokens:       500,
		Temperature:        0.2,
		EnableRerank:       true,
	}
}

// 单元综合分的权重。
const (
	similarityWeight = 0.7
	qualityWeight    = 0.3
)

// QAEngine 范围分类、检索、重排序与有依据的回答生成。
type QAEngine struct {
	classifier Classifier
	embedder   llm.EmbeddingProvider
	generator  gateway.Generator
	reranker   Reranker
	units      store.UnitStore
	vectors    store.VectorIndex
	indexer    *Indexer
	sessions   store.SessionStore
	config     QAConfig
	now        func() time.Time
}

// QADeps 问答引擎依赖。Reranker 为 nil 时不做重排序。
type QADeps struct {
	Classifier Classifier
	Embedder   llm.EmbeddingProvider
	Generator  gateway.Generator
	Reranker   Reranker
	Units      store.UnitStore
	Vectors    store.VectorIndex
	Indexer    *Indexer
	Sessions   store.SessionStore
}

// NewQAEngine 创建问答引擎。
func NewQAEngine(deps QADeps, config QAConfig) *QAEngine {
	return &QAEngine{
		classifier: deps.Classifier,
		embedder:   deps.Embedder,
		generator:  deps.Generator,
		reranker:   deps.Reranker,
		units:      deps.Units,
		vectors:    deps.Vectors,
		indexer:    deps.Indexer,
		sessions:   deps.Sessions,
		config:     config,
		now:        time.Now,
	}
}

// scoredUnit 参与排序的单元。
type scoredUnit struct {
	unit  *model.Unit
	score float64
}

// Answer 回答问题并记录会话。记录失败只写日志。
func (e *QAEngine) Answer(ctx context.Context, req AskRequest) (*Answer, error) {
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return nil, errors.ErrMissingQuestion
	}
	if req.EntityID == "" {
		req.EntityID = model.DefaultEntity
	}
	if req.SessionID == "" {
		req.SessionID = id.NewSessionID()
	}

	scope := e.classifier.Classify(ctx, req.Question)
	logger.Infow("question classified",
		"entity", req.EntityID,
		"session_id", req.SessionID,
		"label", scope.Label,
		"confidence", scope.Confidence,
	)

	var (
		ans *Answer
		err error
	)
	if scope.Label == ScopeGeneral {
		ans, err = e.answerGeneral(ctx, req)
	} else {
		ans, err = e.answerSpecific(ctx, req)
	}
	if ans == nil {
		ans = &Answer{Text: gateway.FailureText}
	}
	ans.Scope = scope
	ans.SessionID = req.SessionID

	e.record(ctx, req, ans)
	if err != nil {
		// 后端已给出错误码（如向量库不可用）时保留
		var en *errors.Errno
		if stderrors.As(err, &en) {
			return ans, err
		}
		return ans, errors.ErrAnswerFailed.WithCause(err)
	}
	return ans, nil
}

func (e *QAEngine) answerSpecific(ctx context.Context, req AskRequest) (*Answer, error) {
	qvec, err := e.embedder.EmbedSingle(ctx, req.Question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	docs, err := e.vectors.Search(ctx, req.EntityID, req.JobID, qvec, 1)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	if len(docs) == 0 {
		logger.Infow("no document for question", "entity", req.EntityID, "job_id", req.JobID)
		return &Answer{Text: NotFoundAnswer}, nil
	}
	doc := docs[0]

	units, err := e.units.List(ctx, req.EntityID, doc.JobID)
	if err != nil {
		return nil, fmt.Errorf("load units: %w", err)
	}

	shortlist, degraded := e.rankUnits(qvec, doc.Filename, units)
	if len(shortlist) == 0 {
		return &Answer{Text: NotFoundAnswer}, nil
	}
	if degraded {
		logger.Warnw("retrieval threshold fallback",
			"entity", req.EntityID,
			"filename", doc.Filename,
			"threshold", e.config.RelevanceThreshold,
			"best_score", shortlist[0].score,
		)
	}

	evidence := e.selectEvidence(ctx, req.Question, shortlist)
	blocks := make([]evidenceBlock, len(evidence))
	refs := make([]string, len(evidence))
	for i, u := range evidence {
		refs[i] = evidenceRef(u)
		blocks[i] = evidenceBlock{
			Label: fmt.Sprintf("Source : %s, pages %d-%d", u.DocumentID, u.FirstPage+1, u.LastPage+1),
			Text:  u.SummaryText,
		}
	}

	text, err := e.generator.Generate(ctx, gateway.Request{
		Prompt:      groundedPrompt(req.Question, blocks, req.Reformulate),
		MaxTokens:   e.config.AnswerTokens,
		Temperature: e.temperature(req.Reformulate),
	})
	if err != nil {
		return &Answer{Text: gateway.FailureText, Evidence: refs, Degraded: degraded}, err
	}
	return &Answer{Text: text, Evidence: refs, Degraded: degraded}, nil
}

// rankUnits 对选中文档的单元打分，返回按分数降序的候选列表。
// 无单元达到阈值时回退到全部有向量的单元，并返回 degraded = true。
func (e *QAEngine) rankUnits(qvec []float32, filename string, units []*model.Unit) ([]scoredUnit, bool) {
	var all, kept []scoredUnit
	for _, u := range units {
		if u.DocumentID != filename || len(u.Embedding) != len(qvec) {
			continue
		}
		s := similarityWeight*textutil.CosineSimilarity(qvec, u.Embedding) + qualityWeight*u.QualityScore
		su := scoredUnit{unit: u, score: s}
		all = append(all, su)
		if s >= e.config.RelevanceThreshold {
			kept = append(kept, su)
		}
	}

	degraded := false
	if len(kept) == 0 && len(all) > 0 {
		kept, degraded = all, true
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].score > kept[j].score })
	if len(kept) > e.config.ShortlistSize {
		kept = kept[:e.config.ShortlistSize]
	}
	return kept, degraded
}

func (e *QAEngine) selectEvidence(ctx context.Context, question string, shortlist []scoredUnit) []*model.Unit {
	byRef := make(map[string]*model.Unit, len(shortlist))
	candidates := make([]enhancer.Candidate, len(shortlist))
	for i, su := range shortlist {
		ref := evidenceRef(su.unit)
		byRef[ref] = su.unit
		candidates[i] = enhancer.Candidate{ID: ref, Content: su.unit.SummaryText, Score: su.score}
	}

	if e.config.EnableRerank && e.reranker != nil {
		candidates = e.reranker.Rerank(ctx, question, candidates, e.config.EvidenceSize)
	}
	if len(candidates) > e.config.EvidenceSize {
		candidates = candidates[:e.config.EvidenceSize]
	}

	out := make([]*model.Unit, 0, len(candidates))
	for _, c := range candidates {
		if u, ok := byRef[c.ID]; ok {
			out = append(out, u)
		}
	}
	return out
}

func (e *QAEngine) answerGeneral(ctx context.Context, req AskRequest) (*Answer, error) {
	qvec, err := e.embedder.EmbedSingle(ctx, req.Question)
	if err != nil {
		logger.Warnw("question embedding failed, keyword search only", "error", err.Error())
		qvec = nil
	}

	docs := e.indexer.HybridSearch(ctx, req.EntityID, "", req.Question, qvec, e.config.GeneralTopK)
	if len(docs) == 0 {
		return &Answer{Text: NoDocumentAnswer}, nil
	}

	refs := make([]string, len(docs))
	for i, d := range docs {
		refs[i] = d.Filename
	}
	text, err := e.generator.Generate(ctx, gateway.Request{
		Prompt:      synthesisPrompt(req.Question, docs),
		MaxTokens:   e.config.AnswerTokens,
		Temperature: e.temperature(req.Reformulate),
	})
	if err != nil {
		return &Answer{Text: gateway.FailureText, Evidence: refs}, err
	}
	return &Answer{Text: text, Evidence: refs}, nil
}

func (e *QAEngine) temperature(reformulate bool) float64 {
	if reformulate {
		return e.config.Temperature + 0.3
	}
	return e.config.Temperature
}

func (e *QAEngine) record(ctx context.Context, req AskRequest, ans *Answer) {
	err := e.sessions.Append(ctx, &model.Interaction{
		SessionID:    req.SessionID,
		Question:     req.Question,
		Answer:       ans.Text,
		EvidenceRefs: model.StringList(append([]string{}, ans.Evidence...)),
		JobID:        req.JobID,
		UserID:       req.UserID,
		Timestamp:    e.now().UTC(),
	})
	if err != nil {
		logger.Errorw("failed to record interaction", "session_id", req.SessionID, "error", err.Error())
	}
}

func evidenceRef(u *model.Unit) string {
	return fmt.Sprintf("%s#%d", u.DocumentID, u.Sequence)
}
