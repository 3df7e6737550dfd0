package biz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kart-io/docmind/internal/docmind/store"
	"github.com/kart-io/docmind/internal/model"
	"github.com/kart-io/docmind/pkg/llm/gateway"
	"github.com/kart-io/docmind/pkg/utils/errors"
)

// staticClassifier 固定返回预设范围。
type staticClassifier struct {
	scope Scope
}

func (s staticClassifier) Classify(context.Context, string) Scope { return s.scope }

var (
	specificScope = Scope{Label: ScopeSpecific, Confidence: 0.9}
	generalScope  = Scope{Label: ScopeGeneral, Confidence: 0.9}
)

type qaFixture struct {
	factory  store.Factory
	gen      *mockGenerator
	embedder *mockEmbedder
	vectors  *store.MemoryIndex
	reranker *mockReranker
	indexer  *Indexer
}

func newQAFixture(t *testing.T) *qaFixture {
	t.Helper()
	f := &qaFixture{
		factory:  newTestFactory(t),
		gen:      &mockGenerator{fn: func(gateway.Request) (string, error) { return "Le budget est de 2 M€.", nil }},
		embedder: newMockEmbedder(),
		vectors:  store.NewMemoryIndex(),
		reranker: &mockReranker{},
	}
	f.indexer = NewIndexer(f.factory.Metadata(), f.vectors, f.embedder)
	f.embedder.vectors["Quel est le budget ?"] = []float32{1, 0, 0}
	f.embedder.vectors["Question hors sujet"] = []float32{0, 0, 1}
	return f
}

func (f *qaFixture) engine(scope Scope, cfg QAConfig) *QAEngine {
	return NewQAEngine(QADeps{
		Classifier: staticClassifier{scope: scope},
		Embedder:   f.embedder,
		Generator:  f.gen,
		Reranker:   f.reranker,
		Units:      f.factory.Units(),
		Vectors:    f.vectors,
		Indexer:    f.indexer,
		Sessions:   f.factory.Sessions(),
	}, cfg)
}

// seedBudgetDocument 写入 budget.pdf 的四个单元与文档向量。
// 与问题的综合分依次为 0.85、0.71、0.15、0.57。
func (f *qaFixture) seedBudgetDocument(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	embeddings := [][]float32{{1, 0, 0}, {0.8, 0.6, 0}, {0, 1, 0}, {0.6, 0.8, 0}}
	for seq, vec := range embeddings {
		require.NoError(t, f.factory.Units().Save(ctx, &model.Unit{
			EntityID:     "acme",
			JobID:        "j1",
			Sequence:     seq,
			DocumentID:   "budget.pdf",
			FirstPage:    seq,
			LastPage:     seq,
			SummaryText:  "résumé de l'unité",
			QualityScore: 0.5,
			Embedding:    vec,
		}))
	}
	// 同一任务中其他文档的单元不参与排序
	require.NoError(t, f.factory.Units().Save(ctx, &model.Unit{
		EntityID: "acme", JobID: "j1", Sequence: 9, DocumentID: "autre.pdf",
		QualityScore: 1, Embedding: model.Vector{1, 0, 0},
	}))
	require.NoError(t, f.vectors.Upsert(ctx, store.VectorEntry{
		EntityID: "acme", JobID: "j1", Filename: "budget.pdf", Embedding: []float32{1, 0, 0},
	}))
}

func TestAnswerSpecific(t *testing.T) {
	f := newQAFixture(t)
	f.seedBudgetDocument(t)
	cfg := DefaultQAConfig()

	ans, err := f.engine(specificScope, cfg).Answer(context.Background(), AskRequest{
		Question: "Quel est le budget ?",
		EntityID: "acme",
		JobID:    "j1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Le budget est de 2 M€.", ans.Text)
	assert.Equal(t, []string{"budget.pdf#0", "budget.pdf#1", "budget.pdf#3"}, ans.Evidence)
	assert.False(t, ans.Degraded)
	assert.Equal(t, specificScope, ans.Scope)
	assert.NotEmpty(t, ans.SessionID)
	assert.Equal(t, 1, f.reranker.calls)

	req := f.gen.requests()[0]
	assert.Contains(t, req.Prompt, "Source : budget.pdf, pages 1-1")
	assert.Contains(t, req.Prompt, "Question : Quel est le budget ?")
	assert.Equal(t, cfg.AnswerTokens, req.MaxTokens)
	assert.InDelta(t, cfg.Temperature, req.Temperature, 1e-9)
}

func TestAnswerSpecificRerankOrder(t *testing.T) {
	f := newQAFixture(t)
	f.seedBudgetDocument(t)
	f.reranker.reverse = true

	ans, err := f.engine(specificScope, DefaultQAConfig()).Answer(context.Background(), AskRequest{
		Question: "Quel est le budget ?", EntityID: "acme", JobID: "j1",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"budget.pdf#3", "budget.pdf#1", "budget.pdf#0"}, ans.Evidence)

	// 关闭重排序时保留检索顺序
	f.reranker.calls = 0
	cfg := DefaultQAConfig()
	cfg.EnableRerank = false
	ans, err = f.engine(specificScope, cfg).Answer(context.Background(), AskRequest{
		Question: "Quel est le budget ?", EntityID: "acme", JobID: "j1",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"budget.pdf#0", "budget.pdf#1", "budget.pdf#3"}, ans.Evidence)
	assert.Equal(t, 0, f.reranker.calls)
}

func TestAnswerSpecificThresholdFallback(t *testing.T) {
	f := newQAFixture(t)
	f.seedBudgetDocument(t)

	ans, err := f.engine(specificScope, DefaultQAConfig()).Answer(context.Background(), AskRequest{
		Question: "Question hors sujet", EntityID: "acme", JobID: "j1",
	})
	require.NoError(t, err)
	assert.True(t, ans.Degraded)
	assert.Equal(t, []string{"budget.pdf#0", "budget.pdf#1", "budget.pdf#2"}, ans.Evidence)
}

func TestAnswerSpecificNoDocument(t *testing.T) {
	f := newQAFixture(t)

	ans, err := f.engine(specificScope, DefaultQAConfig()).Answer(context.Background(), AskRequest{
		Question: "Quel est le budget ?", EntityID: "acme", JobID: "j1",
	})
	require.NoError(t, err)
	assert.Equal(t, NotFoundAnswer, ans.Text)
	assert.Empty(t, ans.Evidence)
	assert.Equal(t, 0, f.gen.count())
}

func TestAnswerGeneral(t *testing.T) {
	f := newQAFixture(t)
	ctx := context.Background()
	require.NoError(t, f.indexer.Register(ctx, &model.DocumentMetadata{
		EntityID: "acme", JobID: "j1", Filename: "budget.pdf",
		Resume:    "Le budget annuel détaille les investissements.",
		Keywords:  model.StringList{"budget", "investissements"},
		Embedding: model.Vector{1, 0, 0},
	}))
	require.NoError(t, f.indexer.Register(ctx, &model.DocumentMetadata{
		EntityID: "acme", JobID: "j2", Filename: "securite.pdf",
		Resume:   "La politique de sécurité.",
		Keywords: model.StringList{"sécurité"},
	}))

	ans, err := f.engine(generalScope, DefaultQAConfig()).Answer(ctx, AskRequest{
		Question: "Quel est le budget ?", EntityID: "acme", JobID: "j2",
	})
	require.NoError(t, err)
	// 一般问题检索实体下的全部文档
	assert.Equal(t, []string{"budget.pdf", "securite.pdf"}, ans.Evidence)

	req := f.gen.requests()[0]
	assert.Contains(t, req.Prompt, "Document : budget.pdf")
	assert.Contains(t, req.Prompt, "Document : securite.pdf")
}

func TestAnswerGeneralNoDocument(t *testing.T) {
	f := newQAFixture(t)

	ans, err := f.engine(generalScope, DefaultQAConfig()).Answer(context.Background(), AskRequest{
		Question: "Quel est le budget ?", EntityID: "acme",
	})
	require.NoError(t, err)
	assert.Equal(t, NoDocumentAnswer, ans.Text)
	assert.Equal(t, 0, f.gen.count())
}

func TestAnswerRecordsInteraction(t *testing.T) {
	f := newQAFixture(t)
	f.seedBudgetDocument(t)
	ctx := context.Background()

	ans, err := f.engine(specificScope, DefaultQAConfig()).Answer(ctx, AskRequest{
		Question:  "  Quel est le budget ?  ",
		EntityID:  "acme",
		JobID:     "j1",
		SessionID: "sess-1",
		UserID:    "u-42",
	})
	require.NoError(t, err)
	assert.Equal(t, "sess-1", ans.SessionID)

	history, err := f.factory.Sessions().List(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Quel est le budget ?", history[0].Question)
	assert.Equal(t, ans.Text, history[0].Answer)
	assert.Equal(t, model.StringList(ans.Evidence), history[0].EvidenceRefs)
	assert.Equal(t, "u-42", history[0].UserID)
	assert.Equal(t, "j1", history[0].JobID)
}

func TestAnswerSessionStoreFailure(t *testing.T) {
	f := newQAFixture(t)
	f.seedBudgetDocument(t)
	engine := NewQAEngine(QADeps{
		Classifier: staticClassifier{scope: specificScope},
		Embedder:   f.embedder,
		Generator:  f.gen,
		Units:      f.factory.Units(),
		Vectors:    f.vectors,
		Indexer:    f.indexer,
		Sessions:   failingSessions{},
	}, DefaultQAConfig())

	ans, err := engine.Answer(context.Background(), AskRequest{Question: "Quel est le budget ?", EntityID: "acme", JobID: "j1"})
	require.NoError(t, err)
	assert.Equal(t, "Le budget est de 2 M€.", ans.Text)
}

func TestAnswerGenerationFailure(t *testing.T) {
	f := newQAFixture(t)
	f.seedBudgetDocument(t)
	f.gen.fn = func(gateway.Request) (string, error) { return "", gateway.ErrGenerationFailed }
	ctx := context.Background()

	ans, err := f.engine(specificScope, DefaultQAConfig()).Answer(ctx, AskRequest{
		Question: "Quel est le budget ?", EntityID: "acme", JobID: "j1", SessionID: "sess-2",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAnswerFailed)
	require.NotNil(t, ans)
	assert.Equal(t, gateway.FailureText, ans.Text)

	history, err := f.factory.Sessions().List(ctx, "sess-2")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, gateway.FailureText, history[0].Answer)
}

// unreachableIndex 模拟向量库连接中断，Search 返回 gRPC Unavailable。
type unreachableIndex struct {
	*store.MemoryIndex
}

func (unreachableIndex) Search(context.Context, string, string, []float32, int) ([]store.VectorHit, error) {
	return nil, errors.FromGRPC(status.Error(codes.Unavailable, "connection refused"), errors.ErrVectorStore)
}

func TestAnswerVectorStoreUnavailable(t *testing.T) {
	f := newQAFixture(t)
	f.seedBudgetDocument(t)
	e := NewQAEngine(QADeps{
		Classifier: staticClassifier{scope: specificScope},
		Embedder:   f.embedder,
		Generator:  f.gen,
		Reranker:   f.reranker,
		Units:      f.factory.Units(),
		Vectors:    unreachableIndex{f.vectors},
		Indexer:    f.indexer,
		Sessions:   f.factory.Sessions(),
	}, DefaultQAConfig())

	ans, err := e.Answer(context.Background(), AskRequest{
		Question: "Quel est le budget ?", EntityID: "acme", JobID: "j1", SessionID: "sess-3",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnavailable)
	assert.NotErrorIs(t, err, errors.ErrAnswerFailed)
	require.NotNil(t, ans)
	assert.Equal(t, gateway.FailureText, ans.Text)
	assert.Empty(t, f.gen.calls)
}

func TestAnswerValidation(t *testing.T) {
	f := newQAFixture(t)

	_, err := f.engine(specificScope, DefaultQAConfig()).Answer(context.Background(), AskRequest{Question: "   "})
	assert.ErrorIs(t, err, errors.ErrMissingQuestion)
}

func TestAnswerReformulate(t *testing.T) {
	f := newQAFixture(t)
	f.seedBudgetDocument(t)
	cfg := DefaultQAConfig()

	_, err := f.engine(specificScope, cfg).Answer(context.Background(), AskRequest{
		Question: "Quel est le budget ?", EntityID: "acme", JobID: "j1", Reformulate: true,
	})
	require.NoError(t, err)

	req := f.gen.requests()[0]
	assert.InDelta(t, cfg.Temperature+0.3, req.Temperature, 1e-9)
	assert.Contains(t, req.Prompt, "nettement différente")
}
