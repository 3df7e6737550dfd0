package biz

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kart-io/docmind/internal/docmind/store"
	"github.com/kart-io/docmind/internal/model"
	"github.com/kart-io/docmind/internal/pkg/rag/enhancer"
	"github.com/kart-io/docmind/pkg/component/database"
	"github.com/kart-io/docmind/pkg/llm/gateway"
	dbopts "github.com/kart-io/docmind/pkg/options/database"
)

// mockGenerator 按提示内容回复，记录全部请求。
type mockGenerator struct {
	mu    sync.Mutex
	calls []gateway.Request
	fn    func(req gateway.Request) (string, error)
}

func (m *mockGenerator) Generate(_ context.Context, req gateway.Request) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	if m.fn == nil {
		return "réponse", nil
	}
	return m.fn(req)
}

func (m *mockGenerator) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockGenerator) requests() []gateway.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]gateway.Request(nil), m.calls...)
}

// mockEmbedder 返回预设向量，未知文本使用 fallback。
type mockEmbedder struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	fallback []float32
	err      error
	calls    int
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{vectors: make(map[string][]float32), fallback: []float32{1, 0, 0}}
}

func (m *mockEmbedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if v, ok := m.vectors[text]; ok {
		return v, nil
	}
	return m.fallback, nil
}

func (m *mockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.EmbedSingle(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *mockEmbedder) Name() string { return "mock" }

// mockScorer 由 fn 决定分数。
type mockScorer struct {
	mu    sync.Mutex
	fn    func(reference, candidate string, partials []string) (float64, error)
	calls int
}

func (m *mockScorer) Score(_ context.Context, reference, candidate string, partials []string) (float64, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.fn == nil {
		return 0.8, nil
	}
	return m.fn(reference, candidate, partials)
}

// sequenceScorer 依次返回预设分数。
func sequenceScorer(scores ...float64) *mockScorer {
	var mu sync.Mutex
	i := 0
	return &mockScorer{fn: func(string, string, []string) (float64, error) {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(scores) {
			return 0, nil
		}
		s := scores[i]
		i++
		return s, nil
	}}
}

type mockNormalizer struct {
	translate bool
}

func (m mockNormalizer) Normalize(_ context.Context, text string) (string, bool) {
	if m.translate {
		return "[fr] " + text, true
	}
	return text, false
}

// fakeSource 以内存页面模拟 PDF，页码从 1 开始。
type fakeSource struct {
	pages      []string
	countErr   error
	extractErr error
}

func (f *fakeSource) PageCount(context.Context, string) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return len(f.pages), nil
}

func (f *fakeSource) ExtractPages(_ context.Context, _ string, first, last int) (string, error) {
	if f.extractErr != nil {
		return "", f.extractErr
	}
	if first < 1 || last > len(f.pages) || first > last {
		return "", fmt.Errorf("bad range %d-%d", first, last)
	}
	return strings.Join(f.pages[first-1:last], "\n"), nil
}

func (f *fakeSource) PageLines(ctx context.Context, path string, page int) ([]string, error) {
	text, err := f.ExtractPages(ctx, path, page, page)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

// pageText 生成足够长的页面正文。
func pageText(n int) string {
	return fmt.Sprintf("Page %d : le rapport décrit la stratégie commerciale et les objectifs financiers de l'année.", n)
}

type mockReranker struct {
	reverse bool
	calls   int
}

func (m *mockReranker) Rerank(_ context.Context, _ string, candidates []enhancer.Candidate, topK int) []enhancer.Candidate {
	m.calls++
	out := append([]enhancer.Candidate(nil), candidates...)
	if m.reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

type failingSessions struct{}

func (failingSessions) Append(context.Context, *model.Interaction) error {
	return fmt.Errorf("session store down")
}

func (failingSessions) List(context.Context, string) ([]*model.Interaction, error) {
	return nil, fmt.Errorf("session store down")
}

func (failingSessions) Clear(context.Context, string) error { return nil }

func newTestFactory(t *testing.T) store.Factory {
	t.Helper()
	opts := dbopts.NewOptions()
	opts.Path = filepath.Join(t.TempDir(), "docmind.db")

	client, err := database.New(context.Background(), opts)
	require.NoError(t, err)
	f, err := store.NewFactory(context.Background(), client.DB())
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}
