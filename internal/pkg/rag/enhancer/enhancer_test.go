package enhancer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docmind/pkg/llm/gateway"
)

// mockGenerator 按片段内容返回预设分数。
type mockGenerator struct {
	scores map[string]string
	calls  int
}

func (m *mockGenerator) Generate(_ context.Context, req gateway.Request) (string, error) {
	m.calls++
	for content, reply := range m.scores {
		if strings.Contains(req.Prompt, "Extrait : "+content+"\n") {
			if reply == "error" {
				return "", errors.New("backend down")
			}
			return reply, nil
		}
	}
	return "0", nil
}

func TestRerank(t *testing.T) {
	gen := &mockGenerator{scores: map[string]string{
		"a": "2",
		"b": "Score : 9",
		"c": "7,5",
		"d": "error",
	}}
	r := New(gen, Config{TopK: 3})

	in := []Candidate{
		{ID: "a", Content: "a", Score: 0.9},
		{ID: "b", Content: "b", Score: 0.5},
		{ID: "c", Content: "c", Score: 0.6},
		{ID: "d", Content: "d", Score: 0.8},
	}
	out := r.Rerank(context.Background(), "question ?", in, 0)

	require.Len(t, out, 3)
	// d 评分失败，沿用 0.8*10 = 8
	assert.Equal(t, []string{"b", "d", "c"}, ids(out))
	assert.Equal(t, 4, gen.calls)
}

func TestRerankIsSubsetPermutation(t *testing.T) {
	gen := &mockGenerator{scores: map[string]string{}}
	r := New(gen, DefaultConfig())

	in := []Candidate{{ID: "x", Content: "x"}, {ID: "y", Content: "y"}, {ID: "z", Content: "z"}}
	out := r.Rerank(context.Background(), "q", in, 5)

	// 分数相同保持原顺序
	assert.Equal(t, []string{"x", "y", "z"}, ids(out))
}

func TestRerankEmpty(t *testing.T) {
	r := New(&mockGenerator{}, DefaultConfig())
	assert.Empty(t, r.Rerank(context.Background(), "q", nil, 3))
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"8", 8, false},
		{" 6.5 ", 6.5, false},
		{"note: 4,5/10", 4.5, false},
		{"42", 10, false},
		{"aucune idée", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseScore(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func ids(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}
