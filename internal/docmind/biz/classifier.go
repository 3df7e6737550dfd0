package biz

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docmind/internal/pkg/rag/textutil"
	"github.com/kart-io/docmind/pkg/llm"
	"github.com/kart-io/docmind/pkg/llm/gateway"
)

// ScopeLabel 问题的范围。
type ScopeLabel string

const (
	// ScopeGeneral 跨文档、主题性问题。
	ScopeGeneral ScopeLabel = "general"
	// ScopeSpecific 针对单个文档细节的问题。
	ScopeSpecific ScopeLabel = "specific"
)

// Scope 分类结果。
type Scope struct {
	Label      ScopeLabel `json:"label"`
	Confidence float64    `json:"confidence"`
	Reason     string     `json:"reason,omitempty"`
}

// FallbackScope 分类失败时的默认结果。
var FallbackScope = Scope{Label: ScopeSpecific, Confidence: 0.3, Reason: "fallback"}

// Classifier 问题范围分类接口。
type Classifier interface {
	Classify(ctx context.Context, question string) Scope
}

// Example 带标签的示例问题。
type Example struct {
	Question string
	Label    ScopeLabel
}

// DefaultExamples 返回内置的示例问题。
func DefaultExamples() []Example {
	return []Example{
		{Question: "Quels sont les thèmes communs à tous les documents ?", Label: ScopeGeneral},
		{Question: "Fais une synthèse de l'ensemble des rapports de l'entreprise.", Label: ScopeGeneral},
		{Question: "Quels documents parlent de la stratégie de l'entreprise ?", Label: ScopeGeneral},
		{Question: "Compare les orientations des différents documents.", Label: ScopeGeneral},
		{Question: "Quelles tendances ressortent de nos documents cette année ?", Label: ScopeGeneral},
		{Question: "Quel est le montant du budget mentionné dans ce document ?", Label: ScopeSpecific},
		{Question: "Quelle est la date de fin du contrat ?", Label: ScopeSpecific},
		{Question: "Qui est responsable du projet décrit dans le rapport ?", Label: ScopeSpecific},
		{Question: "Que dit le document sur la politique de sécurité ?", Label: ScopeSpecific},
		{Question: "Combien d'employés sont cités à la page 3 ?", Label: ScopeSpecific},
	}
}

// ClassifierConfig 分类器阈值。
type ClassifierConfig struct {
	// FastAccept 两阶段模式下示例相似度超过该值直接接受。
	FastAccept float64
	// SingleStage 只使用示例分类。
	SingleStage bool
	// SingleStageAccept 单阶段模式的接受阈值。
	SingleStageAccept float64
	// Timeout 单次生成式分类的超时。
	Timeout time.Duration
	// Attempts 生成式分类的尝试次数。
	Attempts int
	// TrustGenerative 生成式结果置信度达到该值时直接采用。
	TrustGenerative float64
	// PreferGenerative 两阶段结论不一致时，生成式置信度达到该值则采用生成式结果。
	PreferGenerative float64
}

// DefaultClassifierConfig 返回默认分类器配置。
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		FastAccept:        0.85,
		SingleStageAccept: 0.75,
		Timeout:           10 * time.Second,
		Attempts:          2,
		TrustGenerative:   0.75,
		PreferGenerative:  0.6,
	}
}

type exampleVector struct {
	Example
	vec []float32
}

// ScopeClassifier 两阶段分类：示例近邻快速分类，不确定时调用生成式分类。
type ScopeClassifier struct {
	embedder  llm.EmbeddingProvider
	generator gateway.Generator
	examples  []Example
	config    ClassifierConfig

	mu      sync.Mutex
	vectors []exampleVector
}

// NewScopeClassifier 创建分类器，examples 为空时使用 DefaultExamples。
func NewScopeClassifier(embedder llm.EmbeddingProvider, generator gateway.Generator, examples []Example, config ClassifierConfig) *ScopeClassifier {
	if len(examples) == 0 {
		examples = DefaultExamples()
	}
	if config.Attempts <= 0 {
		config.Attempts = 1
	}
	return &ScopeClassifier{
		embedder:  embedder,
		generator: generator,
		examples:  examples,
		config:    config,
	}
}

// Classify 不会失败，异常情况返回 FallbackScope。
func (c *ScopeClassifier) Classify(ctx context.Context, question string) Scope {
	fast, ok := c.fastClassify(ctx, question)

	if c.config.SingleStage {
		if ok && fast.Confidence > c.config.SingleStageAccept {
			return fast
		}
		return FallbackScope
	}
	if ok && fast.Confidence > c.config.FastAccept {
		return fast
	}

	gen := c.generativeClassify(ctx, question)
	if !ok {
		return gen
	}
	return combineScopes(fast, gen, c.config)
}

func combineScopes(fast, gen Scope, cfg ClassifierConfig) Scope {
	switch {
	case gen.Confidence >= cfg.TrustGenerative:
		return gen
	case fast.Label == gen.Label:
		return Scope{
			Label:      gen.Label,
			Confidence: (fast.Confidence + gen.Confidence) / 2,
			Reason:     gen.Reason,
		}
	case gen.Confidence >= cfg.PreferGenerative:
		return gen
	default:
		return fast
	}
}

func (c *ScopeClassifier) fastClassify(ctx context.Context, question string) (Scope, bool) {
	vectors, err := c.exampleVectors(ctx)
	if err != nil {
		logger.Warnw("example embeddings unavailable", "error", err.Error())
		return Scope{}, false
	}
	q, err := c.embedder.EmbedSingle(ctx, question)
	if err != nil {
		logger.Warnw("question embedding failed", "error", err.Error())
		return Scope{}, false
	}

	best, bestSim := -1, -1.0
	for i, ex := range vectors {
		if sim := textutil.CosineSimilarity(q, ex.vec); sim > bestSim {
			best, bestSim = i, sim
		}
	}
	if best < 0 {
		return Scope{}, false
	}
	return Scope{
		Label:      vectors[best].Label,
		Confidence: textutil.Clamp01(bestSim),
		Reason:     "exemple : " + vectors[best].Question,
	}, true
}

// exampleVectors 首次成功后缓存示例向量，失败时下次重试。
func (c *ScopeClassifier) exampleVectors(ctx context.Context) ([]exampleVector, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vectors != nil {
		return c.vectors, nil
	}

	texts := make([]string, len(c.examples))
	for i, ex := range c.examples {
		texts[i] = ex.Question
	}
	vecs, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("expected %d example embeddings, got %d", len(texts), len(vecs))
	}

	out := make([]exampleVector, len(texts))
	for i := range texts {
		out[i] = exampleVector{Example: c.examples[i], vec: vecs[i]}
	}
	c.vectors = out
	return out, nil
}

func (c *ScopeClassifier) generativeClassify(ctx context.Context, question string) Scope {
	if c.generator == nil {
		return FallbackScope
	}
	for attempt := 1; attempt <= c.config.Attempts; attempt++ {
		scope, err := c.generateOnce(ctx, question)
		if err == nil {
			return scope
		}
		logger.Warnw("generative classification failed", "attempt", attempt, "error", err.Error())
		if ctx.Err() != nil {
			break
		}
	}
	return FallbackScope
}

func (c *ScopeClassifier) generateOnce(ctx context.Context, question string) (Scope, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}
	reply, err := c.generator.Generate(ctx, gateway.Request{
		Prompt:    classifierPrompt(question),
		MaxTokens: 120,
	})
	if err != nil {
		return Scope{}, err
	}
	return ParseScope(reply)
}

// ParseScope 解析分类模型的 JSON 回复并校验字段。
func ParseScope(reply string) (Scope, error) {
	raw, err := textutil.ExtractJSONObject(reply)
	if err != nil {
		return Scope{}, err
	}

	var out struct {
		Label      string   `json:"label"`
		Confidence *float64 `json:"confidence"`
		Reason     string   `json:"reason"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return Scope{}, fmt.Errorf("decode scope: %w", err)
	}

	label := ScopeLabel(strings.ToLower(strings.TrimSpace(out.Label)))
	if label != ScopeGeneral && label != ScopeSpecific {
		return Scope{}, fmt.Errorf("unknown scope label %q", out.Label)
	}
	if out.Confidence == nil || *out.Confidence < 0 || *out.Confidence > 1 {
		return Scope{}, fmt.Errorf("invalid scope confidence")
	}
	return Scope{Label: label, Confidence: *out.Confidence, Reason: strings.TrimSpace(out.Reason)}, nil
}
