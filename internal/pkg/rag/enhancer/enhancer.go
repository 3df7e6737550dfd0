// Package enhancer 提供检索结果的重排序。
//
// Reranker 让生成模型为每个 (问题, 片段) 对打出 0-10 的相关性分数，
// 再按新分数稳定排序并截取 TopK。输出总是输入的一个子序列排列。
package enhancer

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/docmind/internal/pkg/rag/textutil"
	"github.com/kart-io/docmind/pkg/llm/gateway"
)

// Config 重排序配置。
type Config struct {
	// TopK 重排序后保留的片段数量。
	TopK int `mapstructure:"top-k"`
	// MaxDocumentRunes 送入模型的片段最大字符数。
	MaxDocumentRunes int `mapstructure:"max-document-runes"`
	// MaxTokens 单次评分的生成长度。
	MaxTokens int `mapstructure:"max-tokens"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		TopK:             3,
		MaxDocumentRunes: 2000,
		MaxTokens:        8,
	}
}

// Candidate 待重排序的片段。
type Candidate struct {
	// ID 片段来源标识。
	ID string
	// Content 片段内容。
	Content string
	// Score 检索阶段的分数，范围 [0, 1]。
	Score float64
}

// Reranker 基于生成模型的相关性重排序器。
type Reranker struct {
	generator gateway.Generator
	config    Config
}

// New 创建新的重排序器。
func New(generator gateway.Generator, config Config) *Reranker {
	def := DefaultConfig()
	if config.TopK <= 0 {
		config.TopK = def.TopK
	}
	if config.MaxDocumentRunes <= 0 {
		config.MaxDocumentRunes = def.MaxDocumentRunes
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = def.MaxTokens
	}
	return &Reranker{generator: generator, config: config}
}

// Rerank 对候选片段重排序。topK <= 0 时使用配置值。
// 评分失败的片段沿用检索分数（换算到 0-10）。
func (r *Reranker) Rerank(ctx context.Context, question string, candidates []Candidate, topK int) []Candidate {
	if topK <= 0 {
		topK = r.config.TopK
	}
	if len(candidates) == 0 {
		return nil
	}

	type scored struct {
		cand  Candidate
		score float64
	}
	items := make([]scored, len(candidates))
	for i, c := range candidates {
		s, err := r.scoreRelevance(ctx, question, c.Content)
		if err != nil {
			logger.Warnw("相关性评分失败，沿用检索分数", "id", c.ID, "error", err.Error())
			s = c.Score * 10
		}
		items[i] = scored{cand: c, score: s}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].score > items[j].score
	})

	if len(items) > topK {
		items = items[:topK]
	}
	out := make([]Candidate, len(items))
	for i, it := range items {
		out[i] = it.cand
	}

	logger.Debugw("重排序完成", "original_count", len(candidates), "final_count", len(out))
	return out
}

// scoreRelevance 使用生成模型评估片段与问题的相关性，返回 [0, 10]。
func (r *Reranker) scoreRelevance(ctx context.Context, question, document string) (float64, error) {
	truncatedDoc := textutil.TruncateString(document, r.config.MaxDocumentRunes)

	prompt := fmt.Sprintf(`Évalue la pertinence de l'extrait suivant pour répondre à la question.

Question : %s

Extrait : %s

Réponds uniquement par un nombre entre 0 et 10 :
- 10 : l'extrait répond directement à la question
- 5 : l'extrait contient une partie de l'information
- 0 : l'extrait n'a aucun rapport

Score :`, question, truncatedDoc)

	response, err := r.generator.Generate(ctx, gateway.Request{
		Prompt:      prompt,
		MaxTokens:   r.config.MaxTokens,
		Temperature: 0,
	})
	if err != nil {
		return 0, err
	}
	return parseScore(response)
}

var numberRegex = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

// parseScore 从模型回复中取出第一个数字并限制在 [0, 10]。
func parseScore(response string) (float64, error) {
	match := numberRegex.FindString(strings.TrimSpace(response))
	if match == "" {
		return 0, fmt.Errorf("回复中没有分数: %q", response)
	}
	score, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", "."), 64)
	if err != nil {
		return 0, err
	}
	switch {
	case score < 0:
		score = 0
	case score > 10:
		score = 10
	}
	return score, nil
}
