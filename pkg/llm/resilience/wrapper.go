package resilience

import (
	"context"

	"github.com/kart-io/docmind/pkg/llm"
)

// EmbeddingProvider 带重试和熔断的 Embedding Provider 包装器。
type EmbeddingProvider struct {
	provider llm.EmbeddingProvider
	retry    *RetryConfig
	cb       *CircuitBreaker
}

// NewEmbeddingProvider 创建带韧性功能的 Embedding Provider。
func NewEmbeddingProvider(provider llm.EmbeddingProvider, retry *RetryConfig, cb *CircuitBreakerConfig) *EmbeddingProvider {
	if retry == nil {
		retry = DefaultRetryConfig()
	}
	return &EmbeddingProvider{
		provider: provider,
		retry:    retry,
		cb:       NewCircuitBreaker(provider.Name()+"-embedding", cb),
	}
}

// Embed 为多个文本生成向量嵌入。
func (r *EmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := RetryWithBackoff(ctx, r.retry, func() error {
		return r.cb.Execute(func() error {
			var err error
			out, err = r.provider.Embed(ctx, texts)
			return err
		})
	})
	return out, err
}

// EmbedSingle 为单个文本生成向量嵌入。
func (r *EmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := RetryWithBackoff(ctx, r.retry, func() error {
		return r.cb.Execute(func() error {
			var err error
			out, err = r.provider.EmbedSingle(ctx, text)
			return err
		})
	})
	return out, err
}

// Name 返回供应商名称。
func (r *EmbeddingProvider) Name() string {
	return r.provider.Name() + "-resilient"
}

// CircuitBreaker 获取熔断器实例。
func (r *EmbeddingProvider) CircuitBreaker() *CircuitBreaker {
	return r.cb
}

var _ llm.EmbeddingProvider = (*EmbeddingProvider)(nil)
