// Package llm 提供统一的模型供应商抽象层。
// Embedding 与文本生成可以使用不同供应商的模型。
package llm

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// EmbeddingProvider 定义 Embedding 供应商接口。
type EmbeddingProvider interface {
	// Embed 为多个文本生成向量嵌入。
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle 为单个文本生成向量嵌入。
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Name 返回供应商名称。
	Name() string
}

// GenerateOptions 单次生成调用的参数。零值字段使用供应商默认值。
type GenerateOptions struct {
	Model       string
	System      string
	MaxTokens   int
	Temperature float64
	TopK        int
}

// ChatProvider 定义文本生成供应商接口。
type ChatProvider interface {
	// Generate 根据提示生成文本（单轮）。
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// Name 返回供应商名称。
	Name() string
}

// ModelLister 可以列出已安装模型的供应商。
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Provider 同时支持 Embedding 和生成的完整供应商。
type Provider interface {
	EmbeddingProvider
	ChatProvider
}

// StatusError 供应商返回的非 2xx 响应。
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s 请求失败，状态码 %d: %s", e.Provider, e.Code, e.Body)
}

// Temporary 报告该状态码是否值得重试。
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests ||
		e.Code == http.StatusRequestTimeout ||
		e.Code >= http.StatusInternalServerError
}

// ProviderFactory 供应商工厂函数类型。
type ProviderFactory func(config map[string]any) (Provider, error)

var registry = &providerRegistry{
	providers: make(map[string]ProviderFactory),
}

type providerRegistry struct {
	mu        sync.RWMutex
	providers map[string]ProviderFactory
}

// RegisterProvider 注册供应商工厂。
func RegisterProvider(name string, factory ProviderFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.providers[name] = factory
}

// NewProvider 根据名称创建供应商实例。
func NewProvider(name string, config map[string]any) (Provider, error) {
	registry.mu.RLock()
	factory, ok := registry.providers[name]
	registry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider: %s (registered: %s)", name, strings.Join(ListProviders(), ", "))
	}
	return factory(config)
}

// NewEmbeddingProvider 根据名称创建 Embedding 供应商实例。
func NewEmbeddingProvider(name string, config map[string]any) (EmbeddingProvider, error) {
	p, err := NewProvider(name, config)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	return p, nil
}

// NewChatProvider 根据名称创建生成供应商实例。
func NewChatProvider(name string, config map[string]any) (ChatProvider, error) {
	p, err := NewProvider(name, config)
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}
	return p, nil
}

// ListProviders 列出所有已注册的供应商名称（按字母序）。
func ListProviders() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	names := make([]string, 0, len(registry.providers))
	for name := range registry.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
