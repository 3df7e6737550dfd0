// Package gateway funnels generation calls through a small worker pool.
//
// The generation backend is usually a single local instance, so every call
// waits for one of a fixed number of slots. Each call tries the candidate
// models in order and fails only when all of them fail or answer empty text.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docmind/pkg/infra/pool"
	"github.com/kart-io/docmind/pkg/llm"
)

// FailureText is returned to users when no model could answer.
const FailureText = "Échec de génération IA"

// ErrGenerationFailed is returned when every candidate model failed.
var ErrGenerationFailed = errors.New(FailureText)

// Request is one generation call.
type Request struct {
	Prompt      string
	System      string
	MaxTokens   int
	Temperature float64
	TopK        int
	// Models overrides the gateway's default candidates when non-empty.
	Models []string
}

// Generator is what callers depend on.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Config configures a Gateway.
type Config struct {
	// Slots is the number of concurrent calls allowed to reach the backend.
	Slots int
	// Timeout bounds one model attempt, waiting time included.
	Timeout time.Duration
	// Models are the default candidates, tried in order.
	Models []string
}

// Gateway serializes generation calls through an ants pool.
type Gateway struct {
	provider llm.ChatProvider
	pool     *pool.Pool
	timeout  time.Duration
	models   []string
}

// New creates a Gateway.
func New(provider llm.ChatProvider, cfg Config) (*Gateway, error) {
	if provider == nil {
		return nil, fmt.Errorf("chat provider is nil")
	}
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("at least one model candidate is required")
	}

	p, err := pool.NewPool("generation", pool.GenerationPool, pool.GenerationPoolConfig(cfg.Slots))
	if err != nil {
		return nil, fmt.Errorf("create generation pool: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &Gateway{
		provider: provider,
		pool:     p,
		timeout:  timeout,
		models:   append([]string(nil), cfg.Models...),
	}, nil
}

// Generate runs req against the candidate models in order.
func (g *Gateway) Generate(ctx context.Context, req Request) (string, error) {
	models := req.Models
	if len(models) == 0 {
		models = g.models
	}

	var errs []error
	for _, model := range models {
		text, err := g.attempt(ctx, model, req)
		if err == nil {
			return text, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", model, err))
		logger.Warnw("generation attempt failed",
			"model", model,
			"error", err.Error(),
		)
		if ctx.Err() != nil {
			break
		}
	}

	return "", fmt.Errorf("%w: %w", ErrGenerationFailed, errors.Join(errs...))
}

func (g *Gateway) attempt(ctx context.Context, model string, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	text, err := pool.Do(ctx, g.pool, func(ctx context.Context) (string, error) {
		return g.provider.Generate(ctx, req.Prompt, llm.GenerateOptions{
			Model:       model,
			System:      req.System,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
			TopK:        req.TopK,
		})
	})
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty response")
	}
	logger.Debugw("generation completed",
		"model", model,
		"duration_ms", time.Since(start).Milliseconds(),
		"chars", len(text),
	)
	return text, nil
}

// Stats is a snapshot of the generation slots.
type Stats struct {
	Slots     int      `json:"slots"`
	Running   int      `json:"running"`
	Submitted int64    `json:"submitted"`
	Completed int64    `json:"completed"`
	Rejected  int64    `json:"rejected"`
	Models    []string `json:"models"`
}

// Stats reports slot usage and the default model candidates.
func (g *Gateway) Stats() Stats {
	ps := g.pool.Stats()
	return Stats{
		Slots:     g.pool.Cap(),
		Running:   g.pool.Running(),
		Submitted: ps.SubmittedTasks,
		Completed: ps.CompletedTasks,
		Rejected:  ps.RejectedTasks,
		Models:    g.Models(),
	}
}

// Models returns the default model candidates.
func (g *Gateway) Models() []string {
	return append([]string(nil), g.models...)
}

// Close releases the worker pool.
func (g *Gateway) Close() {
	g.pool.Release()
}

var _ Generator = (*Gateway)(nil)
