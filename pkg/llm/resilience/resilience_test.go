package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docmind/pkg/llm"
)

var errTest = errors.New("test error")

func fastRetry(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
		Retryable:    func(error) bool { return true },
	}
}

func TestCircuitBreaker_OpenOnMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", &CircuitBreakerConfig{MaxFailures: 3, Timeout: time.Second, HalfOpenMaxCalls: 1})
	assert.Equal(t, StateClosed, cb.State())

	for i := 0; i < 3; i++ {
		assert.Error(t, cb.Execute(func() error { return errTest }))
	}
	assert.Equal(t, StateOpen, cb.State())

	// 熔断器打开后，应拒绝新请求
	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitBreakerOpen)
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("test", &CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Minute, HalfOpenMaxCalls: 1})
	cb.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error { return errTest })
	}
	require.Equal(t, StateOpen, cb.State())

	t.Run("trial failure reopens", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		assert.Error(t, cb.Execute(func() error { return errTest }))
		assert.Equal(t, StateOpen, cb.State())
	})

	t.Run("trial success closes", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		require.NoError(t, cb.Execute(func() error { return nil }))
		assert.Equal(t, StateClosed, cb.State())
		assert.Equal(t, 0, cb.Stats().Failures)
	})
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker("test", nil)
	for i := 0; i < 5; i++ {
		_ = cb.Execute(func() error { return errTest })
	}
	assert.Equal(t, "open", cb.Stats().State)

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Execute(func() error { return nil }))
}

func TestRetryWithBackoff(t *testing.T) {
	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(context.Background(), fastRetry(3), func() error {
			calls++
			if calls < 3 {
				return errTest
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(context.Background(), fastRetry(2), func() error {
			calls++
			return errTest
		})
		assert.ErrorIs(t, err, errTest)
		assert.Equal(t, 2, calls)
	})

	t.Run("stops on non retryable", func(t *testing.T) {
		cfg := fastRetry(5)
		cfg.Retryable = func(error) bool { return false }
		calls := 0
		err := RetryWithBackoff(context.Background(), cfg, func() error {
			calls++
			return errTest
		})
		assert.Equal(t, errTest, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("honours cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		cfg := fastRetry(5)
		cfg.InitialDelay = time.Second
		err := RetryWithBackoff(ctx, cfg, func() error { return errTest })
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"breaker open", ErrCircuitBreakerOpen, false},
		{"server error", &llm.StatusError{Code: http.StatusBadGateway}, true},
		{"wrapped rate limit", fmt.Errorf("embed: %w", &llm.StatusError{Code: http.StatusTooManyRequests}), true},
		{"not found", &llm.StatusError{Code: http.StatusNotFound}, false},
		{"plain", errTest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.err))
		})
	}
}

type flakyEmbedder struct {
	failures int
	calls    int
}

func (f *flakyEmbedder) Name() string { return "flaky" }

func (f *flakyEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := f.EmbedSingle(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *flakyEmbedder) EmbedSingle(context.Context, string) ([]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, &llm.StatusError{Code: http.StatusServiceUnavailable}
	}
	return []float32{1, 2}, nil
}

func TestEmbeddingProviderRetries(t *testing.T) {
	inner := &flakyEmbedder{failures: 2}
	cfg := fastRetry(3)
	cfg.Retryable = nil

	p := NewEmbeddingProvider(inner, cfg, nil)
	v, err := p.EmbedSingle(context.Background(), "texte")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, v)
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, "flaky-resilient", p.Name())
	assert.Equal(t, StateClosed, p.CircuitBreaker().State())
}
