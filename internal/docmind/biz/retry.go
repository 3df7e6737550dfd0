package biz

import (
	"context"
	"strings"

	"github.com/kart-io/logger"
)

// Candidate 一次生成尝试的结果。
type Candidate struct {
	Text       string
	Score      float64
	Translated bool
}

// AttemptFunc 执行第 attempt 次尝试（从 1 开始，跨层连续编号）。
type AttemptFunc func(ctx context.Context, attempt int) (Candidate, error)

// RetryPolicy 有界重试：最多 MaxAttempts 次，最佳分数达到 AcceptanceThreshold 时提前结束。
type RetryPolicy struct {
	Name                string
	MaxAttempts         int
	AcceptanceThreshold float64
}

// Run 从 best 出发执行尝试并返回分数最高的候选。
// 失败的尝试（错误或空文本）记为 0 分，不会替换 best，因此返回分数不低于 best。
func (p RetryPolicy) Run(ctx context.Context, improve AttemptFunc, best Candidate) Candidate {
	return p.run(ctx, improve, best, 0)
}

func (p RetryPolicy) run(ctx context.Context, improve AttemptFunc, best Candidate, offset int) Candidate {
	for i := 1; i <= p.MaxAttempts; i++ {
		if best.Text != "" && best.Score >= p.AcceptanceThreshold {
			break
		}
		if ctx.Err() != nil {
			logger.Warnw("retry loop interrupted", "policy", p.Name, "error", ctx.Err().Error())
			break
		}

		attempt := offset + i
		c, err := improve(ctx, attempt)
		if err != nil || strings.TrimSpace(c.Text) == "" {
			fields := []any{"policy", p.Name, "attempt", attempt, "score", 0.0}
			if err != nil {
				fields = append(fields, "error", err.Error())
			}
			logger.Warnw("attempt failed", fields...)
			continue
		}

		logger.Debugw("attempt scored", "policy", p.Name, "attempt", attempt, "score", c.Score)
		if best.Text == "" || c.Score > best.Score {
			best = c
		}
	}
	return best
}

// TwoTierRetry 两级重试，两级共用 RetryPolicy 的控制流。
type TwoTierRetry struct {
	Primary   RetryPolicy
	Secondary RetryPolicy
}

// DefaultTwoTierRetry 返回默认配置：第一级 4 次、阈值 0.70；第二级 4 次、阈值 0.65。
func DefaultTwoTierRetry() TwoTierRetry {
	return TwoTierRetry{
		Primary:   RetryPolicy{Name: "primary", MaxAttempts: 4, AcceptanceThreshold: 0.70},
		Secondary: RetryPolicy{Name: "secondary", MaxAttempts: 4, AcceptanceThreshold: 0.65},
	}
}

// Run 先执行第一级；最佳分数低于第一级阈值时进入第二级。
// 第二级在最佳分数已达到其阈值时直接接受，否则继续尝试。
func (t TwoTierRetry) Run(ctx context.Context, improve AttemptFunc) Candidate {
	best := t.Primary.Run(ctx, improve, Candidate{})
	if best.Text != "" && best.Score >= t.Primary.AcceptanceThreshold {
		return best
	}
	if best.Text != "" && best.Score >= t.Secondary.AcceptanceThreshold {
		logger.Debugw("secondary threshold met without retry", "score", best.Score)
		return best
	}
	return t.Secondary.run(ctx, improve, best, t.Primary.MaxAttempts)
}
