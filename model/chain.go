package model

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrAllModelsFailed wraps the per-link errors when no link of a chain
// produced a response.
var ErrAllModelsFailed = errors.New("all models in chain failed")

// Link is one model of a fallback chain.
type Link struct {
	// Name labels the link in logs and cost records.
	Name  string
	Model ChatModel
	// Limiter throttles calls to this link. Nil means unlimited.
	Limiter *rate.Limiter
}

// Chain tries its links in order until one answers. Each link is retried
// per the chain's RetryPolicy and throttled by its own limiter.
type Chain struct {
	links  []Link
	retry  RetryPolicy
	logger *zap.Logger
	costs  *CostTracker
	agent  string
	rng    *rand.Rand
	sleep  func(context.Context, time.Duration) error
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithRetryPolicy overrides DefaultRetryPolicy. Invalid policies are ignored.
func WithRetryPolicy(p RetryPolicy) ChainOption {
	return func(c *Chain) {
		if p.Validate() == nil {
			c.retry = p
		}
	}
}

// WithLogger sets the logger used for fallback and retry messages.
func WithLogger(l *zap.Logger) ChainOption {
	return func(c *Chain) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCostTracker records token usage of every successful call.
func WithCostTracker(t *CostTracker) ChainOption {
	return func(c *Chain) { c.costs = t }
}

// WithAgent labels cost records with the calling agent.
func WithAgent(name string) ChainOption {
	return func(c *Chain) { c.agent = name }
}

// NewChain builds a chain over links.
func NewChain(links []Link, opts ...ChainOption) *Chain {
	c := &Chain{
		links:  links,
		retry:  DefaultRetryPolicy(),
		logger: zap.NewNop(),
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Links returns the chain's links in fallback order.
func (c *Chain) Links() []Link {
	return append([]Link(nil), c.links...)
}

// Chat implements ChatModel.
func (c *Chain) Chat(ctx context.Context, messages []Message) (ChatOut, error) {
	if len(c.links) == 0 {
		return ChatOut{}, fmt.Errorf("%w: chain is empty", ErrAllModelsFailed)
	}

	var errs []error
	for i, link := range c.links {
		out, err := c.callLink(ctx, link, messages)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback model answered",
					zap.String("link", link.Name),
					zap.Int("position", i),
				)
			}
			c.record(link, out)
			return out, nil
		}
		if ctx.Err() != nil {
			return ChatOut{}, ctx.Err()
		}
		c.logger.Warn("model link failed",
			zap.String("link", link.Name),
			zap.Error(err),
		)
		errs = append(errs, fmt.Errorf("%s: %w", link.Name, err))
	}
	return ChatOut{}, fmt.Errorf("%w: %w", ErrAllModelsFailed, errors.Join(errs...))
}

func (c *Chain) callLink(ctx context.Context, link Link, messages []Message) (ChatOut, error) {
	var lastErr error
	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := computeBackoff(attempt-1, c.retry.BaseDelay, c.retry.MaxDelay, c.rng)
			if err := c.sleep(ctx, delay); err != nil {
				return ChatOut{}, err
			}
		}
		if link.Limiter != nil {
			if err := link.Limiter.Wait(ctx); err != nil {
				return ChatOut{}, err
			}
		}

		out, err := link.Model.Chat(ctx, messages)
		if err == nil && out.Text == "" {
			err = ErrEmptyResponse
		}
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !c.retry.retryable(err) {
			break
		}
	}
	return ChatOut{}, lastErr
}

func (c *Chain) record(link Link, out ChatOut) {
	if c.costs == nil {
		return
	}
	name := out.Model
	if name == "" {
		name = link.Name
	}
	c.costs.RecordLLMCall(name, out.Usage.InputTokens, out.Usage.OutputTokens, c.agent)
}
