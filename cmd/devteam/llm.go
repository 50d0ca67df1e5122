package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dshills/devteam/config"
	"github.com/dshills/devteam/model"
	"github.com/dshills/devteam/model/anthropic"
	"github.com/dshills/devteam/model/google"
	"github.com/dshills/devteam/model/openai"
)

// models is the per-class model selection plus the clients to close.
type models struct {
	selector model.Selector
	closers  []io.Closer
}

func (m *models) enabled() bool {
	return m != nil && (m.selector.Technical != nil || m.selector.NonTechnical != nil)
}

func (m *models) Close() error {
	var errs []error
	for _, c := range m.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// buildModels assembles one fallback chain per agent class over the
// providers that have a key. Each provider gets one limiter shared by both
// chains. It returns empty models when no key is configured.
//
// The chains record no usage. Analyzer, reviewer and role callers record
// each call under their own agent name.
func buildModels(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*models, error) {
	out := &models{}
	if !cfg.Enabled() {
		logger.Info("no LLM provider configured, agents use canned output")
		return out, nil
	}

	limiters := make(map[string]*rate.Limiter, len(cfg.Providers))
	for _, p := range cfg.Providers {
		l, err := model.NewLimiter(cfg.RatePreset)
		if err != nil {
			return nil, err
		}
		limiters[p] = l
	}

	retry := model.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.MaxAttempts

	for _, class := range []model.AgentClass{model.Technical, model.NonTechnical} {
		var links []model.Link
		for _, p := range cfg.Providers {
			m, err := newProviderModel(ctx, cfg, p, class.Temperature())
			if err != nil {
				_ = out.Close()
				return nil, err
			}
			if m == nil {
				continue
			}
			if c, ok := m.(io.Closer); ok {
				out.closers = append(out.closers, c)
			}
			links = append(links, model.Link{Name: p, Model: m, Limiter: limiters[p]})
		}
		if len(links) == 0 {
			continue
		}
		chain := classChain(class, links, retry, logger)
		if class == model.Technical {
			out.selector.Technical = chain
		} else {
			out.selector.NonTechnical = chain
		}
		logger.Info("model chain ready", zap.String("class", string(class)), zap.Int("links", len(links)))
	}
	return out, nil
}

func classChain(class model.AgentClass, links []model.Link, retry model.RetryPolicy, logger *zap.Logger) *model.Chain {
	return model.NewChain(links,
		model.WithRetryPolicy(retry),
		model.WithLogger(logger.Named("model")),
		model.WithAgent(string(class)),
	)
}

// newProviderModel returns nil when the provider has no key.
func newProviderModel(ctx context.Context, cfg config.LLMConfig, provider string, temperature float64) (model.ChatModel, error) {
	switch provider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, nil
		}
		return anthropic.New(cfg.AnthropicAPIKey, cfg.AnthropicModel, anthropic.WithTemperature(temperature))
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, nil
		}
		return openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel, openai.WithTemperature(temperature))
	case "google":
		if cfg.GoogleAPIKey == "" {
			return nil, nil
		}
		return google.New(ctx, cfg.GoogleAPIKey, cfg.GoogleModel, google.WithTemperature(float32(temperature)))
	}
	return nil, fmt.Errorf("unknown provider %q", provider)
}
