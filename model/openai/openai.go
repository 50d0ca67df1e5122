// Package openai adapts the OpenAI Chat Completions API to model.ChatModel.
package openai

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/dshills/devteam/model"
)

// DefaultModel is used when no model name is given.
const DefaultModel = "gpt-4o"

type completionsAPI interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// ChatModel calls OpenAI chat completions through the official SDK.
type ChatModel struct {
	completions completionsAPI
	modelName   string
	temperature float64
	maxTokens   int64
}

// Option configures a ChatModel.
type Option func(*ChatModel)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(m *ChatModel) { m.temperature = t }
}

// WithMaxTokens caps the response length.
func WithMaxTokens(n int64) Option {
	return func(m *ChatModel) { m.maxTokens = n }
}

// New returns a ChatModel for modelName authenticated with apiKey.
func New(apiKey, modelName string, opts ...Option) (*ChatModel, error) {
	if apiKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return newChatModel(&client.Chat.Completions, modelName, opts...), nil
}

func newChatModel(api completionsAPI, modelName string, opts ...Option) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	m := &ChatModel{
		completions: api,
		modelName:   modelName,
		temperature: 0.3,
		maxTokens:   4096,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	params := openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(m.modelName),
		Messages:            convertMessages(messages),
		Temperature:         openai.Float(m.temperature),
		MaxCompletionTokens: openai.Int(m.maxTokens),
	}

	completion, err := m.completions.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, err
	}
	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return model.ChatOut{}, model.ErrEmptyResponse
	}

	return model.ChatOut{
		Text:  completion.Choices[0].Message.Content,
		Model: m.modelName,
		Usage: model.Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}, nil
}

func convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}
