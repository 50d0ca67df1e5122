// Package anthropic adapts the Anthropic Messages API to model.ChatModel.
package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/devteam/model"
)

// DefaultModel is used when no model name is given.
const DefaultModel = "claude-sonnet-4-0"

// messagesAPI is the subset of the SDK client the adapter calls.
type messagesAPI interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// ChatModel calls Claude through the official SDK.
type ChatModel struct {
	messages    messagesAPI
	modelName   string
	maxTokens   int64
	temperature float64
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
		return nil, errors.New("anthropic: API key is required")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return newChatModel(&client.Messages, modelName, opts...), nil
}

func newChatModel(api messagesAPI, modelName string, opts ...Option) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	m := &ChatModel{
		messages:    api,
		modelName:   modelName,
		maxTokens:   4096,
		temperature: 0.3,
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

	system, conversation := model.SplitSystem(messages)
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(m.modelName),
		MaxTokens:   m.maxTokens,
		Temperature: anthropic.Float(m.temperature),
		Messages:    make([]anthropic.MessageParam, 0, len(conversation)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, msg := range conversation {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == model.RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	resp, err := m.messages.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return model.ChatOut{}, model.ErrEmptyResponse
	}

	return model.ChatOut{
		Text:  text.String(),
		Model: m.modelName,
		Usage: model.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}
