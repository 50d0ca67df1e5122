// Package google adapts Gemini models to model.ChatModel.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/dshills/devteam/model"
)

// DefaultModel is used when no model name is given.
const DefaultModel = "gemini-2.5-flash"

// generator sends one turn with history and returns the raw response.
type generator interface {
	generate(ctx context.Context, system string, history []*genai.Content, prompt string) (*genai.GenerateContentResponse, error)
}

// ChatModel calls Gemini through the generative-ai-go client.
type ChatModel struct {
	gen       generator
	modelName string
	closer    func() error
}

// Option configures the underlying generative model.
type Option func(*genai.GenerativeModel)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) Option {
	return func(gm *genai.GenerativeModel) { gm.SetTemperature(t) }
}

// WithMaxTokens caps the response length.
func WithMaxTokens(n int32) Option {
	return func(gm *genai.GenerativeModel) { gm.SetMaxOutputTokens(n) }
}

// New connects to the Gemini API. Call Close when done.
func New(ctx context.Context, apiKey, modelName string, opts ...Option) (*ChatModel, error) {
	if apiKey == "" {
		return nil, errors.New("google: API key is required")
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("google: create client: %w", err)
	}
	return &ChatModel{
		gen:       &clientGenerator{client: client, modelName: modelName, opts: opts},
		modelName: modelName,
		closer:    client.Close,
	}, nil
}

// Close releases the client.
func (m *ChatModel) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer()
}

// Chat implements model.ChatModel. All turns but the last become chat
// history; the last is sent as the prompt.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	system, conversation := model.SplitSystem(messages)
	if len(conversation) == 0 {
		return model.ChatOut{}, errors.New("google: no user message")
	}
	history := make([]*genai.Content, 0, len(conversation)-1)
	for _, msg := range conversation[:len(conversation)-1] {
		role := "user"
		if msg.Role == model.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(msg.Content)}})
	}

	resp, err := m.gen.generate(ctx, system, history, conversation[len(conversation)-1].Content)
	if err != nil {
		return model.ChatOut{}, err
	}
	return parseResponse(resp, m.modelName)
}

func parseResponse(resp *genai.GenerateContentResponse, modelName string) (model.ChatOut, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return model.ChatOut{}, model.ErrEmptyResponse
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	if text.Len() == 0 {
		return model.ChatOut{}, model.ErrEmptyResponse
	}

	out := model.ChatOut{Text: text.String(), Model: modelName}
	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}

type clientGenerator struct {
	client    *genai.Client
	modelName string
	opts      []Option
}

func (g *clientGenerator) generate(ctx context.Context, system string, history []*genai.Content, prompt string) (*genai.GenerateContentResponse, error) {
	gm := g.client.GenerativeModel(g.modelName)
	for _, opt := range g.opts {
		opt(gm)
	}
	if system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	cs := gm.StartChat()
	cs.History = history
	return cs.SendMessage(ctx, genai.Text(prompt))
}
