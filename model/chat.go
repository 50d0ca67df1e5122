// Package model defines the LLM completion boundary used by the dev-team
// pipeline and the machinery around it: fallback chains with rate limiting
// and retry, per-agent model selection, and cost tracking.
//
// Provider adapters live in the anthropic, openai and google subpackages.
package model

import (
	"context"
	"errors"
)

// ChatModel is a chat-style completion endpoint.
//
// Implementations must honour ctx cancellation and must not retain
// messages after returning.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message) (ChatOut, error)
}

// Message is one turn of a conversation.
type Message struct {
	Role    string
	Content string
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// System returns a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User returns a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// ChatOut is a completion result.
type ChatOut struct {
	Text string
	// Model is the provider model that produced the text. Chains use it to
	// attribute cost to the link that answered.
	Model string
	Usage Usage
}

// Usage is the token accounting reported by a provider.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ErrEmptyResponse is returned by adapters when the provider answered with
// no text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// SplitSystem separates system messages from the conversation. Multiple
// system messages are joined with a blank line.
func SplitSystem(messages []Message) (system string, conversation []Message) {
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
			continue
		}
		conversation = append(conversation, msg)
	}
	return system, conversation
}
