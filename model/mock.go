package model

import (
	"context"
	"sync"
)

// MockChatModel is a scripted ChatModel for tests.
//
// Responses are returned in order and the last one repeats once exhausted.
// When Err is set every call fails with it. Errs, when non-empty, is
// consumed one entry per call before Responses; a nil entry falls through
// to the scripted response.
type MockChatModel struct {
	Responses []ChatOut
	Err       error
	Errs      []error

	Calls [][]Message

	mu        sync.Mutex
	callIndex int
	errIndex  int
}

// NewMockChatModel returns a mock answering with the given texts.
func NewMockChatModel(texts ...string) *MockChatModel {
	m := &MockChatModel{}
	for _, t := range texts {
		m.Responses = append(m.Responses, ChatOut{Text: t, Model: "mock"})
	}
	return m
}

// Chat implements ChatModel.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message) (ChatOut, error) {
	if ctx.Err() != nil {
		return ChatOut{}, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, append([]Message(nil), messages...))

	if m.Err != nil {
		return ChatOut{}, m.Err
	}
	if m.errIndex < len(m.Errs) {
		err := m.Errs[m.errIndex]
		m.errIndex++
		if err != nil {
			return ChatOut{}, err
		}
	}
	if len(m.Responses) == 0 {
		return ChatOut{}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}

// CallCount returns the number of Chat invocations.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Reset clears recorded calls and rewinds the scripts.
func (m *MockChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.callIndex = 0
	m.errIndex = 0
}
