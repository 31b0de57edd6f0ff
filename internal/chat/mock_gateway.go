package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/qvnt33/agromat-it-desk-bot/internal/render"
)

// SentMessage records one Send call on the mock.
type SentMessage struct {
	ChatID    string
	MessageID string
	Msg       render.Message
}

// EditedMessage records one Edit call on the mock.
type EditedMessage struct {
	ChatID    string
	MessageID string
	Msg       render.Message
}

// AnsweredAction records one AnswerAction call on the mock.
type AnsweredAction struct {
	ActionID string
	Text     string
}

// MockGateway implements Gateway for testing. It records every call and
// can be told to fail.
type MockGateway struct {
	mu        sync.Mutex
	counter   int
	Sent      []SentMessage
	Edited    []EditedMessage
	Answered  []AnsweredAction
	SendErr   error
	EditErr   error
	AnswerErr error
}

// NewMockGateway creates an empty MockGateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// Send records the message and returns a generated message id.
func (m *MockGateway) Send(ctx context.Context, chatID string, msg render.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return "", m.SendErr
	}
	m.counter++
	id := fmt.Sprintf("mock-msg-%d", m.counter)
	m.Sent = append(m.Sent, SentMessage{ChatID: chatID, MessageID: id, Msg: msg})
	return id, nil
}

// Edit records the edit.
func (m *MockGateway) Edit(ctx context.Context, chatID, messageID string, msg render.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EditErr != nil {
		return m.EditErr
	}
	m.Edited = append(m.Edited, EditedMessage{ChatID: chatID, MessageID: messageID, Msg: msg})
	return nil
}

// AnswerAction records the answer.
func (m *MockGateway) AnswerAction(ctx context.Context, actionID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AnswerErr != nil {
		return m.AnswerErr
	}
	m.Answered = append(m.Answered, AnsweredAction{ActionID: actionID, Text: text})
	return nil
}
