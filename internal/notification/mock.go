package notification

import (
	"context"

	"github.com/google/uuid"
)

// MockSender records sent messages for test assertions.
type MockSender struct {
	// SendFunc overrides the default behavior.
	SendFunc func(ctx context.Context, msg *Message) (string, error)

	// Sent holds every delivered message in order.
	Sent []*Message
}

var _ Sender = (*MockSender)(nil)

// Send records the message and returns a generated id.
func (m *MockSender) Send(ctx context.Context, msg *Message) (string, error) {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, msg)
	}
	m.Sent = append(m.Sent, msg)
	return uuid.New().String(), nil
}
