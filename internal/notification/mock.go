package notification

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockProvider records messages instead of delivering them. Used in tests
// and in development environments without WhatsApp credentials.
type MockProvider struct {
	mu         sync.RWMutex
	sent       []*Message
	failOnSend bool
	sendDelay  time.Duration
}

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (p *MockProvider) Send(ctx context.Context, msg *Message) error {
	if p.sendDelay > 0 {
		select {
		case <-time.After(p.sendDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failOnSend {
		return fmt.Errorf("mock send failure")
	}

	copied := *msg
	p.sent = append(p.sent, &copied)
	msg.ProviderID = fmt.Sprintf("mock-%d", len(p.sent))
	return nil
}

// SetFailOnSend makes subsequent sends fail
func (p *MockProvider) SetFailOnSend(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failOnSend = fail
}

// SetSendDelay adds artificial latency to Send
func (p *MockProvider) SetSendDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sendDelay = d
}

// Sent returns a snapshot of delivered messages
func (p *MockProvider) Sent() []*Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Message, len(p.sent))
	copy(out, p.sent)
	return out
}
