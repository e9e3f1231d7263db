package events

import (
	"context"
	"fmt"
	"time"

	"github.com/vigia-health/platform/internal/shared/config"
)

// EventBus defines the interface for event publishing and subscription
type EventBus interface {
	// Publish publishes an event to the bus
	Publish(ctx context.Context, event Event) error

	// Subscribe creates a subscription to events matching a pattern
	Subscribe(ctx context.Context, pattern string, handler Handler) error

	// Close closes the event bus connection
	Close()

	// Health checks the event bus connection
	Health() error
}

// NewEventBus connects to KurrentDB and verifies the connection.
func NewEventBus(ctx context.Context, cfg config.KurrentDBConfig) (EventBus, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	bus, err := NewBus(timeoutCtx, cfg)
	if err != nil {
		return nil, err
	}

	if err := bus.Health(); err != nil {
		bus.Close()
		return nil, fmt.Errorf("event store health check failed: %w", err)
	}

	return bus, nil
}

// NopBus discards events. Used when the event store is unavailable so the
// platform keeps serving patients; audit completeness is sacrificed, never
// follow-up delivery.
type NopBus struct{}

func (NopBus) Publish(ctx context.Context, event Event) error { return nil }
func (NopBus) Subscribe(ctx context.Context, pattern string, handler Handler) error {
	return nil
}
func (NopBus) Close()        {}
func (NopBus) Health() error { return nil }

// Ensure implementations satisfy EventBus
var (
	_ EventBus = (*Bus)(nil)
	_ EventBus = NopBus{}
)
