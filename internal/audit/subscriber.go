package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vigia-health/platform/internal/shared/events"
	"github.com/vigia-health/platform/internal/shared/types"
)

// Subscriber listens to clinical domain events and appends audit entries
type Subscriber struct {
	repo AuditRepository
	bus  events.EventBus
}

// NewSubscriber creates a new audit subscriber
func NewSubscriber(repo AuditRepository, bus events.EventBus) *Subscriber {
	return &Subscriber{repo: repo, bus: bus}
}

// Start subscribes to the event streams that make up the care record
func (s *Subscriber) Start(ctx context.Context) error {
	patterns := []string{
		"surgery.*",
		"followup.*",
		"triage.*",
		"alert.*",
		"clinician.*",
		"protocol.*",
	}

	for _, p := range patterns {
		if err := s.bus.Subscribe(ctx, p, s.handleEvent); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", p, err)
		}
	}

	return nil
}

// handleEvent converts an incoming event into an audit entry and appends it
func (s *Subscriber) handleEvent(ctx context.Context, event events.Event) error {
	entry := s.eventToAuditEntry(event)
	if entry == nil {
		return nil
	}

	if err := s.repo.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}

// eventToAuditEntry converts a domain event to an audit entry
func (s *Subscriber) eventToAuditEntry(event events.Event) *AuditEntry {
	parts := strings.SplitN(event.Type, ".", 2)
	if len(parts) < 2 {
		return nil
	}

	resourceType := parts[0]
	action := event.Type

	// Extract resource ID from event data
	var resourceID *types.ID
	if data, ok := event.Data.(map[string]any); ok {
		idFields := []string{
			resourceType + "_id",
			"follow_up_id",
			"id",
		}
		for _, field := range idFields {
			if idVal, ok := data[field]; ok {
				if idStr, ok := idVal.(string); ok {
					id := types.ID(idStr)
					resourceID = &id
					break
				}
				if id, ok := idVal.(types.ID); ok {
					resourceID = &id
					break
				}
			}
		}
	}

	actorType := ActorTypeSystem
	switch event.ActorType {
	case "clinician":
		actorType = ActorTypeClinician
	case "patient":
		actorType = ActorTypePatient
	case "research":
		actorType = ActorTypeResearch
	}

	// Timestamps are truncated to microseconds so hash verification stays
	// deterministic across storage round-trips.
	entry := &AuditEntry{
		ID:           types.NewID(),
		Timestamp:    event.Timestamp.UTC().Truncate(time.Microsecond),
		ActorType:    actorType,
		ActorID:      event.ActorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}

	if event.CorrelationID != "" {
		correlationID := types.ID(event.CorrelationID)
		entry.CorrelationID = &correlationID
	}

	if data, ok := event.Data.(map[string]any); ok {
		entry.Changes = data
	}

	return entry
}
