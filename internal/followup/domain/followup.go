package domain

import (
	"time"

	apperrors "github.com/vigia-health/platform/internal/shared/errors"
	"github.com/vigia-health/platform/internal/shared/types"
)

// FollowUpStatus defines the lifecycle state of a scheduled check-in
type FollowUpStatus string

const (
	FollowUpStatusPending    FollowUpStatus = "pending"
	FollowUpStatusSent       FollowUpStatus = "sent"
	FollowUpStatusInProgress FollowUpStatus = "in_progress"
	FollowUpStatusResponded  FollowUpStatus = "responded"
)

// FollowUpEventType defines types of follow-up lifecycle events
type FollowUpEventType string

const (
	FollowUpEventScheduled       FollowUpEventType = "followup.scheduled"
	FollowUpEventSent            FollowUpEventType = "followup.sent"
	FollowUpEventResponseStarted FollowUpEventType = "followup.response_started"
	FollowUpEventResponded       FollowUpEventType = "followup.responded"
)

// FollowUpEvent is a domain event for publishing to the audit bus
type FollowUpEvent struct {
	Type       FollowUpEventType `json:"type"`
	FollowUpID types.ID          `json:"follow_up_id"`
	SurgeryID  types.ID          `json:"surgery_id"`
	DayNumber  int               `json:"day_number"`
	Data       map[string]any    `json:"data,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// FollowUp is one scheduled check-in of a recovery programme. Status moves
// monotonically pending -> sent -> in_progress -> responded; every
// transition method guards its precondition and records a timestamp.
type FollowUp struct {
	ID          types.ID       `json:"id"`
	SurgeryID   types.ID       `json:"surgery_id"`
	DayNumber   int            `json:"day_number"`
	ScheduledAt time.Time      `json:"scheduled_at"`
	Status      FollowUpStatus `json:"status"`
	SentAt      *time.Time     `json:"sent_at,omitempty"`
	RespondedAt *time.Time     `json:"responded_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`

	domainEvents []FollowUpEvent
}

// MarkSent transitions pending -> sent when the day's opening message goes
// out to the patient.
func (f *FollowUp) MarkSent(now time.Time) error {
	if f.Status != FollowUpStatusPending {
		return apperrors.InvalidTransition(string(f.Status), string(FollowUpStatusSent))
	}

	f.Status = FollowUpStatusSent
	f.SentAt = &now
	f.addEvent(FollowUpEventSent, now, nil)

	return nil
}

// StartResponse transitions sent -> in_progress on the patient's first
// inbound message of the day.
func (f *FollowUp) StartResponse(now time.Time) error {
	if f.Status != FollowUpStatusSent {
		return apperrors.InvalidTransition(string(f.Status), string(FollowUpStatusInProgress))
	}

	f.Status = FollowUpStatusInProgress
	f.addEvent(FollowUpEventResponseStarted, now, nil)

	return nil
}

// CompleteResponse transitions in_progress -> responded once the
// questionnaire answers are recorded.
func (f *FollowUp) CompleteResponse(now time.Time) error {
	if f.Status != FollowUpStatusInProgress {
		return apperrors.InvalidTransition(string(f.Status), string(FollowUpStatusResponded))
	}

	f.Status = FollowUpStatusResponded
	f.RespondedAt = &now
	f.addEvent(FollowUpEventResponded, now, nil)

	return nil
}

// IsOverdue reports whether the follow-up has gone a full day past its
// scheduled send without reaching responded. Overdue is derived, never
// stored.
func (f *FollowUp) IsOverdue(now time.Time) bool {
	if f.Status == FollowUpStatusResponded {
		return false
	}
	return now.After(f.ScheduledAt.Add(24 * time.Hour))
}

// IsDue reports whether the pending follow-up is ready to dispatch.
func (f *FollowUp) IsDue(now time.Time) bool {
	return f.Status == FollowUpStatusPending && !now.Before(f.ScheduledAt)
}

// DomainEvents returns and clears pending domain events
func (f *FollowUp) DomainEvents() []FollowUpEvent {
	events := f.domainEvents
	f.domainEvents = nil
	return events
}

func (f *FollowUp) addEvent(eventType FollowUpEventType, now time.Time, data map[string]any) {
	f.domainEvents = append(f.domainEvents, FollowUpEvent{
		Type:       eventType,
		FollowUpID: f.ID,
		SurgeryID:  f.SurgeryID,
		DayNumber:  f.DayNumber,
		Data:       data,
		Timestamp:  now,
	})
}
