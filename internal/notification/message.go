// Package notification delivers outbound messages: recovery check-ins and
// triage replies to patients over WhatsApp, and escalation alerts to the
// on-call clinic phone.
package notification

import (
	"fmt"
	"strings"
	"time"

	"github.com/vigia-health/platform/internal/shared/types"
)

// MessageKind classifies what a message is for
type MessageKind string

const (
	KindCheckIn     MessageKind = "check_in"
	KindReply       MessageKind = "reply"
	KindDoctorAlert MessageKind = "doctor_alert"
)

// MessageStatus represents delivery status
type MessageStatus string

const (
	StatusPending MessageStatus = "pending"
	StatusSent    MessageStatus = "sent"
	StatusFailed  MessageStatus = "failed"
)

// Message is an outbound message queued for delivery
type Message struct {
	ID     string        `json:"id"`
	Kind   MessageKind   `json:"kind"`
	Status MessageStatus `json:"status"`

	To   types.Phone `json:"to"`
	Body string      `json:"body"`

	// FollowUpID links patient-facing messages back to the check-in
	FollowUpID *types.ID `json:"follow_up_id,omitempty"`

	ProviderID   string     `json:"provider_id,omitempty"`
	RetryCount   int        `json:"retry_count"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
}

// DoctorAlert is the payload for an escalation to the clinic
type DoctorAlert struct {
	PatientName string
	SurgeryType string
	DayNumber   int
	Urgency     string
	Summary     string
	RedFlags    []string
	Reason      string
}

// Format renders the alert as the text the on-call phone receives
func (a DoctorAlert) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 %s alert: %s (%s, day %d)\n", a.Urgency, a.PatientName, a.SurgeryType, a.DayNumber)
	if a.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", a.Summary)
	}
	for _, flag := range a.RedFlags {
		fmt.Fprintf(&b, "• %s\n", flag)
	}
	b.WriteString("Please review the patient's report in the dashboard.")
	return b.String()
}
