package audit

import (
	"context"
	"testing"
	"time"

	"github.com/vigia-health/platform/internal/shared/events"
	"github.com/vigia-health/platform/internal/shared/types"
)

func TestNewAuditEntry(t *testing.T) {
	actorID := types.NewID()
	resourceID := types.NewID()

	entry := NewAuditEntry(
		ActorTypeClinician,
		actorID,
		ActionSurgeryRegistered,
		"surgery",
		&resourceID,
		map[string]any{"surgery_type": "hemorrhoidectomy"},
		"",
	)

	if entry.ID.IsZero() {
		t.Error("expected non-zero ID")
	}
	if entry.ActorType != ActorTypeClinician {
		t.Errorf("expected clinician actor, got %s", entry.ActorType)
	}
	if entry.Action != ActionSurgeryRegistered {
		t.Errorf("expected action %s, got %s", ActionSurgeryRegistered, entry.Action)
	}
	if entry.Hash == "" {
		t.Error("expected non-empty hash")
	}
	if entry.PrevHash != "" {
		t.Error("expected empty prev_hash for first entry")
	}
	if !entry.VerifyHash() {
		t.Error("fresh entry should verify")
	}
}

func TestHashDetectsTampering(t *testing.T) {
	actorID := types.NewID()
	entry := NewAuditEntry(
		ActorTypeSystem,
		actorID,
		ActionFollowUpSent,
		"followup",
		nil,
		map[string]any{"day_number": 3},
		"",
	)

	if !entry.VerifyHash() {
		t.Fatal("entry should verify before tampering")
	}

	entry.Changes["day_number"] = 7

	if entry.VerifyHash() {
		t.Error("tampered entry should fail verification")
	}
}

func TestMemoryRepositoryChain(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	actorID := types.NewID()

	actions := []string{
		ActionSurgeryRegistered,
		ActionFollowUpScheduled,
		ActionFollowUpSent,
		ActionFollowUpResponded,
		ActionDoctorAlerted,
	}

	for _, action := range actions {
		resourceID := types.NewID()
		entry := NewAuditEntry(ActorTypeSystem, actorID, action, "followup", &resourceID, nil, "")
		if err := repo.Append(ctx, entry); err != nil {
			t.Fatalf("Append(%s): %v", action, err)
		}
	}

	if got := repo.GetSequence(); got != int64(len(actions)) {
		t.Errorf("expected sequence %d, got %d", len(actions), got)
	}

	result, err := repo.VerifyChain(ctx, 100, false)
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if !result.Valid {
		t.Errorf("expected valid chain, violations: %v", result.Violations)
	}
	if result.Checked != len(actions) {
		t.Errorf("expected %d entries checked, got %d", len(actions), result.Checked)
	}
	if result.ContentValid != len(actions) {
		t.Errorf("expected %d content-valid entries, got %d", len(actions), result.ContentValid)
	}
}

func TestVerifyChainDetectsBrokenLinkage(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	actorID := types.NewID()

	for i := 0; i < 3; i++ {
		entry := NewAuditEntry(ActorTypeSystem, actorID, ActionFollowUpSent, "followup", nil, map[string]any{"n": i}, "")
		if err := repo.Append(ctx, entry); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	// Tamper with the middle entry after it was chained
	repo.entries[1].Changes["n"] = 99

	result, err := repo.VerifyChain(ctx, 100, true)
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if result.Valid {
		t.Error("expected chain verification to fail after tampering")
	}
	if result.ContentInvalid == 0 {
		t.Error("expected at least one content violation")
	}
	if len(result.Entries) != 3 {
		t.Errorf("expected 3 detailed results, got %d", len(result.Entries))
	}
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	clinicianID := types.NewID()
	surgeryID := types.NewID()

	entries := []*AuditEntry{
		NewAuditEntry(ActorTypeClinician, clinicianID, ActionSurgeryRegistered, "surgery", &surgeryID, nil, ""),
		NewAuditEntry(ActorTypeSystem, types.NewID(), ActionFollowUpSent, "followup", nil, nil, ""),
		NewAuditEntry(ActorTypeSystem, types.NewID(), ActionDoctorAlerted, "alert", nil, nil, ""),
	}
	for _, e := range entries {
		if err := repo.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	t.Run("by action", func(t *testing.T) {
		got, total, err := repo.List(ctx, ListEntriesFilter{Action: ActionDoctorAlerted})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if total != 1 || len(got) != 1 {
			t.Fatalf("expected 1 alert entry, got %d", total)
		}
		if got[0].Action != ActionDoctorAlerted {
			t.Errorf("wrong entry: %s", got[0].Action)
		}
	})

	t.Run("by resource", func(t *testing.T) {
		got, err := repo.GetByResource(ctx, "surgery", surgeryID, 10)
		if err != nil {
			t.Fatalf("GetByResource: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 surgery entry, got %d", len(got))
		}
	})

	t.Run("by actor type", func(t *testing.T) {
		at := ActorTypeSystem
		_, total, err := repo.List(ctx, ListEntriesFilter{ActorType: &at})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if total != 2 {
			t.Errorf("expected 2 system entries, got %d", total)
		}
	})
}

func TestSubscriberEventMapping(t *testing.T) {
	repo := NewMemoryRepository()
	sub := NewSubscriber(repo, events.NopBus{})

	followUpID := types.NewID()
	event := events.Event{
		ID:        "evt-1",
		Type:      "followup.responded",
		Source:    "followup-service",
		Timestamp: time.Now().UTC(),
		ActorID:   types.NewID(),
		ActorType: "patient",
		Data: map[string]any{
			"follow_up_id": followUpID.String(),
			"day_number":   5,
		},
	}

	entry := sub.eventToAuditEntry(event)
	if entry == nil {
		t.Fatal("expected an audit entry")
	}
	if entry.Action != "followup.responded" {
		t.Errorf("expected action followup.responded, got %s", entry.Action)
	}
	if entry.ResourceType != "followup" {
		t.Errorf("expected resource type followup, got %s", entry.ResourceType)
	}
	if entry.ActorType != ActorTypePatient {
		t.Errorf("expected patient actor, got %s", entry.ActorType)
	}
	if entry.ResourceID == nil || *entry.ResourceID != followUpID {
		t.Error("expected follow_up_id to be extracted as resource ID")
	}
}

func TestSubscriberIgnoresUnstructuredTypes(t *testing.T) {
	repo := NewMemoryRepository()
	sub := NewSubscriber(repo, events.NopBus{})

	if entry := sub.eventToAuditEntry(events.Event{Type: "heartbeat"}); entry != nil {
		t.Error("expected events without a resource prefix to be skipped")
	}
}

func TestCorrectionEntry(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	actorID := types.NewID()

	original := NewAuditEntry(ActorTypeClinician, actorID, ActionSurgeryRegistered, "surgery", nil,
		map[string]any{"surgery_type": "fissure"}, "")
	if err := repo.Append(ctx, original); err != nil {
		t.Fatalf("Append: %v", err)
	}

	correction := NewCorrectionAuditEntry(ActorTypeClinician, actorID, CorrectionEntry{
		OriginalEntryID:   original.ID,
		OriginalAction:    original.Action,
		OriginalTimestamp: original.Timestamp,
		Reason:            CorrectionReasonDataEntry,
		Justification:     "surgery type was recorded as fissure, actual procedure was fistula repair",
		OldValue:          map[string]any{"surgery_type": "fissure"},
		NewValue:          map[string]any{"surgery_type": "fistula"},
	}, repo.GetLastHash())
	if err := repo.Append(ctx, correction); err != nil {
		t.Fatalf("Append correction: %v", err)
	}

	if correction.Action != ActionCorrection {
		t.Errorf("expected correction action, got %s", correction.Action)
	}
	if correction.ResourceID == nil || *correction.ResourceID != original.ID {
		t.Error("correction should reference the original entry")
	}

	result, err := repo.VerifyChain(ctx, 100, false)
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if !result.Valid {
		t.Errorf("chain should remain valid after correction, violations: %v", result.Violations)
	}
}
