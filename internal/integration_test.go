package internal

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-sql/civil"

	"github.com/vigia-health/platform/internal/audit"
	"github.com/vigia-health/platform/internal/followup"
	"github.com/vigia-health/platform/internal/followup/domain"
	"github.com/vigia-health/platform/internal/notification"
	"github.com/vigia-health/platform/internal/protocol"
	"github.com/vigia-health/platform/internal/shared/clock"
	apperrors "github.com/vigia-health/platform/internal/shared/errors"
	"github.com/vigia-health/platform/internal/shared/events"
	"github.com/vigia-health/platform/internal/shared/types"
	"github.com/vigia-health/platform/internal/triage"
)

// TestProgrammeProducesAuditTrail runs the programme end to end over an
// in-memory bus with the audit subscriber attached: enrollment, day-1
// dispatch, and a critical fever report must each land in the hash chain,
// and the chain must verify afterwards.
func TestProgrammeProducesAuditTrail(t *testing.T) {
	ctx := context.Background()

	bus := newSyncBus()
	auditRepo := audit.NewMemoryRepository()
	if err := audit.NewSubscriber(auditRepo, bus).Start(ctx); err != nil {
		t.Fatalf("failed to start audit subscriber: %v", err)
	}

	zone, err := clock.LoadClinicZone("Europe/Belgrade", 10)
	if err != nil {
		t.Fatalf("failed to load clinic zone: %v", err)
	}
	clk := &clock.Fixed{T: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}

	store := newPipelineStore()
	notifier := &pipelineNotifier{}

	clinician := &domain.Clinician{
		ID:                  types.NewID(),
		Name:                "Dr. Ana Simić",
		UsesDefaultProtocol: true,
		CreatedAt:           clk.T,
	}
	store.SaveClinician(ctx, clinician)

	svc := followup.NewService(
		store,
		protocol.NewResolver(defaultOnlyStore{}),
		triage.NewService(steadyClassifier{}),
		notifier,
		bus,
		zone,
		clk,
	)

	// 1. Enrollment creates the schedule and one audit entry per follow-up
	surgery, err := svc.RegisterSurgery(ctx, followup.RegisterSurgeryInput{
		ClinicianID:  clinician.ID,
		PatientName:  "Milan Jovanović",
		PatientPhone: "+381641234567",
		SurgeryType:  domain.SurgeryTypeHemorrhoidectomy,
		SurgeryDate:  civil.Date{Year: 2026, Month: 3, Day: 9},
	})
	if err != nil {
		t.Fatalf("failed to register surgery: %v", err)
	}

	scheduled, _, err := auditRepo.List(ctx, audit.ListEntriesFilter{Action: "followup.scheduled"})
	if err != nil {
		t.Fatalf("failed to list audit entries: %v", err)
	}
	if len(scheduled) != len(domain.ScheduleDays) {
		t.Fatalf("expected %d scheduled entries, got %d", len(domain.ScheduleDays), len(scheduled))
	}
	for _, e := range scheduled {
		if e.ActorType != audit.ActorTypeClinician {
			t.Errorf("enrollment entries must carry the clinician actor, got %s", e.ActorType)
		}
	}

	// 2. Day-1 dispatch
	clk.T = zone.SendTime(surgery.Date, 1).Add(30 * time.Minute)
	sent, err := svc.DispatchDue(ctx, 100)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if sent != 1 {
		t.Fatalf("expected 1 dispatch, got %d", sent)
	}

	sentEntries, _, _ := auditRepo.List(ctx, audit.ListEntriesFilter{Action: "followup.sent"})
	if len(sentEntries) != 1 {
		t.Fatalf("expected 1 sent entry, got %d", len(sentEntries))
	}
	if sentEntries[0].ActorType != audit.ActorTypeSystem {
		t.Errorf("dispatch is a system action, got %s", sentEntries[0].ActorType)
	}

	// 3. Fever report: escalation and response transitions both audited
	fu, err := store.FindFollowUpByDay(ctx, surgery.ID, 1)
	if err != nil {
		t.Fatalf("follow-up not found: %v", err)
	}

	resp := domain.NewFollowUpResponse(fu.ID)
	temp := 39.4
	resp.Temperature = &temp
	resp.FreeText = "I feel hot and shaky."

	result, err := svc.SubmitReport(ctx, fu.ID, resp)
	if err != nil {
		t.Fatalf("failed to submit report: %v", err)
	}
	if !result.DoctorAlerted {
		t.Fatal("high fever must alert the doctor")
	}
	if len(notifier.alerts) != 1 {
		t.Fatalf("expected 1 doctor alert, got %d", len(notifier.alerts))
	}

	responded, _, _ := auditRepo.List(ctx, audit.ListEntriesFilter{Action: "followup.responded"})
	if len(responded) != 1 {
		t.Fatalf("expected 1 responded entry, got %d", len(responded))
	}
	if responded[0].ActorType != audit.ActorTypePatient {
		t.Errorf("report entries must carry the patient actor, got %s", responded[0].ActorType)
	}

	// 4. The whole trail forms a valid hash chain
	verify, err := auditRepo.VerifyChain(ctx, 100, false)
	if err != nil {
		t.Fatalf("chain verification failed: %v", err)
	}
	if !verify.Valid {
		t.Errorf("audit chain must verify: %+v", verify.Violations)
	}
	total, _ := auditRepo.Count(ctx)
	if total < len(domain.ScheduleDays)+3 {
		t.Errorf("expected at least %d entries, got %d", len(domain.ScheduleDays)+3, total)
	}
}

// TestManagementEventsReachAuditTrail covers the administrative event
// streams: clinician and protocol changes published on the bus must appear
// as audit entries with the resource ID extracted.
func TestManagementEventsReachAuditTrail(t *testing.T) {
	ctx := context.Background()

	bus := newSyncBus()
	auditRepo := audit.NewMemoryRepository()
	if err := audit.NewSubscriber(auditRepo, bus).Start(ctx); err != nil {
		t.Fatalf("failed to start audit subscriber: %v", err)
	}

	clinicianID := types.NewID()
	protocolID := types.NewID()
	actorID := types.NewID()

	bus.Publish(ctx, events.NewEvent("clinician.created", "clinician-service", map[string]any{
		"clinician_id": clinicianID,
		"name":         "Dr. Ana Simić",
	}).WithActor(actorID, "clinician"))

	bus.Publish(ctx, events.NewEvent("protocol.updated", "protocol-service", map[string]any{
		"protocol_id":  protocolID,
		"surgery_type": "fissure",
		"is_active":    true,
	}).WithActor(actorID, "clinician"))

	entries, total, err := auditRepo.List(ctx, audit.ListEntriesFilter{})
	if err != nil {
		t.Fatalf("failed to list audit entries: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 entries, got %d", total)
	}

	byAction := map[string]*audit.AuditEntry{}
	for _, e := range entries {
		byAction[e.Action] = e
	}

	ce := byAction["clinician.created"]
	if ce == nil {
		t.Fatal("clinician.created entry missing")
	}
	if ce.ResourceID == nil || *ce.ResourceID != clinicianID {
		t.Error("clinician entry must carry the clinician ID as resource")
	}

	pe := byAction["protocol.updated"]
	if pe == nil {
		t.Fatal("protocol.updated entry missing")
	}
	if pe.ResourceID == nil || *pe.ResourceID != protocolID {
		t.Error("protocol entry must carry the protocol ID as resource")
	}
	if pe.ActorID != actorID {
		t.Error("protocol entry must carry the acting clinician")
	}
}

// --- In-memory bus ---

// syncBus delivers published events to matching subscribers in the
// publishing goroutine, so tests observe audit writes immediately.
type syncBus struct {
	mu   sync.Mutex
	subs []busSub
}

type busSub struct {
	pattern string
	handler events.Handler
}

func newSyncBus() *syncBus {
	return &syncBus{}
}

func (b *syncBus) Publish(ctx context.Context, event events.Event) error {
	b.mu.Lock()
	subs := make([]busSub, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		if matchesPattern(s.pattern, event.Type) {
			if err := s.handler(ctx, event); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *syncBus) Subscribe(_ context.Context, pattern string, handler events.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, busSub{pattern: pattern, handler: handler})
	return nil
}

func (b *syncBus) Close()        {}
func (b *syncBus) Health() error { return nil }

func matchesPattern(pattern, eventType string) bool {
	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		return strings.HasPrefix(eventType, prefix+".")
	}
	return pattern == eventType
}

var _ events.EventBus = (*syncBus)(nil)

// --- Pipeline fakes ---

// pipelineStore is an in-memory Repository backing the scenario
type pipelineStore struct {
	mu         sync.Mutex
	clinicians map[types.ID]*domain.Clinician
	patients   map[types.ID]*domain.Patient
	surgeries  map[types.ID]*domain.Surgery
	followUps  map[types.ID]*domain.FollowUp
	responses  []*domain.FollowUpResponse
	firstBMs   map[types.ID]*domain.FirstBowelMovement
}

func newPipelineStore() *pipelineStore {
	return &pipelineStore{
		clinicians: map[types.ID]*domain.Clinician{},
		patients:   map[types.ID]*domain.Patient{},
		surgeries:  map[types.ID]*domain.Surgery{},
		followUps:  map[types.ID]*domain.FollowUp{},
		firstBMs:   map[types.ID]*domain.FirstBowelMovement{},
	}
}

func (m *pipelineStore) SaveClinician(_ context.Context, c *domain.Clinician) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clinicians[c.ID] = c
	return nil
}

func (m *pipelineStore) FindClinician(_ context.Context, id types.ID) (*domain.Clinician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.clinicians[id]; ok {
		return c, nil
	}
	return nil, apperrors.NotFound("clinician", id.String())
}

func (m *pipelineStore) SavePatient(_ context.Context, p *domain.Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[p.ID] = p
	return nil
}

func (m *pipelineStore) FindPatient(_ context.Context, id types.ID) (*domain.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.patients[id]; ok {
		return p, nil
	}
	return nil, apperrors.NotFound("patient", id.String())
}

func (m *pipelineStore) FindPatientByPhone(_ context.Context, phone types.Phone) (*domain.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.patients {
		if p.Phone == phone {
			return p, nil
		}
	}
	return nil, apperrors.NotFound("patient", phone.Masked())
}

func (m *pipelineStore) FindSurgery(_ context.Context, id types.ID) (*domain.Surgery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.surgeries[id]; ok {
		return s, nil
	}
	return nil, apperrors.NotFound("surgery", id.String())
}

func (m *pipelineStore) FindSurgeryByExternalRef(_ context.Context, ref string) (*domain.Surgery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.surgeries {
		if s.ExternalRef == ref {
			return s, nil
		}
	}
	return nil, apperrors.NotFound("surgery", ref)
}

func (m *pipelineStore) FindActiveSurgeryByPatient(_ context.Context, patientID types.ID) (*domain.Surgery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.surgeries {
		if s.PatientID == patientID && s.Status == domain.SurgeryStatusActive {
			return s, nil
		}
	}
	return nil, apperrors.NotFound("surgery", patientID.String())
}

func (m *pipelineStore) UpdateSurgeryStatus(_ context.Context, id types.ID, status domain.SurgeryStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.surgeries[id]; ok {
		s.Status = status
		return nil
	}
	return apperrors.NotFound("surgery", id.String())
}

func (m *pipelineStore) CreateSchedule(_ context.Context, surgery *domain.Surgery, followUps []domain.FollowUp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.followUps {
		if existing.SurgeryID == surgery.ID {
			return apperrors.Conflict("schedule already exists")
		}
	}
	m.surgeries[surgery.ID] = surgery
	for i := range followUps {
		fu := followUps[i]
		m.followUps[fu.ID] = &fu
	}
	return nil
}

func (m *pipelineStore) FindFollowUp(_ context.Context, id types.ID) (*domain.FollowUp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.followUps[id]; ok {
		copied := *f
		return &copied, nil
	}
	return nil, apperrors.NotFound("follow-up", id.String())
}

func (m *pipelineStore) FindSchedule(_ context.Context, surgeryID types.ID) ([]domain.FollowUp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.FollowUp
	for _, f := range m.followUps {
		if f.SurgeryID == surgeryID {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (m *pipelineStore) FindFollowUpByDay(_ context.Context, surgeryID types.ID, dayNumber int) (*domain.FollowUp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.followUps {
		if f.SurgeryID == surgeryID && f.DayNumber == dayNumber {
			copied := *f
			return &copied, nil
		}
	}
	return nil, apperrors.NotFound("follow-up", surgeryID.String())
}

func (m *pipelineStore) FindDue(_ context.Context, now time.Time, limit int) ([]domain.DueFollowUp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DueFollowUp
	for _, f := range m.followUps {
		if !f.IsDue(now) {
			continue
		}
		surgery := m.surgeries[f.SurgeryID]
		patient := m.patients[surgery.PatientID]
		out = append(out, domain.DueFollowUp{
			FollowUp:     *f,
			SurgeryID:    surgery.ID,
			SurgeryType:  surgery.Type,
			PatientID:    patient.ID,
			PatientName:  patient.Name,
			PatientPhone: patient.Phone,
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *pipelineStore) UpdateFollowUp(_ context.Context, f *domain.FollowUp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.followUps[f.ID]; !ok {
		return apperrors.NotFound("follow-up", f.ID.String())
	}
	copied := *f
	m.followUps[f.ID] = &copied
	return nil
}

func (m *pipelineStore) SaveResponse(_ context.Context, r *domain.FollowUpResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, r)
	return nil
}

func (m *pipelineStore) FindDayRecords(_ context.Context, surgeryID types.ID) ([]domain.DayRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DayRecord
	for _, r := range m.responses {
		for _, f := range m.followUps {
			if f.ID == r.FollowUpID && f.SurgeryID == surgeryID {
				out = append(out, domain.DayRecord{DayNumber: f.DayNumber, Response: *r})
			}
		}
	}
	return out, nil
}

func (m *pipelineStore) RecordFirstBowelMovement(_ context.Context, rec *domain.FirstBowelMovement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.firstBMs[rec.SurgeryID]; ok {
		return apperrors.Conflict("first bowel movement already recorded")
	}
	m.firstBMs[rec.SurgeryID] = rec
	return nil
}

func (m *pipelineStore) FindFirstBowelMovement(_ context.Context, surgeryID types.ID) (*domain.FirstBowelMovement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.firstBMs[surgeryID]; ok {
		return rec, nil
	}
	return nil, apperrors.NotFound("first bowel movement", surgeryID.String())
}

func (m *pipelineStore) WithFollowUpLock(ctx context.Context, _ types.ID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var _ domain.Repository = (*pipelineStore)(nil)

// pipelineNotifier records outbound messages
type pipelineNotifier struct {
	mu       sync.Mutex
	checkIns []string
	replies  []string
	alerts   []notification.DoctorAlert
}

func (f *pipelineNotifier) SendCheckIn(_ types.Phone, body string, _ types.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkIns = append(f.checkIns, body)
	return nil
}

func (f *pipelineNotifier) SendReply(_ types.Phone, body string, _ types.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, body)
	return nil
}

func (f *pipelineNotifier) AlertDoctor(_ context.Context, alert notification.DoctorAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return nil
}

// steadyClassifier always returns a quiet MEDIUM verdict, so only the
// symptom fallback can escalate
type steadyClassifier struct{}

func (steadyClassifier) Classify(_ context.Context, _ triage.Request) (*triage.Result, error) {
	return &triage.Result{
		Urgency:           triage.UrgencyMedium,
		Category:          "routine",
		Summary:           "Routine recovery report",
		SuggestedResponse: "You are recovering as expected. Continue your care routine.",
	}, nil
}

// defaultOnlyStore serves one system default protocol for every day
type defaultOnlyStore struct{}

func (defaultOnlyStore) FindMatching(_ context.Context, _ protocol.Lookup) ([]protocol.Protocol, error) {
	return nil, nil
}

func (defaultOnlyStore) CountForSurgeryType(_ context.Context, _ types.ID, _ domain.SurgeryType) (int, error) {
	return 0, nil
}

func (defaultOnlyStore) FindDefault(_ context.Context, surgeryType domain.SurgeryType, _ int) ([]protocol.Protocol, error) {
	return []protocol.Protocol{{
		ID:            types.NewID(),
		SurgeryType:   surgeryType,
		DayRangeStart: 1,
		Category:      "general",
		Content:       "Sitz baths twice daily, keep the area dry.",
		IsActive:      true,
	}}, nil
}
