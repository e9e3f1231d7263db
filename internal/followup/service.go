// Package followup orchestrates the recovery programme: schedule creation
// after surgery, daily check-in dispatch, and triage of patient reports.
package followup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-sql/civil"
	"github.com/rs/zerolog/log"

	"github.com/vigia-health/platform/internal/bowel"
	"github.com/vigia-health/platform/internal/dayplan"
	"github.com/vigia-health/platform/internal/followup/domain"
	"github.com/vigia-health/platform/internal/notification"
	"github.com/vigia-health/platform/internal/protocol"
	"github.com/vigia-health/platform/internal/shared/clock"
	apperrors "github.com/vigia-health/platform/internal/shared/errors"
	"github.com/vigia-health/platform/internal/shared/events"
	"github.com/vigia-health/platform/internal/shared/metrics"
	"github.com/vigia-health/platform/internal/shared/types"
	"github.com/vigia-health/platform/internal/trend"
	"github.com/vigia-health/platform/internal/triage"
)

// Notifier delivers patient messages and clinic escalations
type Notifier interface {
	SendCheckIn(to types.Phone, body string, followUpID types.ID) error
	SendReply(to types.Phone, body string, followUpID types.ID) error
	AlertDoctor(ctx context.Context, alert notification.DoctorAlert) error
}

// Service wires schedule building, dispatch, and report triage together
type Service struct {
	repo      domain.Repository
	protocols *protocol.Resolver
	triage    *triage.Service
	notifier  Notifier
	bus       events.EventBus
	zone      clock.ClinicZone
	clock     clock.Clock
}

func NewService(
	repo domain.Repository,
	protocols *protocol.Resolver,
	triageSvc *triage.Service,
	notifier Notifier,
	bus events.EventBus,
	zone clock.ClinicZone,
	clk clock.Clock,
) *Service {
	return &Service{
		repo:      repo,
		protocols: protocols,
		triage:    triageSvc,
		notifier:  notifier,
		bus:       bus,
		zone:      zone,
		clock:     clk,
	}
}

// RegisterSurgeryInput enrolls a patient into the follow-up programme
type RegisterSurgeryInput struct {
	ClinicianID   types.ID
	PatientName   string
	PatientPhone  string
	ResearchID    *types.ID
	ResearchGroup string
	SurgeryType   domain.SurgeryType
	SurgeryDate   civil.Date
	ExternalRef   string
}

// RegisterSurgery enrolls a patient and creates the full follow-up
// schedule in one transaction. A patient already in an active programme is
// refused; re-registering the same external reference is an idempotent
// no-op returning the existing surgery.
func (s *Service) RegisterSurgery(ctx context.Context, in RegisterSurgeryInput) (*domain.Surgery, error) {
	clinician, err := s.repo.FindClinician(ctx, in.ClinicianID)
	if err != nil {
		return nil, err
	}

	if in.ExternalRef != "" {
		existing, err := s.repo.FindSurgeryByExternalRef(ctx, in.ExternalRef)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
	}

	phone, err := types.ParsePhone(in.PatientPhone)
	if err != nil {
		return nil, apperrors.Validation("invalid patient phone", map[string]string{"phone": err.Error()})
	}

	patient, err := s.findOrCreatePatient(ctx, clinician.ID, in, phone)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.FindActiveSurgeryByPatient(ctx, patient.ID); err == nil {
		return nil, apperrors.Conflict("patient already has an active follow-up programme")
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	surgery, err := domain.NewSurgery(patient.ID, clinician.ID, in.SurgeryType, in.SurgeryDate)
	if err != nil {
		return nil, apperrors.Validation(err.Error(), nil)
	}
	surgery.ExternalRef = in.ExternalRef

	now := s.clock.Now()
	schedule := domain.BuildSchedule(surgery, s.zone, now)

	if err := s.repo.CreateSchedule(ctx, surgery, schedule); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, err
		}
		return nil, apperrors.Scheduling(err, surgery.ID.String())
	}

	for i := range schedule {
		s.publishFollowUpEvents(ctx, &schedule[i], clinician.ID, "clinician")
	}
	metrics.RecordScheduleCreated(string(surgery.Type))

	log.Info().
		Str("surgery_id", surgery.ID.String()).
		Str("surgery_type", string(surgery.Type)).
		Str("patient_id", patient.ID.String()).
		Int("follow_ups", len(schedule)).
		Msg("follow-up schedule created")

	return surgery, nil
}

func (s *Service) findOrCreatePatient(ctx context.Context, clinicianID types.ID, in RegisterSurgeryInput, phone types.Phone) (*domain.Patient, error) {
	patient, err := s.repo.FindPatientByPhone(ctx, phone)
	if err == nil {
		return patient, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	patient = &domain.Patient{
		ID:            types.NewID(),
		ClinicianID:   clinicianID,
		Name:          in.PatientName,
		Phone:         phone,
		ResearchID:    in.ResearchID,
		ResearchGroup: in.ResearchGroup,
		CreatedAt:     s.clock.Now(),
	}
	if err := s.repo.SavePatient(ctx, patient); err != nil {
		return nil, err
	}
	return patient, nil
}

// CancelProgramme stops further dispatches for a surgery
func (s *Service) CancelProgramme(ctx context.Context, surgeryID types.ID) error {
	surgery, err := s.repo.FindSurgery(ctx, surgeryID)
	if err != nil {
		return err
	}
	if err := surgery.Cancel(); err != nil {
		return apperrors.Conflict(err.Error())
	}
	return s.repo.UpdateSurgeryStatus(ctx, surgery.ID, surgery.Status)
}

// DispatchDue sends the opening check-in message for every follow-up whose
// send time has passed. Each follow-up is handled under its advisory lock,
// so concurrent dispatch passes on different instances cannot double-send.
// Returns the number of check-ins sent.
func (s *Service) DispatchDue(ctx context.Context, limit int) (int, error) {
	now := s.clock.Now()
	due, err := s.repo.FindDue(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, d := range due {
		if err := s.dispatchOne(ctx, d); err != nil {
			log.Error().Err(err).
				Str("follow_up_id", d.FollowUp.ID.String()).
				Int("day", d.FollowUp.DayNumber).
				Msg("failed to dispatch check-in")
			continue
		}
		sent++
	}
	return sent, nil
}

func (s *Service) dispatchOne(ctx context.Context, d domain.DueFollowUp) error {
	return s.repo.WithFollowUpLock(ctx, d.FollowUp.ID, func(ctx context.Context) error {
		now := s.clock.Now()

		fu, err := s.repo.FindFollowUp(ctx, d.FollowUp.ID)
		if err != nil {
			return err
		}
		if !fu.IsDue(now) {
			// another instance got here first
			return nil
		}

		plan := dayplan.BuildPlan(s.planInput(ctx, d.SurgeryID, fu.DayNumber))
		body := composeCheckIn(plan)

		if err := s.notifier.SendCheckIn(d.PatientPhone, body, fu.ID); err != nil {
			return err
		}

		if err := fu.MarkSent(now); err != nil {
			return err
		}
		if err := s.repo.UpdateFollowUp(ctx, fu); err != nil {
			return err
		}

		metrics.RecordFollowUpSent()
		metrics.RecordFollowUpStatusChange(string(domain.FollowUpStatusPending), string(domain.FollowUpStatusSent))
		s.publishFollowUpEvents(ctx, fu, types.ID(""), "system")
		return nil
	})
}

// planInput gathers what the day planner needs to know about the patient's
// bowel situation. Lookup failures degrade to the conservative default of
// "no movement yet".
func (s *Service) planInput(ctx context.Context, surgeryID types.ID, day int) dayplan.Input {
	in := dayplan.Input{Day: day, DaysWithoutMovement: day}

	if surgery, err := s.repo.FindSurgery(ctx, surgeryID); err == nil {
		in.SurgeryType = surgery.Type
	}
	if _, err := s.repo.FindFirstBowelMovement(ctx, surgeryID); err == nil {
		in.HadFirstBowelMovement = true
		in.DaysWithoutMovement = 0
	}
	return in
}

// composeCheckIn renders the day plan as one outbound message
func composeCheckIn(plan dayplan.Plan) string {
	var b strings.Builder
	b.WriteString(plan.Intro)
	b.WriteString("\n")
	for i, q := range plan.Questions {
		fmt.Fprintf(&b, "\n%d. %s", i+1, q.Text)
		if len(q.Options) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(q.Options, " / "))
		}
	}
	return b.String()
}

// ReportResult is what the caller (and ultimately the patient) gets back
// from a submitted report
type ReportResult struct {
	Reply         string        `json:"reply"`
	Urgency       string        `json:"urgency"`
	Pattern       trend.Pattern `json:"pattern,omitempty"`
	Concern       trend.Concern `json:"concern,omitempty"`
	DoctorAlerted bool          `json:"doctor_alerted"`
	Insights      []string      `json:"insights,omitempty"`
}

// SubmitReport records a patient's answers for a follow-up, runs trend and
// bowel analysis, triages the report, replies to the patient, and alerts
// the clinic when warranted. The whole operation runs under the follow-up's
// advisory lock.
func (s *Service) SubmitReport(ctx context.Context, followUpID types.ID, resp *domain.FollowUpResponse) (*ReportResult, error) {
	var result *ReportResult
	err := s.repo.WithFollowUpLock(ctx, followUpID, func(ctx context.Context) error {
		var err error
		result, err = s.submitReport(ctx, followUpID, resp)
		return err
	})
	return result, err
}

func (s *Service) submitReport(ctx context.Context, followUpID types.ID, resp *domain.FollowUpResponse) (*ReportResult, error) {
	now := s.clock.Now()

	fu, err := s.repo.FindFollowUp(ctx, followUpID)
	if err != nil {
		return nil, err
	}
	if fu.Status == domain.FollowUpStatusPending {
		return nil, apperrors.Conflict("check-in has not been sent yet")
	}

	if err := resp.Validate(); err != nil {
		return nil, err
	}

	surgery, err := s.repo.FindSurgery(ctx, fu.SurgeryID)
	if err != nil {
		return nil, err
	}
	patient, err := s.repo.FindPatient(ctx, surgery.PatientID)
	if err != nil {
		return nil, err
	}
	clinician, err := s.repo.FindClinician(ctx, surgery.ClinicianID)
	if err != nil {
		return nil, err
	}

	alert := false
	var alertReasons []string

	firstBM := s.recordFirstMovement(ctx, fu, resp, now)

	if firstBM == nil {
		assessment := bowel.Assess(fu.DayNumber)
		if assessment.AlertDoctor {
			alert = true
			alertReasons = append(alertReasons, fmt.Sprintf("no bowel movement after %d days", assessment.DaysWithout))
		}
	}
	if resp.BristolType != nil {
		if bristol, err := bowel.AnalyzeBristol(*resp.BristolType); err == nil && bristol.AlertDoctor {
			alert = true
			alertReasons = append(alertReasons, fmt.Sprintf("bristol type %d reported", *resp.BristolType))
		}
	}

	analysis := s.analyzeTrend(ctx, fu, resp)
	if analysis.AlertDoctor {
		alert = true
		alertReasons = append(alertReasons, fmt.Sprintf("pain concern %s, pattern %s", analysis.Concern, analysis.Pattern))
	}

	resolution, err := s.protocols.Resolve(ctx, protocol.Query{
		Clinician:     clinician,
		SurgeryType:   surgery.Type,
		Day:           fu.DayNumber,
		ResearchID:    patient.ResearchID,
		ResearchGroup: patient.ResearchGroup,
	})
	if err != nil {
		return nil, err
	}

	guidance := ""
	if resolution.AllowsCareInstructions() {
		guidance = resolution.Guidance
	}

	verdict := s.triage.Triage(ctx, triage.Request{
		ClinicalContext:  s.clinicalNarrative(ctx, surgery, fu.DayNumber, analysis, firstBM),
		ProtocolGuidance: guidance,
		PatientMessage:   resp.FreeText,
		Answers:          resp.Answers,
		Day:              fu.DayNumber,
		SurgeryType:      surgery.Type,
	}, resp)

	if verdict.ShouldNotifyDoctor {
		alert = true
		alertReasons = append(alertReasons, "triage verdict "+string(verdict.Urgency))
	}

	resp.Urgency = string(verdict.Urgency)
	resp.Category = verdict.Category
	resp.Summary = verdict.Summary
	resp.DoctorAlerted = alert

	if err := s.repo.SaveResponse(ctx, resp); err != nil {
		return nil, err
	}

	if err := s.advanceLifecycle(ctx, fu, now); err != nil {
		return nil, err
	}

	reply := composeReply(verdict, resolution)
	if err := s.notifier.SendReply(patient.Phone, reply, fu.ID); err != nil {
		log.Error().Err(err).Str("follow_up_id", fu.ID.String()).Msg("failed to send triage reply")
	}

	if alert {
		s.sendDoctorAlert(ctx, patient, surgery, fu, verdict, alertReasons)
	}

	s.publishFollowUpEvents(ctx, fu, patient.ID, "patient")

	return &ReportResult{
		Reply:         reply,
		Urgency:       string(verdict.Urgency),
		Pattern:       analysis.Pattern,
		Concern:       analysis.Concern,
		DoctorAlerted: alert,
		Insights:      analysis.Insights,
	}, nil
}

// recordFirstMovement persists the one-shot first bowel movement fact when
// this report contains it. Returns the record when one exists (old or new).
func (s *Service) recordFirstMovement(ctx context.Context, fu *domain.FollowUp, resp *domain.FollowUpResponse, now time.Time) *domain.FirstBowelMovement {
	existing, err := s.repo.FindFirstBowelMovement(ctx, fu.SurgeryID)
	if err == nil {
		return existing
	}

	if resp.HadBowelMovement == nil || !*resp.HadBowelMovement {
		return nil
	}

	rec := &domain.FirstBowelMovement{
		SurgeryID:   fu.SurgeryID,
		RecordedOn:  s.zone.CivilDate(now),
		DayNumber:   fu.DayNumber,
		BristolType: resp.BristolType,
		PainDuring:  resp.PainDuringBowelMovement,
		CreatedAt:   now,
	}
	if err := s.repo.RecordFirstBowelMovement(ctx, rec); err != nil {
		// a concurrent report won the race; the fact is recorded either way
		if !errors.Is(err, apperrors.ErrConflict) {
			log.Error().Err(err).Str("surgery_id", fu.SurgeryID.String()).Msg("failed to record first bowel movement")
			return nil
		}
	}
	return rec
}

// analyzeTrend builds the pain history (prior days plus this report) and
// runs the trend analyzer over it
func (s *Service) analyzeTrend(ctx context.Context, fu *domain.FollowUp, resp *domain.FollowUpResponse) trend.Analysis {
	var history []trend.DayPain

	records, err := s.repo.FindDayRecords(ctx, fu.SurgeryID)
	if err != nil {
		log.Warn().Err(err).Str("surgery_id", fu.SurgeryID.String()).Msg("failed to load pain history")
	}
	for _, r := range records {
		if r.DayNumber >= fu.DayNumber || r.Response.PainAtRest == nil {
			continue
		}
		history = append(history, trend.DayPain{
			Day:                     r.DayNumber,
			PainAtRest:              *r.Response.PainAtRest,
			PainDuringBowelMovement: r.Response.PainDuringBowelMovement,
		})
	}

	if resp.PainAtRest != nil {
		history = append(history, trend.DayPain{
			Day:                     fu.DayNumber,
			PainAtRest:              *resp.PainAtRest,
			PainDuringBowelMovement: resp.PainDuringBowelMovement,
		})
	}

	return trend.Analyze(history)
}

// clinicalNarrative is the day context handed to the NLP classifier
func (s *Service) clinicalNarrative(ctx context.Context, surgery *domain.Surgery, day int, analysis trend.Analysis, firstBM *domain.FirstBowelMovement) string {
	plan := dayplan.BuildPlan(s.planInput(ctx, surgery.ID, day))

	var b strings.Builder
	b.WriteString(plan.ClinicalContext)
	if analysis.Pattern != "" {
		fmt.Fprintf(&b, " Pain trajectory: %s.", analysis.Pattern)
	}
	if analysis.Concern != "" && analysis.Concern != trend.ConcernNone {
		fmt.Fprintf(&b, " Pain concern level: %s.", analysis.Concern)
	}
	for _, insight := range analysis.Insights {
		b.WriteString(" ")
		b.WriteString(insight)
	}
	if firstBM != nil {
		fmt.Fprintf(&b, " First bowel movement recorded on day %d.", firstBM.DayNumber)
	}
	return b.String()
}

// advanceLifecycle moves the follow-up to responded, passing through
// in_progress when this is the first inbound message
func (s *Service) advanceLifecycle(ctx context.Context, fu *domain.FollowUp, now time.Time) error {
	from := fu.Status

	if fu.Status == domain.FollowUpStatusSent {
		if err := fu.StartResponse(now); err != nil {
			return err
		}
	}
	if fu.Status == domain.FollowUpStatusInProgress {
		if err := fu.CompleteResponse(now); err != nil {
			return err
		}
	}
	if fu.Status == from {
		// already responded; the extra report is stored without a transition
		return nil
	}

	if err := s.repo.UpdateFollowUp(ctx, fu); err != nil {
		return err
	}
	metrics.RecordFollowUpStatusChange(string(from), string(fu.Status))
	return nil
}

func (s *Service) sendDoctorAlert(ctx context.Context, patient *domain.Patient, surgery *domain.Surgery, fu *domain.FollowUp, verdict *triage.Verdict, reasons []string) {
	alert := notification.DoctorAlert{
		PatientName: patient.Name,
		SurgeryType: string(surgery.Type),
		DayNumber:   fu.DayNumber,
		Urgency:     string(verdict.Urgency),
		Summary:     verdict.Summary,
		RedFlags:    verdict.Result.RedFlags,
		Reason:      strings.Join(reasons, "; "),
	}
	if err := s.notifier.AlertDoctor(ctx, alert); err != nil {
		log.Error().Err(err).Str("follow_up_id", fu.ID.String()).Msg("failed to alert doctor")
	}
}

// composeReply applies the protocol resolution to the triage reply. A
// critical verdict always reaches the patient unchanged: emergency
// escalation overrides every protocol mode.
func composeReply(verdict *triage.Verdict, resolution *protocol.Resolution) string {
	if verdict.Urgency == triage.UrgencyCritical || resolution.AllowsCareInstructions() {
		return verdict.SuggestedResponse
	}

	reply := "Thank you for completing today's check-in. Your answers have been recorded."
	if resolution.Mode == protocol.ModeContactClinic && resolution.Guidance != "" {
		reply += "\n\n" + resolution.Guidance
	}
	return reply
}

func (s *Service) publishFollowUpEvents(ctx context.Context, fu *domain.FollowUp, actorID types.ID, actorType string) {
	for _, ev := range fu.DomainEvents() {
		event := events.NewEvent(string(ev.Type), "followup-service", ev).WithActor(actorID, actorType)
		if err := s.bus.Publish(ctx, event); err != nil {
			log.Warn().Err(err).Str("event_type", string(ev.Type)).Msg("failed to publish follow-up event")
		}
	}
}
