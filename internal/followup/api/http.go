// Package api exposes the follow-up programme over HTTP: clinician-facing
// surgery and schedule endpoints, report submission, and the WhatsApp
// webhook.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-sql/civil"

	"github.com/vigia-health/platform/internal/followup"
	"github.com/vigia-health/platform/internal/followup/domain"
	"github.com/vigia-health/platform/internal/shared/auth"
	"github.com/vigia-health/platform/internal/shared/errors"
	"github.com/vigia-health/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the follow-up module
type Handler struct {
	svc  *followup.Service
	repo domain.Repository
}

func NewHandler(svc *followup.Service, repo domain.Repository) *Handler {
	return &Handler{svc: svc, repo: repo}
}

// Routes registers the follow-up routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/surgeries", func(r chi.Router) {
		r.Post("/", h.RegisterSurgery)
		r.Route("/{surgeryID}", func(r chi.Router) {
			r.Get("/", h.GetSurgery)
			r.Get("/schedule", h.GetSchedule)
			r.Get("/responses", h.GetResponses)
			r.Post("/cancel", h.CancelProgramme)
		})
	})

	r.Route("/follow-ups/{followUpID}", func(r chi.Router) {
		r.Get("/", h.GetFollowUp)
		r.Post("/report", h.SubmitReport)
	})

	r.Post("/dispatch", h.Dispatch)

	return r
}

// --- Request/Response types ---

type RegisterSurgeryRequest struct {
	ClinicianID   *types.ID          `json:"clinician_id,omitempty"`
	PatientName   string             `json:"patient_name"`
	PatientPhone  string             `json:"patient_phone"`
	ResearchID    *types.ID          `json:"research_id,omitempty"`
	ResearchGroup string             `json:"research_group,omitempty"`
	SurgeryType   domain.SurgeryType `json:"surgery_type"`
	SurgeryDate   string             `json:"surgery_date"` // YYYY-MM-DD
	ExternalRef   string             `json:"external_ref,omitempty"`
}

type SubmitReportRequest struct {
	PainAtRest              *int           `json:"pain_at_rest,omitempty"`
	PainDuringBowelMovement *int           `json:"pain_during_bowel_movement,omitempty"`
	HadBowelMovement        *bool          `json:"had_bowel_movement,omitempty"`
	BristolType             *int           `json:"bristol_type,omitempty"`
	Bleeding                string         `json:"bleeding,omitempty"`
	Temperature             *float64       `json:"temperature,omitempty"`
	UrinationNormal         *bool          `json:"urination_normal,omitempty"`
	Answers                 map[string]any `json:"answers,omitempty"`
	FreeText                string         `json:"free_text,omitempty"`
}

type scheduleEntry struct {
	domain.FollowUp
	Overdue bool `json:"overdue"`
}

// --- Handlers ---

func (h *Handler) RegisterSurgery(w http.ResponseWriter, r *http.Request) {
	var req RegisterSurgeryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	clinicianID := resolveClinicianID(r, req.ClinicianID)
	if clinicianID.IsZero() {
		writeError(w, errors.BadRequest("clinician_id is required"))
		return
	}

	date, err := civil.ParseDate(req.SurgeryDate)
	if err != nil {
		writeError(w, errors.Validation("invalid surgery date", map[string]string{"surgeryDate": "expected YYYY-MM-DD"}))
		return
	}

	surgery, err := h.svc.RegisterSurgery(r.Context(), followup.RegisterSurgeryInput{
		ClinicianID:   clinicianID,
		PatientName:   req.PatientName,
		PatientPhone:  req.PatientPhone,
		ResearchID:    req.ResearchID,
		ResearchGroup: req.ResearchGroup,
		SurgeryType:   req.SurgeryType,
		SurgeryDate:   date,
		ExternalRef:   req.ExternalRef,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, surgery)
}

func (h *Handler) GetSurgery(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "surgeryID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid surgery ID"))
		return
	}

	surgery, err := h.repo.FindSurgery(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, surgery)
}

func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "surgeryID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid surgery ID"))
		return
	}

	schedule, err := h.repo.FindSchedule(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	now := time.Now()
	entries := make([]scheduleEntry, 0, len(schedule))
	for _, fu := range schedule {
		entries = append(entries, scheduleEntry{FollowUp: fu, Overdue: fu.IsOverdue(now)})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  entries,
		"total": len(entries),
	})
}

func (h *Handler) GetResponses(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "surgeryID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid surgery ID"))
		return
	}

	records, err := h.repo.FindDayRecords(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  records,
		"total": len(records),
	})
}

func (h *Handler) CancelProgramme(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "surgeryID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid surgery ID"))
		return
	}

	if err := h.svc.CancelProgramme(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *Handler) GetFollowUp(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "followUpID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid follow-up ID"))
		return
	}

	fu, err := h.repo.FindFollowUp(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, scheduleEntry{FollowUp: *fu, Overdue: fu.IsOverdue(time.Now())})
}

func (h *Handler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "followUpID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid follow-up ID"))
		return
	}

	var req SubmitReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	resp := domain.NewFollowUpResponse(id)
	resp.PainAtRest = req.PainAtRest
	resp.PainDuringBowelMovement = req.PainDuringBowelMovement
	resp.HadBowelMovement = req.HadBowelMovement
	resp.BristolType = req.BristolType
	resp.Bleeding = domain.BleedingLevel(req.Bleeding)
	resp.Temperature = req.Temperature
	resp.UrinationNormal = req.UrinationNormal
	if req.Answers != nil {
		resp.Answers = req.Answers
	}
	resp.FreeText = req.FreeText

	result, err := h.svc.SubmitReport(r.Context(), id, resp)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	sent, err := h.svc.DispatchDue(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"sent": sent})
}

// resolveClinicianID prefers the authenticated clinician over the request
// body; admins and staff may register on a clinician's behalf.
func resolveClinicianID(r *http.Request, fromBody *types.ID) types.ID {
	if user := auth.GetUser(r.Context()); user != nil && user.UserType == "clinician" && !user.ClinicianID.IsZero() {
		return user.ClinicianID
	}
	if fromBody != nil {
		return *fromBody
	}
	return types.ID("")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
