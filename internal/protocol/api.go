package protocol

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vigia-health/platform/internal/followup/domain"
	"github.com/vigia-health/platform/internal/shared/auth"
	"github.com/vigia-health/platform/internal/shared/errors"
	"github.com/vigia-health/platform/internal/shared/events"
	"github.com/vigia-health/platform/internal/shared/types"
)

// Handler provides HTTP handlers for protocol management
type Handler struct {
	store *PostgresStore
	bus   events.EventBus
}

// NewHandler creates a new protocol handler
func NewHandler(store *PostgresStore, bus events.EventBus) *Handler {
	return &Handler{store: store, bus: bus}
}

// Routes registers the protocol routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)

	r.Route("/{protocolID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Deactivate)
	})

	return r
}

// SaveRequest carries a protocol definition
type SaveRequest struct {
	ClinicianID   *types.ID `json:"clinician_id,omitempty"`
	ResearchID    *types.ID `json:"research_id,omitempty"`
	ResearchGroup string    `json:"research_group,omitempty"`
	SurgeryType   string    `json:"surgery_type"`
	DayRangeStart int       `json:"day_range_start"`
	DayRangeEnd   *int      `json:"day_range_end,omitempty"`
	Category      string    `json:"category"`
	Priority      int       `json:"priority"`
	Content       string    `json:"content"`
	IsActive      *bool     `json:"is_active,omitempty"`
}

func (req *SaveRequest) validate() map[string]string {
	details := map[string]string{}

	switch domain.SurgeryType(req.SurgeryType) {
	case domain.SurgeryTypeHemorrhoidectomy, domain.SurgeryTypeFissure,
		domain.SurgeryTypeFistula, domain.SurgeryTypePilonidal:
	default:
		details["surgery_type"] = "unknown surgery type"
	}

	if req.DayRangeStart < 1 {
		details["day_range_start"] = "must be at least 1"
	}
	if req.DayRangeEnd != nil && *req.DayRangeEnd < req.DayRangeStart {
		details["day_range_end"] = "must not precede day_range_start"
	}
	if req.Content == "" {
		details["content"] = "content is required"
	}
	if req.Category == "" {
		details["category"] = "category is required"
	}
	if req.ResearchGroup != "" && req.ResearchID == nil {
		details["research_group"] = "research_group requires research_id"
	}

	if len(details) == 0 {
		return nil
	}
	return details
}

// List returns a clinician's protocols, or the system defaults when no
// clinician_id query parameter is given
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var (
		protocols []Protocol
		err       error
	)

	if raw := r.URL.Query().Get("clinician_id"); raw != "" {
		clinicianID, parseErr := types.ParseID(raw)
		if parseErr != nil {
			writeError(w, errors.BadRequest("invalid clinician ID"))
			return
		}
		protocols, err = h.store.ListForClinician(r.Context(), clinicianID)
	} else {
		protocols, err = h.store.ListDefaults(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  protocols,
		"total": len(protocols),
	})
}

// Get returns a protocol by ID
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "protocolID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid protocol ID"))
		return
	}

	p, err := h.store.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// Create defines a new protocol
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if details := req.validate(); details != nil {
		writeError(w, errors.Validation("validation failed", details))
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	p := &Protocol{
		ID:            types.NewID(),
		ClinicianID:   req.ClinicianID,
		ResearchID:    req.ResearchID,
		ResearchGroup: req.ResearchGroup,
		SurgeryType:   domain.SurgeryType(req.SurgeryType),
		DayRangeStart: req.DayRangeStart,
		DayRangeEnd:   req.DayRangeEnd,
		Category:      req.Category,
		Priority:      req.Priority,
		Content:       req.Content,
		IsActive:      active,
		CreatedAt:     time.Now(),
	}

	if err := h.store.Save(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, p)

	writeJSON(w, http.StatusCreated, p)
}

// Update replaces a protocol's day range, category, priority, content and
// active flag. Ownership and surgery type are fixed at creation.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "protocolID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid protocol ID"))
		return
	}

	p, err := h.store.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	// Ownership and surgery type come from the stored row so validation
	// sees the effective values.
	req.ClinicianID = p.ClinicianID
	req.ResearchID = p.ResearchID
	req.ResearchGroup = p.ResearchGroup
	req.SurgeryType = string(p.SurgeryType)

	if details := req.validate(); details != nil {
		writeError(w, errors.Validation("validation failed", details))
		return
	}

	p.DayRangeStart = req.DayRangeStart
	p.DayRangeEnd = req.DayRangeEnd
	p.Category = req.Category
	p.Priority = req.Priority
	p.Content = req.Content
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}

	if err := h.store.Save(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, p)

	writeJSON(w, http.StatusOK, p)
}

// Deactivate retires a protocol without deleting it, so past resolutions
// remain explainable
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "protocolID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid protocol ID"))
		return
	}

	p, err := h.store.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	p.IsActive = false

	if err := h.store.Save(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, p)

	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) publish(r *http.Request, p *Protocol) {
	if h.bus == nil {
		return
	}

	actorID := types.ID("")
	actorType := "system"
	if user := auth.GetUser(r.Context()); user != nil {
		actorID = user.ID
		actorType = "clinician"
	}

	data := map[string]any{
		"protocol_id":  p.ID,
		"surgery_type": string(p.SurgeryType),
		"category":     p.Category,
		"is_active":    p.IsActive,
	}
	if p.ClinicianID != nil {
		data["clinician_id"] = *p.ClinicianID
	}
	if p.ResearchID != nil {
		data["research_id"] = *p.ResearchID
	}

	event := events.NewEvent("protocol.updated", "protocol-service", data).
		WithActor(actorID, actorType)

	h.bus.Publish(r.Context(), event)
}

// --- Helpers ---

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
