package clinician

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

// Handler provides HTTP handlers for clinician management
type Handler struct {
	repo *Repository
	bus  events.EventBus
}

// NewHandler creates a new clinician handler
func NewHandler(repo *Repository, bus events.EventBus) *Handler {
	return &Handler{repo: repo, bus: bus}
}

// Routes registers the clinician routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)

	r.Route("/{clinicianID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
	})

	return r
}

// CreateRequest enrolls a new clinician
type CreateRequest struct {
	Name                string `json:"name"`
	Phone               string `json:"phone,omitempty"`
	UsesDefaultProtocol bool   `json:"uses_default_protocol"`
}

// UpdateRequest carries partial clinician updates
type UpdateRequest struct {
	Name                *string `json:"name,omitempty"`
	Phone               *string `json:"phone,omitempty"`
	UsesDefaultProtocol *bool   `json:"uses_default_protocol,omitempty"`
}

// List lists clinicians, with an optional name search
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		Search: r.URL.Query().Get("search"),
	}

	clinicians, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  clinicians,
		"total": total,
	})
}

// Get returns a clinician by ID
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "clinicianID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid clinician ID"))
		return
	}

	c, err := h.repo.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// Create enrolls a new clinician
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.Name == "" {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"name": "name is required",
		}))
		return
	}

	var phone types.Phone
	if req.Phone != "" {
		var err error
		phone, err = types.ParsePhone(req.Phone)
		if err != nil {
			writeError(w, errors.Validation("validation failed", map[string]string{
				"phone": err.Error(),
			}))
			return
		}
	}

	c := &domain.Clinician{
		ID:                  types.NewID(),
		Name:                req.Name,
		Phone:               phone,
		UsesDefaultProtocol: req.UsesDefaultProtocol,
		CreatedAt:           time.Now(),
	}

	if err := h.repo.Create(r.Context(), c); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, "clinician.created", c)

	writeJSON(w, http.StatusCreated, c)
}

// Update applies partial updates to a clinician
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "clinicianID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid clinician ID"))
		return
	}

	c, err := h.repo.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.Name != nil {
		c.Name = *req.Name
	}
	if req.Phone != nil {
		if *req.Phone == "" {
			c.Phone = ""
		} else {
			phone, err := types.ParsePhone(*req.Phone)
			if err != nil {
				writeError(w, errors.Validation("validation failed", map[string]string{
					"phone": err.Error(),
				}))
				return
			}
			c.Phone = phone
		}
	}
	if req.UsesDefaultProtocol != nil {
		c.UsesDefaultProtocol = *req.UsesDefaultProtocol
	}

	if err := h.repo.Update(r.Context(), c); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, "clinician.updated", c)

	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) publish(r *http.Request, eventType string, c *domain.Clinician) {
	if h.bus == nil {
		return
	}

	actorID := types.ID("")
	actorType := "system"
	if user := auth.GetUser(r.Context()); user != nil {
		actorID = user.ID
		actorType = "clinician"
	}

	event := events.NewEvent(eventType, "clinician-service", map[string]any{
		"clinician_id":          c.ID,
		"name":                  c.Name,
		"uses_default_protocol": c.UsesDefaultProtocol,
	}).WithActor(actorID, actorType)

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
