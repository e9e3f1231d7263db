package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/vigia-health/platform/internal/followup"
	"github.com/vigia-health/platform/internal/followup/domain"
	"github.com/vigia-health/platform/internal/shared/errors"
	"github.com/vigia-health/platform/internal/shared/types"
)

// WebhookHandler receives inbound WhatsApp traffic. Free-text messages from
// enrolled patients become reports against their most recent open check-in.
type WebhookHandler struct {
	svc         *followup.Service
	repo        domain.Repository
	verifyToken string
}

func NewWebhookHandler(svc *followup.Service, repo domain.Repository, verifyToken string) *WebhookHandler {
	return &WebhookHandler{svc: svc, repo: repo, verifyToken: verifyToken}
}

// Routes registers the webhook routes
func (h *WebhookHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/whatsapp", h.Verify)
	r.Post("/whatsapp", h.Receive)
	return r
}

// Verify answers the WhatsApp platform's subscription handshake
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == h.verifyToken {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	w.WriteHeader(http.StatusForbidden)
}

type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []inboundMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type inboundMessage struct {
	From string `json:"from"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
}

// Receive processes inbound messages. The platform expects a 200 for every
// delivery; failures are logged, never surfaced, so WhatsApp does not
// retry a message we cannot act on.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Warn().Err(err).Msg("failed to decode webhook payload")
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				h.handleMessage(r, msg)
			}
		}
	}

	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) handleMessage(r *http.Request, msg inboundMessage) {
	if msg.Type != "text" || msg.Text.Body == "" {
		return
	}

	phone, err := types.ParsePhone("+" + msg.From)
	if err != nil {
		log.Warn().Str("from", msg.From).Msg("inbound message with unparseable sender")
		return
	}

	patient, err := h.repo.FindPatientByPhone(r.Context(), phone)
	if err != nil {
		log.Info().Str("from", phone.Masked()).Msg("inbound message from unknown number")
		return
	}

	surgery, err := h.repo.FindActiveSurgeryByPatient(r.Context(), patient.ID)
	if err != nil {
		log.Info().Str("patient_id", patient.ID.String()).Msg("inbound message without active programme")
		return
	}

	fu, err := h.openFollowUp(r, surgery.ID)
	if err != nil {
		log.Info().Str("surgery_id", surgery.ID.String()).Msg("inbound message with no open check-in")
		return
	}

	resp := domain.NewFollowUpResponse(fu.ID)
	resp.FreeText = msg.Text.Body

	if _, err := h.svc.SubmitReport(r.Context(), fu.ID, resp); err != nil {
		log.Error().Err(err).Str("follow_up_id", fu.ID.String()).Msg("failed to process inbound report")
	}
}

// openFollowUp picks the latest check-in awaiting a response
func (h *WebhookHandler) openFollowUp(r *http.Request, surgeryID types.ID) (*domain.FollowUp, error) {
	schedule, err := h.repo.FindSchedule(r.Context(), surgeryID)
	if err != nil {
		return nil, err
	}

	var open *domain.FollowUp
	for i := range schedule {
		fu := &schedule[i]
		switch fu.Status {
		case domain.FollowUpStatusSent, domain.FollowUpStatusInProgress:
			if open == nil || fu.DayNumber > open.DayNumber {
				open = fu
			}
		}
	}
	if open == nil {
		return nil, errors.NotFound("open follow-up", surgeryID.String())
	}
	return open, nil
}
