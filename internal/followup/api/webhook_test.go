package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vigia-health/platform/internal/followup/domain"
	"github.com/vigia-health/platform/internal/shared/errors"
	"github.com/vigia-health/platform/internal/shared/types"
)

// stubRepo overrides only what the webhook touches; anything else panics
type stubRepo struct {
	domain.Repository
}

func (stubRepo) FindPatientByPhone(_ context.Context, phone types.Phone) (*domain.Patient, error) {
	return nil, errors.NotFound("patient", phone.Masked())
}

func TestWebhookVerify(t *testing.T) {
	h := NewWebhookHandler(nil, stubRepo{}, "secret-token")

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whatsapp?hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=12345", nil)
		rec := httptest.NewRecorder()
		h.Verify(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if rec.Body.String() != "12345" {
			t.Errorf("expected challenge echo, got %q", rec.Body.String())
		}
	})

	t.Run("wrong token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
		rec := httptest.NewRecorder()
		h.Verify(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rec.Code)
		}
	})
}

func TestWebhookReceiveUnknownNumber(t *testing.T) {
	h := NewWebhookHandler(nil, stubRepo{}, "secret-token")

	payload := `{"entry":[{"changes":[{"value":{"messages":[{"from":"381641234567","type":"text","text":{"body":"hello"}}]}}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/whatsapp", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)

	// unknown senders are dropped, but the platform still gets a 200
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
