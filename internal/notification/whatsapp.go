package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/vigia-health/platform/internal/shared/config"
)

// Provider delivers a single message over one channel
type Provider interface {
	Send(ctx context.Context, msg *Message) error
}

// WhatsAppProvider sends text messages through the WhatsApp Cloud API.
// Outbound throughput is capped client-side so a burst of due check-ins
// does not trip the platform's rate limits.
type WhatsAppProvider struct {
	baseURL       string
	phoneNumberID string
	accessToken   string
	httpClient    *http.Client
	limiter       *rate.Limiter
}

func NewWhatsAppProvider(cfg config.WhatsAppConfig) *WhatsAppProvider {
	return &WhatsAppProvider{
		baseURL:       "https://graph.facebook.com/v19.0",
		phoneNumberID: cfg.PhoneNumberID,
		accessToken:   cfg.AccessToken,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.SendsPerSecond), cfg.SendsPerSecond),
	}
}

type whatsAppTextRequest struct {
	MessagingProduct string          `json:"messaging_product"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Text             whatsAppPayload `json:"text"`
}

type whatsAppPayload struct {
	Body string `json:"body"`
}

type whatsAppResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send delivers one text message, blocking until the rate limiter admits it
func (p *WhatsAppProvider) Send(ctx context.Context, msg *Message) error {
	if msg.To.IsZero() {
		return fmt.Errorf("whatsapp: message has no recipient")
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("whatsapp: rate limiter: %w", err)
	}

	body, err := json.Marshal(whatsAppTextRequest{
		MessagingProduct: "whatsapp",
		To:               msg.To.String(),
		Type:             "text",
		Text:             whatsAppPayload{Body: msg.Body},
	})
	if err != nil {
		return fmt.Errorf("whatsapp: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", p.baseURL, p.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("whatsapp: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: request failed: %w", err)
	}
	defer resp.Body.Close()

	var apiResp whatsAppResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&apiResp); err != nil {
		return fmt.Errorf("whatsapp: decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || apiResp.Error != nil {
		if apiResp.Error != nil {
			return fmt.Errorf("whatsapp: api error %d: %s", apiResp.Error.Code, apiResp.Error.Message)
		}
		return fmt.Errorf("whatsapp: api returned status %d", resp.StatusCode)
	}

	if len(apiResp.Messages) > 0 {
		msg.ProviderID = apiResp.Messages[0].ID
	}
	return nil
}
