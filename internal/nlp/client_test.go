package nlp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vigia-health/platform/internal/shared/config"
	"github.com/vigia-health/platform/internal/triage"
)

func testConfig(url string) config.TriageConfig {
	return config.TriageConfig{
		URL:     url,
		APIKey:  "test-key",
		Timeout: 2 * time.Second,
		Enabled: true,
	}
}

func testRequest() triage.Request {
	return triage.Request{
		ClinicalContext: "Day 3 after hemorrhoidectomy.",
		PatientMessage:  "Some pain but manageable.",
		Day:             3,
		SurgeryType:     "hemorrhoidectomy",
	}
}

func TestClassify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v1/triage" {
			t.Errorf("expected /v1/triage, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("expected bearer auth header, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"urgency": "MEDIUM",
			"category": "pain_management",
			"summary": "Moderate pain, within expectations",
			"suggestedResponse": "Keep taking your prescribed analgesia.",
			"shouldNotifyDoctor": false,
			"redFlags": []
		}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	result, err := client.Classify(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Urgency != triage.UrgencyMedium {
		t.Errorf("expected MEDIUM, got %s", result.Urgency)
	}
	if result.Category != "pain_management" {
		t.Errorf("unexpected category %q", result.Category)
	}
	if result.ShouldNotifyDoctor {
		t.Error("expected shouldNotifyDoctor false")
	}
}

func TestClassifyInvalidResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"urgency": "HIGH"`},
		{"unknown urgency", `{"urgency": "PANIC", "summary": "s", "suggestedResponse": "r"}`},
		{"missing summary", `{"urgency": "HIGH", "suggestedResponse": "r"}`},
		{"missing suggested response", `{"urgency": "HIGH", "summary": "s"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient(testConfig(srv.URL))
			_, err := client.Classify(context.Background(), testRequest())
			var schemaErr *SchemaError
			if !errors.As(err, &schemaErr) {
				t.Fatalf("expected SchemaError, got %v", err)
			}
		})
	}
}

func TestClassifyServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	_, err := client.Classify(context.Background(), testRequest())
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	var schemaErr *SchemaError
	if errors.As(err, &schemaErr) {
		t.Error("status errors should not be schema errors")
	}
}

func TestClassifyTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond
	client := NewClient(cfg)

	_, err := client.Classify(context.Background(), testRequest())
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestClassifyDisabled(t *testing.T) {
	client := NewClient(config.TriageConfig{Enabled: false})
	_, err := client.Classify(context.Background(), testRequest())
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}
