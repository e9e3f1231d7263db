package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/vigia-health/platform/internal/adapters/his"
	"github.com/vigia-health/platform/internal/audit"
	"github.com/vigia-health/platform/internal/clinician"
	"github.com/vigia-health/platform/internal/followup"
	followupapi "github.com/vigia-health/platform/internal/followup/api"
	"github.com/vigia-health/platform/internal/followup/infrastructure"
	"github.com/vigia-health/platform/internal/nlp"
	"github.com/vigia-health/platform/internal/notification"
	"github.com/vigia-health/platform/internal/protocol"
	"github.com/vigia-health/platform/internal/shared/auth"
	"github.com/vigia-health/platform/internal/shared/clock"
	"github.com/vigia-health/platform/internal/shared/config"
	"github.com/vigia-health/platform/internal/shared/database"
	"github.com/vigia-health/platform/internal/shared/events"
	"github.com/vigia-health/platform/internal/shared/logging"
	"github.com/vigia-health/platform/internal/shared/metrics"
	secmiddleware "github.com/vigia-health/platform/internal/shared/middleware"
	"github.com/vigia-health/platform/internal/shared/types"
	"github.com/vigia-health/platform/internal/triage"
)

// App holds all application dependencies
type App struct {
	Config   *config.Config
	DB       *database.DB
	Bus      events.EventBus
	NLP      *nlp.Client
	Notifier *notification.Service
	HIS      *his.Adapter
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Server.Env)

	app := &App{Config: cfg}

	// Database is not optional: without it no schedule exists and no patient
	// can be followed.
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("database unavailable")
	}
	app.DB = db
	defer db.Close()

	if err := database.Migrate(ctx, db.Pool); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	// The audit event store may be down; follow-up delivery still runs.
	var auditRepo audit.AuditRepository
	bus, err := events.NewEventBus(ctx, cfg.KurrentDB)
	if err != nil {
		log.Warn().Err(err).Msg("event store unavailable, clinical events will not be recorded")
		bus = events.NopBus{}
	} else {
		defer bus.Close()
		if realBus, ok := bus.(*events.Bus); ok {
			auditRepo = audit.NewKurrentDBRepository(realBus.Client())
			if err := auditRepo.Initialize(ctx); err != nil {
				log.Warn().Err(err).Msg("audit initialization failed")
				auditRepo = nil
			}
		}
	}
	app.Bus = bus

	if auditRepo != nil {
		auditSubscriber := audit.NewSubscriber(auditRepo, bus)
		if err := auditSubscriber.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("audit subscriber failed to start")
		} else {
			log.Info().Msg("clinical audit subscriber started")
		}
	}

	zone, err := clock.LoadClinicZone(cfg.Clinic.Timezone, cfg.Clinic.SendHour)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid clinic settings")
	}

	// Wire the follow-up pipeline: repository, protocol resolver, triage,
	// outbound messaging.
	repo := infrastructure.NewPostgresRepository(db.Pool)
	protocolStore := protocol.NewPostgresStore(db.Pool)
	resolver := protocol.NewResolver(protocolStore)

	app.NLP = nlp.NewClient(cfg.Triage)
	triageSvc := triage.NewService(app.NLP)

	var alertPhone types.Phone
	if cfg.Clinic.AlertPhone != "" {
		alertPhone, err = types.ParsePhone(cfg.Clinic.AlertPhone)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid clinic alert phone")
		}
	}

	var provider notification.Provider
	if cfg.WhatsApp.AccessToken != "" && cfg.WhatsApp.PhoneNumberID != "" {
		provider = notification.NewWhatsAppProvider(cfg.WhatsApp)
		log.Info().Str("phone_number_id", cfg.WhatsApp.PhoneNumberID).Msg("whatsapp provider configured")
	} else {
		provider = notification.NewMockProvider()
		log.Warn().Msg("whatsapp credentials missing, outbound messages go to the mock provider")
	}

	app.Notifier = notification.NewService(provider, alertPhone, notification.DefaultServiceConfig())
	if err := app.Notifier.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("notification service failed to start")
	}
	defer app.Notifier.Stop()

	svc := followup.NewService(repo, resolver, triageSvc, app.Notifier, bus, zone, clock.System{})

	// Hospital information system import, per-clinic opt-in.
	if cfg.HIS.Enabled && cfg.HIS.DSN != "" {
		app.HIS = his.New(cfg.HIS, svc)
		if err := app.HIS.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("his adapter failed to start, surgeries must be registered via API")
			app.HIS = nil
		} else {
			defer app.HIS.Stop()
			log.Info().Dur("poll_interval", cfg.HIS.PollInterval).Msg("his import adapter started")
		}
	}

	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()
	go dispatchLoop(dispatchCtx, svc)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(secmiddleware.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(metrics.Middleware)
	r.Use(secmiddleware.CORS(secmiddleware.DefaultCORSConfig()))

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler(app))
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	r.Get("/", infoHandler)

	// WhatsApp calls the webhook directly, so it sits outside JWT auth;
	// the verify-token handshake is its authentication.
	webhook := followupapi.NewWebhookHandler(svc, repo, cfg.WhatsApp.VerifyToken)
	r.Mount("/webhooks", webhook.Routes())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Server.Env == "production" {
			r.Use(auth.Middleware(cfg.Auth))
		}

		handler := followupapi.NewHandler(svc, repo)
		r.Mount("/", handler.Routes())

		clinicianHandler := clinician.NewHandler(clinician.NewRepository(db.Pool), bus)
		r.Mount("/clinicians", clinicianHandler.Routes())

		protocolHandler := protocol.NewHandler(protocolStore, bus)
		r.Mount("/protocols", protocolHandler.Routes())

		if auditRepo != nil {
			auditHandler := audit.NewHandler(auditRepo)
			r.Mount("/audit", auditHandler.Routes())
		}
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("shutting down server")
		stopDispatch()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
		close(done)
	}()

	log.Info().
		Str("env", cfg.Server.Env).
		Int("port", cfg.Server.Port).
		Str("clinic_timezone", cfg.Clinic.Timezone).
		Int("send_hour", cfg.Clinic.SendHour).
		Bool("nlp_enabled", cfg.Triage.Enabled).
		Bool("his_enabled", app.HIS != nil).
		Msg("post-surgical follow-up platform starting")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server error")
	}

	<-done
	log.Info().Msg("server stopped")
}

// dispatchLoop pushes due follow-ups out once a minute. Send times land on
// whole minutes, so this granularity keeps check-ins within a minute of the
// clinic's configured hour.
func dispatchLoop(ctx context.Context, svc *followup.Service) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sent, err := svc.DispatchDue(ctx, 200)
			if err != nil {
				log.Error().Err(err).Msg("dispatch pass failed")
				continue
			}
			if sent > 0 {
				log.Info().Int("sent", sent).Msg("dispatched due follow-ups")
			}
		}
	}
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "Vigia Post-Surgical Follow-Up Platform",
		"version": "0.1.0",
		"docs":    "/api/v1",
	})
}

func healthHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
		})
	}
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		if err := app.DB.Health(r.Context()); err != nil {
			checks["database"] = "not ready: " + err.Error()
		} else {
			checks["database"] = "ready"
		}

		if _, degraded := app.Bus.(events.NopBus); degraded {
			checks["eventstore"] = "not configured"
		} else if err := app.Bus.Health(); err != nil {
			checks["eventstore"] = "not ready: " + err.Error()
		} else {
			checks["eventstore"] = "ready"
		}

		// NLP being down is not fatal: triage falls back to keyword
		// escalation, but surface it for operators.
		switch err := app.NLP.Health(r.Context()); {
		case errors.Is(err, nlp.ErrDisabled):
			checks["nlp"] = "not configured"
		case err != nil:
			checks["nlp"] = "degraded: " + err.Error()
		default:
			checks["nlp"] = "ready"
		}

		if app.HIS != nil {
			if err := app.HIS.Health(r.Context()); err != nil {
				checks["his"] = "not ready: " + err.Error()
			} else {
				checks["his"] = "ready"
			}
		}

		allReady := true
		for key, status := range checks {
			if key == "nlp" {
				continue
			}
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}
