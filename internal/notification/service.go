package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vigia-health/platform/internal/shared/metrics"
	"github.com/vigia-health/platform/internal/shared/types"
)

// Service queues patient-facing messages onto a worker pool and sends
// doctor alerts synchronously, so an escalation can never be dropped by a
// full buffer.
type Service struct {
	provider   Provider
	alertPhone types.Phone

	msgCh   chan *Message
	workers int
	config  ServiceConfig

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// ServiceConfig holds dispatch tuning
type ServiceConfig struct {
	Workers       int
	BufferSize    int
	RetryAttempts int
	RetryDelay    time.Duration
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Workers:       4,
		BufferSize:    1000,
		RetryAttempts: 3,
		RetryDelay:    30 * time.Second,
	}
}

func NewService(provider Provider, alertPhone types.Phone, cfg ServiceConfig) *Service {
	return &Service{
		provider:   provider,
		alertPhone: alertPhone,
		msgCh:      make(chan *Message, cfg.BufferSize),
		workers:    cfg.Workers,
		config:     cfg,
		stopCh:     make(chan struct{}),
	}
}

// Start launches the dispatch workers
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("notification service already started")
	}
	s.started = true
	s.mu.Unlock()

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	return nil
}

// Stop drains the workers
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("notification service not started")
	}
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	return nil
}

// SendCheckIn queues the day's check-in questions for a patient
func (s *Service) SendCheckIn(to types.Phone, body string, followUpID types.ID) error {
	return s.enqueue(&Message{
		Kind:       KindCheckIn,
		To:         to,
		Body:       body,
		FollowUpID: &followUpID,
	})
}

// SendReply queues the triage reply to a patient's report
func (s *Service) SendReply(to types.Phone, body string, followUpID types.ID) error {
	return s.enqueue(&Message{
		Kind:       KindReply,
		To:         to,
		Body:       body,
		FollowUpID: &followUpID,
	})
}

// AlertDoctor sends an escalation to the clinic's on-call phone. It blocks
// until the provider accepts the message or the attempt fails outright.
func (s *Service) AlertDoctor(ctx context.Context, alert DoctorAlert) error {
	if s.alertPhone.IsZero() {
		log.Warn().Str("urgency", alert.Urgency).Msg("doctor alert suppressed, no alert phone configured")
		return fmt.Errorf("notification: no alert phone configured")
	}

	msg := &Message{
		ID:        generateMessageID(),
		Kind:      KindDoctorAlert,
		Status:    StatusPending,
		To:        s.alertPhone,
		Body:      alert.Format(),
		CreatedAt: time.Now(),
	}

	if err := s.provider.Send(ctx, msg); err != nil {
		metrics.RecordMessageDispatched("whatsapp", "failed")
		return fmt.Errorf("notification: doctor alert failed: %w", err)
	}

	metrics.RecordMessageDispatched("whatsapp", "sent")
	metrics.RecordDoctorAlert(alert.Reason)
	log.Info().
		Str("urgency", alert.Urgency).
		Str("reason", alert.Reason).
		Int("day", alert.DayNumber).
		Msg("doctor alert sent")
	return nil
}

func (s *Service) enqueue(msg *Message) error {
	if msg.ID == "" {
		msg.ID = generateMessageID()
	}
	msg.Status = StatusPending
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	select {
	case s.msgCh <- msg:
		return nil
	default:
		return fmt.Errorf("notification: message buffer full")
	}
}

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case msg := <-s.msgCh:
			s.process(ctx, msg)
		}
	}
}

func (s *Service) process(ctx context.Context, msg *Message) {
	err := s.provider.Send(ctx, msg)
	if err == nil {
		now := time.Now()
		msg.SentAt = &now
		msg.Status = StatusSent
		metrics.RecordMessageDispatched("whatsapp", "sent")
		return
	}

	msg.ErrorMessage = err.Error()
	msg.RetryCount++

	if msg.RetryCount >= s.config.RetryAttempts {
		msg.Status = StatusFailed
		metrics.RecordMessageDispatched("whatsapp", "failed")
		log.Error().Err(err).Str("kind", string(msg.Kind)).Str("to", msg.To.Masked()).Msg("message delivery failed")
		return
	}

	log.Warn().Err(err).Int("attempt", msg.RetryCount).Str("to", msg.To.Masked()).Msg("message delivery retry scheduled")
	go func() {
		select {
		case <-time.After(s.config.RetryDelay):
		case <-s.stopCh:
			return
		}
		select {
		case s.msgCh <- msg:
		default:
		}
	}()
}

func generateMessageID() string {
	return fmt.Sprintf("msg-%d", time.Now().UnixNano())
}
