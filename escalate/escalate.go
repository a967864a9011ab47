// Package escalate marks sessions as escalated and delivers the escalation
// payload to the tenant's webhook. The webhook delivery runs as a detached
// background task with retries; the escalation itself completes regardless
// of delivery outcome.
package escalate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/relaydesk/relaydesk/domain"
	"github.com/relaydesk/relaydesk/store"
)

// webhookTimeout bounds each delivery attempt.
const webhookTimeout = 10 * time.Second

type (
	// Memory clears a session's conversation memory. Satisfied by
	// agent.Memory.
	Memory interface {
		Clear(ctx context.Context, sessionID uuid.UUID) error
	}

	// Options configures the service.
	Options struct {
		Sessions store.Sessions
		Messages store.Messages
		Billing  store.BillingEvents
		Memory   Memory
		// HTTPClient overrides the webhook transport, mainly for tests.
		HTTPClient *http.Client
		// Backoff overrides the retry schedule. Defaults to 1s, 2s, 4s
		// (three attempts).
		Backoff []time.Duration
	}

	// Service implements the escalation sequence.
	Service struct {
		sessions store.Sessions
		messages store.Messages
		billing  store.BillingEvents
		memory   Memory
		http     *http.Client
		backoff  []time.Duration
	}

	// Request identifies the session to escalate and the webhook inputs.
	Request struct {
		SessionID       uuid.UUID
		TenantID        uuid.UUID
		Reason          string
		LastUserMessage string
		WebhookURL      string
		ExternalUserID  string
	}

	webhookPayload struct {
		Event            string            `json:"event"`
		SessionID        string            `json:"session_id"`
		TenantID         string            `json:"tenant_id"`
		ExternalUserID   string            `json:"external_user_id"`
		EscalationReason string            `json:"escalation_reason"`
		Transcript       []transcriptEntry `json:"transcript"`
		LastUserMessage  string            `json:"last_user_message"`
		EscalatedAt      string            `json:"escalated_at"`
	}

	transcriptEntry struct {
		Role      string `json:"role"`
		Content   string `json:"content"`
		Timestamp string `json:"timestamp"`
	}
)

// New builds the escalation service.
func New(opts Options) (*Service, error) {
	if opts.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if opts.Messages == nil {
		return nil, errors.New("message store is required")
	}
	if opts.Billing == nil {
		return nil, errors.New("billing store is required")
	}
	if opts.Memory == nil {
		return nil, errors.New("memory is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	backoff := opts.Backoff
	if len(backoff) == 0 {
		backoff = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	}
	return &Service{
		sessions: opts.Sessions,
		messages: opts.Messages,
		billing:  opts.Billing,
		memory:   opts.Memory,
		http:     httpClient,
		backoff:  backoff,
	}, nil
}

// Escalate runs the strictly ordered sequence: load transcript, mark the
// session escalated, enqueue the webhook delivery (detached, not awaited),
// clear memory.
func (s *Service) Escalate(ctx context.Context, req Request) error {
	transcript, err := s.messages.BySession(ctx, req.SessionID)
	if err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}
	now := time.Now().UTC()
	if err := s.sessions.End(ctx, req.SessionID, domain.SessionEscalated, req.Reason, now); err != nil {
		return fmt.Errorf("mark session escalated: %w", err)
	}

	if req.WebhookURL != "" {
		// Detached from the request lifetime: the retry schedule outlives
		// the turn that triggered it.
		go s.deliver(context.WithoutCancel(ctx), req, transcript, now)
	}

	if err := s.memory.Clear(ctx, req.SessionID); err != nil {
		log.Warnf(ctx, "memory clear failed for session %s: %v", req.SessionID, err)
	}
	return nil
}

// deliver fires the webhook with retries. Every failure path is logged and
// swallowed; after the schedule is exhausted a compensating billing event
// records the lost notification.
func (s *Service) deliver(ctx context.Context, req Request, transcript []domain.Message, escalatedAt time.Time) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf(ctx, fmt.Errorf("%v", r), "webhook delivery panicked")
		}
	}()

	entries := make([]transcriptEntry, len(transcript))
	for i, m := range transcript {
		entries[i] = transcriptEntry{
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: m.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	body, err := json.Marshal(webhookPayload{
		Event:            "escalation",
		SessionID:        req.SessionID.String(),
		TenantID:         req.TenantID.String(),
		ExternalUserID:   req.ExternalUserID,
		EscalationReason: req.Reason,
		Transcript:       entries,
		LastUserMessage:  req.LastUserMessage,
		EscalatedAt:      escalatedAt.Format(time.RFC3339),
	})
	if err != nil {
		log.Errorf(ctx, err, "marshal webhook payload")
		return
	}

	for attempt := 0; attempt < len(s.backoff); attempt++ {
		err := s.post(ctx, req.WebhookURL, body)
		if err == nil {
			return
		}
		log.Warnf(ctx, "webhook attempt %d failed for session %s: %v", attempt+1, req.SessionID, err)
		if attempt == len(s.backoff)-1 {
			// No retry left; do not sleep before recording the failure.
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.backoff[attempt]):
		}
	}

	// All attempts exhausted: record the failure durably so the tenant can
	// be notified out of band.
	event := &domain.BillingEvent{
		ID:        uuid.New(),
		TenantID:  req.TenantID,
		SessionID: req.SessionID,
		EventType: domain.BillingEscalationHookFailed,
		BilledAt:  time.Now().UTC(),
	}
	if err := s.billing.Insert(ctx, event); err != nil {
		log.Errorf(ctx, err, "record webhook failure")
	}
}

func (s *Service) post(ctx context.Context, url string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}
