// Package billing accumulates per-session usage counters in the key-value
// store and flushes them as durable billing events when sessions terminate.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/relaydesk/relaydesk/domain"
	"github.com/relaydesk/relaydesk/kvstore"
	"github.com/relaydesk/relaydesk/store"
)

type (
	// Options configures the meter.
	Options struct {
		KV     kvstore.Store
		Events store.BillingEvents
		// IdleTimeout is the idle-session timeout; counter TTLs are twice
		// this so counters outlive the session they meter.
		IdleTimeout time.Duration
	}

	// Meter implements the metering operations.
	Meter struct {
		kv     kvstore.Store
		events store.BillingEvents
		ttl    time.Duration
	}
)

// New builds the meter.
func New(opts Options) (*Meter, error) {
	if opts.KV == nil {
		return nil, errors.New("kv store is required")
	}
	if opts.Events == nil {
		return nil, errors.New("billing event store is required")
	}
	if opts.IdleTimeout <= 0 {
		return nil, errors.New("idle timeout must be positive")
	}
	return &Meter{kv: opts.KV, events: opts.Events, ttl: 2 * opts.IdleTimeout}, nil
}

func billingKeys(sessionID uuid.UUID) (input, output, count string) {
	prefix := "billing:" + sessionID.String()
	return prefix + ":input_tokens", prefix + ":output_tokens", prefix + ":message_count"
}

// InitSession seeds the three counters at zero so a session that closes
// without traffic still produces an explicit zero-usage event.
func (m *Meter) InitSession(ctx context.Context, sessionID uuid.UUID) error {
	inKey, outKey, countKey := billingKeys(sessionID)
	for _, key := range []string{inKey, outKey, countKey} {
		if err := m.kv.Set(ctx, key, []byte("0"), m.ttl); err != nil {
			return fmt.Errorf("init billing counter: %w", err)
		}
	}
	return nil
}

// RecordMessage increments the session counters and refreshes their TTLs.
// Increments are additively commutative: interleavings of concurrent calls
// sum to the same totals.
func (m *Meter) RecordMessage(ctx context.Context, sessionID uuid.UUID, inputTokens, outputTokens int) error {
	inKey, outKey, countKey := billingKeys(sessionID)
	for _, kv := range []struct {
		key   string
		delta int64
	}{
		{inKey, int64(inputTokens)},
		{outKey, int64(outputTokens)},
		{countKey, 1},
	} {
		if _, err := m.kv.IncrBy(ctx, kv.key, kv.delta); err != nil {
			return fmt.Errorf("record message: %w", err)
		}
		if err := m.kv.Expire(ctx, kv.key, m.ttl); err != nil {
			return fmt.Errorf("refresh counter ttl: %w", err)
		}
	}
	return nil
}

// CloseSession reads the three counters (missing keys count as zero and
// warn), inserts one billing event with the totals, and deletes the keys.
func (m *Meter) CloseSession(ctx context.Context, sessionID, tenantID uuid.UUID, eventType domain.BillingEventType) error {
	inKey, outKey, countKey := billingKeys(sessionID)
	input := m.readCounter(ctx, sessionID, inKey)
	output := m.readCounter(ctx, sessionID, outKey)
	count := m.readCounter(ctx, sessionID, countKey)

	event := &domain.BillingEvent{
		ID:                uuid.New(),
		TenantID:          tenantID,
		SessionID:         sessionID,
		EventType:         eventType,
		TotalInputTokens:  input,
		TotalOutputTokens: output,
		TotalMessages:     count,
		BilledAt:          time.Now().UTC(),
	}
	if err := m.events.Insert(ctx, event); err != nil {
		return fmt.Errorf("insert billing event: %w", err)
	}
	if err := m.kv.Delete(ctx, inKey, outKey, countKey); err != nil {
		return fmt.Errorf("delete billing counters: %w", err)
	}
	return nil
}

func (m *Meter) readCounter(ctx context.Context, sessionID uuid.UUID, key string) int64 {
	raw, ok, err := m.kv.Get(ctx, key)
	if err != nil {
		log.Warnf(ctx, "billing counter read failed for %s: %v", key, err)
		return 0
	}
	if !ok {
		log.Warnf(ctx, "billing counter missing for session %s: %s", sessionID, key)
		return 0
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		log.Warnf(ctx, "billing counter unreadable for %s: %v", key, err)
		return 0
	}
	return n
}
