package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaydesk/relaydesk/domain"
)

// BillingStore implements store.BillingEvents.
type BillingStore struct {
	pool *pgxpool.Pool
}

// Insert appends one billing event.
func (s *BillingStore) Insert(ctx context.Context, e *domain.BillingEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO billing_events
		 (id, tenant_id, session_id, event_type, total_input_tokens, total_output_tokens, total_messages, billed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.TenantID, e.SessionID, e.EventType,
		e.TotalInputTokens, e.TotalOutputTokens, e.TotalMessages, e.BilledAt)
	if err != nil {
		return fmt.Errorf("insert billing event: %w", err)
	}
	return nil
}
