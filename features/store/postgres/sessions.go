package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/relaydesk/relaydesk/domain"
	"github.com/relaydesk/relaydesk/store"
)

// SessionStore implements store.Sessions.
type SessionStore struct {
	pool db
}

const sessionColumns = "id, tenant_id, external_user_id, status, escalation_reason, started_at, last_activity_at, ended_at"

// Create inserts a new session row.
func (s *SessionStore) Create(ctx context.Context, sess *domain.Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, tenant_id, external_user_id, status, started_at, last_activity_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		sess.ID, sess.TenantID, sess.ExternalUserID, sess.Status, sess.StartedAt, sess.LastActivityAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get returns the session only when it belongs to tenantID.
func (s *SessionStore) Get(ctx context.Context, id, tenantID uuid.UUID) (*domain.Session, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE id = $1 AND tenant_id = $2", id, tenantID)
	return scanSession(row)
}

// Touch refreshes the activity timestamp.
func (s *SessionStore) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		"UPDATE sessions SET last_activity_at = $2 WHERE id = $1", id, at)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// End transitions the session to a terminal status. Only active sessions
// transition: a racing caller that lost cannot overwrite the first outcome,
// and ending an already-terminal session is a no-op.
func (s *SessionStore) End(ctx context.Context, id uuid.UUID, status domain.SessionStatus, reason string, endedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET status = $2, escalation_reason = $3, ended_at = $4, last_activity_at = $4
		 WHERE id = $1 AND status = $5`,
		id, status, reason, endedAt, domain.SessionActive)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var current domain.SessionStatus
		err := s.pool.QueryRow(ctx, "SELECT status FROM sessions WHERE id = $1", id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("end session: %w", err)
		}
	}
	return nil
}

// ListIdleActive returns active sessions started before cutoff.
func (s *SessionStore) ListIdleActive(ctx context.Context, cutoff time.Time) ([]domain.Session, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE status = $1 AND started_at < $2",
		domain.SessionActive, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list idle sessions: %w", err)
	}
	defer rows.Close()
	var out []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var sess domain.Session
	err := row.Scan(&sess.ID, &sess.TenantID, &sess.ExternalUserID, &sess.Status,
		&sess.EscalationReason, &sess.StartedAt, &sess.LastActivityAt, &sess.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &sess, nil
}
