package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaydesk/relaydesk/domain"
)

// MessageStore implements store.Messages.
type MessageStore struct {
	pool *pgxpool.Pool
}

const messageColumns = "id, session_id, tenant_id, role, content, intent_type, source_chunks, confidence_score, escalation_flag, input_tokens, output_tokens, latency_ms, created_at"

const insertMessageSQL = `INSERT INTO messages
	(id, session_id, tenant_id, role, content, intent_type, source_chunks,
	 confidence_score, escalation_flag, input_tokens, output_tokens, latency_ms, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

// Insert writes one message row.
func (s *MessageStore) Insert(ctx context.Context, m *domain.Message) error {
	args, err := messageArgs(m)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, insertMessageSQL, args...); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// InsertPair writes the user and assistant halves of a turn atomically.
func (s *MessageStore) InsertPair(ctx context.Context, user, assistant *domain.Message) error {
	userArgs, err := messageArgs(user)
	if err != nil {
		return err
	}
	asstArgs, err := messageArgs(assistant)
	if err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin message pair: %w", err)
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, insertMessageSQL, userArgs...); err != nil {
		return fmt.Errorf("insert user message: %w", err)
	}
	if _, err := tx.Exec(ctx, insertMessageSQL, asstArgs...); err != nil {
		return fmt.Errorf("insert assistant message: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit message pair: %w", err)
	}
	return nil
}

// BySession returns the transcript in chronological order.
func (s *MessageStore) BySession(ctx context.Context, sessionID uuid.UUID) ([]domain.Message, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE session_id = $1 ORDER BY created_at ASC",
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func messageArgs(m *domain.Message) ([]any, error) {
	var chunks []byte
	if len(m.SourceChunks) > 0 {
		raw, err := json.Marshal(m.SourceChunks)
		if err != nil {
			return nil, fmt.Errorf("marshal source chunks: %w", err)
		}
		chunks = raw
	}
	return []any{
		m.ID, m.SessionID, m.TenantID, m.Role, m.Content, m.IntentType, chunks,
		m.ConfidenceScore, m.EscalationFlag, m.InputTokens, m.OutputTokens,
		m.LatencyMS, m.CreatedAt,
	}, nil
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var (
		m      domain.Message
		chunks []byte
	)
	err := row.Scan(&m.ID, &m.SessionID, &m.TenantID, &m.Role, &m.Content, &m.IntentType,
		&chunks, &m.ConfidenceScore, &m.EscalationFlag, &m.InputTokens, &m.OutputTokens,
		&m.LatencyMS, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	if len(chunks) > 0 {
		if err := json.Unmarshal(chunks, &m.SourceChunks); err != nil {
			return nil, fmt.Errorf("unmarshal source chunks: %w", err)
		}
	}
	return &m, nil
}
