package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaydesk/relaydesk/domain"
	"github.com/relaydesk/relaydesk/store"
)

// DocumentStore implements store.Documents.
type DocumentStore struct {
	pool *pgxpool.Pool
}

const documentColumns = "id, tenant_id, filename, file_type, version, is_active, status, chunk_count, error_message, ingested_at"

// Create inserts a new knowledge document row.
func (s *DocumentStore) Create(ctx context.Context, d *domain.KnowledgeDocument) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO knowledge_documents
		 (id, tenant_id, filename, file_type, version, is_active, status, ingested_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.TenantID, d.Filename, d.FileType, d.Version, d.IsActive, d.Status, d.IngestedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// Get returns the document only when it belongs to tenantID.
func (s *DocumentStore) Get(ctx context.Context, id, tenantID uuid.UUID) (*domain.KnowledgeDocument, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+documentColumns+" FROM knowledge_documents WHERE id = $1 AND tenant_id = $2",
		id, tenantID)
	return scanDocument(row)
}

// List returns the tenant's active documents, most recent first.
func (s *DocumentStore) List(ctx context.Context, tenantID uuid.UUID) ([]domain.KnowledgeDocument, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+documentColumns+` FROM knowledge_documents
		 WHERE tenant_id = $1 AND is_active ORDER BY ingested_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	var out []domain.KnowledgeDocument
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// NextVersion returns one past the highest version recorded for the filename.
func (s *DocumentStore) NextVersion(ctx context.Context, tenantID uuid.UUID, filename string) (int, error) {
	var max int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM knowledge_documents
		 WHERE tenant_id = $1 AND filename = $2`, tenantID, filename).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("next document version: %w", err)
	}
	return max + 1, nil
}

// SetStatus updates the ingestion status of a document.
func (s *DocumentStore) SetStatus(ctx context.Context, id uuid.UUID, status domain.DocumentStatus, chunkCount *int, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE knowledge_documents SET status = $2, chunk_count = $3, error_message = $4
		 WHERE id = $1`,
		id, status, chunkCount, errMsg)
	if err != nil {
		return fmt.Errorf("set document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SoftDelete deactivates the document.
func (s *DocumentStore) SoftDelete(ctx context.Context, id, tenantID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE knowledge_documents SET is_active = FALSE WHERE id = $1 AND tenant_id = $2",
		id, tenantID)
	if err != nil {
		return fmt.Errorf("soft delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanDocument(row pgx.Row) (*domain.KnowledgeDocument, error) {
	var d domain.KnowledgeDocument
	err := row.Scan(&d.ID, &d.TenantID, &d.Filename, &d.FileType, &d.Version,
		&d.IsActive, &d.Status, &d.ChunkCount, &d.ErrorMessage, &d.IngestedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &d, nil
}
