package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaydesk/relaydesk/domain"
	"github.com/relaydesk/relaydesk/store"
)

// TenantStore implements store.Tenants.
type TenantStore struct {
	pool *pgxpool.Pool
}

const tenantColumns = "id, name, api_key_hash, config, is_active, created_at"

// ByAPIKeyHash resolves a tenant by its API key hash.
func (s *TenantStore) ByAPIKeyHash(ctx context.Context, hash string) (*domain.Tenant, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+tenantColumns+" FROM tenants WHERE api_key_hash = $1", hash)
	return scanTenant(row)
}

// ByID resolves a tenant by id.
func (s *TenantStore) ByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+tenantColumns+" FROM tenants WHERE id = $1", id)
	return scanTenant(row)
}

// UpdateConfig replaces the tenant behavior configuration.
func (s *TenantStore) UpdateConfig(ctx context.Context, id uuid.UUID, cfg domain.TenantConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal tenant config: %w", err)
	}
	tag, err := s.pool.Exec(ctx, "UPDATE tenants SET config = $2 WHERE id = $1", id, raw)
	if err != nil {
		return fmt.Errorf("update tenant config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanTenant(row pgx.Row) (*domain.Tenant, error) {
	var (
		t   domain.Tenant
		raw []byte
	)
	err := row.Scan(&t.ID, &t.Name, &t.APIKeyHash, &raw, &t.IsActive, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan tenant: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &t.Config); err != nil {
			return nil, fmt.Errorf("unmarshal tenant config: %w", err)
		}
	}
	t.Config.ApplyDefaults()
	return &t, nil
}
