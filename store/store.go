// Package store defines the relational persistence ports. The production
// driver backed by pgx lives in features/store/postgres.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/relaydesk/relaydesk/domain"
)

// ErrNotFound is returned by lookups when no row matches.
var ErrNotFound = errors.New("store: not found")

type (
	// Tenants resolves and updates tenant records.
	Tenants interface {
		ByAPIKeyHash(ctx context.Context, hash string) (*domain.Tenant, error)
		ByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error)
		UpdateConfig(ctx context.Context, id uuid.UUID, cfg domain.TenantConfig) error
	}

	// Sessions manages conversation session rows.
	Sessions interface {
		Create(ctx context.Context, s *domain.Session) error
		// Get returns the session only when it belongs to tenantID.
		Get(ctx context.Context, id, tenantID uuid.UUID) (*domain.Session, error)
		Touch(ctx context.Context, id uuid.UUID, at time.Time) error
		// End transitions the session to a terminal status and stamps
		// ended_at. Reason is recorded for escalations, empty otherwise.
		End(ctx context.Context, id uuid.UUID, status domain.SessionStatus, reason string, endedAt time.Time) error
		// ListIdleActive returns active sessions started before cutoff.
		ListIdleActive(ctx context.Context, cutoff time.Time) ([]domain.Session, error)
	}

	// Messages manages transcript rows.
	Messages interface {
		Insert(ctx context.Context, m *domain.Message) error
		// InsertPair writes the user and assistant halves of a turn in one
		// transaction.
		InsertPair(ctx context.Context, user, assistant *domain.Message) error
		// BySession returns the transcript in chronological order.
		BySession(ctx context.Context, sessionID uuid.UUID) ([]domain.Message, error)
	}

	// Documents manages knowledge document rows.
	Documents interface {
		Create(ctx context.Context, d *domain.KnowledgeDocument) error
		Get(ctx context.Context, id, tenantID uuid.UUID) (*domain.KnowledgeDocument, error)
		List(ctx context.Context, tenantID uuid.UUID) ([]domain.KnowledgeDocument, error)
		// NextVersion returns one past the highest version ever recorded for
		// the filename under the tenant, starting at 1.
		NextVersion(ctx context.Context, tenantID uuid.UUID, filename string) (int, error)
		SetStatus(ctx context.Context, id uuid.UUID, status domain.DocumentStatus, chunkCount *int, errMsg string) error
		SoftDelete(ctx context.Context, id, tenantID uuid.UUID) error
	}

	// BillingEvents appends immutable usage records.
	BillingEvents interface {
		Insert(ctx context.Context, e *domain.BillingEvent) error
	}
)
