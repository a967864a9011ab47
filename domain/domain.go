// Package domain holds the entities shared by every service: tenants and
// their behavior configuration, sessions, messages, knowledge documents, and
// billing events. It has no dependencies beyond uuid and time so that ports
// and drivers can both import it freely.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type (
	// SessionStatus is the lifecycle state of a conversation session.
	SessionStatus string

	// Role identifies the author of a message.
	Role string

	// IntentType is the classified intent of a user message.
	IntentType string

	// DocumentStatus is the ingestion state of a knowledge document.
	DocumentStatus string

	// BillingEventType records why a billing event was emitted.
	BillingEventType string
)

const (
	SessionActive    SessionStatus = "active"
	SessionResolved  SessionStatus = "resolved"
	SessionEscalated SessionStatus = "escalated"
)

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

const (
	IntentConversational IntentType = "conversational"
	IntentDomainQuery    IntentType = "domain_query"
	IntentOutOfScope     IntentType = "out_of_scope"
)

const (
	DocumentProcessing DocumentStatus = "processing"
	DocumentReady      DocumentStatus = "ready"
	DocumentFailed     DocumentStatus = "failed"
)

const (
	BillingResolved             BillingEventType = "resolved"
	BillingEscalated            BillingEventType = "escalated"
	BillingTimeout              BillingEventType = "timeout"
	BillingEscalationHookFailed BillingEventType = "escalation_webhook_failed"
)

// Escalation reasons attached to sessions and turn results. Low retrieval
// confidence takes precedence when both conditions hold.
const (
	EscalationLowConfidence = "low_retrieval_confidence"
	EscalationMaxTurns      = "max_turns_exceeded"
)

// Tenant is one customer of the platform. All data access is scoped by
// tenant id; the API key hash is the sole authentication credential.
type Tenant struct {
	ID         uuid.UUID
	Name       string
	APIKeyHash string
	Config     TenantConfig
	IsActive   bool
	CreatedAt  time.Time
}

// TenantConfig drives agent behavior per tenant. Stored as a JSON document
// alongside the tenant row so new knobs do not require migrations.
type TenantConfig struct {
	PersonaName              string   `json:"persona_name"`
	PersonaDescription       string   `json:"persona_description"`
	CompanyName              string   `json:"company_name"`
	Vertical                 string   `json:"vertical"`
	AllowedTopics            []string `json:"allowed_topics"`
	BlockedTopics            []string `json:"blocked_topics"`
	EscalationThreshold      float64  `json:"escalation_threshold"`
	AutoResolveThreshold     float64  `json:"auto_resolve_threshold"`
	MaxTurnsBeforeEscalation int      `json:"max_turns_before_escalation"`
	EscalationWebhookURL     string   `json:"escalation_webhook_url"`
	DataWebhookURL           string   `json:"data_webhook_url"`

	// ExternalUserID is a per-turn input filled from the session, never
	// persisted with the tenant.
	ExternalUserID string `json:"-"`
}

// ApplyDefaults fills unset numeric knobs with their platform defaults.
func (c *TenantConfig) ApplyDefaults() {
	if c.PersonaName == "" {
		c.PersonaName = "Assistant"
	}
	if c.EscalationThreshold == 0 {
		c.EscalationThreshold = 0.55
	}
	if c.AutoResolveThreshold == 0 {
		c.AutoResolveThreshold = 0.8
	}
	if c.MaxTurnsBeforeEscalation == 0 {
		c.MaxTurnsBeforeEscalation = 10
	}
}

// Session is a single conversation between an end user and the agent.
type Session struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	ExternalUserID   string
	Status           SessionStatus
	EscalationReason string
	StartedAt        time.Time
	LastActivityAt   time.Time
	EndedAt          *time.Time
}

// SourceChunk is the attribution record persisted with grounded answers.
type SourceChunk struct {
	ChunkID  string  `json:"chunk_id"`
	Document string  `json:"document"`
	Section  string  `json:"section"`
	Score    float64 `json:"score"`
}

// Message is one turn half (user or assistant) in a session transcript.
// Token and latency counters live on the assistant message of each pair.
type Message struct {
	ID              uuid.UUID
	SessionID       uuid.UUID
	TenantID        uuid.UUID
	Role            Role
	Content         string
	IntentType      IntentType
	SourceChunks    []SourceChunk
	ConfidenceScore *float64
	EscalationFlag  bool
	InputTokens     int
	OutputTokens    int
	LatencyMS       int
	CreatedAt       time.Time
}

// KnowledgeDocument tracks one uploaded file through the ingestion pipeline.
type KnowledgeDocument struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	Filename     string
	FileType     string
	Version      int
	IsActive     bool
	Status       DocumentStatus
	ChunkCount   *int
	ErrorMessage string
	IngestedAt   time.Time
}

// BillingEvent is the immutable usage record written when a session closes.
type BillingEvent struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	SessionID         uuid.UUID
	EventType         BillingEventType
	TotalInputTokens  int64
	TotalOutputTokens int64
	TotalMessages     int64
	BilledAt          time.Time
}
