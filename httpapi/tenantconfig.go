package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/relaydesk/relaydesk/domain"
)

// configUpdate is the partial-update body for PUT /v1/config. Pointer fields
// distinguish "not sent" from zero values.
type configUpdate struct {
	PersonaName              *string   `json:"persona_name"`
	PersonaDescription       *string   `json:"persona_description"`
	CompanyName              *string   `json:"company_name"`
	Vertical                 *string   `json:"vertical"`
	AllowedTopics            *[]string `json:"allowed_topics"`
	BlockedTopics            *[]string `json:"blocked_topics"`
	EscalationThreshold      *float64  `json:"escalation_threshold"`
	AutoResolveThreshold     *float64  `json:"auto_resolve_threshold"`
	MaxTurnsBeforeEscalation *int      `json:"max_turns_before_escalation"`
	EscalationWebhookURL     *string   `json:"escalation_webhook_url"`
	DataWebhookURL           *string   `json:"data_webhook_url"`
}

func (s *Server) handleConfigGet(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r.Context())
	cfg := tenant.Config
	cfg.ApplyDefaults()
	writeJSON(w, http.StatusOK, map[string]domain.TenantConfig{"config": cfg})
}

func (s *Server) handleConfigPut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := tenantFrom(ctx)

	var upd configUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		s.writeError(ctx, w, domain.ErrValidation().WithCause(err))
		return
	}
	if upd.EscalationThreshold != nil && (*upd.EscalationThreshold < 0 || *upd.EscalationThreshold > 1) {
		s.writeError(ctx, w, domain.ErrValidation().WithMessage("escalation_threshold must be between 0 and 1"))
		return
	}
	if upd.AutoResolveThreshold != nil && (*upd.AutoResolveThreshold < 0 || *upd.AutoResolveThreshold > 1) {
		s.writeError(ctx, w, domain.ErrValidation().WithMessage("auto_resolve_threshold must be between 0 and 1"))
		return
	}
	if upd.MaxTurnsBeforeEscalation != nil && *upd.MaxTurnsBeforeEscalation < 1 {
		s.writeError(ctx, w, domain.ErrValidation().WithMessage("max_turns_before_escalation must be positive"))
		return
	}

	cfg := tenant.Config
	if upd.PersonaName != nil {
		cfg.PersonaName = *upd.PersonaName
	}
	if upd.PersonaDescription != nil {
		cfg.PersonaDescription = *upd.PersonaDescription
	}
	if upd.CompanyName != nil {
		cfg.CompanyName = *upd.CompanyName
	}
	if upd.Vertical != nil {
		cfg.Vertical = *upd.Vertical
	}
	if upd.AllowedTopics != nil {
		cfg.AllowedTopics = *upd.AllowedTopics
	}
	if upd.BlockedTopics != nil {
		cfg.BlockedTopics = *upd.BlockedTopics
	}
	if upd.EscalationThreshold != nil {
		cfg.EscalationThreshold = *upd.EscalationThreshold
	}
	if upd.AutoResolveThreshold != nil {
		cfg.AutoResolveThreshold = *upd.AutoResolveThreshold
	}
	if upd.MaxTurnsBeforeEscalation != nil {
		cfg.MaxTurnsBeforeEscalation = *upd.MaxTurnsBeforeEscalation
	}
	if upd.EscalationWebhookURL != nil {
		cfg.EscalationWebhookURL = *upd.EscalationWebhookURL
	}
	if upd.DataWebhookURL != nil {
		cfg.DataWebhookURL = *upd.DataWebhookURL
	}

	if err := s.tenants.UpdateConfig(ctx, tenant.ID, cfg); err != nil {
		s.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}
