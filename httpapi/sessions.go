package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/relaydesk/relaydesk/domain"
)

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := tenantFrom(ctx)

	var body struct {
		ExternalUserID string `json:"external_user_id"`
	}
	if r.Body != nil {
		// An empty body is fine; only malformed JSON is rejected.
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			s.writeError(ctx, w, domain.ErrValidation().WithCause(err))
			return
		}
	}

	now := nowUTC()
	sess := &domain.Session{
		ID:             uuid.New(),
		TenantID:       tenant.ID,
		ExternalUserID: body.ExternalUserID,
		Status:         domain.SessionActive,
		StartedAt:      now,
		LastActivityAt: now,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		s.writeError(ctx, w, err)
		return
	}
	if err := s.meter.InitSession(ctx, sess.ID); err != nil {
		log.Warnf(ctx, "billing init failed for session %s: %v", sess.ID, err)
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": sess.ID.String(),
		"created_at": now.Format(time.RFC3339),
	})
}

func (s *Server) handleSessionEnd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := tenantFrom(ctx)

	id, err := parseID(r)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	sess, err := s.activeSession(ctx, id, tenant.ID)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	if err := s.sessions.End(ctx, sess.ID, domain.SessionResolved, "", nowUTC()); err != nil {
		s.writeError(ctx, w, err)
		return
	}
	if err := s.meter.CloseSession(ctx, sess.ID, tenant.ID, domain.BillingResolved); err != nil {
		log.Errorf(ctx, err, "billing close failed for session %s", sess.ID)
	}
	if err := s.memory.Clear(ctx, sess.ID); err != nil {
		log.Warnf(ctx, "memory clear failed for session %s: %v", sess.ID, err)
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": sess.ID.String(),
		"status":     string(domain.SessionResolved),
	})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := tenantFrom(ctx)

	id, err := parseID(r)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	if _, err := s.sessions.Get(ctx, id, tenant.ID); err != nil {
		s.writeError(ctx, w, domain.ErrInvalidSession().WithCause(err))
		return
	}
	messages, err := s.messages.BySession(ctx, id)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	type entry struct {
		ID         string   `json:"id"`
		Role       string   `json:"role"`
		Content    string   `json:"content"`
		IntentType string   `json:"intent_type,omitempty"`
		Confidence *float64 `json:"confidence,omitempty"`
		CreatedAt  string   `json:"created_at"`
	}
	out := make([]entry, len(messages))
	for i, m := range messages {
		out[i] = entry{
			ID:         m.ID.String(),
			Role:       string(m.Role),
			Content:    m.Content,
			IntentType: string(m.IntentType),
			Confidence: m.ConfidenceScore,
			CreatedAt:  m.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id.String(),
		"messages":   out,
	})
}
