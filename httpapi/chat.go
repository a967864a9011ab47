package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/relaydesk/relaydesk/domain"
)

func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := tenantFrom(ctx)

	var body struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
		Stream    bool   `json:"stream"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(ctx, w, domain.ErrValidation().WithCause(err))
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		s.writeError(ctx, w, domain.ErrValidation().WithMessage("message is required"))
		return
	}
	sessionID, err := uuid.Parse(body.SessionID)
	if err != nil {
		s.writeError(ctx, w, domain.ErrValidation().WithMessage("invalid session_id"))
		return
	}
	sess, err := s.activeSession(ctx, sessionID, tenant.ID)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}

	// Language normalization brackets the turn: translate in, handle, and
	// translate out.
	lang := s.language.Detect(ctx, body.Message)
	message := s.language.Inbound(ctx, body.Message, lang)

	cfg := tenant.Config
	cfg.ExternalUserID = sess.ExternalUserID
	out, err := s.engine.HandleTurn(ctx, sess.ID, tenant.ID, message, cfg)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	out.Response = s.language.Outbound(ctx, out.Response, lang)

	if err := s.sessions.Touch(ctx, sess.ID, nowUTC()); err != nil {
		log.Warnf(ctx, "session touch failed for %s: %v", sess.ID, err)
	}
	if err := s.meter.RecordMessage(ctx, sess.ID, out.InputTokens, out.OutputTokens); err != nil {
		log.Errorf(ctx, err, "metering failed for session %s", sess.ID)
	}
	if out.EscalationRequired {
		if err := s.meter.CloseSession(ctx, sess.ID, tenant.ID, domain.BillingEscalated); err != nil {
			log.Errorf(ctx, err, "billing close failed for escalated session %s", sess.ID)
		}
	}

	if body.Stream {
		s.streamResponse(w, r, out.Response)
		return
	}

	resp := map[string]any{
		"message_id":          out.MessageID.String(),
		"response":            out.Response,
		"intent_type":         string(out.IntentType),
		"sources":             sourceList(out.SourceChunks),
		"escalation_required": out.EscalationRequired,
		"latency_ms":          out.LatencyMS,
	}
	if out.Confidence != nil {
		resp["confidence"] = *out.Confidence
	}
	if out.EscalationReason != "" {
		resp["escalation_reason"] = out.EscalationReason
	}
	writeJSON(w, http.StatusOK, resp)
}

// streamResponse replays the final response word by word as server-sent
// events.
func (s *Server) streamResponse(w http.ResponseWriter, r *http.Request, response string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"response": response})
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for _, word := range strings.Fields(response) {
		select {
		case <-r.Context().Done():
			return
		default:
		}
		fmt.Fprintf(w, "data: %s\n\n", word)
		flusher.Flush()
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func sourceList(chunks []domain.SourceChunk) []map[string]any {
	out := make([]map[string]any, len(chunks))
	for i, c := range chunks {
		out[i] = map[string]any{
			"chunk_id": c.ChunkID,
			"document": c.Document,
			"section":  c.Section,
			"score":    c.Score,
		}
	}
	return out
}
