// Package agent owns the per-turn state machine: classify the user message,
// answer conversationally, ground an answer in retrieval, or escalate, then
// commit the transcript and conversation memory.
package agent

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/relaydesk/relaydesk/domain"
	"github.com/relaydesk/relaydesk/escalate"
	"github.com/relaydesk/relaydesk/model"
	"github.com/relaydesk/relaydesk/retrieval"
	"github.com/relaydesk/relaydesk/store"
)

type (
	// Retriever is the retrieval surface the engine depends on. Satisfied
	// by *retrieval.Service.
	Retriever interface {
		Retrieve(ctx context.Context, query, tenantID string, p retrieval.Params) retrieval.Output
	}

	// Escalator hands a session off to a human. Satisfied by
	// *escalate.Service.
	Escalator interface {
		Escalate(ctx context.Context, req escalate.Request) error
	}

	// Options configures the engine.
	Options struct {
		Model     model.Client
		Retriever Retriever
		Escalator Escalator
		Memory    *Memory
		Messages  store.Messages
	}

	// Engine orchestrates turns. Turns of the same session are serialized
	// with a striped in-process lock keyed by session id.
	Engine struct {
		llm       model.Client
		retriever Retriever
		escalator Escalator
		memory    *Memory
		messages  store.Messages

		locks [lockStripes]sync.Mutex
	}

	// TurnOutput is the result of one handled turn.
	TurnOutput struct {
		MessageID          uuid.UUID
		Response           string
		IntentType         domain.IntentType
		Confidence         *float64
		SourceChunks       []domain.SourceChunk
		EscalationRequired bool
		EscalationReason   string
		InputTokens        int
		OutputTokens       int
		LatencyMS          int
	}
)

// NewEngine builds the turn engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Model == nil {
		return nil, errors.New("model client is required")
	}
	if opts.Retriever == nil {
		return nil, errors.New("retriever is required")
	}
	if opts.Escalator == nil {
		return nil, errors.New("escalator is required")
	}
	if opts.Memory == nil {
		return nil, errors.New("memory is required")
	}
	if opts.Messages == nil {
		return nil, errors.New("message store is required")
	}
	return &Engine{
		llm:       opts.Model,
		retriever: opts.Retriever,
		escalator: opts.Escalator,
		memory:    opts.Memory,
		messages:  opts.Messages,
	}, nil
}

// HandleTurn processes one user message end to end. The assistant message is
// persisted before the method returns; metering is the caller's follow-up.
func (e *Engine) HandleTurn(ctx context.Context, sessionID, tenantID uuid.UUID, message string, cfg domain.TenantConfig) (TurnOutput, error) {
	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	cfg.ApplyDefaults()
	history := e.memory.Load(ctx, sessionID)

	out := TurnOutput{MessageID: uuid.New()}

	rep, usageIn, usageOut := e.classifyAndRespond(ctx, cfg, history, message)
	out.IntentType = rep.Intent
	out.InputTokens, out.OutputTokens = usageIn, usageOut

	switch rep.Intent {
	case domain.IntentConversational:
		out.Response = rep.Response
		if out.Response == "" {
			out.Response = staticGreeting(cfg)
		}
	case domain.IntentOutOfScope:
		out.Response = rep.Response
		if out.Response == "" {
			out.Response = staticOutOfScope(cfg)
		}
	case domain.IntentDomainQuery:
		if err := e.handleDomainQuery(ctx, &out, sessionID, tenantID, message, cfg, history); err != nil {
			return TurnOutput{}, err
		}
	}

	out.LatencyMS = int(time.Since(start).Milliseconds())
	if err := e.persistTurn(ctx, &out, sessionID, tenantID, message); err != nil {
		return TurnOutput{}, err
	}

	if !out.EscalationRequired {
		history = append(history,
			Entry{Role: "user", Content: message},
			Entry{Role: "assistant", Content: out.Response},
		)
		if err := e.memory.Save(ctx, sessionID, history); err != nil {
			log.Warnf(ctx, "memory save failed for session %s: %v", sessionID, err)
		}
	}
	return out, nil
}

// classifyAndRespond performs the single hot-path LLM call. On any failure
// it defaults to a conversational intent with an empty response; the branch
// supplies the static fallback.
func (e *Engine) classifyAndRespond(ctx context.Context, cfg domain.TenantConfig, history []Entry, message string) (reply, int, int) {
	resp, err := e.llm.Generate(ctx, model.Request{
		System:      systemPrompt(cfg, time.Now()),
		Prompt:      combinedPrompt(cfg, history, message),
		MaxTokens:   300,
		Temperature: 0.4,
	})
	if err != nil {
		log.Warnf(ctx, "classify-and-respond failed: %v", err)
		return reply{Intent: domain.IntentConversational}, 0, 0
	}
	return parseCombinedReply(resp.Text), resp.InputTokens, resp.OutputTokens
}

func (e *Engine) handleDomainQuery(ctx context.Context, out *TurnOutput, sessionID, tenantID uuid.UUID, message string, cfg domain.TenantConfig, history []Entry) error {
	ret := e.retriever.Retrieve(ctx, message, tenantID.String(), retrieval.Params{
		EscalationThreshold: cfg.EscalationThreshold,
		MaxTurns:            cfg.MaxTurnsBeforeEscalation,
		TurnCount:           countUserEntries(history),
	})

	// An empty knowledge base is a configuration issue, not an answer gap:
	// silently downgrade to a conversational reply.
	if len(ret.Results) == 0 {
		out.IntentType = domain.IntentConversational
		resp, err := e.llm.Generate(ctx, model.Request{
			System:      systemPrompt(cfg, time.Now()),
			Prompt:      fmt.Sprintf("Chat History:\n%sUser: %s\nAssistant:", historyBlock(history), message),
			MaxTokens:   300,
			Temperature: 0.4,
		})
		if err != nil {
			log.Warnf(ctx, "conversational fallback failed: %v", err)
			out.Response = staticGreeting(cfg)
			return nil
		}
		out.Response = resp.Text
		out.InputTokens += resp.InputTokens
		out.OutputTokens += resp.OutputTokens
		return nil
	}

	confidence := ret.Confidence
	out.Confidence = &confidence
	out.SourceChunks = sourceChunks(ret.Results)

	if ret.ShouldEscalate {
		out.Response = escalationResponse
		out.EscalationRequired = true
		out.EscalationReason = ret.EscalationReason
		err := e.escalator.Escalate(ctx, escalate.Request{
			SessionID:       sessionID,
			TenantID:        tenantID,
			Reason:          ret.EscalationReason,
			LastUserMessage: message,
			WebhookURL:      cfg.EscalationWebhookURL,
			ExternalUserID:  cfg.ExternalUserID,
		})
		if err != nil {
			log.Errorf(ctx, err, "escalation failed for session %s", sessionID)
		}
		return nil
	}

	// The grounded answer is required: a failure here surfaces to the
	// caller, there is no static fallback.
	resp, err := e.llm.Generate(ctx, model.Request{
		System:      systemPrompt(cfg, time.Now()),
		Prompt:      groundedPrompt(ret.Results, history, message),
		MaxTokens:   1000,
		Temperature: 0.3,
	})
	if err != nil {
		return fmt.Errorf("grounded answer generation: %w", err)
	}
	out.Response = resp.Text
	out.InputTokens += resp.InputTokens
	out.OutputTokens += resp.OutputTokens
	return nil
}

func (e *Engine) persistTurn(ctx context.Context, out *TurnOutput, sessionID, tenantID uuid.UUID, message string) error {
	now := time.Now().UTC()
	user := &domain.Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		TenantID:  tenantID,
		Role:      domain.RoleUser,
		Content:   message,
		CreatedAt: now,
	}
	assistant := &domain.Message{
		ID:              out.MessageID,
		SessionID:       sessionID,
		TenantID:        tenantID,
		Role:            domain.RoleAssistant,
		Content:         out.Response,
		IntentType:      out.IntentType,
		SourceChunks:    out.SourceChunks,
		ConfidenceScore: out.Confidence,
		EscalationFlag:  out.EscalationRequired,
		InputTokens:     out.InputTokens,
		OutputTokens:    out.OutputTokens,
		LatencyMS:       out.LatencyMS,
		CreatedAt:       now.Add(time.Millisecond),
	}
	if err := e.messages.InsertPair(ctx, user, assistant); err != nil {
		return fmt.Errorf("persist turn: %w", err)
	}
	return nil
}

// lockStripes bounds the memory spent on session serialization. A stripe
// collision only serializes two unrelated sessions; turns within one session
// always share a stripe.
const lockStripes = 64

func (e *Engine) sessionLock(sessionID uuid.UUID) *sync.Mutex {
	return &e.locks[binary.LittleEndian.Uint64(sessionID[:8])%lockStripes]
}

func sourceChunks(results []retrieval.RankedResult) []domain.SourceChunk {
	out := make([]domain.SourceChunk, len(results))
	for i, r := range results {
		out[i] = domain.SourceChunk{
			ChunkID:  r.ChunkID,
			Document: r.Payload.Filename,
			Section:  r.Payload.SectionHeading,
			Score:    r.RelevanceScore,
		}
	}
	return out
}
