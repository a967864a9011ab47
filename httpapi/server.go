// Package httpapi exposes the service over HTTP: session lifecycle, chat
// turns (JSON or SSE), knowledge base management, and tenant configuration.
// All routes except /health authenticate the tenant via the X-API-Key
// header.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/relaydesk/relaydesk/agent"
	"github.com/relaydesk/relaydesk/billing"
	"github.com/relaydesk/relaydesk/domain"
	"github.com/relaydesk/relaydesk/ingest"
	"github.com/relaydesk/relaydesk/kvstore"
	"github.com/relaydesk/relaydesk/language"
	"github.com/relaydesk/relaydesk/store"
	"github.com/relaydesk/relaydesk/vector"
)

type (
	// Options wires the server's collaborators.
	Options struct {
		Tenants   store.Tenants
		Sessions  store.Sessions
		Messages  store.Messages
		Documents store.Documents
		Engine    *agent.Engine
		Memory    *agent.Memory
		Meter     *billing.Meter
		Pipeline  *ingest.Pipeline
		Index     vector.Index
		Cache     kvstore.Store
		Language  *language.Middleware
		// UploadDir receives ingested files before parsing. Defaults to the
		// OS temp dir.
		UploadDir string
	}

	// Server is the HTTP front end.
	Server struct {
		router    chi.Router
		tenants   store.Tenants
		sessions  store.Sessions
		messages  store.Messages
		documents store.Documents
		engine    *agent.Engine
		memory    *agent.Memory
		meter     *billing.Meter
		pipeline  *ingest.Pipeline
		index     vector.Index
		cache     kvstore.Store
		language  *language.Middleware
		uploadDir string
	}
)

// New builds the server and its routes.
func New(opts Options) (*Server, error) {
	switch {
	case opts.Tenants == nil:
		return nil, errors.New("tenant store is required")
	case opts.Sessions == nil:
		return nil, errors.New("session store is required")
	case opts.Messages == nil:
		return nil, errors.New("message store is required")
	case opts.Documents == nil:
		return nil, errors.New("document store is required")
	case opts.Engine == nil:
		return nil, errors.New("turn engine is required")
	case opts.Memory == nil:
		return nil, errors.New("memory is required")
	case opts.Meter == nil:
		return nil, errors.New("meter is required")
	case opts.Pipeline == nil:
		return nil, errors.New("ingestion pipeline is required")
	case opts.Index == nil:
		return nil, errors.New("vector index is required")
	case opts.Cache == nil:
		return nil, errors.New("cache store is required")
	}
	lang := opts.Language
	if lang == nil {
		lang = language.New()
	}
	uploadDir := opts.UploadDir
	if uploadDir == "" {
		uploadDir = os.TempDir()
	}
	s := &Server{
		tenants:   opts.Tenants,
		sessions:  opts.Sessions,
		messages:  opts.Messages,
		documents: opts.Documents,
		engine:    opts.Engine,
		memory:    opts.Memory,
		meter:     opts.Meter,
		pipeline:  opts.Pipeline,
		index:     opts.Index,
		cache:     opts.Cache,
		language:  lang,
		uploadDir: uploadDir,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/session/start", s.handleSessionStart)
		r.Post("/session/{id}/end", s.handleSessionEnd)
		r.Get("/session/{id}/transcript", s.handleTranscript)
		r.Post("/chat/message", s.handleChatMessage)
		r.Post("/knowledge/ingest", s.handleKnowledgeIngest)
		r.Get("/knowledge/list", s.handleKnowledgeList)
		r.Get("/knowledge/{id}/status", s.handleKnowledgeStatus)
		r.Delete("/knowledge/{id}", s.handleKnowledgeDelete)
		r.Get("/config", s.handleConfigGet)
		r.Put("/config", s.handleConfigPut)
	})
	s.router = r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// activeSession loads the session, translating absence and terminal states
// into the API error taxonomy.
func (s *Server) activeSession(ctx context.Context, id, tenantID uuid.UUID) (*domain.Session, error) {
	sess, err := s.sessions.Get(ctx, id, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.ErrInvalidSession()
	}
	if err != nil {
		return nil, err
	}
	if sess.Status != domain.SessionActive {
		return nil, domain.ErrSessionEnded()
	}
	return sess, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf(context.Background(), err, "encode response")
	}
}

func parseID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, domain.ErrValidation().WithMessage("invalid id")
	}
	return id, nil
}

func nowUTC() time.Time { return time.Now().UTC() }
