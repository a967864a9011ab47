package httpapi

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/relaydesk/relaydesk/domain"
	"github.com/relaydesk/relaydesk/retrieval"
)

// maxUploadBytes caps ingested file size.
const maxUploadBytes = 50 << 20

var supportedFileTypes = map[string]bool{
	"pdf":  true,
	"docx": true,
	"html": true,
	"txt":  true,
	"csv":  true,
}

func (s *Server) handleKnowledgeIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := tenantFrom(ctx)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(ctx, w, domain.ErrValidation().WithMessage("invalid multipart body"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(ctx, w, domain.ErrValidation().WithMessage("file is required"))
		return
	}
	defer file.Close()

	fileType := strings.ToLower(strings.TrimSpace(r.FormValue("document_type")))
	if fileType == "" {
		fileType = strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
	}
	if !supportedFileTypes[fileType] {
		s.writeError(ctx, w, domain.ErrUnsupportedFileType())
		return
	}

	documentID := uuid.New()
	path := filepath.Join(s.uploadDir, documentID.String()+"_"+filepath.Base(header.Filename))
	dst, err := os.Create(path)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(path)
		s.writeError(ctx, w, err)
		return
	}
	dst.Close()

	version, err := s.documents.NextVersion(ctx, tenant.ID, header.Filename)
	if err != nil {
		os.Remove(path)
		s.writeError(ctx, w, err)
		return
	}
	doc := &domain.KnowledgeDocument{
		ID:         documentID,
		TenantID:   tenant.ID,
		Filename:   header.Filename,
		FileType:   fileType,
		Version:    version,
		IsActive:   true,
		Status:     domain.DocumentProcessing,
		IngestedAt: nowUTC(),
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		os.Remove(path)
		s.writeError(ctx, w, err)
		return
	}

	// The pipeline runs detached from the request; the document row carries
	// progress for the status endpoint.
	go func(ctx context.Context) {
		defer os.Remove(path)
		if _, err := s.pipeline.Ingest(ctx, doc.ID, tenant.ID, path, doc.Filename, doc.Version); err != nil {
			log.Errorf(ctx, err, "background ingest failed for document %s", doc.ID)
		}
	}(context.WithoutCancel(ctx))

	writeJSON(w, http.StatusAccepted, map[string]string{
		"document_id": doc.ID.String(),
		"status":      string(domain.DocumentProcessing),
		"message":     "document accepted for ingestion",
	})
}

func (s *Server) handleKnowledgeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := tenantFrom(ctx)

	id, err := parseID(r)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	doc, err := s.documents.Get(ctx, id, tenant.ID)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	resp := map[string]any{
		"document_id": doc.ID.String(),
		"status":      string(doc.Status),
	}
	if doc.ChunkCount != nil {
		resp["chunk_count"] = *doc.ChunkCount
	}
	if doc.ErrorMessage != "" {
		resp["error_message"] = doc.ErrorMessage
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleKnowledgeList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := tenantFrom(ctx)

	docs, err := s.documents.List(ctx, tenant.ID)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	type entry struct {
		DocumentID string `json:"document_id"`
		Filename   string `json:"filename"`
		FileType   string `json:"file_type"`
		Version    int    `json:"version"`
		Status     string `json:"status"`
		ChunkCount *int   `json:"chunk_count,omitempty"`
		IngestedAt string `json:"ingested_at"`
	}
	out := make([]entry, len(docs))
	for i, d := range docs {
		out[i] = entry{
			DocumentID: d.ID.String(),
			Filename:   d.Filename,
			FileType:   d.FileType,
			Version:    d.Version,
			Status:     string(d.Status),
			ChunkCount: d.ChunkCount,
			IngestedAt: d.IngestedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out})
}

func (s *Server) handleKnowledgeDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := tenantFrom(ctx)

	id, err := parseID(r)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	if err := s.documents.SoftDelete(ctx, id, tenant.ID); err != nil {
		s.writeError(ctx, w, err)
		return
	}
	if err := retrieval.InvalidateLexicalCache(ctx, s.cache, tenant.ID.String()); err != nil {
		log.Warnf(ctx, "lexical cache invalidation failed: %v", err)
	}

	// Vector purge runs detached; retrieval already filters deleted content
	// once the cache is invalidated.
	go func(ctx context.Context) {
		if err := s.index.DeleteDocument(ctx, tenant.ID.String(), id.String()); err != nil {
			log.Errorf(ctx, err, "vector purge failed for document %s", id)
		}
	}(context.WithoutCancel(ctx))

	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
