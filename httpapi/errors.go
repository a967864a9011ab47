package httpapi

import (
	"context"
	"errors"
	"net/http"

	"goa.design/clue/log"

	"github.com/relaydesk/relaydesk/domain"
	"github.com/relaydesk/relaydesk/store"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps errors onto the wire envelope. Typed domain errors carry
// their own code and status; anything else becomes a 500 with the detail
// logged, never returned.
func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var derr *domain.Error
	switch {
	case errors.As(err, &derr):
		// Use the typed code and status below.
	case errors.Is(err, store.ErrNotFound):
		derr = domain.ErrDocumentNotFound()
	case errors.Is(err, context.DeadlineExceeded):
		derr = domain.ErrTimeout()
	default:
		log.Errorf(ctx, err, "unhandled error")
		derr = domain.ErrInternal()
	}
	writeJSON(w, derr.Status, errorBody{Error: errorDetail{Code: derr.Code, Message: derr.Message}})
}
