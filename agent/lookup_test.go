package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupFetch(t *testing.T) {
	ctx := context.Background()

	t.Run("successful lookup tags the result", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			var req map[string]string
			assert.NoError(t, json.Unmarshal(body, &req))
			assert.Equal(t, "order_status", req["lookup_type"])
			assert.Equal(t, "ORD-123", req["identifier"])
			w.Write([]byte(`{"status":"shipped"}`))
		}))
		defer srv.Close()

		got := NewLookup(nil).Fetch(ctx, srv.URL, "order_status", "ORD-123")
		assert.Equal(t, `LOOKUP_RESULT: {"status":"shipped"}`, got)
	})

	t.Run("no webhook configured", func(t *testing.T) {
		got := NewLookup(nil).Fetch(ctx, "", "order_status", "ORD-123")
		assert.Equal(t, "LOOKUP_UNAVAILABLE: no data webhook configured for this tenant", got)
	})

	t.Run("non-2xx tags a failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		got := NewLookup(nil).Fetch(ctx, srv.URL, "order_status", "ORD-123")
		assert.Equal(t, "LOOKUP_FAILED: webhook returned status 502", got)
	})

	t.Run("unreachable webhook tags a failure", func(t *testing.T) {
		got := NewLookup(nil).Fetch(ctx, "http://127.0.0.1:1/none", "order_status", "x")
		assert.Contains(t, got, "LOOKUP_FAILED:")
	})
}
