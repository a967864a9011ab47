package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/relaydesk/domain"
)

func withTenant(r *http.Request, tn *domain.Tenant) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), tenantKey, tn))
}

func TestHandleConfigGet(t *testing.T) {
	tn := &domain.Tenant{ID: uuid.New(), Config: domain.TenantConfig{CompanyName: "Acme"}}
	s := &Server{tenants: newFakeTenants()}

	req := withTenant(httptest.NewRequest(http.MethodGet, "/v1/config", nil), tn)
	rec := httptest.NewRecorder()
	s.handleConfigGet(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Config domain.TenantConfig `json:"config"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "Acme", body.Config.CompanyName)
	// Defaults are visible in the response.
	assert.Equal(t, "Assistant", body.Config.PersonaName)
	assert.Equal(t, 0.55, body.Config.EscalationThreshold)
	assert.Equal(t, 10, body.Config.MaxTurnsBeforeEscalation)
}

func TestHandleConfigPut(t *testing.T) {
	tenants := newFakeTenants()
	tn := &domain.Tenant{ID: uuid.New(), Config: domain.TenantConfig{
		PersonaName: "Ava",
		CompanyName: "Acme",
	}}
	s := &Server{tenants: tenants}

	put := func(body string) *httptest.ResponseRecorder {
		req := withTenant(httptest.NewRequest(http.MethodPut, "/v1/config", strings.NewReader(body)), tn)
		rec := httptest.NewRecorder()
		s.handleConfigPut(rec, req)
		return rec
	}

	t.Run("partial update keeps unmentioned fields", func(t *testing.T) {
		rec := put(`{"escalation_threshold": 0.7}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"updated": true}`, rec.Body.String())
		require.NotNil(t, tenants.updated)
		assert.Equal(t, 0.7, tenants.updated.EscalationThreshold)
		assert.Equal(t, "Ava", tenants.updated.PersonaName)
		assert.Equal(t, "Acme", tenants.updated.CompanyName)
	})

	t.Run("explicit empty string clears a field", func(t *testing.T) {
		rec := put(`{"persona_description": ""}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, tenants.updated.PersonaDescription)
	})

	t.Run("threshold out of range rejected", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, put(`{"escalation_threshold": 1.5}`).Code)
		assert.Equal(t, http.StatusBadRequest, put(`{"auto_resolve_threshold": -0.1}`).Code)
	})

	t.Run("non-positive max turns rejected", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, put(`{"max_turns_before_escalation": 0}`).Code)
	})

	t.Run("malformed body rejected", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, put(`{not json`).Code)
	})

	t.Run("topics replace wholesale", func(t *testing.T) {
		rec := put(`{"allowed_topics": ["billing", "shipping"]}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"billing", "shipping"}, tenants.updated.AllowedTopics)
	})
}
