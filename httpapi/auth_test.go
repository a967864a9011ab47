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
	"github.com/relaydesk/relaydesk/store"
)

type fakeTenants struct {
	byHash  map[string]*domain.Tenant
	updated *domain.TenantConfig
}

func newFakeTenants(tenants ...*domain.Tenant) *fakeTenants {
	f := &fakeTenants{byHash: make(map[string]*domain.Tenant)}
	for _, tn := range tenants {
		f.byHash[tn.APIKeyHash] = tn
	}
	return f
}

func (f *fakeTenants) ByAPIKeyHash(_ context.Context, hash string) (*domain.Tenant, error) {
	tn, ok := f.byHash[hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	return tn, nil
}

func (f *fakeTenants) ByID(context.Context, uuid.UUID) (*domain.Tenant, error) {
	return nil, store.ErrNotFound
}

func (f *fakeTenants) UpdateConfig(_ context.Context, _ uuid.UUID, cfg domain.TenantConfig) error {
	f.updated = &cfg
	return nil
}

func TestHashAndVerifyAPIKey(t *testing.T) {
	key, err := GenerateAPIKey("ent_live_")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "ent_live_"))

	hash := HashAPIKey(key)
	assert.Len(t, hash, 64)
	assert.True(t, VerifyAPIKey(key, hash))
	assert.False(t, VerifyAPIKey(key+"x", hash))

	// Keys are random.
	other, err := GenerateAPIKey("ent_live_")
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestAuthenticate(t *testing.T) {
	key := "ent_live_abc123"
	active := &domain.Tenant{ID: uuid.New(), APIKeyHash: HashAPIKey(key), IsActive: true}
	inactiveKey := "ent_live_gone"
	inactive := &domain.Tenant{ID: uuid.New(), APIKeyHash: HashAPIKey(inactiveKey), IsActive: false}
	s := &Server{tenants: newFakeTenants(active, inactive)}

	handler := s.authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tn := tenantFrom(r.Context())
		require.NotNil(t, tn)
		assert.Equal(t, active.ID, tn.ID)
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(apiKey string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/config", nil)
		if apiKey != "" {
			req.Header.Set("X-API-Key", apiKey)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("valid key passes", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, do(key).Code)
	})

	t.Run("missing key", func(t *testing.T) {
		rec := do("")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "INVALID_API_KEY", decodeErrorCode(t, rec))
	})

	t.Run("unknown key", func(t *testing.T) {
		rec := do("ent_live_wrong")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "INVALID_API_KEY", decodeErrorCode(t, rec))
	})

	t.Run("inactive tenant", func(t *testing.T) {
		rec := do(inactiveKey)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error.Code
}
