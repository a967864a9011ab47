package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/relaydesk/billing"
	"github.com/relaydesk/relaydesk/domain"
	"github.com/relaydesk/relaydesk/store"
)

type fakeSessions struct {
	created *domain.Session
}

func (f *fakeSessions) Create(_ context.Context, sess *domain.Session) error {
	f.created = sess
	return nil
}

func (f *fakeSessions) Get(context.Context, uuid.UUID, uuid.UUID) (*domain.Session, error) {
	return nil, store.ErrNotFound
}

func (f *fakeSessions) Touch(context.Context, uuid.UUID, time.Time) error { return nil }

func (f *fakeSessions) End(context.Context, uuid.UUID, domain.SessionStatus, string, time.Time) error {
	return nil
}

func (f *fakeSessions) ListIdleActive(context.Context, time.Time) ([]domain.Session, error) {
	return nil, nil
}

type fakeKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeKV() *fakeKV { return &fakeKV{data: make(map[string][]byte)} }

func (f *fakeKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeKV) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeKV) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeKV) IncrBy(context.Context, string, int64) (int64, error) { return 0, nil }

func (f *fakeKV) Expire(context.Context, string, time.Duration) error { return nil }

type fakeEvents struct{}

func (fakeEvents) Insert(context.Context, *domain.BillingEvent) error { return nil }

func TestHandleSessionStart(t *testing.T) {
	tn := &domain.Tenant{ID: uuid.New(), IsActive: true}
	kv := newFakeKV()
	meter, err := billing.New(billing.Options{KV: kv, Events: fakeEvents{}, IdleTimeout: 30 * time.Minute})
	require.NoError(t, err)

	start := func(sessions *fakeSessions, body string) *httptest.ResponseRecorder {
		s := &Server{sessions: sessions, meter: meter}
		var r *http.Request
		if body == "" {
			r = httptest.NewRequest(http.MethodPost, "/v1/session/start", nil)
		} else {
			r = httptest.NewRequest(http.MethodPost, "/v1/session/start", strings.NewReader(body))
		}
		rec := httptest.NewRecorder()
		s.handleSessionStart(rec, withTenant(r, tn))
		return rec
	}

	t.Run("empty body starts a session", func(t *testing.T) {
		sessions := &fakeSessions{}
		rec := start(sessions, "")
		require.Equal(t, http.StatusOK, rec.Code)

		var out map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
		id, err := uuid.Parse(out["session_id"])
		require.NoError(t, err)
		require.NotNil(t, sessions.created)
		assert.Equal(t, id, sessions.created.ID)
		assert.Equal(t, tn.ID, sessions.created.TenantID)
		assert.Equal(t, domain.SessionActive, sessions.created.Status)

		// Billing counters are seeded at zero.
		prefix := "billing:" + id.String()
		for _, suffix := range []string{":input_tokens", ":output_tokens", ":message_count"} {
			v, ok, _ := kv.Get(context.Background(), prefix+suffix)
			require.True(t, ok, suffix)
			assert.Equal(t, "0", string(v))
		}
	})

	t.Run("external user id is recorded", func(t *testing.T) {
		sessions := &fakeSessions{}
		rec := start(sessions, `{"external_user_id": "user-42"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, sessions.created)
		assert.Equal(t, "user-42", sessions.created.ExternalUserID)
	})

	t.Run("malformed body rejected", func(t *testing.T) {
		rec := start(&fakeSessions{}, `{not json`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VALIDATION_ERROR", decodeErrorCode(t, rec))
	})
}
