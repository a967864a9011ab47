package httpapi

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/relaydesk/relaydesk/domain"
	"github.com/relaydesk/relaydesk/store"
)

type contextKey int

const tenantKey contextKey = iota

// HashAPIKey returns the hex SHA-256 digest stored for a tenant API key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// GenerateAPIKey mints a new key with the given prefix (e.g. ent_live_).
func GenerateAPIKey(prefix string) (string, error) {
	var raw [24]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return prefix + hex.EncodeToString(raw[:]), nil
}

// VerifyAPIKey reports whether key hashes to storedHash in constant time.
func VerifyAPIKey(key, storedHash string) bool {
	computed := HashAPIKey(key)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// authenticate resolves the tenant from X-API-Key and stores it on the
// request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			s.writeError(r.Context(), w, domain.ErrInvalidAPIKey())
			return
		}
		tenant, err := s.tenants.ByAPIKeyHash(r.Context(), HashAPIKey(key))
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(r.Context(), w, domain.ErrInvalidAPIKey())
			return
		}
		if err != nil {
			s.writeError(r.Context(), w, err)
			return
		}
		if !tenant.IsActive {
			s.writeError(r.Context(), w, domain.ErrTenantInactive())
			return
		}
		ctx := context.WithValue(r.Context(), tenantKey, tenant)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tenantFrom(ctx context.Context) *domain.Tenant {
	tenant, _ := ctx.Value(tenantKey).(*domain.Tenant)
	return tenant
}
