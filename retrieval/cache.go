package retrieval

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/relaydesk/relaydesk/kvstore"
	"github.com/relaydesk/relaydesk/vector"
)

// lexicalCacheVersion is the schema version prefixed to every serialized
// index. A mismatch on decode is treated as a cache miss, never an error.
const lexicalCacheVersion byte = 1

// lexicalCacheTTL bounds how stale a cached index may get between
// invalidations.
const lexicalCacheTTL = 3600 * time.Second

// lexicalEntry is the cached sparse index with its parallel chunk arrays.
type lexicalEntry struct {
	Index    *bm25Index
	ChunkIDs []string
	Texts    []string
	Payloads []vector.Payload
}

func lexicalCacheKey(tenantID string) string { return "bm25_index:" + tenantID }

// InvalidateLexicalCache drops the tenant's cached sparse index. Idempotent;
// callers invoke it after every successful ingest and document delete.
func InvalidateLexicalCache(ctx context.Context, kv kvstore.Store, tenantID string) error {
	return kv.Delete(ctx, lexicalCacheKey(tenantID))
}

func encodeLexicalEntry(e *lexicalEntry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(lexicalCacheVersion)
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, fmt.Errorf("encode lexical index: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeLexicalEntry returns nil (a miss) on any version mismatch or decode
// error.
func decodeLexicalEntry(raw []byte) *lexicalEntry {
	if len(raw) < 2 || raw[0] != lexicalCacheVersion {
		return nil
	}
	var e lexicalEntry
	if err := gob.NewDecoder(bytes.NewReader(raw[1:])).Decode(&e); err != nil {
		return nil
	}
	return &e
}
