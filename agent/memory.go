package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/relaydesk/relaydesk/kvstore"
)

// memoryWindow is the number of turns (user+assistant pairs) kept.
const memoryWindow = 10

type (
	// Entry is one remembered utterance.
	Entry struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	// Memory is the windowed conversation memory, stored per session in the
	// key-value store with a TTL equal to the idle-session timeout.
	Memory struct {
		kv  kvstore.Store
		ttl time.Duration
	}
)

// NewMemory builds the memory manager.
func NewMemory(kv kvstore.Store, ttl time.Duration) (*Memory, error) {
	if kv == nil {
		return nil, errors.New("kv store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	return &Memory{kv: kv, ttl: ttl}, nil
}

func memoryKey(sessionID uuid.UUID) string { return "memory:" + sessionID.String() }

// Load returns the remembered entries, empty on a missing or unreadable key.
func (m *Memory) Load(ctx context.Context, sessionID uuid.UUID) []Entry {
	raw, ok, err := m.kv.Get(ctx, memoryKey(sessionID))
	if err != nil {
		log.Warnf(ctx, "memory load failed for session %s: %v", sessionID, err)
		return nil
	}
	if !ok {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		log.Warnf(ctx, "memory unreadable for session %s: %v", sessionID, err)
		return nil
	}
	return entries
}

// Save stores entries trimmed to the window, refreshing the TTL.
func (m *Memory) Save(ctx context.Context, sessionID uuid.UUID, entries []Entry) error {
	if n := memoryWindow * 2; len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal memory: %w", err)
	}
	return m.kv.Set(ctx, memoryKey(sessionID), raw, m.ttl)
}

// Clear drops the session's memory. Idempotent.
func (m *Memory) Clear(ctx context.Context, sessionID uuid.UUID) error {
	return m.kv.Delete(ctx, memoryKey(sessionID))
}

func countUserEntries(entries []Entry) int {
	n := 0
	for _, e := range entries {
		if e.Role == "user" {
			n++
		}
	}
	return n
}
