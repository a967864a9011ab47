package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKV struct {
	mu     sync.Mutex
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (f *fakeKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	f.ttls[key] = ttl
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

func (f *fakeKV) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	return 0, errors.New("not used")
}

func (f *fakeKV) Expire(context.Context, string, time.Duration) error { return nil }

func TestMemoryRoundTrip(t *testing.T) {
	kv := newFakeKV()
	m, err := NewMemory(kv, 30*time.Minute)
	require.NoError(t, err)
	ctx := context.Background()
	sid := uuid.New()

	entries := []Entry{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}
	require.NoError(t, m.Save(ctx, sid, entries))
	assert.Equal(t, entries, m.Load(ctx, sid))
	assert.Equal(t, 30*time.Minute, kv.ttls[memoryKey(sid)])
}

func TestMemoryWindowTrims(t *testing.T) {
	kv := newFakeKV()
	m, err := NewMemory(kv, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()
	sid := uuid.New()

	var entries []Entry
	for i := 0; i < 15; i++ {
		entries = append(entries,
			Entry{Role: "user", Content: "q"},
			Entry{Role: "assistant", Content: "a"},
		)
	}
	require.NoError(t, m.Save(ctx, sid, entries))

	got := m.Load(ctx, sid)
	assert.Len(t, got, memoryWindow*2)
	// The newest entries survive.
	assert.Equal(t, entries[len(entries)-memoryWindow*2:], got)
}

func TestMemoryLoadDegrades(t *testing.T) {
	ctx := context.Background()
	sid := uuid.New()

	t.Run("missing key", func(t *testing.T) {
		m, err := NewMemory(newFakeKV(), time.Minute)
		require.NoError(t, err)
		assert.Nil(t, m.Load(ctx, sid))
	})

	t.Run("store error", func(t *testing.T) {
		kv := newFakeKV()
		kv.getErr = errors.New("redis down")
		m, err := NewMemory(kv, time.Minute)
		require.NoError(t, err)
		assert.Nil(t, m.Load(ctx, sid))
	})

	t.Run("corrupt payload", func(t *testing.T) {
		kv := newFakeKV()
		m, err := NewMemory(kv, time.Minute)
		require.NoError(t, err)
		require.NoError(t, kv.Set(ctx, memoryKey(sid), []byte("not json"), 0))
		assert.Nil(t, m.Load(ctx, sid))
	})
}

func TestMemoryClear(t *testing.T) {
	kv := newFakeKV()
	m, err := NewMemory(kv, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()
	sid := uuid.New()

	require.NoError(t, m.Save(ctx, sid, []Entry{{Role: "user", Content: "hi"}}))
	require.NoError(t, m.Clear(ctx, sid))
	assert.Nil(t, m.Load(ctx, sid))

	// Clearing an absent key is fine.
	require.NoError(t, m.Clear(ctx, sid))
}

func TestCountUserEntries(t *testing.T) {
	entries := []Entry{
		{Role: "user", Content: "a"},
		{Role: "assistant", Content: "b"},
		{Role: "user", Content: "c"},
	}
	assert.Equal(t, 2, countUserEntries(entries))
	assert.Zero(t, countUserEntries(nil))
}
