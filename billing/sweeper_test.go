package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/relaydesk/domain"
)

type fakeSessions struct {
	idle    []domain.Session
	listErr error
	ended   map[uuid.UUID]domain.SessionStatus
	endErr  map[uuid.UUID]error
	cutoff  time.Time
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{ended: make(map[uuid.UUID]domain.SessionStatus), endErr: make(map[uuid.UUID]error)}
}

func (f *fakeSessions) Create(context.Context, *domain.Session) error { return nil }

func (f *fakeSessions) Get(context.Context, uuid.UUID, uuid.UUID) (*domain.Session, error) {
	return nil, errors.New("not used")
}

func (f *fakeSessions) Touch(context.Context, uuid.UUID, time.Time) error { return nil }

func (f *fakeSessions) End(_ context.Context, id uuid.UUID, status domain.SessionStatus, _ string, _ time.Time) error {
	if err := f.endErr[id]; err != nil {
		return err
	}
	f.ended[id] = status
	return nil
}

func (f *fakeSessions) ListIdleActive(_ context.Context, cutoff time.Time) ([]domain.Session, error) {
	f.cutoff = cutoff
	return f.idle, f.listErr
}

func idleSession(tenantID uuid.UUID) domain.Session {
	return domain.Session{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Status:    domain.SessionActive,
		StartedAt: time.Now().UTC().Add(-time.Hour),
	}
}

func TestSweepResolvesIdleSessions(t *testing.T) {
	m, _, events := newTestMeter(t)
	sessions := newFakeSessions()
	tid := uuid.New()
	s1, s2 := idleSession(tid), idleSession(tid)
	sessions.idle = []domain.Session{s1, s2}

	sweeper, err := NewSweeper(SweeperOptions{Sessions: sessions, Meter: m, IdleTimeout: 30 * time.Minute})
	require.NoError(t, err)

	require.NoError(t, m.InitSession(context.Background(), s1.ID))
	require.NoError(t, m.RecordMessage(context.Background(), s1.ID, 10, 5))

	sweeper.Sweep(context.Background())

	assert.Equal(t, domain.SessionResolved, sessions.ended[s1.ID])
	assert.Equal(t, domain.SessionResolved, sessions.ended[s2.ID])

	// Each swept session flushed a timeout billing event.
	require.Len(t, events.events, 2)
	for _, ev := range events.events {
		assert.Equal(t, domain.BillingTimeout, ev.EventType)
	}
	assert.Equal(t, int64(10), events.events[0].TotalInputTokens)

	// The cutoff honors the idle timeout.
	assert.WithinDuration(t, time.Now().UTC().Add(-30*time.Minute), sessions.cutoff, 5*time.Second)
}

func TestSweepContinuesPastFailures(t *testing.T) {
	m, _, events := newTestMeter(t)
	sessions := newFakeSessions()
	tid := uuid.New()
	bad, good := idleSession(tid), idleSession(tid)
	sessions.idle = []domain.Session{bad, good}
	sessions.endErr[bad.ID] = errors.New("row locked")

	sweeper, err := NewSweeper(SweeperOptions{Sessions: sessions, Meter: m})
	require.NoError(t, err)
	sweeper.Sweep(context.Background())

	// The failed session is skipped entirely, the next one still closes.
	_, badEnded := sessions.ended[bad.ID]
	assert.False(t, badEnded)
	assert.Equal(t, domain.SessionResolved, sessions.ended[good.ID])
	require.Len(t, events.events, 1)
	assert.Equal(t, good.ID, events.events[0].SessionID)
}

func TestSweepListFailure(t *testing.T) {
	m, _, events := newTestMeter(t)
	sessions := newFakeSessions()
	sessions.listErr = errors.New("db down")

	sweeper, err := NewSweeper(SweeperOptions{Sessions: sessions, Meter: m})
	require.NoError(t, err)
	sweeper.Sweep(context.Background())

	assert.Empty(t, sessions.ended)
	assert.Empty(t, events.events)
}

func TestSweeperDefaults(t *testing.T) {
	m, _, _ := newTestMeter(t)
	sweeper, err := NewSweeper(SweeperOptions{Sessions: newFakeSessions(), Meter: m})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, sweeper.interval)
	assert.Equal(t, 30*time.Minute, sweeper.idleTimeout)
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	m, _, _ := newTestMeter(t)
	sweeper, err := NewSweeper(SweeperOptions{
		Sessions: newFakeSessions(),
		Meter:    m,
		Interval: time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on cancel")
	}
}
