package billing

import (
	"context"
	"errors"
	"time"

	"goa.design/clue/log"

	"github.com/relaydesk/relaydesk/domain"
	"github.com/relaydesk/relaydesk/store"
)

type (
	// SweeperOptions configures the idle-session sweeper.
	SweeperOptions struct {
		Sessions store.Sessions
		Meter    *Meter
		// Interval between sweeps. Defaults to 5 minutes.
		Interval time.Duration
		// IdleTimeout is the inactivity threshold. Defaults to 30 minutes.
		IdleTimeout time.Duration
	}

	// Sweeper resolves sessions abandoned by their users and flushes their
	// billing counters with a timeout event.
	Sweeper struct {
		sessions    store.Sessions
		meter       *Meter
		interval    time.Duration
		idleTimeout time.Duration
	}
)

// NewSweeper builds the sweeper.
func NewSweeper(opts SweeperOptions) (*Sweeper, error) {
	if opts.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if opts.Meter == nil {
		return nil, errors.New("meter is required")
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	return &Sweeper{sessions: opts.Sessions, meter: opts.Meter, interval: interval, idleTimeout: idle}, nil
}

// Run sweeps on the configured interval until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep resolves every active session idle past the threshold. Per-session
// failures are logged and do not interrupt the sweep.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.idleTimeout)
	idle, err := s.sessions.ListIdleActive(ctx, cutoff)
	if err != nil {
		log.Errorf(ctx, err, "idle session listing failed")
		return
	}
	for _, sess := range idle {
		if err := s.sessions.End(ctx, sess.ID, domain.SessionResolved, "", time.Now().UTC()); err != nil {
			log.Errorf(ctx, err, "idle session %s resolve failed", sess.ID)
			continue
		}
		if err := s.meter.CloseSession(ctx, sess.ID, sess.TenantID, domain.BillingTimeout); err != nil {
			log.Errorf(ctx, err, "idle session %s billing close failed", sess.ID)
		}
	}
}
