// Package connmon estimates reachability of the remote endpoint with an
// adaptive polling loop. Two consecutive agreeing probes are required before
// a reachable/unreachable transition is reported, so a single flaky probe
// (a DNS blip, a captive portal answering once) never toggles sync behavior.
package connmon

import (
	"context"
	"sync"
	"time"

	"github.com/pdcpos/posoffline/internal/logging"
	"github.com/pdcpos/posoffline/internal/models"
)

// Event is emitted on every confirmed state transition.
type Event struct {
	State models.ConnState
	At    time.Time
}

type Config struct {
	// SteadyInterval is the probe period while the endpoint is reachable.
	SteadyInterval time.Duration
	// RetryLadder holds the probe delays used after a failure, walked in
	// order and capped at its last entry.
	RetryLadder []time.Duration
	// ProbeTimeout bounds a single probe.
	ProbeTimeout time.Duration
	// Hysteresis is the number of consecutive agreeing probes required for
	// a state transition.
	Hysteresis int
}

func DefaultConfig() Config {
	return Config{
		SteadyInterval: 30 * time.Second,
		RetryLadder: []time.Duration{
			5 * time.Second, 10 * time.Second, 20 * time.Second,
			40 * time.Second, 60 * time.Second,
		},
		ProbeTimeout: 5 * time.Second,
		Hysteresis:   2,
	}
}

// Monitor owns the one ConnectivityState of the process. Everyone else reads
// copies via State() or listens on Subscribe channels.
type Monitor struct {
	prober Prober
	cfg    Config
	log    logging.Logger

	mu        sync.Mutex
	state     models.ConnectivityState
	ladderIdx int
	subs      map[int]chan Event
	nextSubID int
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

func New(prober Prober, cfg Config, log logging.Logger) *Monitor {
	if cfg.Hysteresis <= 0 {
		cfg.Hysteresis = 2
	}
	return &Monitor{
		prober: prober,
		cfg:    cfg,
		log:    log.With("component", "connmon"),
		state:  models.ConnectivityState{State: models.ConnUnknown},
		subs:   make(map[int]chan Event),
	}
}

// State returns a copy of the current connectivity belief.
func (m *Monitor) State() models.ConnectivityState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Reachable is a convenience shorthand for State().State == ConnReachable.
func (m *Monitor) Reachable() bool {
	return m.State().State == models.ConnReachable
}

// Subscribe registers a listener for transition events. The channel is
// buffered; a slow listener misses events rather than blocking the loop.
func (m *Monitor) Subscribe() <-chan Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan Event, 8)
	m.subs[m.nextSubID] = ch
	m.nextSubID++
	return ch
}

// Start launches the polling loop. Calling Start while running is a no-op,
// never a duplicate timer.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(ctx)
}

// Stop cancels the loop, waits for it to exit, and drops all listeners.
// Safe to call repeatedly and without a prior Start.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ch := range m.subs {
		close(ch)
		delete(m.subs, id)
	}
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	timer := time.NewTimer(0) // first probe immediately
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		err := m.probe(ctx)
		if ctx.Err() != nil {
			return
		}
		next := m.observe(ctx, err == nil)
		timer.Reset(next)
	}
}

// probe runs one reachability check under the configured timeout, so a
// prober that hangs counts as a failed probe instead of stalling the loop.
func (m *Monitor) probe(ctx context.Context) error {
	if m.cfg.ProbeTimeout <= 0 {
		return m.prober.Probe(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()
	return m.prober.Probe(ctx)
}

// observe folds one probe result into the state machine and returns the
// delay before the next probe.
func (m *Monitor) observe(ctx context.Context, ok bool) time.Duration {
	m.mu.Lock()

	if ok {
		m.state.ConsecutiveSuccesses++
		m.state.ConsecutiveFailures = 0
	} else {
		m.state.ConsecutiveFailures++
		m.state.ConsecutiveSuccesses = 0
	}
	m.state.LastCheckedAt = time.Now()

	var transition *Event
	if ok && m.state.State != models.ConnReachable &&
		m.state.ConsecutiveSuccesses >= m.cfg.Hysteresis {
		m.state.State = models.ConnReachable
		transition = &Event{State: models.ConnReachable, At: m.state.LastCheckedAt}
	}
	if !ok && m.state.State != models.ConnUnreachable &&
		m.state.ConsecutiveFailures >= m.cfg.Hysteresis {
		m.state.State = models.ConnUnreachable
		transition = &Event{State: models.ConnUnreachable, At: m.state.LastCheckedAt}
	}

	var next time.Duration
	switch {
	case ok && m.state.State == models.ConnReachable:
		m.ladderIdx = 0
		next = m.cfg.SteadyInterval
	case ok:
		// success not yet confirmed: recheck quickly
		m.ladderIdx = 0
		next = m.cfg.RetryLadder[0]
	default:
		idx := m.ladderIdx
		if idx >= len(m.cfg.RetryLadder) {
			idx = len(m.cfg.RetryLadder) - 1
		}
		next = m.cfg.RetryLadder[idx]
		m.ladderIdx++
	}

	var subs []chan Event
	if transition != nil {
		for _, ch := range m.subs {
			subs = append(subs, ch)
		}
	}
	m.mu.Unlock()

	if transition != nil {
		m.log.Info(ctx, "connectivity transition", "state", string(transition.State))
		for _, ch := range subs {
			select {
			case ch <- *transition:
			default: // listener lagging, drop
			}
		}
	}
	return next
}
