// Package network tracks whether the remote API is reachable and tells
// subscribers about online/offline transitions.
package network

import (
	"context"
	"sync"
	"time"

	"famhub/internal/domain"
	"famhub/internal/events"
	"famhub/internal/metrics"

	"github.com/rs/zerolog"
)

type Options struct {
	// Online is the state assumed before the first signal.
	Online   bool
	Prober   Prober
	Interval time.Duration
	Backoff  Backoff
	Events   domain.EventPublisher
	Logger   *zerolog.Logger
}

// StatusPayload is published as network_changed.
type StatusPayload struct {
	Online bool      `json:"online"`
	At     time.Time `json:"at"`
}

// Monitor holds the current connectivity state. Signals arrive through
// SetOnline, either from clients or from the probe loop started by Start.
type Monitor struct {
	mu     sync.RWMutex
	online bool

	lmu       sync.Mutex
	listeners map[int]func(online bool)
	nextID    int

	prober   Prober
	interval time.Duration
	backoff  Backoff
	events   domain.EventPublisher
	logger   *zerolog.Logger
}

func NewMonitor(opts Options) *Monitor {
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Second
	}
	if opts.Backoff.Initial <= 0 {
		opts.Backoff.Initial = opts.Interval
	}

	metrics.SetOnline(opts.Online)
	return &Monitor{
		online:    opts.Online,
		listeners: make(map[int]func(bool)),
		prober:    opts.Prober,
		interval:  opts.Interval,
		backoff:   opts.Backoff,
		events:    opts.Events,
		logger:    logger,
	}
}

func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// SetOnline records a connectivity signal. Repeated signals with the same
// value are ignored; it returns true only when the state flipped.
func (m *Monitor) SetOnline(online bool) bool {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	m.mu.Unlock()

	m.logger.Info().Bool("online", online).Msg("network status changed")
	metrics.SetOnline(online)
	if m.events != nil {
		if err := m.events.PublishJSON(events.EventNetworkChanged, StatusPayload{Online: online, At: time.Now()}); err != nil {
			m.logger.Warn().Err(err).Msg("publish network event")
		}
	}

	m.lmu.Lock()
	fns := make([]func(bool), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.lmu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
	return true
}

// Subscribe registers fn for transitions and returns an id for Unsubscribe.
func (m *Monitor) Subscribe(fn func(online bool)) int {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	m.nextID++
	m.listeners[m.nextID] = fn
	return m.nextID
}

func (m *Monitor) Unsubscribe(id int) {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	delete(m.listeners, id)
}

// Start runs the probe loop until ctx is done. Without a prober it returns
// immediately and the state only changes through SetOnline.
func (m *Monitor) Start(ctx context.Context) {
	if m.prober == nil {
		return
	}

	m.logger.Info().Dur("interval", m.interval).Msg("network probe started")
	defer m.logger.Info().Msg("network probe stopped")

	failures := 0
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if m.prober.Probe(ctx) {
			failures = 0
			m.SetOnline(true)
		} else {
			if ctx.Err() != nil {
				return
			}
			failures++
			m.SetOnline(false)
		}

		timer.Reset(m.nextProbe(failures))
	}
}

func (m *Monitor) nextProbe(failures int) time.Duration {
	if failures == 0 {
		return m.interval
	}
	return m.backoff.Next(failures)
}
