package network

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"famhub/internal/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorTransitionsOnly(t *testing.T) {
	m := NewMonitor(Options{Online: true})

	var got []bool
	m.Subscribe(func(online bool) { got = append(got, online) })

	assert.False(t, m.SetOnline(true), "same state is not a transition")
	assert.True(t, m.SetOnline(false))
	assert.False(t, m.SetOnline(false))
	assert.False(t, m.Online())
	assert.True(t, m.SetOnline(true))
	assert.True(t, m.Online())

	assert.Equal(t, []bool{false, true}, got)
}

func TestMonitorUnsubscribe(t *testing.T) {
	m := NewMonitor(Options{Online: false})

	var a, b int
	idA := m.Subscribe(func(bool) { a++ })
	m.Subscribe(func(bool) { b++ })

	m.SetOnline(true)
	m.Unsubscribe(idA)
	m.Unsubscribe(idA)
	m.SetOnline(false)

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}

func TestMonitorPublishesEvents(t *testing.T) {
	bus := events.NewEventBus()
	var count int
	bus.Subscribe(events.EventNetworkChanged, func(*events.Event) error { count++; return nil })

	m := NewMonitor(Options{Online: true, Events: bus})
	m.SetOnline(true)
	m.SetOnline(false)
	m.SetOnline(true)

	assert.Equal(t, 2, count)
}

func TestMonitorConcurrentSignals(t *testing.T) {
	m := NewMonitor(Options{Online: true})

	var transitions atomic.Int32
	m.Subscribe(func(bool) { transitions.Add(1) })

	var changed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.SetOnline(false) {
				changed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), changed.Load())
	assert.Equal(t, int32(1), transitions.Load())
}

func TestMonitorStartWithoutProber(t *testing.T) {
	m := NewMonitor(Options{Online: true})
	done := make(chan struct{})
	go func() {
		m.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start without prober should return immediately")
	}
}

func TestMonitorProbeLoop(t *testing.T) {
	var reachable atomic.Bool
	var probes atomic.Int32
	prober := ProberFunc(func(ctx context.Context) bool {
		probes.Add(1)
		return reachable.Load()
	})

	m := NewMonitor(Options{
		Online:   true,
		Prober:   prober,
		Interval: 5 * time.Millisecond,
		Backoff:  Backoff{Initial: 5 * time.Millisecond, Max: 20 * time.Millisecond},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	require.Eventually(t, func() bool { return !m.Online() }, time.Second, time.Millisecond)

	reachable.Store(true)
	require.Eventually(t, m.Online, time.Second, time.Millisecond)
	assert.Greater(t, probes.Load(), int32(1))
}

func TestMonitorNextProbe(t *testing.T) {
	m := NewMonitor(Options{
		Interval: 10 * time.Second,
		Backoff:  Backoff{Initial: time.Second, Max: 8 * time.Second, Factor: 2},
	})

	assert.Equal(t, 10*time.Second, m.nextProbe(0))
	assert.Equal(t, time.Second, m.nextProbe(1))
	assert.Equal(t, 4*time.Second, m.nextProbe(3))
	assert.Equal(t, 8*time.Second, m.nextProbe(10))
}

func TestHTTPProber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	p := NewHTTPProber(srv.URL, time.Second)
	assert.True(t, p.Probe(context.Background()), "any response means reachable")

	srv.Close()
	assert.False(t, p.Probe(context.Background()))

	bad := NewHTTPProber("://bad", 0)
	assert.False(t, bad.Probe(context.Background()))
}
