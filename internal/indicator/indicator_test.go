package indicator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"famhub/internal/events"
	"famhub/internal/models"
	"famhub/internal/network"
	"famhub/internal/queue"
	"famhub/internal/remote/remotetest"
	"famhub/internal/repository"
	"famhub/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	queue   *queue.Store
	fake    *remotetest.Fake
	monitor *network.Monitor
	runner  *worker.SyncRunner

	mu     sync.Mutex
	states []models.IndicatorState
}

func newHarness(online bool) *harness {
	q := queue.NewStore(repository.NewMemoryStorage(), queue.Options{})
	fake := &remotetest.Fake{}
	return &harness{
		queue:   q,
		fake:    fake,
		monitor: network.NewMonitor(network.Options{Online: online}),
		runner:  worker.NewSyncRunner(q, fake, worker.Options{}),
	}
}

func (h *harness) start(t *testing.T, opts Options) *Indicator {
	t.Helper()
	if opts.DisplayTimeout == 0 {
		opts.DisplayTimeout = 30 * time.Millisecond
	}
	ind, err := New(context.Background(), h.monitor, h.queue, h.runner, opts)
	require.NoError(t, err)
	ind.Subscribe(func(s models.IndicatorSnapshot) {
		h.mu.Lock()
		h.states = append(h.states, s.State)
		h.mu.Unlock()
	})
	t.Cleanup(ind.Close)
	return ind
}

func (h *harness) seen() []models.IndicatorState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.IndicatorState(nil), h.states...)
}

func (h *harness) enqueue(t *testing.T, n int, actionType models.ActionType) {
	t.Helper()
	for k := 0; k < n; k++ {
		_, err := h.queue.Enqueue(context.Background(), actionType, json.RawMessage(`{"title":"x"}`))
		require.NoError(t, err)
	}
}

func stateIs(ind *Indicator, state models.IndicatorState) func() bool {
	return func() bool { return ind.Snapshot().State == state }
}

func TestInitialState(t *testing.T) {
	h := newHarness(false)
	h.enqueue(t, 2, models.ActionCreateTodo)
	ind := h.start(t, Options{SyncOnReconnect: true})

	snap := ind.Snapshot()
	assert.Equal(t, models.IndicatorOffline, snap.State)
	assert.Equal(t, 2, snap.QueuedCount)
	assert.Equal(t, "Offline - 2 actions queued", snap.Message)
	assert.False(t, snap.CanRetry)

	h2 := newHarness(true)
	ind2 := h2.start(t, Options{SyncOnReconnect: true})
	assert.Equal(t, models.IndicatorIdle, ind2.Snapshot().State)
	assert.Empty(t, ind2.Snapshot().Message)
}

func TestOfflineQueueGrows(t *testing.T) {
	h := newHarness(true)
	ind := h.start(t, Options{SyncOnReconnect: true})

	h.monitor.SetOnline(false)
	assert.Equal(t, "Offline - 0 actions queued", ind.Snapshot().Message)

	h.enqueue(t, 1, models.ActionCreateTodo)
	assert.Equal(t, "Offline - 1 action queued", ind.Snapshot().Message)
	h.enqueue(t, 1, models.ActionCreateGoal)
	assert.Equal(t, "Offline - 2 actions queued", ind.Snapshot().Message)
	assert.Equal(t, 2, ind.Snapshot().QueuedCount)
}

func TestReconnectSyncsAndReturnsToIdle(t *testing.T) {
	h := newHarness(false)
	h.enqueue(t, 3, models.ActionCreateTodo)
	ind := h.start(t, Options{SyncOnReconnect: true, DisplayTimeout: 50 * time.Millisecond})

	var mu sync.Mutex
	var messages []string
	ind.Subscribe(func(s models.IndicatorSnapshot) {
		mu.Lock()
		messages = append(messages, s.Message)
		mu.Unlock()
	})

	h.monitor.SetOnline(true)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, m := range messages {
			if m == "Synced 3 actions" {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	require.Eventually(t, stateIs(ind, models.IndicatorIdle), time.Second, time.Millisecond)

	snap := ind.Snapshot()
	assert.Zero(t, snap.QueuedCount)
	require.NotNil(t, snap.LastResult)
	assert.Equal(t, models.SyncResult{Success: true, SyncedCount: 3}, *snap.LastResult)
	assert.Len(t, h.fake.Calls(), 3)

	assert.Subset(t, h.seen(), []models.IndicatorState{
		models.IndicatorSyncing,
		models.IndicatorSynced,
		models.IndicatorIdle,
	})
}

func TestReconnectWithEmptyQueue(t *testing.T) {
	h := newHarness(false)
	ind := h.start(t, Options{SyncOnReconnect: true})

	h.monitor.SetOnline(true)
	assert.Equal(t, models.IndicatorIdle, ind.Snapshot().State)
	assert.Empty(t, h.fake.Calls())
	assert.NotContains(t, h.seen(), models.IndicatorSyncing)
}

func TestReconnectWithoutAutoSync(t *testing.T) {
	h := newHarness(false)
	h.enqueue(t, 2, models.ActionCreateMeal)
	ind := h.start(t, Options{SyncOnReconnect: false})

	h.monitor.SetOnline(true)
	snap := ind.Snapshot()
	assert.Equal(t, models.IndicatorIdle, snap.State)
	assert.Equal(t, "2 actions queued", snap.Message)
	assert.True(t, snap.CanRetry)
	assert.Empty(t, h.fake.Calls())
}

func TestFailureThenRetry(t *testing.T) {
	h := newHarness(false)
	h.enqueue(t, 1, models.ActionCreateTodo)
	h.enqueue(t, 1, models.ActionCreateMeal)

	var mu sync.Mutex
	reject := true
	h.fake.Fail = func(c remotetest.Call) error {
		mu.Lock()
		defer mu.Unlock()
		if reject && c.Type == models.ActionCreateMeal {
			return errors.New("rejected")
		}
		return nil
	}
	ind := h.start(t, Options{SyncOnReconnect: true, DisplayTimeout: time.Hour})

	h.monitor.SetOnline(true)
	require.Eventually(t, stateIs(ind, models.IndicatorError), time.Second, time.Millisecond)

	snap := ind.Snapshot()
	assert.Equal(t, "Failed to sync meal: rejected", snap.Message)
	assert.True(t, snap.CanRetry)
	assert.Equal(t, 1, snap.QueuedCount)
	require.NotNil(t, snap.LastResult)
	assert.Equal(t, 1, snap.LastResult.SyncedCount)

	mu.Lock()
	reject = false
	mu.Unlock()

	result, err := ind.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{Success: true, SyncedCount: 1}, result)
	assert.Equal(t, models.IndicatorSynced, ind.Snapshot().State)
	assert.Equal(t, "Synced 1 action", ind.Snapshot().Message)
	assert.False(t, ind.Snapshot().CanRetry)
}

func TestRetryRefused(t *testing.T) {
	t.Run("Offline", func(t *testing.T) {
		h := newHarness(false)
		h.enqueue(t, 1, models.ActionCreateTodo)
		ind := h.start(t, Options{})

		_, err := ind.Retry(context.Background())
		assert.ErrorIs(t, err, ErrOffline)
		assert.Empty(t, h.fake.Calls())
	})

	t.Run("InProgress", func(t *testing.T) {
		h := newHarness(false)
		h.enqueue(t, 1, models.ActionCreateTodo)
		block := make(chan struct{})
		h.fake.Block = block
		ind := h.start(t, Options{SyncOnReconnect: true, DisplayTimeout: time.Hour})

		h.monitor.SetOnline(true)
		require.Eventually(t, h.runner.Running, time.Second, time.Millisecond)
		assert.Equal(t, models.IndicatorSyncing, ind.Snapshot().State)
		assert.Equal(t, "Syncing 1 action", ind.Snapshot().Message)

		_, err := ind.Retry(context.Background())
		assert.ErrorIs(t, err, worker.ErrSyncInProgress)

		close(block)
		require.Eventually(t, stateIs(ind, models.IndicatorSynced), time.Second, time.Millisecond)
		assert.Len(t, h.fake.Calls(), 1)
	})

	t.Run("Closed", func(t *testing.T) {
		h := newHarness(true)
		ind := h.start(t, Options{})
		ind.Close()

		_, err := ind.Retry(context.Background())
		assert.ErrorIs(t, err, ErrClosed)
	})
}

func TestFailureWhileOfflineSettlesOffline(t *testing.T) {
	h := newHarness(false)
	h.enqueue(t, 1, models.ActionCreateGoal)
	block := make(chan struct{})
	h.fake.Block = block
	h.fake.Fail = func(remotetest.Call) error { return errors.New("network error") }
	ind := h.start(t, Options{SyncOnReconnect: true})

	h.monitor.SetOnline(true)
	require.Eventually(t, h.runner.Running, time.Second, time.Millisecond)

	h.monitor.SetOnline(false)
	assert.Equal(t, models.IndicatorSyncing, ind.Snapshot().State, "a running pass is not interrupted")

	close(block)
	require.Eventually(t, stateIs(ind, models.IndicatorOffline), time.Second, time.Millisecond)
	assert.Equal(t, "Offline - 1 action queued", ind.Snapshot().Message)
	require.NotNil(t, ind.Snapshot().LastResult)
	assert.False(t, ind.Snapshot().LastResult.Success)
}

func TestOfflineDuringSyncedDisplay(t *testing.T) {
	h := newHarness(true)
	ind := h.start(t, Options{DisplayTimeout: time.Hour})
	h.enqueue(t, 1, models.ActionCreateTodo)

	_, err := ind.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.IndicatorSynced, ind.Snapshot().State)

	h.monitor.SetOnline(false)
	assert.Equal(t, models.IndicatorOffline, ind.Snapshot().State)
}

func TestLeftoverActionsReplayedAtStart(t *testing.T) {
	h := newHarness(true)
	h.enqueue(t, 2, models.ActionCreateActivity)
	ind := h.start(t, Options{SyncOnReconnect: true})

	require.Eventually(t, func() bool { return ind.Snapshot().QueuedCount == 0 && len(h.fake.Calls()) == 2 }, time.Second, time.Millisecond)
}

func TestCloseCancelsBackgroundPass(t *testing.T) {
	h := newHarness(false)
	h.enqueue(t, 1, models.ActionCreateTodo)
	h.fake.Block = make(chan struct{})
	ind, err := New(context.Background(), h.monitor, h.queue, h.runner, Options{SyncOnReconnect: true})
	require.NoError(t, err)

	h.monitor.SetOnline(true)
	require.Eventually(t, h.runner.Running, time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		ind.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	assert.False(t, h.runner.Running())
	count, _ := h.queue.Count(context.Background())
	assert.Equal(t, 1, count, "canceled action stays queued")

	h.monitor.SetOnline(false)
	h.monitor.SetOnline(true)
	assert.Len(t, h.fake.Calls(), 1, "closed indicator no longer reacts")
}

func TestPublishesIndicatorEvents(t *testing.T) {
	bus := events.NewEventBus()
	var mu sync.Mutex
	var payloads []models.IndicatorSnapshot
	bus.Subscribe(events.EventIndicatorChanged, func(e *events.Event) error {
		var s models.IndicatorSnapshot
		if err := json.Unmarshal(e.Payload, &s); err != nil {
			return err
		}
		mu.Lock()
		payloads = append(payloads, s)
		mu.Unlock()
		return nil
	})

	h := newHarness(true)
	h.start(t, Options{Events: bus})
	h.monitor.SetOnline(false)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, payloads, 1)
	assert.Equal(t, models.IndicatorOffline, payloads[0].State)
}

func TestStorageErrorAtStart(t *testing.T) {
	kv := &failingKV{err: errors.New("disk gone")}
	q := queue.NewStore(kv, queue.Options{})
	_, err := New(context.Background(), network.NewMonitor(network.Options{}), q, worker.NewSyncRunner(q, &remotetest.Fake{}, worker.Options{}), Options{})
	assert.ErrorContains(t, err, "disk gone")
}

type failingKV struct{ err error }

func (f *failingKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, f.err
}
func (f *failingKV) Set(ctx context.Context, key string, value []byte) error { return f.err }
func (f *failingKV) Remove(ctx context.Context, key string) error            { return f.err }
