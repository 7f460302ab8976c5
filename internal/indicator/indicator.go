// Package indicator derives the user-facing offline/sync status from the
// network monitor, the offline queue and the sync runner.
package indicator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"famhub/internal/domain"
	"famhub/internal/events"
	"famhub/internal/metrics"
	"famhub/internal/models"
	"famhub/internal/worker"

	"github.com/rs/zerolog"
)

var (
	// ErrOffline is returned by Retry while the network is down.
	ErrOffline = errors.New("network is offline")
	// ErrClosed is returned by Retry after Close.
	ErrClosed = errors.New("indicator closed")
)

type Options struct {
	DisplayTimeout  time.Duration
	SyncOnReconnect bool
	Events          domain.EventPublisher
	Logger          *zerolog.Logger
}

// Indicator is the state machine
// idle -> offline -> syncing -> synced -> idle, with syncing -> error on a
// failed pass. It replays the queue on reconnect and on manual Retry.
type Indicator struct {
	monitor         domain.NetworkMonitor
	queue           domain.QueueStore
	runner          domain.SyncRunner
	displayTimeout  time.Duration
	syncOnReconnect bool
	events          domain.EventPublisher
	logger          *zerolog.Logger
	afterFunc       func(d time.Duration, f func()) *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// nmu orders notifications; mu guards the fields below.
	nmu     sync.Mutex
	mu      sync.Mutex
	snap    models.IndicatorSnapshot
	syncing bool
	closed  bool
	reset   *time.Timer

	listeners map[int]func(models.IndicatorSnapshot)
	nextID    int

	networkSub int
	queueSub   int
}

// New reads the initial queue length and subscribes to the monitor and the
// queue. Actions left over from an earlier session are replayed right away
// when the network is up and SyncOnReconnect is set.
func New(ctx context.Context, monitor domain.NetworkMonitor, queue domain.QueueStore, runner domain.SyncRunner, opts Options) (*Indicator, error) {
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.DisplayTimeout <= 0 {
		opts.DisplayTimeout = models.DefaultDisplayTimeout * time.Second
	}

	count, err := queue.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("read queue length: %w", err)
	}

	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	i := &Indicator{
		monitor:         monitor,
		queue:           queue,
		runner:          runner,
		displayTimeout:  opts.DisplayTimeout,
		syncOnReconnect: opts.SyncOnReconnect,
		events:          opts.Events,
		logger:          logger,
		afterFunc:       time.AfterFunc,
		ctx:             bg,
		cancel:          cancel,
		listeners:       make(map[int]func(models.IndicatorSnapshot)),
	}

	i.snap = models.IndicatorSnapshot{Online: monitor.Online(), QueuedCount: count}
	rest(&i.snap)
	i.snap.CanRetry = i.canRetry(i.snap)
	metrics.SetQueueDepth(count)

	i.networkSub = monitor.Subscribe(i.onNetwork)
	i.queueSub = queue.Subscribe(i.onQueue)

	if i.snap.Online && i.syncOnReconnect {
		i.trigger()
	}
	return i, nil
}

// Snapshot returns the current state.
func (i *Indicator) Snapshot() models.IndicatorSnapshot {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.snap
}

// Subscribe registers fn for state changes and returns an id for Unsubscribe.
// fn runs synchronously and must not call Retry.
func (i *Indicator) Subscribe(fn func(models.IndicatorSnapshot)) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.nextID++
	i.listeners[i.nextID] = fn
	return i.nextID
}

func (i *Indicator) Unsubscribe(id int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.listeners, id)
}

// Retry runs a drain pass now and waits for it.
func (i *Indicator) Retry(ctx context.Context) (models.SyncResult, error) {
	if !i.monitor.Online() {
		return models.SyncResult{}, ErrOffline
	}
	if i.runner.Running() {
		return models.SyncResult{}, worker.ErrSyncInProgress
	}

	started, err := i.begin()
	if !started {
		return models.SyncResult{}, err
	}
	defer i.wg.Done()

	result, err := i.runner.Run(ctx)
	i.finish(result, err)
	return result, err
}

// Close unsubscribes from the monitor and the queue, cancels a background
// pass and waits for it to return.
func (i *Indicator) Close() {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}
	i.closed = true
	if i.reset != nil {
		i.reset.Stop()
	}
	i.listeners = make(map[int]func(models.IndicatorSnapshot))
	i.mu.Unlock()

	i.monitor.Unsubscribe(i.networkSub)
	i.queue.Unsubscribe(i.queueSub)
	i.cancel()
	i.wg.Wait()
}

func (i *Indicator) onNetwork(online bool) {
	if !online {
		i.stopReset()
		i.update(func(s *models.IndicatorSnapshot) {
			s.Online = false
			if !i.syncing {
				rest(s)
			}
		})
		return
	}

	i.update(func(s *models.IndicatorSnapshot) {
		s.Online = true
		if s.State == models.IndicatorOffline {
			rest(s)
		}
	})
	if i.syncOnReconnect {
		i.trigger()
	}
}

func (i *Indicator) onQueue(count int) {
	metrics.SetQueueDepth(count)
	i.update(func(s *models.IndicatorSnapshot) {
		s.QueuedCount = count
		if s.State == models.IndicatorOffline || s.State == models.IndicatorIdle {
			rest(s)
		}
	})
}

// trigger starts a background pass when there is something to send.
func (i *Indicator) trigger() {
	if i.Snapshot().QueuedCount == 0 {
		return
	}
	started, _ := i.begin()
	if !started {
		return
	}

	go func() {
		defer i.wg.Done()
		result, err := i.runner.Run(i.ctx)
		i.finish(result, err)
	}()
}

// begin moves to syncing. On success the caller owns one wg slot.
func (i *Indicator) begin() (bool, error) {
	var started bool
	var reason error
	i.update(func(s *models.IndicatorSnapshot) {
		switch {
		case i.closed:
			reason = ErrClosed
			return
		case i.syncing:
			reason = worker.ErrSyncInProgress
			return
		}
		if i.reset != nil {
			i.reset.Stop()
			i.reset = nil
		}
		i.syncing = true
		i.wg.Add(1)
		started = true
		s.State = models.IndicatorSyncing
		s.Message = "Syncing " + actions(s.QueuedCount)
	})
	return started, reason
}

func (i *Indicator) finish(result models.SyncResult, err error) {
	count, countErr := i.queue.Count(i.ctx)
	if countErr != nil {
		i.logger.Warn().Err(countErr).Msg("read queue length after sync")
	}

	showSynced := false
	i.update(func(s *models.IndicatorSnapshot) {
		i.syncing = false
		if countErr == nil {
			s.QueuedCount = count
		}

		switch {
		case errors.Is(err, worker.ErrSyncInProgress):
			rest(s)
		case err != nil:
			s.LastResult = nil
			s.State = models.IndicatorError
			s.Message = "Failed to sync: " + err.Error()
		case result.Success:
			r := result
			s.LastResult = &r
			if result.SyncedCount > 0 && !i.closed {
				s.State = models.IndicatorSynced
				s.Message = "Synced " + actions(result.SyncedCount)
				showSynced = true
			} else {
				rest(s)
			}
		default:
			r := result
			s.LastResult = &r
			if !s.Online {
				rest(s)
				return
			}
			s.State = models.IndicatorError
			s.Message = fmt.Sprintf("Failed to sync %s: %s", result.FailedActionType.Label(), result.Error)
		}
	})

	if showSynced {
		i.mu.Lock()
		if !i.closed {
			i.reset = i.afterFunc(i.displayTimeout, i.expireSynced)
		}
		i.mu.Unlock()
	}
}

func (i *Indicator) expireSynced() {
	i.update(func(s *models.IndicatorSnapshot) {
		if s.State == models.IndicatorSynced {
			rest(s)
		}
	})
}

func (i *Indicator) stopReset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.reset != nil {
		i.reset.Stop()
		i.reset = nil
	}
}

// update applies fn under the lock and notifies listeners when the visible
// state changed.
func (i *Indicator) update(fn func(s *models.IndicatorSnapshot)) {
	i.nmu.Lock()
	defer i.nmu.Unlock()

	i.mu.Lock()
	prev := i.snap
	fn(&i.snap)
	i.snap.CanRetry = i.canRetry(i.snap)
	next := i.snap
	fns := make([]func(models.IndicatorSnapshot), 0, len(i.listeners))
	for _, l := range i.listeners {
		fns = append(fns, l)
	}
	i.mu.Unlock()

	if same(prev, next) {
		return
	}

	i.logger.Debug().
		Str("state", string(next.State)).
		Int("queued", next.QueuedCount).
		Str("message", next.Message).
		Msg("indicator changed")
	if i.events != nil {
		if err := i.events.PublishJSON(events.EventIndicatorChanged, next); err != nil {
			i.logger.Warn().Err(err).Msg("publish indicator event")
		}
	}
	for _, l := range fns {
		l(next)
	}
}

// canRetry must be called with mu held.
func (i *Indicator) canRetry(s models.IndicatorSnapshot) bool {
	if !s.Online || i.syncing || i.closed || s.QueuedCount == 0 {
		return false
	}
	return s.State == models.IndicatorError || s.State == models.IndicatorIdle
}

// rest puts s in the state it settles in when nothing is happening.
func rest(s *models.IndicatorSnapshot) {
	if !s.Online {
		s.State = models.IndicatorOffline
		s.Message = "Offline - " + actions(s.QueuedCount) + " queued"
		return
	}
	s.State = models.IndicatorIdle
	s.Message = ""
	if s.QueuedCount > 0 {
		s.Message = actions(s.QueuedCount) + " queued"
	}
}

func actions(n int) string {
	if n == 1 {
		return "1 action"
	}
	return fmt.Sprintf("%d actions", n)
}

func same(a, b models.IndicatorSnapshot) bool {
	return a.State == b.State &&
		a.Online == b.Online &&
		a.QueuedCount == b.QueuedCount &&
		a.Message == b.Message &&
		a.CanRetry == b.CanRetry &&
		a.LastResult == b.LastResult
}
