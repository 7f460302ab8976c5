package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"famhub/internal/domain"
	"famhub/internal/events"
	"famhub/internal/metrics"
	"famhub/internal/models"
	"famhub/internal/remote"

	"github.com/rs/zerolog"
)

// ErrSyncInProgress is returned by Run while another drain pass is active.
var ErrSyncInProgress = errors.New("sync already in progress")

// ActionQueue is the part of the queue store the runner needs.
type ActionQueue interface {
	List(ctx context.Context) ([]models.QueuedAction, error)
	Remove(ctx context.Context, id string) error
}

type Options struct {
	// ActionTimeout bounds each remote call. Zero means the default.
	ActionTimeout time.Duration
	Events        domain.EventPublisher
	Logger        *zerolog.Logger
}

// SyncRunner replays queued actions against the remote API in insertion
// order and stops at the first failure.
type SyncRunner struct {
	queue         ActionQueue
	remote        remote.Client
	actionTimeout time.Duration
	events        domain.EventPublisher
	logger        *zerolog.Logger

	mu      sync.Mutex
	running atomic.Bool
}

func NewSyncRunner(queue ActionQueue, client remote.Client, opts Options) *SyncRunner {
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = models.DefaultActionTimeout * time.Second
	}

	return &SyncRunner{
		queue:         queue,
		remote:        client,
		actionTimeout: opts.ActionTimeout,
		events:        opts.Events,
		logger:        logger,
	}
}

// Running reports whether a drain pass is in progress.
func (r *SyncRunner) Running() bool {
	return r.running.Load()
}

// Run performs one drain pass. Remote failures are reported in the result;
// the returned error is reserved for a busy runner and unreadable storage.
func (r *SyncRunner) Run(ctx context.Context) (models.SyncResult, error) {
	if !r.mu.TryLock() {
		metrics.IncSyncPass("busy")
		return models.SyncResult{}, ErrSyncInProgress
	}
	r.running.Store(true)
	defer func() {
		r.running.Store(false)
		r.mu.Unlock()
	}()

	actions, err := r.queue.List(ctx)
	if err != nil {
		metrics.IncSyncPass("failure")
		return models.SyncResult{}, fmt.Errorf("list queue: %w", err)
	}
	if len(actions) == 0 {
		metrics.IncSyncPass("success")
		return models.SyncResult{Success: true}, nil
	}

	start := time.Now()
	r.logger.Info().Int("pending", len(actions)).Msg("sync started")
	r.publish(events.EventSyncStarted, events.SyncEventPayload{Pending: len(actions)})

	synced := 0
	for _, action := range actions {
		if err := r.replay(ctx, action); err != nil {
			return r.fail(action, synced, len(actions), err, start), nil
		}

		if err := r.queue.Remove(ctx, action.ID); err != nil {
			// The remote already has the record; leaving it queued means it
			// will be sent again on the next pass.
			r.logger.Error().Err(err).Str("action_id", action.ID).Msg("remove synced action")
			return r.fail(action, synced, len(actions), fmt.Errorf("remove synced action: %w", err), start), nil
		}

		synced++
		metrics.IncSynced(string(action.Type))
		r.publish(events.EventActionSynced, events.ActionEventPayload{
			ActionID:   action.ID,
			ActionType: string(action.Type),
			CreatedAt:  action.CreatedAt,
		})
	}

	metrics.IncSyncPass("success")
	r.logger.Info().Int("synced", synced).Dur("took", time.Since(start)).Msg("sync completed")
	r.publish(events.EventSyncCompleted, events.SyncEventPayload{
		Pending:     len(actions),
		SyncedCount: synced,
		DurationMs:  time.Since(start).Milliseconds(),
	})
	return models.SyncResult{Success: true, SyncedCount: synced}, nil
}

func (r *SyncRunner) replay(ctx context.Context, action models.QueuedAction) error {
	callCtx, cancel := context.WithTimeout(ctx, r.actionTimeout)
	defer cancel()
	return remote.Create(callCtx, r.remote, action)
}

func (r *SyncRunner) fail(action models.QueuedAction, synced, pending int, cause error, start time.Time) models.SyncResult {
	metrics.IncSyncPass("failure")
	r.logger.Warn().
		Err(cause).
		Str("action_id", action.ID).
		Str("action_type", string(action.Type)).
		Int("synced", synced).
		Msg("sync stopped at failed action")
	r.publish(events.EventSyncFailed, events.SyncEventPayload{
		Pending:        pending,
		SyncedCount:    synced,
		FailedActionID: action.ID,
		Error:          cause.Error(),
		DurationMs:     time.Since(start).Milliseconds(),
	})

	return models.SyncResult{
		Success:          false,
		SyncedCount:      synced,
		FailedActionID:   action.ID,
		FailedActionType: action.Type,
		Error:            cause.Error(),
	}
}

func (r *SyncRunner) publish(eventType string, payload interface{}) {
	if r.events == nil {
		return
	}
	if err := r.events.PublishJSON(eventType, payload); err != nil {
		r.logger.Warn().Err(err).Str("event", eventType).Msg("publish event")
	}
}
