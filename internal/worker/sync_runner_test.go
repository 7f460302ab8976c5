package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"famhub/internal/events"
	"famhub/internal/models"
	"famhub/internal/queue"
	"famhub/internal/remote/remotetest"
	"famhub/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *queue.Store {
	t.Helper()
	return queue.NewStore(repository.NewMemoryStorage(), queue.Options{})
}

func enqueue(t *testing.T, q *queue.Store, actionType models.ActionType, payload string) models.QueuedAction {
	t.Helper()
	a, err := q.Enqueue(context.Background(), actionType, json.RawMessage(payload))
	require.NoError(t, err)
	return a
}

func TestRunEmptyQueue(t *testing.T) {
	q := newTestQueue(t)
	fake := &remotetest.Fake{}
	runner := NewSyncRunner(q, fake, Options{})

	result, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{Success: true, SyncedCount: 0}, result)
	assert.Empty(t, fake.Calls())
}

func TestRunDrainsInOrder(t *testing.T) {
	q := newTestQueue(t)
	fake := &remotetest.Fake{}
	runner := NewSyncRunner(q, fake, Options{})

	types := []models.ActionType{
		models.ActionCreateGoal,
		models.ActionCreateTodo,
		models.ActionCreateCalendarEvent,
		models.ActionCreateMeal,
		models.ActionCreateActivity,
	}
	for i, at := range types {
		enqueue(t, q, at, fmt.Sprintf(`{"n":%d}`, i))
	}

	result, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, len(types), result.SyncedCount)
	assert.Empty(t, result.FailedActionID)

	calls := fake.Calls()
	require.Len(t, calls, len(types))
	for i, c := range calls {
		assert.Equal(t, types[i], c.Type)
		assert.JSONEq(t, fmt.Sprintf(`{"n":%d}`, i), string(c.Payload))
	}

	remaining, err := q.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	q := newTestQueue(t)
	a := enqueue(t, q, models.ActionCreateTodo, `{"title":"A"}`)
	b := enqueue(t, q, models.ActionCreateCalendarEvent, `{"title":"B"}`)

	fake := &remotetest.Fake{Fail: func(c remotetest.Call) error {
		if c.Type == models.ActionCreateCalendarEvent {
			return errors.New("network error")
		}
		return nil
	}}
	runner := NewSyncRunner(q, fake, Options{})

	result, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{
		Success:          false,
		SyncedCount:      1,
		FailedActionID:   b.ID,
		FailedActionType: models.ActionCreateCalendarEvent,
		Error:            "network error",
	}, result)

	remaining, err := q.List(context.Background())
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, b.ID, remaining[0].ID)
	assert.NotEqual(t, a.ID, remaining[0].ID)
}

func TestRunFailurePreservesSuffix(t *testing.T) {
	for failAt := 0; failAt < 5; failAt++ {
		t.Run(fmt.Sprintf("FailAt%d", failAt), func(t *testing.T) {
			q := newTestQueue(t)
			var ids []string
			for i := 0; i < 5; i++ {
				ids = append(ids, enqueue(t, q, models.ActionCreateTodo, fmt.Sprintf(`{"n":%d}`, i)).ID)
			}

			calls := 0
			fake := &remotetest.Fake{Fail: func(remotetest.Call) error {
				defer func() { calls++ }()
				if calls == failAt {
					return errors.New("rejected")
				}
				return nil
			}}

			result, err := NewSyncRunner(q, fake, Options{}).Run(context.Background())
			require.NoError(t, err)
			assert.False(t, result.Success)
			assert.Equal(t, failAt, result.SyncedCount)
			assert.Equal(t, ids[failAt], result.FailedActionID)
			assert.Len(t, fake.Calls(), failAt+1, "no calls after the failure")

			remaining, err := q.List(context.Background())
			require.NoError(t, err)
			var remainingIDs []string
			for _, a := range remaining {
				remainingIDs = append(remainingIDs, a.ID)
			}
			assert.Equal(t, ids[failAt:], remainingIDs)
		})
	}
}

func TestRunRetryAfterFailure(t *testing.T) {
	q := newTestQueue(t)
	enqueue(t, q, models.ActionCreateTodo, `{"n":1}`)
	enqueue(t, q, models.ActionCreateMeal, `{"n":2}`)

	var mu sync.Mutex
	down := true
	fake := &remotetest.Fake{Fail: func(remotetest.Call) error {
		mu.Lock()
		defer mu.Unlock()
		if down {
			return errors.New("network error")
		}
		return nil
	}}
	runner := NewSyncRunner(q, fake, Options{})

	first, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, first.Success)
	assert.Zero(t, first.SyncedCount)

	mu.Lock()
	down = false
	mu.Unlock()

	second, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{Success: true, SyncedCount: 2}, second)
}

func TestRunConcurrencyGuard(t *testing.T) {
	q := newTestQueue(t)
	enqueue(t, q, models.ActionCreateTodo, `{"title":"slow"}`)

	block := make(chan struct{})
	fake := &remotetest.Fake{Block: block}
	runner := NewSyncRunner(q, fake, Options{})

	done := make(chan models.SyncResult, 1)
	go func() {
		result, err := runner.Run(context.Background())
		assert.NoError(t, err)
		done <- result
	}()

	require.Eventually(t, runner.Running, time.Second, time.Millisecond)

	_, err := runner.Run(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(block)
	result := <-done
	assert.Equal(t, models.SyncResult{Success: true, SyncedCount: 1}, result)
	assert.False(t, runner.Running())
	assert.Len(t, fake.Calls(), 1, "the rejected run made no remote calls")
}

func TestRunActionTimeout(t *testing.T) {
	q := newTestQueue(t)
	a := enqueue(t, q, models.ActionCreateGoal, `{}`)

	fake := &remotetest.Fake{Block: make(chan struct{})}
	runner := NewSyncRunner(q, fake, Options{ActionTimeout: 20 * time.Millisecond})

	result, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, a.ID, result.FailedActionID)
	assert.Equal(t, context.DeadlineExceeded.Error(), result.Error)

	count, _ := q.Count(context.Background())
	assert.Equal(t, 1, count)
}

type brokenQueue struct {
	actions   []models.QueuedAction
	listErr   error
	removeErr error
}

func (b *brokenQueue) List(ctx context.Context) ([]models.QueuedAction, error) {
	return b.actions, b.listErr
}

func (b *brokenQueue) Remove(ctx context.Context, id string) error {
	return b.removeErr
}

func TestRunStorageErrors(t *testing.T) {
	t.Run("ListFails", func(t *testing.T) {
		fake := &remotetest.Fake{}
		runner := NewSyncRunner(&brokenQueue{listErr: errors.New("disk gone")}, fake, Options{})

		_, err := runner.Run(context.Background())
		assert.ErrorContains(t, err, "disk gone")
		assert.Empty(t, fake.Calls())
		assert.False(t, runner.Running())
	})

	t.Run("RemoveFails", func(t *testing.T) {
		q := &brokenQueue{
			actions: []models.QueuedAction{
				{ID: "a", Type: models.ActionCreateTodo, Payload: json.RawMessage(`{}`)},
				{ID: "b", Type: models.ActionCreateTodo, Payload: json.RawMessage(`{}`)},
			},
			removeErr: errors.New("quota exceeded"),
		}
		fake := &remotetest.Fake{}

		result, err := NewSyncRunner(q, fake, Options{}).Run(context.Background())
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Zero(t, result.SyncedCount)
		assert.Equal(t, "a", result.FailedActionID)
		assert.Contains(t, result.Error, "quota exceeded")
		assert.Len(t, fake.Calls(), 1)
	})
}

func TestRunPublishesEvents(t *testing.T) {
	bus := events.NewEventBus()
	var seen []string
	for _, et := range []string{events.EventSyncStarted, events.EventActionSynced, events.EventSyncCompleted, events.EventSyncFailed} {
		bus.Subscribe(et, func(e *events.Event) error {
			seen = append(seen, e.Type)
			return nil
		})
	}

	q := newTestQueue(t)
	enqueue(t, q, models.ActionCreateTodo, `{}`)
	enqueue(t, q, models.ActionCreateMeal, `{}`)

	fake := &remotetest.Fake{Fail: func(c remotetest.Call) error {
		if c.Type == models.ActionCreateMeal {
			return errors.New("rejected")
		}
		return nil
	}}
	runner := NewSyncRunner(q, fake, Options{Events: bus})

	_, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{events.EventSyncStarted, events.EventActionSynced, events.EventSyncFailed}, seen)

	seen = nil
	fake.Fail = nil
	_, err = runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{events.EventSyncStarted, events.EventActionSynced, events.EventSyncCompleted}, seen)
}
