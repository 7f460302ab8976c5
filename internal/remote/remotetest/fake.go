// Package remotetest provides an in-memory remote client for tests.
package remotetest

import (
	"context"
	"encoding/json"
	"sync"

	"famhub/internal/models"
)

// Call is one recorded remote create.
type Call struct {
	Type    models.ActionType
	Payload json.RawMessage
}

// Fake records calls in order. Fail returns the error for a call, or nil to
// accept it.
type Fake struct {
	mu    sync.Mutex
	calls []Call
	Fail  func(call Call) error
	// Block, when set, is received from before each call returns.
	Block chan struct{}
}

func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

func (f *Fake) CreateCalendarEvent(ctx context.Context, payload json.RawMessage) error {
	return f.record(ctx, models.ActionCreateCalendarEvent, payload)
}

func (f *Fake) CreateTodo(ctx context.Context, payload json.RawMessage) error {
	return f.record(ctx, models.ActionCreateTodo, payload)
}

func (f *Fake) CreateMeal(ctx context.Context, payload json.RawMessage) error {
	return f.record(ctx, models.ActionCreateMeal, payload)
}

func (f *Fake) CreateActivity(ctx context.Context, payload json.RawMessage) error {
	return f.record(ctx, models.ActionCreateActivity, payload)
}

func (f *Fake) CreateGoal(ctx context.Context, payload json.RawMessage) error {
	return f.record(ctx, models.ActionCreateGoal, payload)
}

func (f *Fake) record(ctx context.Context, actionType models.ActionType, payload json.RawMessage) error {
	call := Call{Type: actionType, Payload: append(json.RawMessage(nil), payload...)}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	fail := f.Fail
	block := f.Block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail != nil {
		return fail(call)
	}
	return nil
}
