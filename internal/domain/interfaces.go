package domain

import (
	"context"
	"encoding/json"

	"famhub/internal/models"
)

// KeyValueStore is the local persistence the offline queue is written to.
// Get reports found=false for a missing key without an error.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

type QueueStore interface {
	Enqueue(ctx context.Context, actionType models.ActionType, payload json.RawMessage) (models.QueuedAction, error)
	List(ctx context.Context) ([]models.QueuedAction, error)
	Remove(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	Subscribe(fn func(count int)) int
	Unsubscribe(id int)
}

// RemoteClient is the remote creation API, one call per action type.
type RemoteClient interface {
	CreateCalendarEvent(ctx context.Context, payload json.RawMessage) error
	CreateTodo(ctx context.Context, payload json.RawMessage) error
	CreateMeal(ctx context.Context, payload json.RawMessage) error
	CreateActivity(ctx context.Context, payload json.RawMessage) error
	CreateGoal(ctx context.Context, payload json.RawMessage) error
}

type NetworkMonitor interface {
	Online() bool
	SetOnline(online bool) bool
	Subscribe(fn func(online bool)) int
	Unsubscribe(id int)
}

type SyncRunner interface {
	Run(ctx context.Context) (models.SyncResult, error)
	Running() bool
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
