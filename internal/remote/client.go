// Package remote talks to the hosted backend that owns calendar events,
// todos, meals, activities and goals.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"famhub/internal/config"
	"famhub/internal/domain"
	"famhub/internal/models"

	"github.com/rs/zerolog"
)

// ErrNetwork marks failures where the backend could not be reached at all.
var ErrNetwork = errors.New("network error")

// Client is the remote creation API, one call per action type.
type Client = domain.RemoteClient

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote returned status %d", e.StatusCode)
	}
	return e.Message
}

// Create dispatches action to the client method for its type.
func Create(ctx context.Context, client Client, action models.QueuedAction) error {
	switch action.Type {
	case models.ActionCreateCalendarEvent:
		return client.CreateCalendarEvent(ctx, action.Payload)
	case models.ActionCreateTodo:
		return client.CreateTodo(ctx, action.Payload)
	case models.ActionCreateMeal:
		return client.CreateMeal(ctx, action.Payload)
	case models.ActionCreateActivity:
		return client.CreateActivity(ctx, action.Payload)
	case models.ActionCreateGoal:
		return client.CreateGoal(ctx, action.Payload)
	default:
		return fmt.Errorf("unknown action type: %s", action.Type)
	}
}

// IsNetworkError reports whether err means the backend was unreachable, as
// opposed to the backend rejecting the request.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNetwork) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func networkError(err error) error {
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

// New builds the client selected by cfg.Driver. The returned close function
// releases connections and is never nil.
func New(ctx context.Context, cfg config.RemoteConfig, logger *zerolog.Logger) (Client, func(), error) {
	switch cfg.Driver {
	case "", "http":
		return NewHTTPClient(cfg, logger), func() {}, nil
	case "postgres":
		c, err := NewPostgresClient(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, func() {}, err
		}
		return c, c.Close, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown remote driver: %q", cfg.Driver)
	}
}

// objectKeys returns the top-level keys of a JSON object payload.
func objectKeys(payload json.RawMessage) ([]string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if fields == nil {
		return nil, errors.New("payload must be a JSON object")
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	return keys, nil
}
