// Package queue persists pending user actions in local storage so they can be
// replayed once the remote API is reachable again.
package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"famhub/internal/domain"
	"famhub/internal/models"

	"github.com/google/uuid"
)

var (
	// ErrInvalidAction is returned for unknown action types and non-object payloads.
	ErrInvalidAction = errors.New("invalid queued action")
	// ErrQueueFull is returned when MaxSize is set and reached.
	ErrQueueFull = errors.New("offline queue is full")
)

// Options tunes a Store. Zero values give an unbounded queue under the default key.
type Options struct {
	Key     string
	MaxSize int
}

// Store is the local queue of actions awaiting replay. The whole queue is kept
// as one JSON array under a single storage key, in insertion order.
type Store struct {
	kv      domain.KeyValueStore
	key     string
	maxSize int
	now     func() time.Time
	newID   func() string

	mu sync.Mutex

	lmu       sync.Mutex
	listeners map[int]func(count int)
	nextID    int
}

func NewStore(kv domain.KeyValueStore, opts Options) *Store {
	if opts.Key == "" {
		opts.Key = models.DefaultQueueKey
	}
	return &Store{
		kv:        kv,
		key:       opts.Key,
		maxSize:   opts.MaxSize,
		now:       time.Now,
		newID:     uuid.NewString,
		listeners: make(map[int]func(int)),
	}
}

// Enqueue appends an action with a generated id and timestamp. Duplicates are
// not detected.
func (s *Store) Enqueue(ctx context.Context, actionType models.ActionType, payload json.RawMessage) (models.QueuedAction, error) {
	if err := Validate(actionType, payload); err != nil {
		return models.QueuedAction{}, err
	}

	s.mu.Lock()
	actions, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return models.QueuedAction{}, err
	}
	if s.maxSize > 0 && len(actions) >= s.maxSize {
		s.mu.Unlock()
		return models.QueuedAction{}, fmt.Errorf("%w: %d actions pending", ErrQueueFull, len(actions))
	}

	action := models.QueuedAction{
		ID:        s.newID(),
		Type:      actionType,
		Payload:   append(json.RawMessage(nil), payload...),
		CreatedAt: s.now().UTC(),
	}
	actions = append(actions, action)
	if err := s.save(ctx, actions); err != nil {
		s.mu.Unlock()
		return models.QueuedAction{}, err
	}
	count := len(actions)
	s.mu.Unlock()

	s.notify(count)
	return action, nil
}

// List returns all queued actions in insertion order.
func (s *Store) List(ctx context.Context) ([]models.QueuedAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Get returns a single queued action.
func (s *Store) Get(ctx context.Context, id string) (models.QueuedAction, bool, error) {
	actions, err := s.List(ctx)
	if err != nil {
		return models.QueuedAction{}, false, err
	}
	for _, a := range actions {
		if a.ID == id {
			return a, true, nil
		}
	}
	return models.QueuedAction{}, false, nil
}

// Remove deletes the action with id. An absent id is a no-op and leaves
// storage untouched.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	actions, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	idx := -1
	for i, a := range actions {
		if a.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return nil
	}

	actions = append(actions[:idx], actions[idx+1:]...)
	if err := s.save(ctx, actions); err != nil {
		s.mu.Unlock()
		return err
	}
	count := len(actions)
	s.mu.Unlock()

	s.notify(count)
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	actions, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(actions), nil
}

// Clear drops every queued action.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	if err := s.kv.Remove(ctx, s.key); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("clear queue: %w", err)
	}
	s.mu.Unlock()

	s.notify(0)
	return nil
}

// Subscribe registers fn to be called with the queue length after each change.
func (s *Store) Subscribe(fn func(count int)) int {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.nextID++
	s.listeners[s.nextID] = fn
	return s.nextID
}

func (s *Store) Unsubscribe(id int) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	delete(s.listeners, id)
}

// Close drops all listeners. The store stays usable.
func (s *Store) Close() {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.listeners = make(map[int]func(int))
}

func (s *Store) notify(count int) {
	s.lmu.Lock()
	fns := make([]func(int), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.lmu.Unlock()

	for _, fn := range fns {
		fn(count)
	}
}

func (s *Store) load(ctx context.Context) ([]models.QueuedAction, error) {
	raw, found, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("read queue: %w", err)
	}
	if !found || len(bytes.TrimSpace(raw)) == 0 {
		return []models.QueuedAction{}, nil
	}

	var actions []models.QueuedAction
	if err := json.Unmarshal(raw, &actions); err != nil {
		return nil, fmt.Errorf("decode queue: %w", err)
	}
	if actions == nil {
		actions = []models.QueuedAction{}
	}
	return actions, nil
}

func (s *Store) save(ctx context.Context, actions []models.QueuedAction) error {
	raw, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, raw); err != nil {
		return fmt.Errorf("write queue: %w", err)
	}
	return nil
}

// Validate checks the action type and that payload is a JSON object.
func Validate(actionType models.ActionType, payload json.RawMessage) error {
	if !actionType.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidAction, actionType)
	}
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return fmt.Errorf("%w: payload must be a JSON object", ErrInvalidAction)
	}
	return nil
}
