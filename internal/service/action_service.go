package service

import (
	"context"
	"encoding/json"
	"fmt"

	"famhub/internal/domain"
	"famhub/internal/events"
	"famhub/internal/metrics"
	"famhub/internal/models"
	"famhub/internal/queue"
	"famhub/internal/remote"

	"github.com/rs/zerolog"
)

// SubmitResult tells the caller whether the action reached the backend or
// is waiting in the offline queue.
type SubmitResult struct {
	Queued bool                `json:"queued"`
	Action models.QueuedAction `json:"action"`
}

// ActionService sends user mutations to the backend when online and queues
// them locally otherwise.
type ActionService struct {
	queue    domain.QueueStore
	remote   remote.Client
	network  domain.NetworkMonitor
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewActionService(queue domain.QueueStore, client remote.Client, network domain.NetworkMonitor, eventBus domain.EventPublisher, logger *zerolog.Logger) *ActionService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ActionService{
		queue:    queue,
		remote:   client,
		network:  network,
		eventBus: eventBus,
		logger:   logger,
	}
}

func (s *ActionService) Submit(ctx context.Context, actionType models.ActionType, payload json.RawMessage) (SubmitResult, error) {
	if err := queue.Validate(actionType, payload); err != nil {
		return SubmitResult{}, err
	}

	if !s.network.Online() {
		return s.enqueue(ctx, actionType, payload)
	}

	action := models.QueuedAction{Type: actionType, Payload: payload}
	err := remote.Create(ctx, s.remote, action)
	if err == nil {
		return SubmitResult{Queued: false, Action: action}, nil
	}
	if !remote.IsNetworkError(err) {
		return SubmitResult{}, fmt.Errorf("create %s: %w", actionType.Label(), err)
	}

	s.logger.Warn().Err(err).Str("action_type", string(actionType)).Msg("remote unreachable, queueing action")
	s.network.SetOnline(false)
	return s.enqueue(ctx, actionType, payload)
}

func (s *ActionService) Pending(ctx context.Context) ([]models.QueuedAction, error) {
	return s.queue.List(ctx)
}

// Discard drops a queued action without sending it.
func (s *ActionService) Discard(ctx context.Context, id string) error {
	return s.queue.Remove(ctx, id)
}

func (s *ActionService) enqueue(ctx context.Context, actionType models.ActionType, payload json.RawMessage) (SubmitResult, error) {
	action, err := s.queue.Enqueue(ctx, actionType, payload)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("queue %s: %w", actionType.Label(), err)
	}

	metrics.IncQueued(string(actionType))
	s.publishEvent(events.EventActionQueued, action)
	return SubmitResult{Queued: true, Action: action}, nil
}

func (s *ActionService) publishEvent(eventType string, action models.QueuedAction) {
	if s.eventBus == nil {
		return
	}

	payload := events.ActionEventPayload{
		ActionID:   action.ID,
		ActionType: string(action.Type),
		CreatedAt:  action.CreatedAt,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("action_id", action.ID).Msg("publish event error")
	}
}
