package models

import (
	"encoding/json"
	"time"
)

// ActionType is one of the creation intents that can be queued while offline.
type ActionType string

const (
	ActionCreateCalendarEvent ActionType = "create_calendar_event"
	ActionCreateTodo          ActionType = "create_todo"
	ActionCreateMeal          ActionType = "create_meal"
	ActionCreateActivity      ActionType = "create_activity"
	ActionCreateGoal          ActionType = "create_goal"
)

var actionTables = map[ActionType]string{
	ActionCreateCalendarEvent: "calendar_events",
	ActionCreateTodo:          "todos",
	ActionCreateMeal:          "meals",
	ActionCreateActivity:      "activities",
	ActionCreateGoal:          "goals",
}

// ActionTypes returns the supported action types in a stable order.
func ActionTypes() []ActionType {
	return []ActionType{
		ActionCreateCalendarEvent,
		ActionCreateTodo,
		ActionCreateMeal,
		ActionCreateActivity,
		ActionCreateGoal,
	}
}

func (t ActionType) Valid() bool {
	_, ok := actionTables[t]
	return ok
}

// Table returns the remote table the action creates a row in.
func (t ActionType) Table() string {
	return actionTables[t]
}

// Label is a human readable name used in indicator messages.
func (t ActionType) Label() string {
	switch t {
	case ActionCreateCalendarEvent:
		return "calendar event"
	case ActionCreateTodo:
		return "todo"
	case ActionCreateMeal:
		return "meal"
	case ActionCreateActivity:
		return "activity"
	case ActionCreateGoal:
		return "goal"
	default:
		return string(t)
	}
}

// QueuedAction is a user mutation recorded locally because it could not be sent.
type QueuedAction struct {
	ID        string          `json:"id"`
	Type      ActionType      `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// SyncResult summarizes one drain pass. It is never persisted.
type SyncResult struct {
	Success          bool       `json:"success"`
	SyncedCount      int        `json:"syncedCount"`
	FailedActionID   string     `json:"failedActionId,omitempty"`
	FailedActionType ActionType `json:"failedActionType,omitempty"`
	Error            string     `json:"error,omitempty"`
}
