package models

// IndicatorState is the observable state of the offline indicator.
type IndicatorState string

const (
	IndicatorIdle    IndicatorState = "idle"
	IndicatorOffline IndicatorState = "offline"
	IndicatorSyncing IndicatorState = "syncing"
	IndicatorSynced  IndicatorState = "synced"
	IndicatorError   IndicatorState = "error"
)

// IndicatorSnapshot is what the UI renders.
type IndicatorSnapshot struct {
	State       IndicatorState `json:"state"`
	Online      bool           `json:"online"`
	QueuedCount int            `json:"queuedCount"`
	Message     string         `json:"message,omitempty"`
	LastResult  *SyncResult    `json:"lastResult,omitempty"`
	CanRetry    bool           `json:"canRetry"`
}
