package models

const (
	// DefaultQueueKey is the storage key holding the serialized offline queue.
	DefaultQueueKey = "famhub:offline_queue"

	// DefaultDisplayTimeout is how long the "synced" message stays visible, in seconds.
	DefaultDisplayTimeout = 3

	// DefaultActionTimeout bounds a single remote create call during a drain pass, in seconds.
	DefaultActionTimeout = 30

	// DefaultRemoteTimeout is the HTTP client timeout for the remote API, in seconds.
	DefaultRemoteTimeout = 15

	// DefaultProbeInterval is the connectivity probe period while online, in seconds.
	DefaultProbeInterval = 15

	// ShutdownTimeout bounds graceful HTTP shutdown, in seconds.
	ShutdownTimeout = 10

	// RateLimitRPS and RateLimitBurst pace outgoing remote calls.
	RateLimitRPS   = 10
	RateLimitBurst = 5
)
