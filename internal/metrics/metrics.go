package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "famhub"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "offline_queue_depth",
			Help:      "Actions currently waiting in the offline queue.",
		},
	)

	actionsQueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_queued_total",
			Help:      "Actions appended to the offline queue by type.",
		},
		[]string{"type"},
	)

	actionsSynced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_synced_total",
			Help:      "Queued actions replayed successfully by type.",
		},
		[]string{"type"},
	)

	syncPasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_passes_total",
			Help:      "Drain passes by outcome (success, failure, busy).",
		},
		[]string{"outcome"},
	)

	remoteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_call_duration_seconds",
			Help:      "Latency of remote create calls by action type.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	networkOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "network_online",
			Help:      "1 when the remote API is considered reachable.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, queueDepth, actionsQueued, actionsSynced, syncPasses, remoteDuration, networkOnline)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

func IncQueued(actionType string) {
	actionsQueued.WithLabelValues(actionType).Inc()
}

func IncSynced(actionType string) {
	actionsSynced.WithLabelValues(actionType).Inc()
}

// IncSyncPass records a drain pass outcome: success, failure or busy.
func IncSyncPass(outcome string) {
	syncPasses.WithLabelValues(outcome).Inc()
}

func ObserveRemote(actionType string, seconds float64) {
	remoteDuration.WithLabelValues(actionType).Observe(seconds)
}

func SetOnline(online bool) {
	if online {
		networkOnline.Set(1)
		return
	}
	networkOnline.Set(0)
}
