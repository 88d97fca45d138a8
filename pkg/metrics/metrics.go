// Package metrics exposes Prometheus instrumentation for the relay:
// delivery outcomes, authentication attempts, and reaper purge counts.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	messagesRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quietwire",
		Subsystem: "relay",
		Name:      "messages_total",
		Help:      "Relayed messages by delivery outcome.",
	}, []string{"outcome"}) // delivered, queued

	messagesDrained = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quietwire",
		Subsystem: "relay",
		Name:      "messages_drained_total",
		Help:      "Queued messages handed to clients via offline fetch.",
	})

	authAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quietwire",
		Subsystem: "auth",
		Name:      "attempts_total",
		Help:      "Challenge verification attempts by result.",
	}, []string{"result"}) // success, failure

	challengesReaped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quietwire",
		Subsystem: "scheduler",
		Name:      "challenges_reaped_total",
		Help:      "Expired authentication challenges purged.",
	})

	messagesReaped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quietwire",
		Subsystem: "scheduler",
		Name:      "messages_reaped_total",
		Help:      "Queued messages purged by the retention job.",
	}, []string{"reason"}) // expired, stale

	wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quietwire",
		Subsystem: "relay",
		Name:      "ws_connections",
		Help:      "Currently registered WebSocket sessions.",
	})

	blobOperations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "quietwire",
		Subsystem: "blob",
		Name:      "operation_seconds",
		Help:      "Blob store operation latency by operation and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "status"}) // put, get, delete / ok, error
)

// ObserveDelivery records a relayed message.
func ObserveDelivery(delivered bool) {
	if delivered {
		messagesRelayed.WithLabelValues("delivered").Inc()
	} else {
		messagesRelayed.WithLabelValues("queued").Inc()
	}
}

// ObserveDrain records messages handed out through the offline fetch.
func ObserveDrain(count int) {
	messagesDrained.Add(float64(count))
}

// ObserveAuth records a challenge verification attempt.
func ObserveAuth(success bool) {
	if success {
		authAttempts.WithLabelValues("success").Inc()
	} else {
		authAttempts.WithLabelValues("failure").Inc()
	}
}

// ObserveChallengeReap records purged challenges.
func ObserveChallengeReap(count int64) {
	challengesReaped.Add(float64(count))
}

// ObserveQueueReap records purged queued messages.
func ObserveQueueReap(expired, stale int64) {
	messagesReaped.WithLabelValues("expired").Add(float64(expired))
	messagesReaped.WithLabelValues("stale").Add(float64(stale))
}

// WSConnected tracks a new registered socket.
func WSConnected() { wsConnections.Inc() }

// WSDisconnected tracks a removed socket.
func WSDisconnected() { wsConnections.Dec() }

// ObserveBlobOp records a blob store operation and its latency.
func ObserveBlobOp(operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	blobOperations.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
