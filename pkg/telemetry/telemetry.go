// Package telemetry exposes the core's Prometheus metrics. Counters are
// registered once at package init; the HTTP host mounts Handler() at
// /metrics.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "msgcore_messages_sent_total",
		Help: "Messages accepted by the message store.",
	})
	MessagesEdited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "msgcore_messages_edited_total",
		Help: "Edits that changed a message body.",
	})
	MessagesDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "msgcore_messages_deleted_total",
		Help: "Messages soft-deleted.",
	})
	NotificationsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "msgcore_notifications_created_total",
		Help: "Notifications written by the fan-out engine.",
	}, []string{"kind"})
	NotificationsDeduped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "msgcore_notifications_deduped_total",
		Help: "Fan-out deliveries suppressed by the uniqueness constraint.",
	})
	RateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "msgcore_rate_limited_total",
		Help: "Send attempts rejected by the sliding-window limiter.",
	})
	EventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "msgcore_events_dropped_total",
		Help: "Events rejected by a full or closed queue.",
	})
	FanoutRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "msgcore_fanout_retries_total",
		Help: "Transient storage retries inside notification fan-out.",
	})
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "msgcore_event_queue_depth",
		Help: "Events currently buffered in the in-memory queue.",
	})
)

func init() {
	prometheus.MustRegister(
		MessagesSent,
		MessagesEdited,
		MessagesDeleted,
		NotificationsCreated,
		NotificationsDeduped,
		RateLimited,
		EventsDropped,
		FanoutRetries,
		QueueDepth,
	)
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler { return promhttp.Handler() }
