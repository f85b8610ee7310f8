// Package metrics exposes Prometheus collectors for the event pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	eventsCollected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dashboard",
			Subsystem: "events",
			Name:      "collected_total",
			Help:      "Raw node events accepted by a collector filter.",
		},
		[]string{"category"},
	)

	eventsPersisted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dashboard",
			Subsystem: "events",
			Name:      "persisted_total",
			Help:      "Canonical events written to storage.",
		},
		[]string{"category", "severity"},
	)

	eventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dashboard",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events lost before persistence, by reason.",
		},
		[]string{"reason"},
	)

	notificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dashboard",
			Subsystem: "notifications",
			Name:      "deliveries_total",
			Help:      "Notification delivery attempts by endpoint type and outcome.",
		},
		[]string{"endpoint_type", "outcome"},
	)

	subscriptionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dashboard",
			Subsystem: "subscriptions",
			Name:      "active",
			Help:      "Currently active (node, category) subscriptions.",
		},
	)
)

func init() {
	Registry.MustRegister(
		eventsCollected,
		eventsPersisted,
		eventsDropped,
		notificationsSent,
		subscriptionsActive,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordEventCollected counts a raw event passing a collector filter.
func RecordEventCollected(category string) {
	eventsCollected.WithLabelValues(category).Inc()
}

// RecordEventPersisted counts a canonical event written to storage.
func RecordEventPersisted(category, severity string) {
	eventsPersisted.WithLabelValues(category, severity).Inc()
}

// RecordEventDropped counts an event lost before persistence.
func RecordEventDropped(reason string) {
	eventsDropped.WithLabelValues(reason).Inc()
}

// RecordNotificationDelivery counts a delivery attempt outcome.
func RecordNotificationDelivery(endpointType string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	notificationsSent.WithLabelValues(endpointType, outcome).Inc()
}

// SubscriptionStarted increments the active subscription gauge.
func SubscriptionStarted() { subscriptionsActive.Inc() }

// SubscriptionStopped decrements the active subscription gauge.
func SubscriptionStopped() { subscriptionsActive.Dec() }
