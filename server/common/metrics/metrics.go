package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workhub_messages_sent_total",
		Help: "Messages committed to the workspace",
	}, []string{"status"})

	ReactionsToggled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workhub_reactions_toggled_total",
		Help: "Reaction toggles by outcome",
	}, []string{"status"})

	StoreNotifications = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "workhub_store_notifications_total",
		Help: "Observer notifications delivered by chat stores",
	})

	ActiveStores = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "workhub_active_stores",
		Help: "Per-user chat stores held by the workspace",
	})

	RealtimeConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "workhub_realtime_connections",
		Help: "Open websocket connections",
	})
)

// MustRegister registers the collectors with registerer.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		MessagesSent,
		ReactionsToggled,
		StoreNotifications,
		ActiveStores,
		RealtimeConnections,
	)
}

// HandlerFor exposes the collectors of registry together with the Go runtime
// and process collectors.
func HandlerFor(registry *prometheus.Registry) http.Handler {
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func ObserveResult(vec *prometheus.CounterVec, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	vec.WithLabelValues(status).Inc()
}
