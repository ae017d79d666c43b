package internal

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes the server's operational counters.
type Metrics struct {
	registry *prometheus.Registry

	Signups           prometheus.Counter
	Logins            prometheus.Counter
	MessagesBroadcast prometheus.Counter
	SlowClientDrops   prometheus.Counter
	Uploads           prometheus.Counter
	ActiveConnections prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		Signups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forumhub_signups_total",
			Help: "Accounts created.",
		}),
		Logins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forumhub_logins_total",
			Help: "Successful logins.",
		}),
		MessagesBroadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forumhub_messages_broadcast_total",
			Help: "Chat messages fanned out to forum rooms.",
		}),
		SlowClientDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forumhub_slow_client_drops_total",
			Help: "Connections dropped because their send buffer was full.",
		}),
		Uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forumhub_uploads_total",
			Help: "Files accepted by the upload endpoint.",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forumhub_active_connections",
			Help: "Open websocket connections.",
		}),
	}
	registry.MustRegister(
		m.Signups,
		m.Logins,
		m.MessagesBroadcast,
		m.SlowClientDrops,
		m.Uploads,
		m.ActiveConnections,
		collectors.NewGoCollector(),
	)
	return m
}

// ObserveOnlineUsers exports a live distinct-user count as a gauge, sampled
// at scrape time.
func (m *Metrics) ObserveOnlineUsers(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "forumhub_online_users",
		Help: "Distinct users with at least one open websocket connection.",
	}, func() float64 {
		return float64(count())
	}))
}

// Handler serves the scrape endpoint for this server's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
