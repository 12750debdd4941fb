package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Kostaaa1/bililive/pkg/bilibili/event"
	"github.com/Kostaaa1/bililive/pkg/bilibili/live"
)

type Config struct {
	// Namespace prefixes every metric (default: "bililive").
	Namespace string

	// Registry receives the collectors.
	// Default: a fresh prometheus.Registry with the Go and process collectors.
	Registry *prometheus.Registry
}

type Option func(*Config)

func WithNamespace(ns string) Option {
	return func(c *Config) { c.Namespace = ns }
}

func WithRegistry(r *prometheus.Registry) Option {
	return func(c *Config) { c.Registry = r }
}

// Metrics implements live.Observer and counts published events and decode
// failures.
type Metrics struct {
	registry *prometheus.Registry

	connectAttempts prometheus.Counter
	connections     *prometheus.GaugeVec
	events          *prometheus.CounterVec
	decodeFailures  *prometheus.CounterVec
	reconnects      *prometheus.CounterVec
	queueLength     prometheus.Gauge
	viewers         *prometheus.GaugeVec
}

func New(opts ...Option) *Metrics {
	cfg := Config{Namespace: "bililive"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
		cfg.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	factory := promauto.With(cfg.Registry)
	m := &Metrics{
		registry: cfg.Registry,

		connectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "connect_attempts_total",
			Help:      "Connection attempts started by room connectors",
		}),
		connections: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "connections",
			Help:      "Room connectors by state",
		}, []string{"state"}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "events_total",
			Help:      "Events published by kind",
		}, []string{"kind"}),
		decodeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "decode_failures_total",
			Help:      "Notices that failed to decode by command",
		}, []string{"cmd"}),
		reconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "reconnects_total",
			Help:      "Reconnects scheduled by cause",
		}, []string{"cause"}),
		queueLength: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "queue_length",
			Help:      "Rooms waiting in the admission queue",
		}),
		viewers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "viewers",
			Help:      "Last viewer count reported by the room",
		}, []string{"room"}),
	}

	// every state shows up on the first scrape, even at zero
	for _, s := range live.States() {
		m.connections.WithLabelValues(s.String())
	}
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ConnectAttempt(event.Room) {
	m.connectAttempts.Inc()
}

func (m *Metrics) StateChanged(room event.Room, from, to live.State) {
	if from != live.StateInit {
		m.connections.WithLabelValues(from.String()).Dec()
	}
	m.connections.WithLabelValues(to.String()).Inc()
	if to == live.StateClosed {
		m.viewers.DeleteLabelValues(roomLabel(room))
	}
}

func (m *Metrics) Reconnect(_ event.Room, cause live.State) {
	m.reconnects.WithLabelValues(cause.String()).Inc()
}

func (m *Metrics) Viewers(room event.Room, n uint32) {
	m.viewers.WithLabelValues(roomLabel(room)).Set(float64(n))
}

func (m *Metrics) QueueLength(n int) {
	m.queueLength.Set(float64(n))
}

// DecodeFailure is meant for event.WithFailureHook.
func (m *Metrics) DecodeFailure(cmd event.Command) {
	label := string(cmd)
	if label == "" {
		label = "unknown"
	}
	m.decodeFailures.WithLabelValues(label).Inc()
}

// Sink counts every event before handing it to next.
func (m *Metrics) Sink(next event.Sink) event.Sink {
	return event.SinkFunc(func(ctx context.Context, e event.Event) error {
		m.events.WithLabelValues(string(e.Kind())).Inc()
		return next.Publish(ctx, e)
	})
}

func roomLabel(room event.Room) string {
	return strconv.FormatUint(room.RoomNumber, 10)
}
