package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mdrelay/internal/application/port"
	"mdrelay/internal/domain/model"
)

const namespace = "mdrelay"

// Relay 实现 port.Metrics，collector 注册在独立的 Registry 上
type Relay struct {
	Registry *prometheus.Registry

	frames        *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	duplicates    prometheus.Counter
	fallbacks     prometheus.Counter
	subscriptions prometheus.Gauge
	connState     prometheus.Gauge
	flushed       prometheus.Counter
}

func New() *Relay {
	m := &Relay{
		Registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "frames_total",
				Help:      "Subscription frames sent upstream by type.",
			},
			[]string{"kind"},
		),
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "viewer",
				Name:      "deliveries_total",
				Help:      "Viewer deliveries by topic and outcome.",
			},
			[]string{"topic", "delivered"},
		),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "duplicates_total",
			Help:      "Trades dropped by the dedupe window.",
		}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "fallbacks_total",
			Help:      "Pool resolutions that fell back to the asset address.",
		}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "active_subscriptions",
			Help:      "Assets with at least one interested viewer.",
		}),
		connState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "connection_state",
			Help:      "0=disconnected 1=connecting 2=open 3=closing.",
		}),
		flushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recorder",
			Name:      "flushed_quotes_total",
			Help:      "Latest quotes written to the repository.",
		}),
	}

	m.Registry.MustRegister(
		m.frames,
		m.deliveries,
		m.duplicates,
		m.fallbacks,
		m.subscriptions,
		m.connState,
		m.flushed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Relay) UpstreamFrame(kind string) { m.frames.WithLabelValues(kind).Inc() }

func (m *Relay) Delivery(topic port.Topic, delivered bool) {
	m.deliveries.WithLabelValues(topic.String(), strconv.FormatBool(delivered)).Inc()
}

func (m *Relay) DuplicateTrade() { m.duplicates.Inc() }

func (m *Relay) ResolveFallback() { m.fallbacks.Inc() }

func (m *Relay) ActiveSubscriptions(n int) { m.subscriptions.Set(float64(n)) }

// ConnState 可直接注册为 feed.Connection 的状态回调
func (m *Relay) ConnState(s model.ConnState) { m.connState.Set(float64(s)) }

func (m *Relay) QuotesFlushed(n int) { m.flushed.Add(float64(n)) }

// Handler /metrics
func (m *Relay) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

var _ port.Metrics = (*Relay)(nil)
