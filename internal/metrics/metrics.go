package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cqa"

// Metrics is safe to use through a nil pointer, every call is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	buildsCreated   prometheus.Counter
	buildsFinished  *prometheus.CounterVec
	proxiedRequests prometheus.Counter
	teardowns       prometheus.Counter
	stepDuration    *prometheus.HistogramVec
	watchers        prometheus.GaugeFunc
	droppedEvents   prometheus.CounterFunc
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		buildsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builds_created_total",
			Help:      "Builds created by the gateway.",
		}),
		buildsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builds_finished_total",
			Help:      "Builds that reached a final status.",
		}, []string{"status"}),
		proxiedRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxied_requests_total",
			Help:      "Requests forwarded to running stacks.",
		}),
		teardowns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "teardowns_total",
			Help:      "Idle stacks stopped.",
		}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "steps_duration_seconds",
			Help:      "Duration of pipeline steps.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"step"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.buildsCreated,
		m.buildsFinished,
		m.proxiedRequests,
		m.teardowns,
		m.stepDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) BuildCreated() {
	if m != nil {
		m.buildsCreated.Inc()
	}
}

func (m *Metrics) BuildFinished(status string) {
	if m != nil {
		m.buildsFinished.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) RequestProxied() {
	if m != nil {
		m.proxiedRequests.Inc()
	}
}

func (m *Metrics) StackTornDown() {
	if m != nil {
		m.teardowns.Inc()
	}
}

func (m *Metrics) StepFinished(step string, elapsed time.Duration) {
	if m != nil {
		m.stepDuration.WithLabelValues(step).Observe(elapsed.Seconds())
	}
}

// ObserveWatchers exports the state of the build progress watchers.
func (m *Metrics) ObserveWatchers(active, dropped func() float64) {
	if m == nil {
		return
	}
	m.watchers = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "event_watchers",
		Help:      "Clients following the progress of a build.",
	}, active)
	m.droppedEvents = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dropped_total",
		Help:      "Progress events dropped for slow watchers.",
	}, dropped)
	m.registry.MustRegister(m.watchers, m.droppedEvents)
}
