// Package metrics records delivery outcomes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Delivery outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeError  = "error"
	OutcomeRetry  = "retry"
	OutcomeEmpty  = "empty"
	OutcomeFailed = "failed"
)

// Recorder receives delivery events.
type Recorder interface {
	DeliveryFinished(outcome string, duration time.Duration)
	Requeued(delay time.Duration)
	Claimed(count int)
}

// Nop discards everything.
type Nop struct{}

func (Nop) DeliveryFinished(string, time.Duration) {}
func (Nop) Requeued(time.Duration)                 {}
func (Nop) Claimed(int)                            {}

type Config struct {
	Namespace string
	Buckets   []float64
}

// Prometheus is a Recorder backed by its own registry.
type Prometheus struct {
	registry   *prometheus.Registry
	deliveries *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	requeues   prometheus.Counter
	delay      prometheus.Histogram
	claimed    prometheus.Counter
}

func NewPrometheus(cfg Config) (*Prometheus, error) {
	if cfg.Namespace == "" {
		cfg.Namespace = "automate"
	}
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	m := &Prometheus{
		registry: prometheus.NewRegistry(),
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "deliveries_total",
				Help:      "Delivery attempts by outcome",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "delivery_duration_seconds",
				Help:      "Duration of one delivery attempt",
				Buckets:   buckets,
			},
			[]string{"outcome"},
		),
		requeues: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "requeues_total",
			Help:      "Deliveries rescheduled after a retry result",
		}),
		delay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "requeue_delay_seconds",
			Help:      "Delay requested by retry results",
			Buckets:   []float64{0, 1, 5, 15, 30, 60, 300, 900, 3600},
		}),
		claimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "submissions_claimed_total",
			Help:      "Queue submissions claimed by workers",
		}),
	}

	for _, c := range []prometheus.Collector{m.deliveries, m.duration, m.requeues, m.delay, m.claimed} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Prometheus) DeliveryFinished(outcome string, duration time.Duration) {
	m.deliveries.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *Prometheus) Requeued(delay time.Duration) {
	m.requeues.Inc()
	m.delay.Observe(delay.Seconds())
}

func (m *Prometheus) Claimed(count int) {
	if count > 0 {
		m.claimed.Add(float64(count))
	}
}

func (m *Prometheus) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
