// Package metrics holds feedwatch's Prometheus instruments.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"feedwatch/internal/domain"
	"feedwatch/internal/notifier"
	"feedwatch/internal/poller"
)

const namespace = "feedwatch"

// Metrics groups all instruments. Registered once at startup via New.
type Metrics struct {
	Fetches       prometheus.Counter
	FetchFailures *prometheus.CounterVec
	FullPages     prometheus.Counter
	ItemsEmitted  prometheus.Counter
	ItemsFiltered prometheus.Counter

	QueueDepth   prometheus.Gauge
	Flushes      *prometheus.CounterVec
	ItemsDropped prometheus.Counter
	BatchSize    prometheus.Histogram
	SendLatency  *prometheus.HistogramVec
}

// New registers every instrument with reg. A custom registry keeps tests
// isolated from the process-wide default.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Fetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Feed page requests, bootstrap included.",
		}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Failed feed page requests by error class.",
		}, []string{"class"}),
		FullPages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "full_pages_total",
			Help:      "Incremental fetches that returned a full page; items may have been missed.",
		}),
		ItemsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_emitted_total",
			Help:      "New items that passed the title filter.",
		}),
		ItemsFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_filtered_total",
			Help:      "New items rejected by the title filter.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Items waiting for the next flush.",
		}),
		Flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Batch flushes by transport and result.",
		}, []string{"transport", "result"}),
		ItemsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_dropped_total",
			Help:      "Items lost because their batch failed to send.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Items per flushed batch.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 200, 500},
		}),
		SendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_seconds",
			Help:      "Time spent handing a batch to the transport.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"transport"}),
	}

	reg.MustRegister(
		m.Fetches,
		m.FetchFailures,
		m.FullPages,
		m.ItemsEmitted,
		m.ItemsFiltered,
		m.QueueDepth,
		m.Flushes,
		m.ItemsDropped,
		m.BatchSize,
		m.SendLatency,
	)
	return m
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// PollerHooks adapts the instruments to poller.Hooks.
func (m *Metrics) PollerHooks() poller.Hooks {
	return poller.Hooks{
		OnFetch: func(_ string, _ int, err error) {
			m.Fetches.Inc()
			if err != nil {
				m.FetchFailures.WithLabelValues(errorClass(err)).Inc()
			}
		},
		OnFullPage: func(string) { m.FullPages.Inc() },
		OnEmit:     func(domain.Item) { m.ItemsEmitted.Inc() },
		OnFiltered: func(domain.Item) { m.ItemsFiltered.Inc() },
	}
}

// BatcherHooks adapts the instruments to notifier.Hooks.
func (m *Metrics) BatcherHooks() notifier.Hooks {
	return notifier.Hooks{
		OnEnqueue: func(depth int) { m.QueueDepth.Set(float64(depth)) },
		OnFlush: func(d notifier.Delivery, depth int) {
			m.QueueDepth.Set(float64(depth))
			result := "sent"
			if !d.OK() {
				result = "failed"
				m.ItemsDropped.Add(float64(d.Items))
			}
			m.Flushes.WithLabelValues(d.Transport, result).Inc()
			m.BatchSize.Observe(float64(d.Items))
			m.SendLatency.WithLabelValues(d.Transport).Observe(d.Took.Seconds())
		},
	}
}

func errorClass(err error) string {
	switch {
	case errors.Is(err, domain.ErrNetwork):
		return "network"
	case errors.Is(err, domain.ErrParse):
		return "parse"
	case errors.Is(err, domain.ErrConfiguration):
		return "config"
	default:
		return "other"
	}
}
