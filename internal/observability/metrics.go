// Package observability wires Prometheus metrics and OpenTelemetry tracing
// into ensemble runs.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// DriverCollector bundles the Prometheus metrics recorded by the ensemble
// drivers.
type DriverCollector struct {
	gatherer prometheus.Gatherer

	Batches       *prometheus.CounterVec
	Trajectories  prometheus.Counter
	BatchDuration *prometheus.HistogramVec
	ActiveWorkers prometheus.Gauge
}

// NewDriverCollector registers driver metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewDriverCollector(reg prometheus.Registerer) (*DriverCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	batches, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qclab_batches_total",
		Help: "Total number of integrated batches, labeled by outcome.",
	}, []string{"status"}), "qclab_batches_total")
	if err != nil {
		return nil, err
	}

	trajectories, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "qclab_trajectories_total",
		Help: "Total number of trajectories integrated successfully.",
	}), "qclab_trajectories_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "qclab_batch_duration_seconds",
		Help:    "Wall time to integrate one batch, in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	}, []string{"rank"}), "qclab_batch_duration_seconds")
	if err != nil {
		return nil, err
	}

	workers, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "qclab_active_workers",
		Help: "Number of ranks currently integrating batches.",
	}), "qclab_active_workers")
	if err != nil {
		return nil, err
	}

	return &DriverCollector{
		gatherer:      gatherer,
		Batches:       batches,
		Trajectories:  trajectories,
		BatchDuration: durations,
		ActiveWorkers: workers,
	}, nil
}

// BatchDone records the outcome of one batch of size trajectories.
func (c *DriverCollector) BatchDone(rank, size int, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	c.Batches.WithLabelValues(status).Inc()
	c.BatchDuration.WithLabelValues(fmt.Sprint(rank)).Observe(elapsed.Seconds())
	if err == nil {
		c.Trajectories.Add(float64(size))
	}
}

// WorkerStarted and WorkerStopped track ranks inside their integration loop.
func (c *DriverCollector) WorkerStarted() {
	if c != nil {
		c.ActiveWorkers.Inc()
	}
}

func (c *DriverCollector) WorkerStopped() {
	if c != nil {
		c.ActiveWorkers.Dec()
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *DriverCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return c, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, g prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return g, nil
}
