package qnetsim

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the Prometheus metrics of simulation batches.  A nil
// *Collector is valid and records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	Requests       *prometheus.CounterVec
	Attempts       prometheus.Histogram
	PairsUsed      prometheus.Counter
	Replenishments prometheus.Counter
	Runs           prometheus.Counter
	RunDurations   prometheus.Histogram
	ActiveWorkers  prometheus.Gauge
}

// NewCollector registers the simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qnetsim_requests_total",
		Help: "Communication requests simulated, labeled by outcome.",
	}, []string{"outcome"}), "qnetsim_requests_total")
	if err != nil {
		return nil, err
	}
	attempts, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "qnetsim_request_failed_attempts",
		Help:    "Failed swapping attempts per request.",
		Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
	}), "qnetsim_request_failed_attempts")
	if err != nil {
		return nil, err
	}
	pairs, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "qnetsim_pairs_used_total",
		Help: "Entangled pairs used by completed runs.",
	}), "qnetsim_pairs_used_total")
	if err != nil {
		return nil, err
	}
	replenishments, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "qnetsim_replenishments_total",
		Help: "Periodic replenishments of the physical edges.",
	}), "qnetsim_replenishments_total")
	if err != nil {
		return nil, err
	}
	runs, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "qnetsim_runs_total",
		Help: "Simulation runs completed.",
	}), "qnetsim_runs_total")
	if err != nil {
		return nil, err
	}
	durations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "qnetsim_run_duration_seconds",
		Help:    "Wall clock duration of one simulation run.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}), "qnetsim_run_duration_seconds")
	if err != nil {
		return nil, err
	}
	workers, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "qnetsim_active_workers",
		Help: "Workers currently executing their share of a batch.",
	}), "qnetsim_active_workers")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:       gatherer,
		Requests:       requests,
		Attempts:       attempts,
		PairsUsed:      pairs,
		Replenishments: replenishments,
		Runs:           runs,
		RunDurations:   durations,
		ActiveWorkers:  workers,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveRequest records the outcome of one request
func (c *Collector) ObserveRequest(result SwapResult, attempts int) {
	if c == nil {
		return
	}
	c.Requests.WithLabelValues(result.String()).Inc()
	c.Attempts.Observe(float64(attempts))
}

// ObserveReplenish records one periodic replenishment
func (c *Collector) ObserveReplenish() {
	if c == nil {
		return
	}
	c.Replenishments.Inc()
}

// ObserveRun records a completed run
func (c *Collector) ObserveRun(usedPairs int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Runs.Inc()
	c.PairsUsed.Add(float64(usedPairs))
	c.RunDurations.Observe(elapsed.Seconds())
}

// WorkerStarted and WorkerDone track the workers of a batch
func (c *Collector) WorkerStarted() {
	if c == nil {
		return
	}
	c.ActiveWorkers.Inc()
}

func (c *Collector) WorkerDone() {
	if c == nil {
		return
	}
	c.ActiveWorkers.Dec()
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

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
