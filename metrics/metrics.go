// Package metrics exposes run progress as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"manifold_lib/stats"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Collector owns a private registry with the run's metrics.
type Collector struct {
	registry *prometheus.Registry

	statistic     *prometheus.GaugeVec
	batches       prometheus.Counter
	epoch         prometheus.Gauge
	attackSeconds *prometheus.HistogramVec
}

// New registers all metrics on a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		statistic: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: "manifold", Subsystem: "training", Name: "statistic", Help: "Latest recorded value per statistics table and column."},
			[]string{"table", "column"},
		),
		batches: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: "manifold", Subsystem: "training", Name: "batches_total", Help: "Training batches processed."},
		),
		epoch: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: "manifold", Subsystem: "training", Name: "epoch", Help: "Completed epochs."},
		),
		attackSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: "manifold", Subsystem: "attack", Name: "duration_seconds", Help: "Wall time of one batch attack.", Buckets: prometheus.DefBuckets},
			[]string{"attack"},
		),
	}
	c.registry.MustRegister(c.statistic, c.batches, c.epoch, c.attackSeconds)
	return c
}

// ObserveRow publishes a freshly appended table row.
func (c *Collector) ObserveRow(table string, values []float64) {
	for i, v := range values {
		c.statistic.WithLabelValues(table, stats.Column(i).String()).Set(v)
	}
}

// BatchDone counts one training batch.
func (c *Collector) BatchDone() { c.batches.Inc() }

// EpochDone records the number of completed epochs.
func (c *Collector) EpochDone(epochs int) { c.epoch.Set(float64(epochs)) }

// ObserveAttack records the duration of one attack run, "pixel" or "decoder".
func (c *Collector) ObserveAttack(kind string, d time.Duration) {
	c.attackSeconds.WithLabelValues(kind).Observe(d.Seconds())
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr string, log logrus.FieldLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.WithField("addr", addr).Info("serving metrics")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
