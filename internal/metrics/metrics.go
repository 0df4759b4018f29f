// Package metrics exposes pipeline and ingestion counters to Prometheus.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/aevon-lab/matview/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "matview"

// Ingestion results.
const (
	IngestAccepted  = "accepted"
	IngestDuplicate = "duplicate"
	IngestInvalid   = "invalid"
	IngestError     = "error"
)

// Collector is a prometheus.Collector for the pipeline. It also implements
// pipeline.Observer so the coordinator can report to it directly.
type Collector struct {
	batches            *prometheus.CounterVec
	records            *prometheus.CounterVec
	conflicts          *prometheus.CounterVec
	deadLetters        *prometheus.CounterVec
	checkpoint         *prometheus.GaugeVec
	workerState        *prometheus.GaugeVec
	fetchFailures      *prometheus.CounterVec
	checkpointFailures *prometheus.CounterVec
	batchDuration      prometheus.Histogram
	ingested           *prometheus.CounterVec
}

var _ pipeline.Observer = (*Collector)(nil)

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "batches_total",
				Help:      "Batches finished per partition, by outcome.",
			}, []string{"partition", "outcome"},
		),
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "records_processed_total",
				Help:      "Change records processed per partition, by kind (eligible, ignored, poison).",
			}, []string{"partition", "kind"},
		),
		conflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "write_conflicts_total",
				Help:      "View row compare-and-swap conflicts that were retried.",
			}, []string{"partition"},
		),
		deadLetters: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "dead_letters_total",
				Help:      "Keys and copies given up on after exhausting batch attempts.",
			}, []string{"partition"},
		),
		checkpoint: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "checkpoint_token",
				Help:      "Last committed sequence token per partition.",
			}, []string{"partition"},
		),
		workerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "worker_state",
				Help:      "1 for the state each partition worker is currently in.",
			}, []string{"partition", "state"},
		),
		fetchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "fetch_failures_total",
				Help:      "Failed pulls from the change source.",
			}, []string{"partition"},
		),
		checkpointFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "checkpoint_failures_total",
				Help:      "Failed checkpoint reads and writes.",
			}, []string{"partition"},
		),
		batchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "batch_duration_seconds",
				Help:      "Time from fold to checkpoint for one batch.",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
		),
		ingested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "records_ingested_total",
				Help:      "Change records received over HTTP, by result.",
			}, []string{"result"},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.batches.Describe(ch)
	c.records.Describe(ch)
	c.conflicts.Describe(ch)
	c.deadLetters.Describe(ch)
	c.checkpoint.Describe(ch)
	c.workerState.Describe(ch)
	c.fetchFailures.Describe(ch)
	c.checkpointFailures.Describe(ch)
	c.batchDuration.Describe(ch)
	c.ingested.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.batches.Collect(ch)
	c.records.Collect(ch)
	c.conflicts.Collect(ch)
	c.deadLetters.Collect(ch)
	c.checkpoint.Collect(ch)
	c.workerState.Collect(ch)
	c.fetchFailures.Collect(ch)
	c.checkpointFailures.Collect(ch)
	c.batchDuration.Collect(ch)
	c.ingested.Collect(ch)
}

// StateChanged implements pipeline.Observer.
func (c *Collector) StateChanged(partitionID int, from, to pipeline.State) {
	p := strconv.Itoa(partitionID)
	c.workerState.WithLabelValues(p, from.String()).Set(0)
	c.workerState.WithLabelValues(p, to.String()).Set(1)
}

// BatchFinished implements pipeline.Observer.
func (c *Collector) BatchFinished(r pipeline.BatchReport) {
	p := strconv.Itoa(r.PartitionID)

	outcome := "committed"
	if !r.Committed {
		outcome = "abandoned"
	}
	c.batches.WithLabelValues(p, outcome).Inc()
	if !r.Committed {
		return
	}

	c.records.WithLabelValues(p, "eligible").Add(float64(r.Eligible))
	c.records.WithLabelValues(p, "ignored").Add(float64(r.Ignored))
	c.records.WithLabelValues(p, "poison").Add(float64(r.Poison))
	c.conflicts.WithLabelValues(p).Add(float64(r.Conflicts))
	c.deadLetters.WithLabelValues(p).Add(float64(r.DeadLettered + r.Poison))
	if r.CheckpointAdvanced {
		c.checkpoint.WithLabelValues(p).Set(float64(r.LastToken))
	}
	c.batchDuration.Observe(r.Duration.Seconds())
}

// FetchFailed implements pipeline.Observer.
func (c *Collector) FetchFailed(partitionID int, _ error) {
	c.fetchFailures.WithLabelValues(strconv.Itoa(partitionID)).Inc()
}

// CheckpointFailed implements pipeline.Observer.
func (c *Collector) CheckpointFailed(partitionID int, _ error) {
	c.checkpointFailures.WithLabelValues(strconv.Itoa(partitionID)).Inc()
}

// RecordIngested counts one ingestion request by result.
func (c *Collector) RecordIngested(result string) {
	c.ingested.WithLabelValues(result).Inc()
}

// NewRegistry returns a registry holding c plus the Go and process collectors.
func NewRegistry(c *Collector) (*prometheus.Registry, error) {
	r := prometheus.NewRegistry()
	for _, col := range []prometheus.Collector{
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := r.Register(col); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return r, nil
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
