package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/auditkit/webaudit/internal/progress"
)

// PrometheusSink exports batch analysis metrics. It owns all collectors for
// batches started/completed/running and per-chunk outcome counters.
type PrometheusSink struct {
	batchesStarted   prometheus.Counter
	batchesCompleted *prometheus.CounterVec
	batchesRunning   prometheus.Gauge
	batchRuntime     *prometheus.HistogramVec

	chunksCompleted *prometheus.CounterVec
	chunkDuration   prometheus.Histogram
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		batchesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webaudit_batches_started_total",
			Help: "Total analysis batches that have started.",
		}),
		batchesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webaudit_batches_completed_total",
			Help: "Total analysis batches completed partitioned by result.",
		}, []string{"result"}),
		batchesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "webaudit_batches_running",
			Help: "Current number of running analysis batches.",
		}),
		batchRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "webaudit_batch_runtime_seconds",
			Help:    "Wall time per completed batch.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"result"}),
		chunksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webaudit_chunks_completed_total",
			Help: "Chunk completions partitioned by outcome.",
		}, []string{"outcome"}),
		chunkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "webaudit_chunk_duration_seconds",
			Help:    "Processing time per chunk.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 180},
		}),
	}

	collectors := []prometheus.Collector{
		s.batchesStarted, s.batchesCompleted, s.batchesRunning,
		s.batchRuntime, s.chunksCompleted, s.chunkDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates metrics for each event in the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageBatchStart:
			s.batchesStarted.Inc()
			s.batchesRunning.Inc()
		case progress.StageChunkDone:
			outcome := "success"
			if !evt.Success {
				outcome = string(evt.ErrorKind)
				if outcome == "" {
					outcome = "failure"
				}
			}
			s.chunksCompleted.WithLabelValues(outcome).Inc()
			s.chunkDuration.Observe(evt.Dur.Seconds())
		case progress.StageBatchDone:
			s.batchesRunning.Dec()
			result := "completed"
			if evt.Cancelled {
				result = "cancelled"
			}
			s.batchesCompleted.WithLabelValues(result).Inc()
			s.batchRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
		}
	}
	return nil
}

// Close implements the Sink interface; collectors stay registered.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
