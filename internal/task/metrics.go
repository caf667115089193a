package task

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/phrazzld/proverd/internal/domain"
	"github.com/phrazzld/proverd/internal/events"
	prom "github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "proverd"

// Metrics exports runner state to Prometheus.
type Metrics struct {
	submissions      *prom.CounterVec
	finished         *prom.CounterVec
	executionSeconds *prom.HistogramVec
	recovered        prom.Counter
}

var _ events.EventHandler = (*Metrics)(nil)

// NewMetrics creates and registers the runner collectors. depth reports the
// current queue depth at scrape time. A nil reg uses the default registerer.
func NewMetrics(reg prom.Registerer, depth func() int) (*Metrics, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}

	submissions := prom.NewCounterVec(prom.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "task_submissions_total",
		Help:      "Task submissions by admission outcome.",
	}, []string{"outcome"})
	finished := prom.NewCounterVec(prom.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "tasks_finished_total",
		Help:      "Tasks that reached a terminal status.",
	}, []string{"prover", "status"})
	executionSeconds := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "task_execution_seconds",
		Help:      "Prover execution time in seconds.",
		Buckets:   prom.ExponentialBuckets(0.5, 2, 12),
	}, []string{"prover"})
	recovered := prom.NewCounter(prom.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "tasks_recovered_total",
		Help:      "Tasks requeued by startup recovery.",
	})
	queueDepth := prom.NewGaugeFunc(prom.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "queue_depth",
		Help:      "Descriptors waiting in the work queue.",
	}, func() float64 { return float64(depth()) })

	var err error
	if submissions, err = registerCollector(reg, submissions); err != nil {
		return nil, err
	}
	if finished, err = registerCollector(reg, finished); err != nil {
		return nil, err
	}
	if executionSeconds, err = registerCollector(reg, executionSeconds); err != nil {
		return nil, err
	}
	if recovered, err = registerCollector(reg, recovered); err != nil {
		return nil, err
	}
	if _, err = registerCollector[prom.Collector](reg, queueDepth); err != nil {
		return nil, err
	}

	return &Metrics{
		submissions:      submissions,
		finished:         finished,
		executionSeconds: executionSeconds,
		recovered:        recovered,
	}, nil
}

// RecordSubmission counts an admission decision: "accepted" or "rejected".
func (m *Metrics) RecordSubmission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

// RecordRecovered counts tasks requeued at startup.
func (m *Metrics) RecordRecovered(n int) {
	if m == nil {
		return
	}
	m.recovered.Add(float64(n))
}

// HandleEvent records the outcome and duration of a completed task.
func (m *Metrics) HandleEvent(ctx context.Context, event *events.TaskEvent) error {
	if m == nil || event.Type != events.TypeTaskCompleted {
		return nil
	}

	var task domain.Task
	if err := event.UnmarshalPayload(&task); err != nil {
		return fmt.Errorf("failed to decode task snapshot: %w", err)
	}

	m.finished.WithLabelValues(task.Prover, string(task.Status)).Inc()
	if seconds, err := strconv.ParseFloat(task.Elapsed, 64); err == nil {
		m.executionSeconds.WithLabelValues(task.Prover).Observe(seconds)
	}
	return nil
}

// registerCollector registers collector, reusing an identical collector that
// is already registered.
func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
