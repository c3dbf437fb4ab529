package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
	"github.com/kirillkom/lead-pipeline/internal/core/ports"
)

var breakerStateValues = map[string]float64{
	"closed":    0,
	"half_open": 1,
	"open":      2,
}

// WorkerMetrics implements ports.PipelineObserver for the worker process.
type WorkerMetrics struct {
	service  string
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	stepFailures    *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leads",
			Subsystem: "worker",
			Name:      "messages_processed_total",
			Help:      "Total processed inbound messages by outcome.",
		},
		[]string{"service", "outcome"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "leads",
			Subsystem: "worker",
			Name:      "message_process_duration_seconds",
			Help:      "Inbound message processing duration in seconds by outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "outcome"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "leads",
			Subsystem: "worker",
			Name:      "messages_in_flight",
			Help:      "Number of inbound messages being processed.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	stepFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leads",
			Subsystem: "worker",
			Name:      "step_failures_total",
			Help:      "Non-fatal workflow step failures by step and error kind.",
		},
		[]string{"service", "step", "kind"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "leads",
			Subsystem: "resilience",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per adapter (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service", "adapter"},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, stepFailures, breakerState)

	return &WorkerMetrics{
		service:         service,
		registry:        registry,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		stepFailures:    stepFailures,
		breakerState:    breakerState,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) ObserveProcessed(outcome string, duration time.Duration) {
	m.processTotal.WithLabelValues(m.service, outcome).Inc()
	m.processDuration.WithLabelValues(m.service, outcome).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveStepFailure(step, kind string) {
	m.stepFailures.WithLabelValues(m.service, normalizeStep(step), kind).Inc()
}

// SetBreakerState records a breaker transition; unknown states are ignored.
func (m *WorkerMetrics) SetBreakerState(adapter, state string) {
	value, ok := breakerStateValues[state]
	if !ok {
		return
	}
	m.breakerState.WithLabelValues(m.service, adapter).Set(value)
}

// InstrumentProcessor tracks in-flight messages around processor.
func (m *WorkerMetrics) InstrumentProcessor(processor ports.MessageProcessor) ports.MessageProcessor {
	return instrumentedProcessor{next: processor, inFlight: m.processInFlight}
}

type instrumentedProcessor struct {
	next     ports.MessageProcessor
	inFlight prometheus.Gauge
}

func (p instrumentedProcessor) Process(ctx context.Context, msg domain.InboundMessage) (*domain.WorkflowResult, error) {
	p.inFlight.Inc()
	defer p.inFlight.Dec()
	return p.next.Process(ctx, msg)
}

// normalizeStep folds per-task step names so label cardinality stays bounded.
func normalizeStep(step string) string {
	if strings.HasPrefix(step, "task:") {
		return "task"
	}
	return step
}
