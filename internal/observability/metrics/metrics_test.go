package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
)

type processorStub struct {
	inFlight func() float64
	seen     float64
}

func (p *processorStub) Process(context.Context, domain.InboundMessage) (*domain.WorkflowResult, error) {
	p.seen = p.inFlight()
	return &domain.WorkflowResult{Success: true}, nil
}

func TestWorkerMetricsObserveProcessing(t *testing.T) {
	m := NewWorkerMetrics("worker")

	m.ObserveProcessed("processed", 20*time.Millisecond)
	m.ObserveProcessed("processed", 30*time.Millisecond)
	m.ObserveStepFailure("task:Call lead", "internal")
	m.ObserveStepFailure("task:Send offer", "internal")
	m.ObserveStepFailure("calendar_followup", "service_unavailable")

	if got := testutil.ToFloat64(m.processTotal.WithLabelValues("worker", "processed")); got != 2 {
		t.Fatalf("expected 2 processed, got %v", got)
	}
	if got := testutil.ToFloat64(m.stepFailures.WithLabelValues("worker", "task", "internal")); got != 2 {
		t.Fatalf("expected task failures folded into one series, got %v", got)
	}
	if got := testutil.ToFloat64(m.stepFailures.WithLabelValues("worker", "calendar_followup", "service_unavailable")); got != 1 {
		t.Fatalf("expected calendar failure, got %v", got)
	}
}

func TestWorkerMetricsBreakerState(t *testing.T) {
	m := NewWorkerMetrics("worker")

	m.SetBreakerState("billing", "open")
	if got := testutil.ToFloat64(m.breakerState.WithLabelValues("worker", "billing")); got != 2 {
		t.Fatalf("expected open=2, got %v", got)
	}
	m.SetBreakerState("billing", "half_open")
	if got := testutil.ToFloat64(m.breakerState.WithLabelValues("worker", "billing")); got != 1 {
		t.Fatalf("expected half_open=1, got %v", got)
	}
	m.SetBreakerState("billing", "bogus")
	if got := testutil.ToFloat64(m.breakerState.WithLabelValues("worker", "billing")); got != 1 {
		t.Fatalf("unknown state must be ignored, got %v", got)
	}
}

func TestInstrumentProcessorTracksInFlight(t *testing.T) {
	m := NewWorkerMetrics("worker")
	stub := &processorStub{inFlight: func() float64 { return testutil.ToFloat64(m.processInFlight) }}

	if _, err := m.InstrumentProcessor(stub).Process(context.Background(), domain.InboundMessage{ID: "m1"}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if stub.seen != 1 {
		t.Fatalf("expected 1 in flight during processing, got %v", stub.seen)
	}
	if got := testutil.ToFloat64(m.processInFlight); got != 0 {
		t.Fatalf("expected 0 in flight after processing, got %v", got)
	}
}

func TestHTTPMiddlewareNormalizesPipelinePath(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/pipeline/thread-1", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/pipeline/thread-2", nil))

	got := testutil.ToFloat64(m.requestTotal.WithLabelValues("api", http.MethodGet, "/v1/pipeline/{thread_key}", "404"))
	if got != 2 {
		t.Fatalf("expected 2 requests on normalized path, got %v", got)
	}

	m.RecordWebhook("api", "accepted")
	if got := testutil.ToFloat64(m.webhookTotal.WithLabelValues("api", "accepted")); got != 1 {
		t.Fatalf("expected 1 accepted webhook, got %v", got)
	}
}

func TestHTTPMiddlewareRecordsImplicitOK(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Body.String() != "ok" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
	if got := testutil.ToFloat64(m.requestTotal.WithLabelValues("api", http.MethodGet, "/healthz", "200")); got != 1 {
		t.Fatalf("expected implicit 200 to be recorded, got %v", got)
	}
}
