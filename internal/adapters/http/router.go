package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/lead-pipeline/internal/config"
	"github.com/kirillkom/lead-pipeline/internal/core/domain"
	"github.com/kirillkom/lead-pipeline/internal/core/ports"
	"github.com/kirillkom/lead-pipeline/internal/observability/metrics"
)

const (
	serviceName        = "api"
	backpressureWait   = 100 * time.Millisecond
	defaultMaxInFlight = 64
)

type Router struct {
	ingest   ports.MessageIngestor
	pipeline ports.PipelineReader
	metrics  *metrics.HTTPServerMetrics

	webhookSecret  []byte
	webhookLimiter *rate.Limiter
	maxInFlight    int
}

func NewRouter(
	cfg config.Config,
	ingest ports.MessageIngestor,
	pipeline ports.PipelineReader,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	var limiter *rate.Limiter
	if cfg.WebhookRateLimitRPS > 0 {
		burst := cfg.WebhookRateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.WebhookRateLimitRPS), burst)
	}
	maxInFlight := cfg.APIMaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}
	return &Router{
		ingest:         ingest,
		pipeline:       pipeline,
		metrics:        httpMetrics,
		webhookSecret:  []byte(cfg.WebhookSecret),
		webhookLimiter: limiter,
		maxInFlight:    maxInFlight,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.Handle("POST /v1/webhooks/inbound", rateLimitMiddleware(rt.webhookLimiter, func() {
		rt.recordWebhook("rate_limited")
	}, http.HandlerFunc(rt.inboundWebhook)))
	mux.HandleFunc("GET /v1/pipeline/{threadKey}", rt.getPipelineState)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	handler := backpressureMiddleware(mux, rt.maxInFlight, backpressureWait)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type pipelineResponse struct {
	State   *domain.PipelineState `json:"state"`
	History []domain.Transition   `json:"history"`
}

func (rt *Router) getPipelineState(w http.ResponseWriter, r *http.Request) {
	threadKey := strings.TrimSpace(r.PathValue("threadKey"))
	if threadKey == "" {
		writeError(w, http.StatusBadRequest, errors.New("thread key is required"))
		return
	}

	state, err := rt.pipeline.Get(r.Context(), threadKey)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err)
		return
	}
	history, err := rt.pipeline.History(r.Context(), threadKey)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err)
		return
	}
	if history == nil {
		history = []domain.Transition{}
	}
	writeJSON(w, http.StatusOK, pipelineResponse{State: state, History: history})
}

func (rt *Router) recordWebhook(outcome string) {
	if rt.metrics != nil {
		rt.metrics.RecordWebhook(serviceName, outcome)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil && status < http.StatusInternalServerError {
		message = err.Error()
	}
	writeJSON(w, status, map[string]string{"error": message})
}
