package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kirillkom/lead-pipeline/internal/config"
	"github.com/kirillkom/lead-pipeline/internal/core/classifier"
	"github.com/kirillkom/lead-pipeline/internal/core/pipeline"
	"github.com/kirillkom/lead-pipeline/internal/core/policy"
	"github.com/kirillkom/lead-pipeline/internal/core/ports"
	"github.com/kirillkom/lead-pipeline/internal/core/usecase"
	"github.com/kirillkom/lead-pipeline/internal/core/workflow"
	"github.com/kirillkom/lead-pipeline/internal/infrastructure/billing"
	"github.com/kirillkom/lead-pipeline/internal/infrastructure/calendar"
	"github.com/kirillkom/lead-pipeline/internal/infrastructure/dedup"
	"github.com/kirillkom/lead-pipeline/internal/infrastructure/email/maildir"
	"github.com/kirillkom/lead-pipeline/internal/infrastructure/httpjson"
	"github.com/kirillkom/lead-pipeline/internal/infrastructure/queue/nats"
	"github.com/kirillkom/lead-pipeline/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/lead-pipeline/internal/infrastructure/resilience"
	"github.com/kirillkom/lead-pipeline/internal/observability/metrics"
)

const dedupPurgeInterval = time.Hour

type App struct {
	Config config.Config
	Policy policy.Policy

	Queue         *nats.Queue
	Pipeline      ports.PipelineReader
	IngestUC      ports.MessageIngestor
	Processor     ports.MessageProcessor
	Monitor       *usecase.InboxMonitor
	Resilience    *resilience.Executor
	WorkerMetrics *metrics.WorkerMetrics

	purger  *postgres.ProcessedMessageRepository
	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	pol, err := LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	workerMetrics := metrics.NewWorkerMetrics("worker")
	executor := resilience.NewExecutor(ResilienceConfig(cfg, func(adapter string, _, to resilience.BreakerState) {
		workerMetrics.SetBreakerState(adapter, string(to))
	}))

	queue, err := nats.NewWithOptions(cfg.NATSURL, nats.Options{
		InboundSubject:      cfg.NATSInboundSubject,
		NotificationSubject: cfg.NATSNotificationSubject,
		Stream:              cfg.NATSStream,
		Durable:             cfg.NATSDurable,
		AckWait:             cfg.NATSAckWait,
		MaxDeliver:          cfg.NATSMaxDeliver,
		NakDelay:            cfg.NATSNakDelay,
		ResilienceExecutor:  executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	cache, closeCache, purger, err := openDedup(ctx, cfg, db)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout}
	billingClient := billing.New(cfg.BillingURL, cfg.BillingAPIKey, cfg.BillingRateLimitRPS, httpjson.WithHTTPClient(httpClient))
	calendarClient := calendar.New(cfg.CalendarURL, cfg.CalendarAPIKey, cfg.CalendarID, httpjson.WithHTTPClient(httpClient))

	clock := ports.SystemClock{}
	store := pipeline.NewStateStore(postgres.NewPipelineRepository(db), nil, clock)

	orchestrator := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Leads:      postgres.NewLeadRepository(db),
		Tasks:      postgres.NewTaskRepository(db),
		Pipeline:   store,
		Dedup:      cache,
		Classifier: classifier.New(pol),
		Resolver:   workflow.NewResolver(pol.Workflows...),
		Billing:    billingClient,
		Calendar:   calendarClient,
		Notifier:   queue,
		Guard:      executor,
		Observer:   workerMetrics,
		Clock:      clock,
		Policy:     pol,
	})
	processor := workerMetrics.InstrumentProcessor(orchestrator)

	var monitor *usecase.InboxMonitor
	if cfg.InboxMonitorEnabled {
		mailbox, err := maildir.New(cfg.MaildirPath, cfg.MaxBodySize)
		if err != nil {
			closeCache()
			queue.Close()
			_ = db.Close()
			return nil, fmt.Errorf("open maildir: %w", err)
		}
		monitor = usecase.NewInboxMonitor(mailbox, cache, processor, executor, cfg.PollInterval, cfg.PollBatch)
	}

	return &App{
		Config: cfg,
		Policy: pol,

		Queue:         queue,
		Pipeline:      store,
		IngestUC:      usecase.NewIngestMessageUseCase(queue, clock),
		Processor:     processor,
		Monitor:       monitor,
		Resilience:    executor,
		WorkerMetrics: workerMetrics,

		purger: purger,
		closeFn: func() {
			closeCache()
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

// LoadPolicy returns the compiled-in policy, or the file at path merged over it.
func LoadPolicy(path string) (policy.Policy, error) {
	if path == "" {
		return policy.Default(), nil
	}
	pol, err := policy.LoadFile(path)
	if err != nil {
		return policy.Policy{}, fmt.Errorf("load policy %s: %w", path, err)
	}
	return pol, nil
}

func ResilienceConfig(cfg config.Config, onStateChange func(adapter string, from, to resilience.BreakerState)) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:        cfg.RetryMaxAttempts,
		RetryInitialBackoff:     cfg.RetryInitialBackoff,
		RetryMaxBackoff:         cfg.RetryMaxBackoff,
		RetryMultiplier:         cfg.RetryMultiplier,
		RetryablePatterns:       cfg.RetryablePatterns,
		BreakerEnabled:          cfg.BreakerEnabled,
		BreakerFailureThreshold: positiveUint32(cfg.BreakerFailureThreshold),
		BreakerSuccessThreshold: positiveUint32(cfg.BreakerSuccessThreshold),
		BreakerCallTimeout:      cfg.BreakerCallTimeout,
		BreakerResetTimeout:     cfg.BreakerResetTimeout,
		OnStateChange:           onStateChange,
	}
}

func openDedup(ctx context.Context, cfg config.Config, db *sql.DB) (ports.DedupCache, func(), *postgres.ProcessedMessageRepository, error) {
	switch cfg.DedupBackend {
	case "", "memory":
		return dedup.NewMemoryCache(cfg.DedupTTL, cfg.DedupMaxEntries), func() {}, nil, nil
	case "redis":
		client, err := dedup.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open redis: %w", err)
		}
		return dedup.NewRedisCache(client, cfg.DedupTTL), func() { _ = client.Close() }, nil, nil
	case "postgres":
		repo := postgres.NewProcessedMessageRepository(db)
		return repo, func() {}, repo, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown dedup backend %q", cfg.DedupBackend)
	}
}

// RunDedupPurge deletes expired processed-message rows until ctx is done.
// Only the postgres backend needs it; the others expire entries themselves.
func (a *App) RunDedupPurge(ctx context.Context) {
	if a.purger == nil {
		return
	}
	ticker := time.NewTicker(dedupPurgeInterval)
	defer ticker.Stop()
	for {
		removed, err := a.purger.PurgeBefore(ctx, time.Now().UTC().Add(-a.Config.DedupTTL))
		if err != nil {
			slog.Warn("dedup_purge_failed", "error", err)
		} else if removed > 0 {
			slog.Info("dedup_purged", "removed", removed)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func positiveUint32(v int) uint32 {
	if v <= 0 {
		return 0
	}
	return uint32(v)
}
