package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kirillkom/lead-pipeline/internal/bootstrap"
	"github.com/kirillkom/lead-pipeline/internal/config"
	"github.com/kirillkom/lead-pipeline/internal/core/usecase"
	"github.com/kirillkom/lead-pipeline/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           app.WorkerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.RunDedupPurge(ctx)
	}()

	if app.Monitor != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slog.Info("inbox_monitor_started", "path", cfg.MaildirPath, "interval", cfg.PollInterval.String())
			if err := app.Monitor.Run(ctx); err != nil {
				slog.Error("inbox_monitor_failed", "error", err)
			}
		}()
	}

	slog.Info("worker_subscribed", "subject", cfg.NATSInboundSubject)
	if err := usecase.ConsumeInbound(ctx, app.Queue, app.Processor); err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		stop()
	}

	wg.Wait()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
