package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mailgate/internal/alert"
	"mailgate/internal/api"
	"mailgate/internal/config"
	"mailgate/internal/db"
	"mailgate/internal/dedup"
	"mailgate/internal/dispatch"
	"mailgate/internal/governor"
	"mailgate/internal/metrics"
	"mailgate/internal/orchestrator"
	"mailgate/internal/transport"
	"mailgate/internal/worker"
)

func main() {

	// ------------------------------------------------
	// Logger
	// ------------------------------------------------
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// ------------------------------------------------
	// Config
	// ------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ------------------------------------------------
	// Root Context + Shutdown
	// ------------------------------------------------
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	// ------------------------------------------------
	// Database
	// ------------------------------------------------
	store, err := db.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer store.Close()

	// ------------------------------------------------
	// Metrics
	// ------------------------------------------------
	metrics.Init()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metricsMux,
	}

	go func() {
		logger.Info("metrics server started", zap.String("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("metrics server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Transport
	// ------------------------------------------------
	var sender transport.Transport
	switch cfg.Transport {
	case "resend":
		sender = transport.NewResend(cfg.ResendAPIKey)
	default:
		sender = transport.NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
	}

	// ------------------------------------------------
	// Sending pipeline
	// ------------------------------------------------
	alertSender := cfg.OperatorEmail
	if len(cfg.AllowedSenders) > 0 {
		alertSender = cfg.AllowedSenders[0]
	}
	alerter := alert.New(sender, alertSender, cfg.OperatorEmail, logger)

	gov, err := governor.New(store, alerter, cfg.PerMinuteQuota, cfg.PerHourQuota, cfg.WarnThreshold, logger)
	if err != nil {
		logger.Fatal("invalid service limit config", zap.Error(err))
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)

	dispatcher := dispatch.New(
		sender,
		limiter,
		cfg.RetryAttempts,
		time.Duration(cfg.RetryDelaySec)*time.Second,
		logger,
	)

	dedupe := dedup.New(store, logger)

	orch := orchestrator.New(gov, dedupe, dispatcher, cfg.AllowedSenders, cfg.BatchSize, logger)

	// ------------------------------------------------
	// Job Channel (shared by API + workers)
	// ------------------------------------------------
	jobs := make(chan worker.AudienceJob, 100)

	// ------------------------------------------------
	// Worker Pool
	// ------------------------------------------------
	var wg sync.WaitGroup

	worker.StartPool(
		ctx,
		&wg,
		cfg.WorkerCount,
		jobs,
		orch,
		store,
		logger,
	)

	// ------------------------------------------------
	// HTTP API Server
	// ------------------------------------------------
	apiHandler := &api.Handler{
		Orchestrator: orch,
		Store:        store,
		Jobs:         jobs,
		Log:          logger,
	}

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/send", apiHandler.SendEmail)
	apiMux.HandleFunc("/send/audience", apiHandler.SendAudience)

	apiServer := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: apiMux,
	}

	go func() {
		logger.Info("api server started", zap.String("port", cfg.APIPort))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Wait for shutdown
	// ------------------------------------------------
	<-ctx.Done()

	logger.Info("shutting down services...")

	// Stop accepting new jobs
	close(jobs)

	// Wait workers to finish
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", zap.Error(err))
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}

	logger.Info("application shutdown complete")
}
