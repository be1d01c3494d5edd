// Package main provides the riskflow scoring worker.
//
// The worker consumes events from the bus, computes windowed features from
// the event log, scores them, and persists the result. Offsets commit only
// after an event reaches a terminal disposition, so a crash never loses an
// event and the processed-event gate absorbs redelivery.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/riskflow-io/riskflow/internal/config"
	"github.com/riskflow-io/riskflow/internal/features"
	"github.com/riskflow-io/riskflow/internal/metrics"
	"github.com/riskflow-io/riskflow/internal/scoring"
	"github.com/riskflow-io/riskflow/internal/storage"
	"github.com/riskflow-io/riskflow/internal/stream"
	"github.com/riskflow-io/riskflow/internal/worker"
	"github.com/riskflow-io/riskflow/migrations"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "riskflow-worker"
)

const metricsShutdownTimeout = 5 * time.Second

// registeredScorer is a scorer that can describe itself to the model
// registry. Both the trained model and the deterministic fallback qualify.
type registeredScorer interface {
	scoring.Scorer
	Registration() (string, []byte)
}

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	}))

	logger.Info("Starting riskflow worker",
		slog.String("service", name),
		slog.String("version", version),
	)

	if err := run(logger); err != nil {
		logger.Error("Worker failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("riskflow worker stopped")
}

//nolint:funlen // linear startup wiring reads best as one sequence
func run(logger *slog.Logger) error {
	workerConfig := worker.LoadConfig()
	if err := workerConfig.Validate(); err != nil {
		return fmt.Errorf("invalid worker configuration: %w", err)
	}

	streamConfig := stream.LoadConfig()
	if err := streamConfig.Validate(); err != nil {
		return fmt.Errorf("invalid stream configuration: %w", err)
	}

	logger.Info("Loaded configuration",
		slog.String("worker", workerConfig.String()),
		slog.String("stream", streamConfig.String()),
	)

	m := metrics.NewMetrics(prometheus.NewRegistry())

	storageConfig := storage.LoadConfig()

	dbConn, err := storage.NewConnection(storageConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	defer func() {
		_ = dbConn.Close()
	}()

	if err := migrations.Apply(dbConn.DB); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	store, err := storage.NewStore(dbConn, storage.WithQueryObserver(m.ObserveQuery))
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	logger.Info("Store initialized",
		slog.String("database_url", storageConfig.MaskDatabaseURL()),
	)

	windows, err := features.LoadWindowsFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load feature windows: %w", err)
	}

	extractor := features.NewExtractor(dbConn, windows)

	scorer, err := loadScorer(logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	paramsHash, metadata := scorer.Registration()
	if err := store.UpsertModelVersion(ctx, &storage.ModelVersionRecord{
		ModelVersion: scorer.Version(),
		ParamsHash:   paramsHash,
		MetadataJSON: metadata,
	}); err != nil {
		return fmt.Errorf("failed to register model version: %w", err)
	}

	m.SetActiveModel(scorer.Version())

	consumer, err := stream.NewConsumer(streamConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	defer func() {
		_ = consumer.Close()
	}()

	dlq, err := stream.NewDLQProducer(streamConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to create dlq producer: %w", err)
	}

	defer func() {
		_ = dlq.Close()
	}()

	metricsServer := startMetricsServer(workerConfig.MetricsPort, m, logger)

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()

		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	w := worker.NewWorker(workerConfig, consumer, store, extractor, scorer, dlq, m, logger)

	return w.Run(ctx)
}

// loadScorer loads the trained model from MODEL_PATH, or falls back to the
// deterministic scorer when no path is configured. A configured but broken
// artifact is a startup failure, not a silent fallback.
func loadScorer(logger *slog.Logger) (registeredScorer, error) {
	modelPath := config.GetEnvStr("MODEL_PATH", "")
	if modelPath == "" {
		logger.Warn("MODEL_PATH not set, using deterministic fallback scorer",
			slog.String("model_version", scoring.FallbackVersion),
		)

		return scoring.NewFallbackScorer(), nil
	}

	model, err := scoring.LoadModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load model from %s: %w", modelPath, err)
	}

	logger.Info("Model loaded",
		slog.String("path", modelPath),
		slog.String("model_version", model.Version()),
	)

	return model, nil
}

// startMetricsServer serves /metrics and /ping on the worker's side port.
func startMetricsServer(port int, m *metrics.Metrics, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Metrics server listening", slog.String("address", server.Addr))

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	return server
}
