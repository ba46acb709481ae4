package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/ragsync/internal/api/handlers"
	"github.com/cloo-solutions/ragsync/internal/api/middleware"
	"github.com/cloo-solutions/ragsync/internal/cli"
	"github.com/cloo-solutions/ragsync/internal/config"
	"github.com/cloo-solutions/ragsync/internal/jobs"
	"github.com/cloo-solutions/ragsync/internal/server"
	"github.com/cloo-solutions/ragsync/internal/service"
	"github.com/cloo-solutions/ragsync/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the ragsync API server. POST /search queries a corpus; POST /ingest
re-ingests the configured root. With RAGSYNC_INGEST_INTERVAL set, the root is also
re-ingested periodically in the background.`,
		RunE: runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().String("path", "", "File, directory or s3://bucket/prefix served by POST /ingest")
	cli.AddPipelineFlags(cmd)

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := cli.LoadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if cmd.Flags().Changed("port") {
		cfg.Port = portFlag
	}

	logger := telemetry.NewLogger(os.Stderr, cfg.LogFormat, cfg.Debug)
	slog.SetDefault(logger)

	if cfg.SentryDSN != "" {
		// 10% sampling in production, everything elsewhere
		sampleRate := 1.0
		if cfg.Environment == "production" {
			sampleRate = 0.1
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			logger.Warn("telemetry init failed, continuing without tracing", "error", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	pipeline, err := cli.NewPipeline(ctx, cfg, logger, cli.PipelineOptions{Migrate: !noMigrate})
	if err != nil {
		return err
	}
	defer pipeline.Close()

	handler, ingester, err := NewAPI(ctx, cfg, pipeline, logger)
	if err != nil {
		return err
	}

	var ingestWorker *jobs.Worker
	if ingester != nil && cfg.HasPeriodicIngest() {
		job := jobs.NewIngestJob(ingester, cfg.Corpus, logger)
		ingestWorker = jobs.NewWorker(job, cfg.IngestInterval, jobs.WithRunOnStart(), jobs.WithLogger(logger))
		go ingestWorker.Start(ctx)
		logger.Info("periodic ingestion started", "root", cfg.IngestRoot, "interval", cfg.IngestInterval)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Port, "index", cfg.IndexBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	}
	logger.Info("shutting down")

	if ingestWorker != nil {
		ingestWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}

// NewAPI builds the HTTP handler over pipeline. The returned ingester is nil
// when no ingestion root is configured.
func NewAPI(ctx context.Context, cfg *config.Config, pipeline *cli.Pipeline, logger *slog.Logger) (http.Handler, *service.IngestService, error) {
	var ingester *service.IngestService
	var ingestSvc handlers.IngestService
	if cfg.IngestRoot != "" {
		src, err := pipeline.Source(ctx, cfg.IngestRoot)
		if err != nil {
			return nil, nil, err
		}
		ingester = pipeline.Ingester(src)
		ingestSvc = ingester
	}

	var runLister handlers.IngestRunLister
	if pipeline.Runs != nil {
		runLister = service.NewIngestRunService(pipeline.Runs)
	}

	router := server.NewRouter(server.RouterConfig{
		AuthValidator: authValidator(cfg),
		Logger:        logger,
		HealthHandler: handlers.NewHealthHandler(pipeline.Health),
		SearchHandler: handlers.NewSearchHandler(pipeline.Query, cfg.Corpus),
		IngestHandler: handlers.NewIngestHandler(ingestSvc, runLister, cfg.Corpus),
	})
	return router, ingester, nil
}

// authValidator returns nil, leaving the API open, when no key is configured.
func authValidator(cfg *config.Config) middleware.AuthValidator {
	if !cfg.HasAPIKey() {
		return nil
	}
	return middleware.NewStaticKeyValidator(cfg.APIKey)
}
