package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/mailfang/mailfang/internal/config"
	"github.com/mailfang/mailfang/internal/eventbus"
	"github.com/mailfang/mailfang/internal/httpapi"
	"github.com/mailfang/mailfang/internal/ingest"
	"github.com/mailfang/mailfang/internal/mailsmtp"
	"github.com/mailfang/mailfang/internal/observability"
	"github.com/mailfang/mailfang/internal/store"
)

// Version is set at build time via -ldflags.
var Version = "dev"

const (
	ingestPoolSize   = 4
	ingestQueueDepth = 64
	shutdownTimeout  = 15 * time.Second
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	configPath := ""

	switch os.Args[1] {
	case "serve":
		serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
		serveCmd.StringVar(&configPath, "config", "config/mailfang.yaml", "config file path")
		serveCmd.Parse(os.Args[2:])
		runServe(configPath)
	case "migrate":
		migrateCmd := flag.NewFlagSet("migrate", flag.ExitOnError)
		migrateCmd.StringVar(&configPath, "config", "config/mailfang.yaml", "config file path")
		migrateCmd.Parse(os.Args[2:])
		runMigrate(configPath)
	case "version":
		fmt.Printf("mailfang %s\n", Version)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("mailfang - SMTP capture sink")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  mailfang serve   [--config path]  Start the SMTP listener and HTTP read API")
	fmt.Println("  mailfang migrate [--config path]  Apply pending database migrations")
	fmt.Println("  mailfang version                  Print version")
}

func runServe(configPath string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error in config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)
	logger.Info("starting mailfang", "version", Version)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Tracing.Endpoint != "" {
		shutdownTracer, err := observability.InitTracer(ctx, observability.TracingConfig{
			Endpoint:    cfg.Tracing.Endpoint,
			SampleRate:  cfg.Tracing.SampleRate,
			ServiceName: "mailfang",
			Insecure:    cfg.Tracing.Insecure,
		})
		if err != nil {
			logger.Error("initializing tracer", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := shutdownTracer(shutdownCtx); err != nil {
				logger.Error("shutting down tracer", "error", err)
			}
		}()
	}

	st, err := store.Open(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("opening database", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := store.Migrate(ctx, st.DB()); err != nil {
		logger.Error("running migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("migrations applied")

	bus := eventbus.New()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	worker := ingest.NewWorker(st, bus, ingestPoolSize, ingestQueueDepth, metrics)
	defer worker.Close()

	creds := mailsmtp.Credentials{
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
	}
	smtpListener := mailsmtp.NewListener(cfg.SMTP.Host, creds, cfg.SMTP.MaxConnections, worker.Receive, metrics)
	metrics.SMTPAdmissionCap.Set(float64(smtpListener.Pool().Capacity()))

	httpServer := httpapi.New(httpapi.Config{
		Addr:        cfg.Web.Host,
		CORSOrigins: cfg.Web.CORSOrigins,
		Store:       st,
		Bus:         bus,
		Metrics:     metrics,
		Gatherer:    registry,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting SMTP listener", "addr", cfg.SMTP.Host)
		if err := smtpListener.Serve(gctx); err != nil {
			return fmt.Errorf("smtp listener: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("starting HTTP read API", "addr", cfg.Web.Host)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("mailfang stopped")
}

func runMigrate(configPath string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	st, err := store.Open(ctx, cfg.Database.URL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	fmt.Println("Running migrations up...")
	if err := store.Migrate(ctx, st.DB()); err != nil {
		fmt.Fprintf(os.Stderr, "Error running migrations: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Migrations applied successfully.")
}

// setupLogger creates a slog.Logger based on the logging config, wrapped
// with trace-context injection so log lines carry trace_id/span_id when
// tracing is enabled.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(observability.NewTracingHandler(handler))
}
