// Package main is the entry point for the ClientDesk billing API.
//
// It loads configuration, opens the database pool, picks real or stub
// vendor clients, wires the billing service behind the core chassis, and
// serves either as a plain HTTP server (local) or as an API Gateway HTTP API
// Lambda handler when the Lambda runtime is detected.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

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

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"clientdesk/internal/api/handlers"
	"clientdesk/internal/billing"
	"clientdesk/internal/config"
	"clientdesk/internal/core"
	"clientdesk/internal/db"
	"clientdesk/internal/external"
	"clientdesk/internal/queue"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main can exit cleanly on error.
func run() error {
	ctx := context.Background()

	provider := config.NewSSMProvider(os.Getenv("AWS_REGION"), os.Getenv("AWS_ENDPOINT_URL"))
	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel).With("service", cfg.Service)
	logger.Info("billing API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
	)

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}

	clients, err := external.NewClientRegistry(cfg, logger)
	if err != nil {
		pool.Close()
		return fmt.Errorf("creating external clients: %w", err)
	}

	awsClients, err := newAWSClients(ctx, cfg, logger)
	if err != nil {
		pool.Close()
		return err
	}

	svc := billing.NewService(billing.ServiceConfig{
		Processor:         clients.Processor,
		Store:             db.NewSubscriptionRepo(pool, logger),
		Users:             db.NewUserRepository(pool),
		Catalog:           billing.NewPriceCatalog(cfg.Billing),
		IdempotencyWindow: cfg.Billing.IdempotencyWindow,
		DefaultCurrency:   cfg.Billing.DefaultCurrency,
		Metrics:           awsClients.metrics,
		Reconciler:        awsClients.reconciler,
		Logger:            logger.With("component", "billing"),
	})

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		pool.Close()
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Authenticator = db.NewSessionAuthenticator(pool, nil, logger)
	srv.HealthProbes = append(srv.HealthProbes, core.PingProbe{Label: "database", Pinger: pool})
	srv.OnShutdown(func() error {
		pool.Close()
		return nil
	})

	billingHandler := handlers.NewBillingHandler(svc, srv.Validator, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, billingHandler.RegisterRoutes)
	srv.MountRoutes()

	if isLambdaEnvironment() {
		return runLambda(srv, logger)
	}
	return runHTTPServer(srv, cfg, logger)
}

// awsClients holds the optional AWS-backed collaborators of the service.
// Both fields are nil-safe for billing.NewService.
type awsClients struct {
	metrics    billing.Metrics
	reconciler billing.Reconciler
}

// newAWSClients builds the CloudWatch publisher and the reconcile queue.
// Local runs and disabled features get no-ops so no credentials are needed.
func newAWSClients(ctx context.Context, cfg *config.Config, logger *slog.Logger) (awsClients, error) {
	out := awsClients{metrics: billing.NoopMetrics{}}

	wantMetrics := cfg.Observability.EnableMetrics && !cfg.IsLocal()
	wantQueue := cfg.AWS.ReconcileQueueURL != ""
	if !wantMetrics && !wantQueue {
		return out, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return out, fmt.Errorf("loading AWS SDK config: %w", err)
	}

	if wantMetrics {
		cw := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		out.metrics = billing.NewCloudWatchMetrics(cw, cfg.Observability.MetricNamespace, logger)
	}

	if wantQueue {
		client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		out.reconciler = queue.NewReconcileQueue(client, cfg.AWS, logger)
	}

	logger.Info("AWS clients initialized",
		"metrics", wantMetrics,
		"reconcile_queue", wantQueue,
	)
	return out, nil
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a JSON slog.Logger at the given level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
