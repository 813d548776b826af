package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cam3ron2/github-activity-report/internal/activity"
	"github.com/cam3ron2/github-activity-report/internal/app"
	"github.com/cam3ron2/github-activity-report/internal/config"
	"github.com/cam3ron2/github-activity-report/internal/crawl"
	"github.com/cam3ron2/github-activity-report/internal/githubapi"
	"github.com/cam3ron2/github-activity-report/internal/telemetry"
	"github.com/cam3ron2/github-activity-report/internal/window"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const binaryName = "github-activity-report"

func main() {
	if err := run(os.Args[1:]); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s: %v\n", binaryName, err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	org        string
	users      []string
	since      string
	until      string
	outDir     string
	serve      bool
}

func parseFlags(args []string, output io.Writer) (options, error) {
	flags := flag.NewFlagSet(binaryName, flag.ContinueOnError)
	flags.SetOutput(output)

	var (
		opts  options
		users string
	)
	flags.StringVar(&opts.configPath, "config", "", "path to optional YAML config file")
	flags.StringVar(&opts.org, "org", "", "GitHub organization to report on (required)")
	flags.StringVar(&users, "user", "", "comma-separated logins to report on; defaults to every org member")
	flags.StringVar(&opts.since, "since", "", "inclusive window start, e.g. 2024-01-01")
	flags.StringVar(&opts.until, "until", "", "inclusive window end, e.g. 2024-03-31")
	flags.StringVar(&opts.outDir, "out-dir", "", "directory for CSV reports; overrides output.dir")
	flags.BoolVar(&opts.serve, "serve", false, "keep serving /metrics, health probes and /report after the crawl")
	if err := flags.Parse(args); err != nil {
		return options{}, err
	}

	opts.org = strings.TrimSpace(opts.org)
	if opts.org == "" {
		return options{}, fmt.Errorf("-org is required")
	}
	for _, user := range strings.Split(users, ",") {
		if trimmed := strings.TrimSpace(user); trimmed != "" {
			opts.users = append(opts.users, trimmed)
		}
	}
	return opts, nil
}

func run(args []string) error {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}

	cfg, err := config.LoadFile(opts.configPath)
	if err != nil {
		return err
	}
	if opts.outDir != "" {
		cfg.Output.Dir = opts.outDir
	}

	reportWindow, err := window.New(opts.since, opts.until)
	if err != nil {
		return fmt.Errorf("parse window: %w", err)
	}

	token, err := lookupToken(cfg.GitHub.TokenEnv, os.LookupEnv)
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil && !shouldIgnoreLoggerSyncError(syncErr) {
			_, _ = fmt.Fprintf(os.Stderr, "%s: sync logger: %v\n", binaryName, syncErr)
		}
	}()

	telemetryRuntime, err := telemetry.Setup(telemetry.Config{
		Enabled:          cfg.Telemetry.OTELEnabled,
		ServiceName:      binaryName,
		TraceMode:        cfg.Telemetry.OTELTraceMode,
		TraceSampleRatio: cfg.Telemetry.OTELTraceSampleRatio,
		Exporter:         telemetry.NewLogExporter(logger.Named("trace")),
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetryRuntime.Shutdown(shutdownCtx)
	}()

	rootCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	httpClient, err := githubapi.NewTokenHTTPClient(rootCtx, token, cfg.GitHub.RequestTimeout)
	if err != nil {
		return fmt.Errorf("build github http client: %w", err)
	}
	if cfg.GitHub.Preflight {
		logRateBudget(rootCtx, httpClient, cfg.GitHub.APIBaseURL, logger)
	}

	graphQL, err := githubapi.NewGraphQLClient(httpClient, cfg.GitHub.GraphQLURL, githubapi.RetryConfig{
		MaxAttempts:            cfg.Retry.MaxAttempts,
		TransientBackoff:       cfg.Retry.TransientBackoff,
		RateLimitBackoff:       cfg.Retry.RateLimitBackoff,
		RateLimitRepeatBackoff: cfg.Retry.RateLimitRepeatBackoff,
	}, logger)
	if err != nil {
		return fmt.Errorf("build graphql client: %w", err)
	}
	collector, err := activity.NewCollector(graphQL, reportWindow, logger)
	if err != nil {
		return fmt.Errorf("build collector: %w", err)
	}
	crawler, err := crawl.NewCrawler(crawl.Config{
		Directory:    crawl.GraphQLDirectory{Executor: graphQL},
		Collector:    collector,
		Sink:         crawl.CSVSink{Dir: cfg.Output.Dir, Logger: logger},
		TopRepoLimit: cfg.Crawl.TopRepoLimit,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("build crawler: %w", err)
	}

	metricStore := app.NewStoreFromConfig(rootCtx, cfg, logger)
	defer func() {
		_ = metricStore.Close()
	}()

	runtime, err := app.NewRuntime(app.Options{
		Org:          opts.org,
		Users:        opts.users,
		Window:       reportWindow,
		Crawler:      crawler,
		Store:        metricStore,
		TextfilePath: cfg.Output.TextfilePath,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}

	if !opts.serve {
		_, err := runtime.RunOnce(rootCtx)
		return err
	}
	return serve(rootCtx, runtime, cfg.Server.ListenAddr, logger)
}

func serve(ctx context.Context, runtime *app.Runtime, addr string, logger *zap.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           runtime.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", addr))
		if serveErr := server.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			serverErrCh <- serveErr
		}
		close(serverErrCh)
	}()

	go func() {
		if _, err := runtime.RunOnce(ctx); err != nil {
			logger.Error("crawl failed; serving last known state", zap.Error(err))
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr := <-serverErrCh:
		if serveErr != nil {
			return fmt.Errorf("http server failed: %w", serveErr)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func lookupToken(envName string, lookup func(string) (string, bool)) (string, error) {
	value, ok := lookup(envName)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("environment variable %s is not set", envName)
	}
	return strings.TrimSpace(value), nil
}

func logRateBudget(ctx context.Context, httpClient *http.Client, apiBaseURL string, logger *zap.Logger) {
	restClient, err := githubapi.NewGitHubRESTClient(httpClient, apiBaseURL)
	if err != nil {
		logger.Warn("rate budget preflight skipped", zap.Error(err))
		return
	}
	budget, err := restClient.RateBudget(ctx)
	if err != nil {
		logger.Warn("rate budget preflight failed", zap.Error(err))
		return
	}
	logger.Info("github rate budget",
		zap.Int("core_remaining", budget.CoreRemaining),
		zap.Time("core_reset", budget.CoreReset),
		zap.Int("graphql_limit", budget.GraphQLLimit),
		zap.Int("graphql_remaining", budget.GraphQLRemaining),
		zap.Time("graphql_reset", budget.GraphQLReset),
	)
}

func buildLogger(level string) (*zap.Logger, error) {
	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(logLevel(level))
	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

func logLevel(raw string) zapcore.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Sync on stderr fails on some terminals and pipes.
func shouldIgnoreLoggerSyncError(err error) bool {
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY)
}
