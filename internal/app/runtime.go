package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cam3ron2/github-activity-report/internal/crawl"
	"github.com/cam3ron2/github-activity-report/internal/exporter"
	"github.com/cam3ron2/github-activity-report/internal/health"
	"github.com/cam3ron2/github-activity-report/internal/store"
	"github.com/cam3ron2/github-activity-report/internal/window"
	"go.uber.org/zap"
)

const metricsCacheRefresh = 10 * time.Second

// Crawler runs one report crawl.
type Crawler interface {
	Run(ctx context.Context, org string, users []string) (crawl.Result, error)
}

// Options configures a Runtime.
type Options struct {
	Org          string
	Users        []string
	Window       window.Window
	Crawler      Crawler
	Store        store.Store
	TextfilePath string
	Logger       *zap.Logger
}

// Runtime runs the crawl, publishes its result and serves it over HTTP.
type Runtime struct {
	org          string
	users        []string
	window       window.Window
	crawler      Crawler
	store        store.Store
	snapshots    *exporter.CachedSnapshotReader
	textfilePath string
	tracker      *health.CrawlTracker
	evaluator    *health.StatusEvaluator
	logger       *zap.Logger

	// Now is injected for deterministic tests.
	Now func() time.Time
}

// NewRuntime creates a runtime instance.
func NewRuntime(opts Options) (*Runtime, error) {
	if strings.TrimSpace(opts.Org) == "" {
		return nil, fmt.Errorf("org is required")
	}
	if opts.Crawler == nil {
		return nil, fmt.Errorf("crawler is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metricStore := opts.Store
	if metricStore == nil {
		metricStore = store.NewMemoryStore(0, 0)
	}

	return &Runtime{
		org:          strings.TrimSpace(opts.Org),
		users:        opts.Users,
		window:       opts.Window,
		crawler:      opts.Crawler,
		store:        metricStore,
		snapshots:    exporter.NewCachedSnapshotReader(metricStore, exporter.CacheConfig{RefreshInterval: metricsCacheRefresh}),
		textfilePath: strings.TrimSpace(opts.TextfilePath),
		tracker:      health.NewCrawlTracker(),
		evaluator:    health.NewStatusEvaluator(),
		logger:       logger,
		Now:          time.Now,
	}, nil
}

// RunOnce crawls the configured org and publishes the result to the store
// and, when configured, to the metrics textfile.
func (r *Runtime) RunOnce(ctx context.Context) (crawl.Result, error) {
	r.tracker.Begin()
	started := r.Now()
	r.logger.Info("crawl started",
		zap.String("org", r.org),
		zap.Strings("users", r.users),
		zap.String("window", r.window.SearchPredicate()),
	)

	result, err := r.crawler.Run(ctx, r.org, r.users)
	if err != nil {
		r.tracker.Fail(err)
		return crawl.Result{}, fmt.Errorf("crawl %s: %w", r.org, err)
	}

	now := r.Now()
	if err := r.store.GC(ctx, now); err != nil {
		r.logger.Warn("metric store gc failed", zap.Error(err))
	}
	published, err := crawl.Publish(ctx, r.store, result, r.window, now)
	if err != nil {
		r.tracker.Fail(err)
		return crawl.Result{}, err
	}
	r.snapshots.Invalidate()

	if r.textfilePath != "" {
		if err := exporter.WriteTextfile(r.textfilePath, r.store, r.logger); err != nil {
			r.tracker.Fail(err)
			return crawl.Result{}, err
		}
		r.logger.Info("wrote metrics textfile", zap.String("path", r.textfilePath))
	}

	r.tracker.Succeed(result.HasRows())
	r.logger.Info("crawl finished",
		zap.String("org", r.org),
		zap.Int("users", len(result.Users)),
		zap.Int("org_rows", len(result.OrgRows)),
		zap.Int("gauges_published", published),
		zap.Duration("duration", now.Sub(started)),
	)
	return result, nil
}

// CurrentStatus returns current health status.
func (r *Runtime) CurrentStatus(ctx context.Context) health.Status {
	state := r.tracker.State()
	input := health.Input{
		Phase:         state.Phase,
		StoreHealthy:  r.store.Healthy(ctx) == nil,
		ReportHasRows: state.HasRows,
		LastError:     state.LastError,
	}
	if _, err := r.snapshots.Snapshot(ctx); err == nil {
		input.ExporterHealthy = true
	}
	return r.evaluator.Evaluate(input)
}

// Handler returns the combined HTTP handler.
func (r *Runtime) Handler() http.Handler {
	metricsHandler := exporter.NewOpenMetricsHandler(r.snapshots, r.logger)
	healthHandler := health.NewHandler(r)
	reportHandler := NewReportHandler(r.store, crawl.ReportDocumentName)
	return NewHTTPHandler(metricsHandler, healthHandler, reportHandler)
}
