package crawl

import (
	"context"
	"fmt"
	"strings"

	"github.com/cam3ron2/github-activity-report/internal/activity"
	"github.com/cam3ron2/github-activity-report/internal/githubapi"
	"github.com/cam3ron2/github-activity-report/internal/report"
	"github.com/cam3ron2/github-activity-report/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const tracerName = "github-activity-report/internal/crawl"

// Directory resolves the users and repositories a crawl covers.
type Directory interface {
	Members(ctx context.Context, org string) ([]string, error)
	TopRepositories(ctx context.Context, org string, limit int) ([]string, error)
}

// UserCollector gathers the activity ledger of one user.
type UserCollector interface {
	Collect(ctx context.Context, org, user string, repos []string) (*activity.Ledger, error)
}

// Sink receives report rows as soon as they are built.
type Sink interface {
	WriteUser(org, user string, rows []report.MonthlyRow) error
	WriteOrg(org string, rows []report.OrgRow) error
}

// GraphQLDirectory answers Directory queries through a GraphQL executor.
type GraphQLDirectory struct {
	Executor githubapi.Executor
}

// Members lists every member login of org.
func (d GraphQLDirectory) Members(ctx context.Context, org string) ([]string, error) {
	return githubapi.ListOrgMembers(ctx, d.Executor, org)
}

// TopRepositories lists the most recently pushed repositories of org.
func (d GraphQLDirectory) TopRepositories(ctx context.Context, org string, limit int) ([]string, error) {
	return githubapi.TopRepositories(ctx, d.Executor, org, limit)
}

// Config wires a Crawler.
type Config struct {
	Directory    Directory
	Collector    UserCollector
	Sink         Sink
	TopRepoLimit int
	Logger       *zap.Logger
}

// Result is the outcome of one crawl.
type Result struct {
	Org     string
	Users   []string
	Repos   []string
	Monthly map[string][]report.MonthlyRow
	OrgRows []report.OrgRow
}

// HasRows reports whether any user produced an org row.
func (r Result) HasRows() bool {
	return len(r.OrgRows) > 0
}

// Crawler runs the per-user report pipeline over an organization.
type Crawler struct {
	directory    Directory
	collector    UserCollector
	sink         Sink
	topRepoLimit int
	logger       *zap.Logger
}

// NewCrawler creates a crawler.
func NewCrawler(cfg Config) (*Crawler, error) {
	if cfg.Directory == nil {
		return nil, fmt.Errorf("crawl directory is required")
	}
	if cfg.Collector == nil {
		return nil, fmt.Errorf("crawl collector is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := cfg.TopRepoLimit
	if limit <= 0 {
		limit = githubapi.DefaultTopRepoLimit
	}
	return &Crawler{
		directory:    cfg.Directory,
		collector:    cfg.Collector,
		sink:         cfg.Sink,
		topRepoLimit: limit,
		logger:       logger,
	}, nil
}

// Run crawls org for users, or for every org member when users is empty.
// Users are processed one at a time, and each user's rows reach the sink
// before the next user starts. The first fetch failure aborts the crawl.
func (c *Crawler) Run(ctx context.Context, org string, users []string) (Result, error) {
	org = strings.TrimSpace(org)
	if org == "" {
		return Result{}, fmt.Errorf("org is required")
	}

	selected := normalizeUsers(users)
	if len(selected) == 0 {
		members, err := c.directory.Members(ctx, org)
		if err != nil {
			return Result{}, fmt.Errorf("resolve users: %w", err)
		}
		selected = normalizeUsers(members)
		c.logger.Info("resolved org members", zap.String("org", org), zap.Int("users", len(selected)))
	}

	repos, err := c.directory.TopRepositories(ctx, org, c.topRepoLimit)
	if err != nil {
		return Result{}, fmt.Errorf("resolve repositories: %w", err)
	}
	c.logger.Info("resolved top repositories", zap.String("org", org), zap.Int("repos", len(repos)))

	result := Result{
		Org:     org,
		Users:   selected,
		Repos:   repos,
		Monthly: make(map[string][]report.MonthlyRow, len(selected)),
	}
	for _, user := range selected {
		rows, err := c.crawlUser(ctx, org, user, repos)
		if err != nil {
			return Result{}, err
		}
		if len(rows) == 0 {
			c.logger.Info("no activity in window", zap.String("org", org), zap.String("user", user))
			continue
		}
		result.Monthly[user] = rows

		if row, ok := report.Rollup(user, rows); ok {
			result.OrgRows = append(result.OrgRows, row)
		}
	}

	if !result.HasRows() {
		c.logger.Info("no data found for selected users", zap.String("org", org))
		return result, nil
	}
	if c.sink != nil {
		if err := c.sink.WriteOrg(org, result.OrgRows); err != nil {
			return Result{}, fmt.Errorf("write org report: %w", err)
		}
	}
	return result, nil
}

func (c *Crawler) crawlUser(ctx context.Context, org, user string, repos []string) (rows []report.MonthlyRow, err error) {
	ctx, finish := telemetry.StartSpan(ctx, tracerName, "crawl.user",
		attribute.String("org", org),
		attribute.String("user", user),
		attribute.Int("repos", len(repos)),
	)
	defer func() { finish(err) }()

	c.logger.Info("collecting user activity", zap.String("org", org), zap.String("user", user))
	ledger, err := c.collector.Collect(ctx, org, user, repos)
	if err != nil {
		return nil, fmt.Errorf("collect %s: %w", user, err)
	}

	rows = report.BuildMonthlyRows(ledger)
	if len(rows) == 0 || c.sink == nil {
		return rows, nil
	}
	if err := c.sink.WriteUser(org, user, rows); err != nil {
		return nil, fmt.Errorf("write %s summary: %w", user, err)
	}
	return rows, nil
}

func normalizeUsers(users []string) []string {
	seen := make(map[string]struct{}, len(users))
	normalized := make([]string, 0, len(users))
	for _, user := range users {
		user = strings.TrimSpace(user)
		if user == "" {
			continue
		}
		if _, ok := seen[user]; ok {
			continue
		}
		seen[user] = struct{}{}
		normalized = append(normalized, user)
	}
	return normalized
}
