package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cam3ron2/github-activity-report/internal/githubapi"
	"github.com/cam3ron2/github-activity-report/internal/window"
	"go.uber.org/zap"
)

const approvedState = "APPROVED"

// Collector walks the activity graph of one org for one user at a time.
type Collector struct {
	executor githubapi.Executor
	window   window.Window
	logger   *zap.Logger
}

// NewCollector creates a collector that filters every event through w.
func NewCollector(executor githubapi.Executor, w window.Window, logger *zap.Logger) (*Collector, error) {
	if executor == nil {
		return nil, fmt.Errorf("graphql executor is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{executor: executor, window: w, logger: logger}, nil
}

// Collect runs the authored pass and then the given pass for user.
func (c *Collector) Collect(ctx context.Context, org, user string, repos []string) (*Ledger, error) {
	ledger := NewLedger(user)
	if err := c.CollectAuthored(ctx, org, user, ledger); err != nil {
		return nil, err
	}
	if err := c.CollectGiven(ctx, org, user, repos, ledger); err != nil {
		return nil, err
	}
	return ledger, nil
}

// CollectAuthored records every in-window pull request user opened in org.
func (c *Collector) CollectAuthored(ctx context.Context, org, user string, ledger *Ledger) error {
	search := AuthoredSearch(org, user, c.window)
	base := map[string]any{"query": search}

	for node, err := range githubapi.Paginate(ctx, c.executor, authoredPullRequestsQuery, base, "search") {
		if err != nil {
			return fmt.Errorf("collect pull requests authored by %s: %w", user, err)
		}

		var pr authoredPullRequest
		if err := json.Unmarshal(node, &pr); err != nil {
			return fmt.Errorf("decode pull request authored by %s: %w", user, err)
		}
		fact, ok := c.authoredFact(user, pr)
		if !ok {
			continue
		}
		ledger.AddPullRequest(fact)
	}

	c.logger.Debug("authored pull requests collected",
		zap.String("org", org),
		zap.String("user", user),
		zap.Int("pull_requests", len(ledger.PullRequests)),
	)
	return nil
}

func (c *Collector) authoredFact(user string, pr authoredPullRequest) (PullRequestFact, bool) {
	created, err := window.ParseTimestamp(pr.CreatedAt)
	if err != nil {
		c.logger.Warn("skipping pull request without creation time",
			zap.String("user", user),
			zap.Int("number", pr.Number),
			zap.Error(err),
		)
		return PullRequestFact{}, false
	}
	if !c.window.Contains(created) {
		return PullRequestFact{}, false
	}

	fact := PullRequestFact{
		Number:    pr.Number,
		Author:    user,
		CreatedAt: created,
		Additions: pr.Additions,
		Deletions: pr.Deletions,
	}
	if pr.Repository != nil {
		fact.Repo = pr.Repository.Name
	}
	if pr.MergedAt != nil {
		if merged, err := window.ParseTimestamp(*pr.MergedAt); err == nil {
			fact.MergedAt = &merged
		}
	}

	if pr.Comments != nil {
		for _, comment := range pr.Comments.Nodes {
			if comment.Author != nil && comment.Author.Login != user {
				fact.CommentsReceived++
			}
		}
	}
	if pr.Reviews != nil {
		for _, review := range pr.Reviews.Nodes {
			if review.Author == nil || review.Author.Login == user {
				continue
			}
			fact.CommentsReceived++
			reviewed, err := window.ParseTimestamp(review.CreatedAt)
			if err != nil {
				continue
			}
			if fact.FirstReviewAt == nil || reviewed.Before(*fact.FirstReviewAt) {
				fact.FirstReviewAt = &reviewed
			}
		}
	}
	return fact, true
}

// CollectGiven records comments, approvals and opened threads user left on
// other authors' pull requests across repos.
func (c *Collector) CollectGiven(ctx context.Context, org, user string, repos []string, ledger *Ledger) error {
	for _, repo := range repos {
		base := map[string]any{"query": RepositorySearch(org, repo, c.window)}
		for node, err := range githubapi.Paginate(ctx, c.executor, repositoryPullRequestsQuery, base, "search") {
			if err != nil {
				return fmt.Errorf("collect activity of %s in %s/%s: %w", user, org, repo, err)
			}

			var pr repositoryPullRequest
			if err := json.Unmarshal(node, &pr); err != nil {
				return fmt.Errorf("decode pull request in %s/%s: %w", org, repo, err)
			}
			if err := c.recordGiven(ctx, org, user, pr, ledger); err != nil {
				return err
			}
		}
	}

	c.logger.Debug("given activity collected",
		zap.String("org", org),
		zap.String("user", user),
		zap.Int("repositories", len(repos)),
		zap.Int("events", len(ledger.Given)),
	)
	return nil
}

func (c *Collector) recordGiven(ctx context.Context, org, user string, pr repositoryPullRequest, ledger *Ledger) error {
	number := 0
	if pr.Number != nil {
		number = *pr.Number
	}
	repoName := ""
	if pr.Repository != nil {
		repoName = pr.Repository.Name
	}
	if repoName == "" {
		c.logger.Warn("pull request without repository name",
			zap.String("user", user),
			zap.Int("number", number),
		)
	}

	if pr.Author != nil && pr.Author.Login == user {
		return nil
	}

	if pr.Comments != nil {
		for _, comment := range pr.Comments.Nodes {
			if comment.Author == nil || comment.Author.Login != user {
				continue
			}
			if at, ok := c.inWindow(comment.CreatedAt); ok {
				ledger.RecordComment(repoName, number, at)
			}
		}
	}

	approver := false
	if pr.Reviews != nil {
		for _, review := range pr.Reviews.Nodes {
			if review.Author == nil || review.Author.Login != user || review.State != approvedState {
				continue
			}
			at, ok := c.inWindow(review.CreatedAt)
			if !ok {
				continue
			}
			ledger.RecordApproval(repoName, number, at)
			approver = true
		}
	}

	if !approver || number == 0 || repoName == "" {
		return nil
	}
	return c.recordThreads(ctx, org, repoName, user, number, ledger)
}

func (c *Collector) recordThreads(ctx context.Context, org, repo, user string, number int, ledger *Ledger) error {
	data, err := c.executor.Execute(ctx, reviewThreadsQuery, map[string]any{
		"org":   org,
		"repo":  repo,
		"prNum": number,
	})
	if err != nil {
		return fmt.Errorf("fetch review threads of %s/%s#%d: %w", org, repo, number, err)
	}

	raw, err := githubapi.Lookup(data, "repository", "pullRequest", "reviewThreads", "nodes")
	if err != nil {
		c.logger.Warn("review threads unavailable",
			zap.String("repo", repo),
			zap.Int("number", number),
			zap.Error(err),
		)
		return nil
	}
	var threads []reviewThread
	if err := json.Unmarshal(raw, &threads); err != nil {
		return fmt.Errorf("decode review threads of %s/%s#%d: %w", org, repo, number, err)
	}

	for _, thread := range threads {
		if thread.Comments == nil || len(thread.Comments.Nodes) == 0 {
			continue
		}
		first := thread.Comments.Nodes[0]
		if first.Author == nil || !strings.EqualFold(first.Author.Login, user) {
			continue
		}
		at, ok := c.inWindow(first.CreatedAt)
		if !ok {
			continue
		}
		ledger.RecordThread(first.ID, repo, number, at)
	}
	return nil
}

func (c *Collector) inWindow(raw string) (time.Time, bool) {
	at, err := window.ParseTimestamp(raw)
	if err != nil {
		return time.Time{}, false
	}
	return at, c.window.Contains(at)
}
