package activity

import (
	"slices"
	"time"

	"github.com/cam3ron2/github-activity-report/internal/window"
)

// GivenKind identifies an action the tracked user took on someone else's pull request.
type GivenKind string

const (
	// GivenComment is an issue comment left on another author's pull request.
	GivenComment GivenKind = "comment_given"
	// GivenApproval is an APPROVED review on another author's pull request.
	GivenApproval GivenKind = "approval_given"
	// GivenThread is a review thread whose first comment the user wrote.
	GivenThread GivenKind = "thread_opened"
)

// PullRequestFact holds what one authored pull request contributes to the report.
type PullRequestFact struct {
	Repo             string
	Number           int
	Author           string
	CreatedAt        time.Time
	MergedAt         *time.Time
	Additions        int
	Deletions        int
	CommentsReceived int
	FirstReviewAt    *time.Time
}

// Month returns the YYYY-MM bucket of the pull request creation time.
func (f PullRequestFact) Month() string {
	return window.Month(f.CreatedAt)
}

// Merged reports whether the pull request has a merge time.
func (f PullRequestFact) Merged() bool {
	return f.MergedAt != nil
}

// TimeToMergeHours is the delay between the first review by someone else and the merge.
func (f PullRequestFact) TimeToMergeHours() (float64, bool) {
	if f.MergedAt == nil || f.FirstReviewAt == nil {
		return 0, false
	}
	return f.MergedAt.Sub(*f.FirstReviewAt).Hours(), true
}

// GivenActivityFact is one counted action on another author's pull request.
type GivenActivityFact struct {
	Repo   string
	Number int
	At     time.Time
	Kind   GivenKind
}

// Month returns the YYYY-MM bucket of the action.
func (f GivenActivityFact) Month() string {
	return window.Month(f.At)
}

type approvalKey struct {
	repo   string
	number int
}

// Ledger accumulates the facts of one user over one crawl.
// Facts are kept in the order they were recorded.
type Ledger struct {
	User         string
	PullRequests []PullRequestFact
	Given        []GivenActivityFact

	approvalsSeen map[approvalKey]struct{}
	threadsSeen   map[string]struct{}
}

// NewLedger creates an empty ledger for user.
func NewLedger(user string) *Ledger {
	return &Ledger{
		User:          user,
		approvalsSeen: make(map[approvalKey]struct{}),
		threadsSeen:   make(map[string]struct{}),
	}
}

// AddPullRequest records an authored pull request.
func (l *Ledger) AddPullRequest(fact PullRequestFact) {
	l.PullRequests = append(l.PullRequests, fact)
}

// RecordComment records a comment given. Comments are never deduplicated.
func (l *Ledger) RecordComment(repo string, number int, at time.Time) {
	l.Given = append(l.Given, GivenActivityFact{Repo: repo, Number: number, At: at, Kind: GivenComment})
}

// RecordApproval records an approval given unless one was already counted for the same pull request.
func (l *Ledger) RecordApproval(repo string, number int, at time.Time) bool {
	key := approvalKey{repo: repo, number: number}
	if _, seen := l.approvalsSeen[key]; seen {
		return false
	}
	l.approvalsSeen[key] = struct{}{}
	l.Given = append(l.Given, GivenActivityFact{Repo: repo, Number: number, At: at, Kind: GivenApproval})
	return true
}

// RecordThread records a review thread opened, keyed by the id of its first comment.
func (l *Ledger) RecordThread(commentID, repo string, number int, at time.Time) bool {
	if _, seen := l.threadsSeen[commentID]; seen {
		return false
	}
	l.threadsSeen[commentID] = struct{}{}
	l.Given = append(l.Given, GivenActivityFact{Repo: repo, Number: number, At: at, Kind: GivenThread})
	return true
}

// Months returns the sorted months that carry an authored pull request, a comment given or an approval given.
// Months with only opened threads are not report months.
func (l *Ledger) Months() []string {
	set := make(map[string]struct{})
	for _, pr := range l.PullRequests {
		set[pr.Month()] = struct{}{}
	}
	for _, fact := range l.Given {
		if fact.Kind == GivenThread {
			continue
		}
		set[fact.Month()] = struct{}{}
	}

	months := make([]string, 0, len(set))
	for month := range set {
		months = append(months, month)
	}
	slices.Sort(months)
	return months
}

// Count returns the number of given facts of kind in month.
func (l *Ledger) Count(kind GivenKind, month string) int {
	count := 0
	for _, fact := range l.Given {
		if fact.Kind == kind && fact.Month() == month {
			count++
		}
	}
	return count
}
