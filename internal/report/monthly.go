package report

import (
	"strconv"

	"github.com/cam3ron2/github-activity-report/internal/activity"
)

// TopN is the size of the categorical summaries.
const TopN = 3

// Stats are the activity figures shared by monthly and org-wide rows.
type Stats struct {
	PROpened                        int      `json:"pr_opened"`
	PRMerged                        int      `json:"pr_merged"`
	AvgAdditions                    float64  `json:"avg_additions"`
	AvgDeletions                    float64  `json:"avg_deletions"`
	AvgMergeTimeHours               float64  `json:"avg_merge_time_hours"`
	ApprovalsGiven                  int      `json:"approvals_given"`
	CommentsGiven                   int      `json:"comments_given"`
	ConversationsOpenedWhenApprover int      `json:"conversations_opened_when_approver"`
	AvgCommentsReceivedPerPR        float64  `json:"avg_comments_received_per_pr"`
	TopRepos                        []string `json:"top_repos"`
	MostActiveHours                 []string `json:"most_active_hours"`
}

// MonthlyRow is one user's activity in one calendar month.
type MonthlyRow struct {
	User  string `json:"user"`
	Month string `json:"month"`
	Stats
}

// BuildMonthlyRows buckets the ledger by month, oldest month first.
func BuildMonthlyRows(ledger *activity.Ledger) []MonthlyRow {
	if ledger == nil {
		return nil
	}

	byMonth := make(map[string][]activity.PullRequestFact)
	for _, pr := range ledger.PullRequests {
		byMonth[pr.Month()] = append(byMonth[pr.Month()], pr)
	}

	hours := make(map[string]*Tally)
	hourTally := func(month string) *Tally {
		tally, ok := hours[month]
		if !ok {
			tally = NewTally()
			hours[month] = tally
		}
		return tally
	}
	for _, pr := range ledger.PullRequests {
		hourTally(pr.Month()).Add(strconv.Itoa(pr.CreatedAt.Hour()))
	}
	for _, fact := range ledger.Given {
		if fact.Kind == activity.GivenThread {
			continue
		}
		hourTally(fact.Month()).Add(strconv.Itoa(fact.At.Hour()))
	}

	months := ledger.Months()
	rows := make([]MonthlyRow, 0, len(months))
	for _, month := range months {
		stats := authoredStats(byMonth[month])
		stats.ApprovalsGiven = ledger.Count(activity.GivenApproval, month)
		stats.CommentsGiven = ledger.Count(activity.GivenComment, month)
		stats.ConversationsOpenedWhenApprover = ledger.Count(activity.GivenThread, month)
		stats.MostActiveHours = hourTally(month).Top(TopN)

		rows = append(rows, MonthlyRow{User: ledger.User, Month: month, Stats: stats})
	}
	return rows
}

func authoredStats(prs []activity.PullRequestFact) Stats {
	stats := Stats{PROpened: len(prs), TopRepos: []string{}}
	if len(prs) == 0 {
		return stats
	}

	additions := make([]float64, 0, len(prs))
	deletions := make([]float64, 0, len(prs))
	received := make([]float64, 0, len(prs))
	mergeTimes := make([]float64, 0, len(prs))
	repos := NewTally()
	for _, pr := range prs {
		if pr.Merged() {
			stats.PRMerged++
		}
		additions = append(additions, float64(pr.Additions))
		deletions = append(deletions, float64(pr.Deletions))
		received = append(received, float64(pr.CommentsReceived))
		if hours, ok := pr.TimeToMergeHours(); ok {
			mergeTimes = append(mergeTimes, hours)
		}
		repos.Add(pr.Repo)
	}

	stats.AvgAdditions = round(mean(additions), 1)
	stats.AvgDeletions = round(mean(deletions), 1)
	stats.AvgMergeTimeHours = round(mean(mergeTimes), 2)
	stats.AvgCommentsReceivedPerPR = round(mean(received), 2)
	stats.TopRepos = repos.Top(TopN)
	return stats
}
