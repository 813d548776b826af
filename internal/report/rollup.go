package report

// OrgRow is one user's activity across the whole window.
type OrgRow struct {
	User string `json:"user"`
	Stats
}

// Rollup combines one user's monthly rows. Counts are summed, averages are
// the mean of the monthly averages and categorical fields keep the most
// frequent values across months. A user without rows has no org row.
func Rollup(user string, rows []MonthlyRow) (OrgRow, bool) {
	if len(rows) == 0 {
		return OrgRow{}, false
	}

	var (
		stats     Stats
		additions = make([]float64, 0, len(rows))
		deletions = make([]float64, 0, len(rows))
		merge     = make([]float64, 0, len(rows))
		received  = make([]float64, 0, len(rows))
		repos     = NewTally()
		hours     = NewTally()
	)
	for _, row := range rows {
		stats.PROpened += row.PROpened
		stats.PRMerged += row.PRMerged
		stats.ApprovalsGiven += row.ApprovalsGiven
		stats.CommentsGiven += row.CommentsGiven
		stats.ConversationsOpenedWhenApprover += row.ConversationsOpenedWhenApprover

		additions = append(additions, row.AvgAdditions)
		deletions = append(deletions, row.AvgDeletions)
		merge = append(merge, row.AvgMergeTimeHours)
		received = append(received, row.AvgCommentsReceivedPerPR)

		for _, repo := range row.TopRepos {
			if repo != "" {
				repos.Add(repo)
			}
		}
		for _, hour := range row.MostActiveHours {
			if hour != "" {
				hours.Add(hour)
			}
		}
	}

	stats.AvgAdditions = round(mean(additions), 2)
	stats.AvgDeletions = round(mean(deletions), 2)
	stats.AvgMergeTimeHours = round(mean(merge), 2)
	stats.AvgCommentsReceivedPerPR = round(mean(received), 2)
	stats.TopRepos = repos.Top(TopN)
	stats.MostActiveHours = hours.Top(TopN)

	return OrgRow{User: user, Stats: stats}, true
}
