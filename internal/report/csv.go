package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var statsColumns = []string{
	"pr_opened",
	"pr_merged",
	"avg_additions",
	"avg_deletions",
	"avg_merge_time_hours",
	"approvals_given",
	"comments_given",
	"conversations_opened_when_approver",
	"avg_comments_received_per_pr",
	"top_repos",
	"most_active_hours",
}

// MonthlyColumns is the header of a per-user summary file.
func MonthlyColumns() []string {
	return append([]string{"user", "month"}, statsColumns...)
}

// OrgColumns is the header of the org-wide report file.
func OrgColumns() []string {
	return append([]string{"user"}, statsColumns...)
}

// SummaryFileName is the per-user summary file name.
func SummaryFileName(user, org string) string {
	return fmt.Sprintf("%s_%s_summary.csv", user, org)
}

// OrgFileName is the org-wide report file name.
func OrgFileName(org string) string {
	return fmt.Sprintf("%s_orgwide_report.csv", org)
}

// WriteMonthlyCSV writes rows with a header line.
func WriteMonthlyCSV(w io.Writer, rows []MonthlyRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(MonthlyColumns()); err != nil {
		return fmt.Errorf("write monthly header: %w", err)
	}
	for _, row := range rows {
		record := append([]string{row.User, row.Month}, row.Stats.record()...)
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write monthly row %s/%s: %w", row.User, row.Month, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteOrgCSV writes rows with a header line.
func WriteOrgCSV(w io.Writer, rows []OrgRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(OrgColumns()); err != nil {
		return fmt.Errorf("write org header: %w", err)
	}
	for _, row := range rows {
		record := append([]string{row.User}, row.Stats.record()...)
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write org row %s: %w", row.User, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// SaveMonthly writes the summary file of one user into dir and returns its path.
func SaveMonthly(dir, org, user string, rows []MonthlyRow) (string, error) {
	path := filepath.Join(dir, SummaryFileName(user, org))
	return path, writeFile(path, func(w io.Writer) error {
		return WriteMonthlyCSV(w, rows)
	})
}

// SaveOrg writes the org-wide report into dir and returns its path.
func SaveOrg(dir, org string, rows []OrgRow) (string, error) {
	path := filepath.Join(dir, OrgFileName(org))
	return path, writeFile(path, func(w io.Writer) error {
		return WriteOrgCSV(w, rows)
	})
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, closeErr)
		}
	}()
	if err := write(file); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (s Stats) record() []string {
	return []string{
		strconv.Itoa(s.PROpened),
		strconv.Itoa(s.PRMerged),
		formatFloat(s.AvgAdditions),
		formatFloat(s.AvgDeletions),
		formatFloat(s.AvgMergeTimeHours),
		strconv.Itoa(s.ApprovalsGiven),
		strconv.Itoa(s.CommentsGiven),
		strconv.Itoa(s.ConversationsOpenedWhenApprover),
		formatFloat(s.AvgCommentsReceivedPerPR),
		strings.Join(s.TopRepos, ","),
		strings.Join(s.MostActiveHours, ","),
	}
}

// formatFloat always keeps a decimal point so 15 renders as 15.0.
func formatFloat(value float64) string {
	formatted := strconv.FormatFloat(value, 'f', -1, 64)
	if !strings.ContainsAny(formatted, ".eEn") {
		formatted += ".0"
	}
	return formatted
}
