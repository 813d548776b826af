package report

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/cam3ron2/github-activity-report/internal/store"
)

const (
	// LabelOrg is the required organization label key.
	LabelOrg = "org"
	// LabelUser is the required user label key.
	LabelUser = "user"
	// LabelMonth is the month label key carried by monthly gauges.
	LabelMonth = "month"

	// UnknownLabelValue is used when a required label is blank.
	UnknownLabelValue = "unknown"

	orgMetricPrefix     = "gh_report_"
	monthlyMetricPrefix = "gh_report_monthly_"
)

var gaugeFields = []string{
	"pr_opened",
	"pr_merged",
	"avg_additions",
	"avg_deletions",
	"avg_merge_time_hours",
	"approvals_given",
	"comments_given",
	"conversations_opened_when_approver",
	"avg_comments_received_per_pr",
}

// OrgMetricNames returns the gauge names published per org row.
func OrgMetricNames() []string {
	return prefixed(orgMetricPrefix)
}

// MonthlyMetricNames returns the gauge names published per monthly row.
func MonthlyMetricNames() []string {
	return prefixed(monthlyMetricPrefix)
}

// RequiredLabels builds the enforced org/user label map.
func RequiredLabels(org, user string) map[string]string {
	return map[string]string{
		LabelOrg:  normalizeRequiredLabel(org),
		LabelUser: normalizeRequiredLabel(user),
	}
}

// OrgRowMetrics converts an org row into gauges.
func OrgRowMetrics(org string, row OrgRow, updatedAt time.Time) ([]store.MetricPoint, error) {
	return statsMetrics(orgMetricPrefix, RequiredLabels(org, row.User), row.Stats, updatedAt)
}

// MonthlyRowMetrics converts a monthly row into gauges labelled with its month.
func MonthlyRowMetrics(org string, row MonthlyRow, updatedAt time.Time) ([]store.MetricPoint, error) {
	labels := RequiredLabels(org, row.User)
	labels[LabelMonth] = normalizeRequiredLabel(row.Month)
	return statsMetrics(monthlyMetricPrefix, labels, row.Stats, updatedAt)
}

// ValidateReportMetric validates that a metric point conforms to the report gauge contract.
func ValidateReportMetric(point store.MetricPoint) error {
	required := []string{LabelOrg, LabelUser}
	switch {
	case slices.Contains(OrgMetricNames(), point.Name):
	case slices.Contains(MonthlyMetricNames(), point.Name):
		required = append(required, LabelMonth)
	default:
		return fmt.Errorf("unsupported report metric: %s", point.Name)
	}

	if len(point.Labels) != len(required) {
		return fmt.Errorf("report metric %s labels must contain exactly %s", point.Name, strings.Join(required, ", "))
	}
	for _, key := range required {
		value, ok := point.Labels[key]
		if !ok {
			return fmt.Errorf("report metric is missing %q label", key)
		}
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("report metric %q label must be non-empty", key)
		}
	}
	return nil
}

func statsMetrics(prefix string, labels map[string]string, stats Stats, updatedAt time.Time) ([]store.MetricPoint, error) {
	if updatedAt.IsZero() {
		return nil, fmt.Errorf("updated time is required")
	}

	values := stats.gaugeValues()
	points := make([]store.MetricPoint, 0, len(gaugeFields))
	for i, field := range gaugeFields {
		point := store.MetricPoint{
			Name:      prefix + field,
			Labels:    maps.Clone(labels),
			Value:     values[i],
			UpdatedAt: updatedAt,
		}
		if err := ValidateReportMetric(point); err != nil {
			return nil, err
		}
		points = append(points, point)
	}
	return points, nil
}

func (s Stats) gaugeValues() []float64 {
	return []float64{
		float64(s.PROpened),
		float64(s.PRMerged),
		s.AvgAdditions,
		s.AvgDeletions,
		s.AvgMergeTimeHours,
		float64(s.ApprovalsGiven),
		float64(s.CommentsGiven),
		float64(s.ConversationsOpenedWhenApprover),
		s.AvgCommentsReceivedPerPR,
	}
}

func prefixed(prefix string) []string {
	names := make([]string, 0, len(gaugeFields))
	for _, field := range gaugeFields {
		names = append(names, prefix+field)
	}
	return names
}

func normalizeRequiredLabel(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UnknownLabelValue
	}
	return trimmed
}
