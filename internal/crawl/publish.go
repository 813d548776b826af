package crawl

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cam3ron2/github-activity-report/internal/report"
	"github.com/cam3ron2/github-activity-report/internal/store"
	"github.com/cam3ron2/github-activity-report/internal/window"
)

// ReportDocumentName is the store document holding the latest org report.
const ReportDocumentName = "org_report"

// ReportDocument is the JSON form of a finished crawl served at /report.
type ReportDocument struct {
	Org         string                         `json:"org"`
	Since       string                         `json:"since,omitempty"`
	Until       string                         `json:"until,omitempty"`
	GeneratedAt time.Time                      `json:"generated_at"`
	Users       []report.OrgRow                `json:"users"`
	Monthly     map[string][]report.MonthlyRow `json:"monthly"`
}

// NewReportDocument builds the document for result.
func NewReportDocument(result Result, w window.Window, generatedAt time.Time) ReportDocument {
	doc := ReportDocument{
		Org:         result.Org,
		GeneratedAt: generatedAt.UTC(),
		Users:       result.OrgRows,
		Monthly:     result.Monthly,
	}
	if doc.Users == nil {
		doc.Users = []report.OrgRow{}
	}
	if doc.Monthly == nil {
		doc.Monthly = map[string][]report.MonthlyRow{}
	}
	if w.HasSince() {
		doc.Since = w.Since.Format(window.DayFormat)
	}
	if w.HasUntil() {
		doc.Until = w.Until.Format(window.DayFormat)
	}
	return doc
}

// Publish replaces the gauges in st with the report rows of result and
// stores the report document. Gauges from earlier crawls are dropped first.
func Publish(ctx context.Context, st store.Store, result Result, w window.Window, now time.Time) (int, error) {
	if st == nil {
		return 0, fmt.Errorf("metric store is required")
	}

	points := make([]store.MetricPoint, 0)
	for _, row := range result.OrgRows {
		orgPoints, err := report.OrgRowMetrics(result.Org, row, now)
		if err != nil {
			return 0, fmt.Errorf("build org gauges for %s: %w", row.User, err)
		}
		points = append(points, orgPoints...)

		for _, monthly := range result.Monthly[row.User] {
			monthlyPoints, err := report.MonthlyRowMetrics(result.Org, monthly, now)
			if err != nil {
				return 0, fmt.Errorf("build monthly gauges for %s %s: %w", monthly.User, monthly.Month, err)
			}
			points = append(points, monthlyPoints...)
		}
	}

	if err := st.DeleteOlderThan(ctx, now); err != nil {
		return 0, fmt.Errorf("drop previous gauges: %w", err)
	}
	for _, point := range points {
		if err := st.UpsertMetric(ctx, point); err != nil {
			return 0, fmt.Errorf("publish %s: %w", point.Name, err)
		}
	}

	body, err := json.Marshal(NewReportDocument(result, w, now))
	if err != nil {
		return 0, fmt.Errorf("encode report document: %w", err)
	}
	if err := st.PutDocument(ctx, ReportDocumentName, body); err != nil {
		return 0, fmt.Errorf("publish report document: %w", err)
	}
	return len(points), nil
}
