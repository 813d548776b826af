package crawl

import (
	"fmt"
	"os"

	"github.com/cam3ron2/github-activity-report/internal/report"
	"go.uber.org/zap"
)

// CSVSink writes report rows as CSV files into Dir.
type CSVSink struct {
	Dir    string
	Logger *zap.Logger
}

// WriteUser writes <user>_<org>_summary.csv.
func (s CSVSink) WriteUser(org, user string, rows []report.MonthlyRow) error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	path, err := report.SaveMonthly(s.Dir, org, user, rows)
	if err != nil {
		return err
	}
	s.logger().Info("saved user summary", zap.String("user", user), zap.String("path", path), zap.Int("months", len(rows)))
	return nil
}

// WriteOrg writes <org>_orgwide_report.csv.
func (s CSVSink) WriteOrg(org string, rows []report.OrgRow) error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	path, err := report.SaveOrg(s.Dir, org, rows)
	if err != nil {
		return err
	}
	s.logger().Info("saved org report", zap.String("org", org), zap.String("path", path), zap.Int("users", len(rows)))
	return nil
}

func (s CSVSink) ensureDir() error {
	if s.Dir == "" {
		return nil
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create output dir %s: %w", s.Dir, err)
	}
	return nil
}

func (s CSVSink) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
