package store

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestMemoryStoreUpsertMetric(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	testCases := []struct {
		name        string
		maxSeries   int
		seed        []MetricPoint
		point       MetricPoint
		errContains string
	}{
		{
			name:  "valid_point",
			point: MetricPoint{Name: "gh_report_pr_opened", Labels: map[string]string{"org": "acme", "user": "alice"}, Value: 3, UpdatedAt: now},
		},
		{
			name:        "missing_name",
			point:       MetricPoint{Labels: map[string]string{"org": "acme"}, UpdatedAt: now},
			errContains: "metric name is required",
		},
		{
			name:        "missing_updated_time",
			point:       MetricPoint{Name: "gh_report_pr_opened"},
			errContains: "metric updated time is required",
		},
		{
			name:      "budget_exceeded_for_new_series",
			maxSeries: 1,
			seed: []MetricPoint{
				{Name: "gh_report_pr_opened", Labels: map[string]string{"user": "alice"}, UpdatedAt: now},
			},
			point:       MetricPoint{Name: "gh_report_pr_opened", Labels: map[string]string{"user": "bob"}, UpdatedAt: now},
			errContains: "max series budget exceeded",
		},
		{
			name:      "budget_allows_existing_series_update",
			maxSeries: 1,
			seed: []MetricPoint{
				{Name: "gh_report_pr_opened", Labels: map[string]string{"user": "alice"}, Value: 1, UpdatedAt: now},
			},
			point: MetricPoint{Name: "gh_report_pr_opened", Labels: map[string]string{"user": "alice"}, Value: 2, UpdatedAt: now},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			memory := NewMemoryStore(0, tc.maxSeries)
			for _, point := range tc.seed {
				if err := memory.UpsertMetric(ctx, point); err != nil {
					t.Fatalf("seed UpsertMetric() unexpected error: %v", err)
				}
			}

			err := memory.UpsertMetric(ctx, tc.point)
			if tc.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tc.errContains) {
					t.Fatalf("UpsertMetric() error = %v, want containing %q", err, tc.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("UpsertMetric() unexpected error: %v", err)
			}

			snapshot, err := memory.Snapshot(ctx)
			if err != nil {
				t.Fatalf("Snapshot() unexpected error: %v", err)
			}
			if len(snapshot) != 1 || snapshot[0].Value != tc.point.Value {
				t.Fatalf("Snapshot() = %+v, want single point with value %v", snapshot, tc.point.Value)
			}
		})
	}
}

func TestMemoryStoreSnapshotOrderingAndCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	memory := NewMemoryStore(0, 0)
	labels := map[string]string{"org": "acme", "user": "bob"}
	for _, point := range []MetricPoint{
		{Name: "gh_report_pr_opened", Labels: labels, Value: 1, UpdatedAt: now},
		{Name: "gh_report_comments_given", Labels: map[string]string{"org": "acme", "user": "alice"}, Value: 4, UpdatedAt: now},
	} {
		if err := memory.UpsertMetric(ctx, point); err != nil {
			t.Fatalf("UpsertMetric() unexpected error: %v", err)
		}
	}
	labels["user"] = "mutated"

	snapshot, err := memory.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() unexpected error: %v", err)
	}
	if len(snapshot) != 2 {
		t.Fatalf("len(snapshot) = %d, want 2", len(snapshot))
	}
	if snapshot[0].Name != "gh_report_comments_given" {
		t.Fatalf("snapshot[0].Name = %q, want gh_report_comments_given", snapshot[0].Name)
	}
	if snapshot[1].Labels["user"] != "bob" {
		t.Fatalf("stored labels = %v, want a copy taken at upsert", snapshot[1].Labels)
	}

	snapshot[1].Labels["user"] = "changed"
	again, _ := memory.Snapshot(ctx)
	if again[1].Labels["user"] != "bob" {
		t.Fatalf("Snapshot() returned shared label maps")
	}
}

func TestMemoryStoreDocumentsAndGC(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	memory := NewMemoryStore(time.Hour, 0)
	memory.Now = func() time.Time { return now }

	if err := memory.PutDocument(ctx, "", []byte("x")); err == nil {
		t.Fatalf("PutDocument(blank name) expected error, got nil")
	}
	if err := memory.PutDocument(ctx, "org_report", []byte(`{"org":"acme"}`)); err != nil {
		t.Fatalf("PutDocument() unexpected error: %v", err)
	}
	body, ok, err := memory.Document(ctx, "org_report")
	if err != nil || !ok || string(body) != `{"org":"acme"}` {
		t.Fatalf("Document() = %q, %t, %v, want stored body", body, ok, err)
	}
	if _, ok, _ := memory.Document(ctx, "missing"); ok {
		t.Fatalf("Document(missing) ok = true, want false")
	}

	if err := memory.UpsertMetric(ctx, MetricPoint{Name: "old", UpdatedAt: now.Add(-2 * time.Hour)}); err != nil {
		t.Fatalf("UpsertMetric(old) unexpected error: %v", err)
	}
	if err := memory.UpsertMetric(ctx, MetricPoint{Name: "fresh", UpdatedAt: now}); err != nil {
		t.Fatalf("UpsertMetric(fresh) unexpected error: %v", err)
	}

	if err := memory.GC(ctx, now.Add(30*time.Minute)); err != nil {
		t.Fatalf("GC() unexpected error: %v", err)
	}
	snapshot, _ := memory.Snapshot(ctx)
	if len(snapshot) != 1 || snapshot[0].Name != "fresh" {
		t.Fatalf("Snapshot() after GC = %+v, want only fresh", snapshot)
	}
	if _, ok, _ := memory.Document(ctx, "org_report"); !ok {
		t.Fatalf("document removed before retention elapsed")
	}

	if err := memory.GC(ctx, now.Add(2*time.Hour)); err != nil {
		t.Fatalf("GC() unexpected error: %v", err)
	}
	if _, ok, _ := memory.Document(ctx, "org_report"); ok {
		t.Fatalf("document kept after retention elapsed")
	}
	if err := memory.Healthy(ctx); err != nil {
		t.Fatalf("Healthy() unexpected error: %v", err)
	}
}

func TestMemoryStoreDeleteOlderThan(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cutoff := time.Unix(1700000000, 0)
	memory := NewMemoryStore(0, 1)

	if err := memory.UpsertMetric(ctx, MetricPoint{Name: "old", UpdatedAt: cutoff.Add(-time.Second)}); err != nil {
		t.Fatalf("UpsertMetric(old) unexpected error: %v", err)
	}
	if err := memory.DeleteOlderThan(ctx, cutoff); err != nil {
		t.Fatalf("DeleteOlderThan() unexpected error: %v", err)
	}
	// The freed slot is available to the next crawl.
	if err := memory.UpsertMetric(ctx, MetricPoint{Name: "fresh", UpdatedAt: cutoff}); err != nil {
		t.Fatalf("UpsertMetric(fresh) unexpected error: %v", err)
	}
	if err := memory.DeleteOlderThan(ctx, cutoff); err != nil {
		t.Fatalf("DeleteOlderThan() unexpected error: %v", err)
	}

	snapshot, _ := memory.Snapshot(ctx)
	if len(snapshot) != 1 || snapshot[0].Name != "fresh" {
		t.Fatalf("Snapshot() after DeleteOlderThan = %+v, want only fresh", snapshot)
	}
}
