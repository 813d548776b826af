package activity

import (
	"reflect"
	"testing"
	"time"
)

func TestLedgerDeduplication(t *testing.T) {
	t.Parallel()

	ledger := NewLedger("alice")
	at := time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)

	if !ledger.RecordApproval("api", 7, at) {
		t.Fatalf("RecordApproval() first = false, want true")
	}
	if ledger.RecordApproval("api", 7, at.Add(time.Hour)) {
		t.Fatalf("RecordApproval() duplicate = true, want false")
	}
	if !ledger.RecordApproval("web", 7, at) {
		t.Fatalf("RecordApproval() other repo = false, want true")
	}

	if !ledger.RecordThread("c1", "api", 7, at) {
		t.Fatalf("RecordThread() first = false, want true")
	}
	if ledger.RecordThread("c1", "web", 9, at) {
		t.Fatalf("RecordThread() duplicate id = true, want false")
	}

	ledger.RecordComment("api", 7, at)
	ledger.RecordComment("api", 7, at)

	if got := ledger.Count(GivenApproval, "2024-03"); got != 2 {
		t.Fatalf("approvals = %d, want 2", got)
	}
	if got := ledger.Count(GivenThread, "2024-03"); got != 1 {
		t.Fatalf("threads = %d, want 1", got)
	}
	if got := ledger.Count(GivenComment, "2024-03"); got != 2 {
		t.Fatalf("comments = %d, want 2", got)
	}
}

func TestLedgerMonths(t *testing.T) {
	t.Parallel()

	ledger := NewLedger("alice")
	ledger.AddPullRequest(PullRequestFact{Repo: "api", CreatedAt: time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC)})
	ledger.RecordComment("web", 1, time.Date(2024, 2, 10, 9, 0, 0, 0, time.UTC))
	ledger.RecordApproval("web", 2, time.Date(2024, 4, 20, 9, 0, 0, 0, time.UTC))
	ledger.RecordThread("c9", "web", 2, time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))

	want := []string{"2024-02", "2024-04"}
	if got := ledger.Months(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Months() = %v, want %v", got, want)
	}

	if got := NewLedger("bob").Months(); len(got) != 0 {
		t.Fatalf("Months() on empty ledger = %v, want empty", got)
	}
}
