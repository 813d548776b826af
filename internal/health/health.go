package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Phase identifies where the report crawl is in its lifecycle.
type Phase string

const (
	// PhasePending means no crawl has started yet.
	PhasePending Phase = "pending"
	// PhaseRunning means a crawl is in progress.
	PhaseRunning Phase = "running"
	// PhaseSucceeded means the last crawl finished and its report was published.
	PhaseSucceeded Phase = "succeeded"
	// PhaseFailed means the last crawl aborted.
	PhaseFailed Phase = "failed"
)

// Mode indicates high-level health mode.
type Mode string

const (
	// ModeHealthy indicates all required dependencies are healthy.
	ModeHealthy Mode = "healthy"
	// ModeDegraded indicates the app is serving but the published report is empty.
	ModeDegraded Mode = "degraded"
	// ModeUnhealthy indicates a required dependency is unhealthy.
	ModeUnhealthy Mode = "unhealthy"
)

// Input represents dependency states used for health evaluation.
type Input struct {
	Phase           Phase
	StoreHealthy    bool
	ExporterHealthy bool
	ReportHasRows   bool
	LastError       string
}

// Status represents evaluated application health.
type Status struct {
	Phase      Phase           `json:"phase"`
	Mode       Mode            `json:"mode"`
	Ready      bool            `json:"ready"`
	Components map[string]bool `json:"components"`
	LastError  string          `json:"last_error,omitempty"`
}

// Provider supplies current health status.
type Provider interface {
	CurrentStatus(ctx context.Context) Status
}

// StatusEvaluator evaluates crawl-aware health and readiness.
type StatusEvaluator struct{}

// NewStatusEvaluator creates a health evaluator.
func NewStatusEvaluator() *StatusEvaluator {
	return &StatusEvaluator{}
}

// Evaluate evaluates readiness and mode from dependency state.
func (e *StatusEvaluator) Evaluate(input Input) Status {
	phase := input.Phase
	if phase == "" {
		phase = PhasePending
	}
	components := map[string]bool{
		"store":          input.StoreHealthy,
		"exporter_cache": input.ExporterHealthy,
		"crawl":          phase == PhaseSucceeded,
		"report_rows":    input.ReportHasRows,
	}

	ready := input.StoreHealthy && input.ExporterHealthy && phase == PhaseSucceeded

	mode := ModeHealthy
	if !ready {
		mode = ModeUnhealthy
	} else if !input.ReportHasRows {
		mode = ModeDegraded
	}

	return Status{
		Phase:      phase,
		Mode:       mode,
		Ready:      ready,
		Components: components,
		LastError:  input.LastError,
	}
}

// CrawlTracker records the lifecycle of the report crawl. It is safe for concurrent use.
type CrawlTracker struct {
	mu         sync.RWMutex
	phase      Phase
	hasRows    bool
	lastError  string
	finishedAt time.Time
	now        func() time.Time
}

// CrawlState is a point-in-time copy of a CrawlTracker.
type CrawlState struct {
	Phase      Phase
	HasRows    bool
	LastError  string
	FinishedAt time.Time
}

// NewCrawlTracker creates a tracker in the pending phase.
func NewCrawlTracker() *CrawlTracker {
	return &CrawlTracker{phase: PhasePending, now: time.Now}
}

// Begin marks a crawl as running.
func (t *CrawlTracker) Begin() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = PhaseRunning
	t.lastError = ""
}

// Succeed marks the crawl as finished. hasRows reports whether any org row was produced.
func (t *CrawlTracker) Succeed(hasRows bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = PhaseSucceeded
	t.hasRows = hasRows
	t.lastError = ""
	t.finishedAt = t.now()
}

// Fail marks the crawl as aborted with err.
func (t *CrawlTracker) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = PhaseFailed
	t.hasRows = false
	if err != nil {
		t.lastError = err.Error()
	}
	t.finishedAt = t.now()
}

// State returns the current crawl state.
func (t *CrawlTracker) State() CrawlState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return CrawlState{
		Phase:      t.phase,
		HasRows:    t.hasRows,
		LastError:  t.lastError,
		FinishedAt: t.finishedAt,
	}
}

// NewHandler returns the health HTTP handler with /livez, /readyz, and /healthz endpoints.
func NewHandler(provider Provider) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			return
		}
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		status := provider.CurrentStatus(r.Context())
		if status.Ready {
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("ready")); err != nil {
				return
			}
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := w.Write([]byte("not ready")); err != nil {
			return
		}
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := provider.CurrentStatus(r.Context())
		payload, err := json.Marshal(status)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			if _, writeErr := w.Write([]byte(`{"mode":"unhealthy","error":"marshal health status"}`)); writeErr != nil {
				return
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		//nolint:gosec // Health payload is server-generated JSON status.
		if _, err := w.Write(payload); err != nil {
			return
		}
	})

	return mux
}
