package store

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricPoint is a single metric sample.
type MetricPoint struct {
	Name      string
	Labels    map[string]string
	Value     float64
	UpdatedAt time.Time
}

// Store holds published report gauges and report documents.
type Store interface {
	UpsertMetric(ctx context.Context, point MetricPoint) error
	Snapshot(ctx context.Context) ([]MetricPoint, error)
	PutDocument(ctx context.Context, name string, body []byte) error
	Document(ctx context.Context, name string) ([]byte, bool, error)
	GC(ctx context.Context, now time.Time) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) error
	Healthy(ctx context.Context) error
	Close() error
}

type storedDocument struct {
	body      []byte
	updatedAt time.Time
}

// MemoryStore is an in-process metric store.
type MemoryStore struct {
	mu        sync.RWMutex
	retention time.Duration
	maxSeries int
	metrics   map[string]MetricPoint
	documents map[string]storedDocument
	// Now is injected for testability.
	Now func() time.Time
}

// NewMemoryStore creates a memory store.
func NewMemoryStore(retention time.Duration, maxSeries int) *MemoryStore {
	return &MemoryStore{
		retention: retention,
		maxSeries: maxSeries,
		metrics:   make(map[string]MetricPoint),
		documents: make(map[string]storedDocument),
		Now:       time.Now,
	}
}

// UpsertMetric inserts or updates a metric point.
func (s *MemoryStore) UpsertMetric(_ context.Context, point MetricPoint) error {
	if err := validatePoint(point); err != nil {
		return err
	}

	key := metricKey(point.Name, point.Labels)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.metrics[key]; !exists && s.maxSeries > 0 && len(s.metrics) >= s.maxSeries {
		return fmt.Errorf("max series budget exceeded")
	}
	s.metrics[key] = clonePoint(point)
	return nil
}

// Snapshot returns all stored metrics ordered by series key.
func (s *MemoryStore) Snapshot(_ context.Context) ([]MetricPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]MetricPoint, 0, len(s.metrics))
	for _, point := range s.metrics {
		result = append(result, clonePoint(point))
	}
	sortPoints(result)
	return result, nil
}

// PutDocument stores body under name, replacing any previous version.
func (s *MemoryStore) PutDocument(_ context.Context, name string, body []byte) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("document name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[name] = storedDocument{body: append([]byte(nil), body...), updatedAt: s.Now()}
	return nil
}

// Document returns the stored body of name.
func (s *MemoryStore) Document(_ context.Context, name string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	document, ok := s.documents[name]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), document.body...), true, nil
}

// GC deletes metrics and documents older than the retention window.
func (s *MemoryStore) GC(_ context.Context, now time.Time) error {
	if s.retention <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, point := range s.metrics {
		if now.Sub(point.UpdatedAt) > s.retention {
			delete(s.metrics, key)
		}
	}
	for name, document := range s.documents {
		if now.Sub(document.updatedAt) > s.retention {
			delete(s.documents, name)
		}
	}
	return nil
}

// DeleteOlderThan drops every metric last updated before cutoff.
func (s *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, point := range s.metrics {
		if point.UpdatedAt.Before(cutoff) {
			delete(s.metrics, key)
		}
	}
	return nil
}

// Healthy always succeeds for the memory store.
func (s *MemoryStore) Healthy(context.Context) error {
	return nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}

func validatePoint(point MetricPoint) error {
	if point.Name == "" {
		return fmt.Errorf("metric name is required")
	}
	if point.UpdatedAt.IsZero() {
		return fmt.Errorf("metric updated time is required")
	}
	return nil
}

func clonePoint(point MetricPoint) MetricPoint {
	return MetricPoint{
		Name:      point.Name,
		Labels:    maps.Clone(point.Labels),
		Value:     point.Value,
		UpdatedAt: point.UpdatedAt,
	}
}

func sortPoints(points []MetricPoint) {
	sort.Slice(points, func(i, j int) bool {
		return metricKey(points[i].Name, points[i].Labels) < metricKey(points[j].Name, points[j].Labels)
	})
}

func metricKey(name string, labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for key := range labels {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	builder := strings.Builder{}
	builder.WriteString(name)
	builder.WriteString("|")
	for _, key := range keys {
		builder.WriteString(key)
		builder.WriteString("=")
		builder.WriteString(labels[key])
		builder.WriteString(";")
	}
	return builder.String()
}
