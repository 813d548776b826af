package exporter

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/cam3ron2/github-activity-report/internal/store"
)

const defaultRefreshInterval = 30 * time.Second

// CacheConfig configures the snapshot cache used by /metrics rendering.
type CacheConfig struct {
	RefreshInterval time.Duration
	Now             func() time.Time
}

// CachedSnapshotReader serves snapshots of a source reader, reading the
// source at most once per refresh interval.
type CachedSnapshotReader struct {
	source          SnapshotReader
	refreshInterval time.Duration
	now             func() time.Time

	mu          sync.RWMutex
	initialized bool
	lastRefresh time.Time
	points      []store.MetricPoint
}

// NewCachedSnapshotReader wraps a snapshot reader so the source is read at most once per refresh interval.
// A failed refresh keeps serving the last good snapshot.
func NewCachedSnapshotReader(source SnapshotReader, cfg CacheConfig) *CachedSnapshotReader {
	if cached, alreadyCached := source.(*CachedSnapshotReader); alreadyCached {
		return cached
	}

	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	refreshInterval := cfg.RefreshInterval
	if refreshInterval <= 0 {
		refreshInterval = defaultRefreshInterval
	}

	return &CachedSnapshotReader{
		source:          source,
		refreshInterval: refreshInterval,
		now:             nowFn,
	}
}

// Snapshot returns the cached snapshot, refreshing it when stale.
func (c *CachedSnapshotReader) Snapshot(ctx context.Context) ([]store.MetricPoint, error) {
	if c == nil || c.source == nil {
		return nil, nil
	}
	if err := c.refreshIfNeeded(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return clonePoints(c.points), nil
}

// Invalidate forces the next Snapshot call to read the source.
func (c *CachedSnapshotReader) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastRefresh = time.Time{}
}

func (c *CachedSnapshotReader) refreshIfNeeded(ctx context.Context) error {
	now := c.now()

	c.mu.RLock()
	fresh := c.initialized && now.Sub(c.lastRefresh) < c.refreshInterval
	c.mu.RUnlock()
	if fresh {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized && now.Sub(c.lastRefresh) < c.refreshInterval {
		return nil
	}

	points, err := c.source.Snapshot(ctx)
	if err != nil {
		if c.initialized {
			return nil
		}
		return err
	}
	c.points = clonePoints(points)
	c.lastRefresh = now
	c.initialized = true
	return nil
}

func clonePoints(points []store.MetricPoint) []store.MetricPoint {
	if len(points) == 0 {
		return nil
	}
	copied := make([]store.MetricPoint, 0, len(points))
	for _, point := range points {
		copied = append(copied, store.MetricPoint{
			Name:      point.Name,
			Labels:    maps.Clone(point.Labels),
			Value:     point.Value,
			UpdatedAt: point.UpdatedAt,
		})
	}
	return copied
}
