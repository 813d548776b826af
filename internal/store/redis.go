package store

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/cam3ron2/github-activity-report/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultNamespace prefixes every key the Redis store writes.
const DefaultNamespace = "github-activity-report"

const tracerName = "github-activity-report/internal/store"

type redisCommander interface {
	Ping(ctx context.Context) *redis.StatusCmd
	SIsMember(ctx context.Context, key string, member any) *redis.BoolCmd
	SCard(ctx context.Context, key string) *redis.IntCmd
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
	ExpireAt(ctx context.Context, key string, tm time.Time) *redis.BoolCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...any) *redis.IntCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisStoreConfig configures the Redis-backed metric store.
type RedisStoreConfig struct {
	Namespace string
	Retention time.Duration
	MaxSeries int
}

// RedisStore stores report gauges and documents in Redis.
type RedisStore struct {
	client    redisCommander
	closeFn   func() error
	namespace string
	retention time.Duration
	maxSeries int
}

// NewRedisStore creates a Redis-backed metric store.
func NewRedisStore(client redis.UniversalClient, cfg RedisStoreConfig) *RedisStore {
	closeFn := func() error { return nil }
	var commander redisCommander
	if client != nil {
		closeFn = client.Close
		commander = client
	}
	return newRedisStoreFromCommander(commander, closeFn, cfg)
}

func newRedisStoreFromCommander(client redisCommander, closeFn func() error, cfg RedisStoreConfig) *RedisStore {
	namespace := strings.TrimSpace(cfg.Namespace)
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}

	return &RedisStore{
		client:    client,
		closeFn:   closeFn,
		namespace: namespace,
		retention: cfg.Retention,
		maxSeries: cfg.MaxSeries,
	}
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

// Healthy pings Redis.
func (s *RedisStore) Healthy(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis store is not initialized")
	}
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// UpsertMetric inserts or updates a metric point.
func (s *RedisStore) UpsertMetric(ctx context.Context, point MetricPoint) (err error) {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis store is not initialized")
	}
	if err := validatePoint(point); err != nil {
		return err
	}

	ctx, finish := telemetry.StartSpan(ctx, tracerName, "store.redis.upsert_metric", s.spanAttributes(attribute.String("metric.name", point.Name))...)
	defer func() { finish(err) }()

	seriesID := hashSeriesID(metricKey(point.Name, point.Labels))
	isMember, err := s.client.SIsMember(ctx, s.metricsIndexKey(), seriesID).Result()
	if err != nil {
		return fmt.Errorf("check metric membership: %w", err)
	}
	if !isMember && s.maxSeries > 0 {
		seriesCount, err := s.client.SCard(ctx, s.metricsIndexKey()).Result()
		if err != nil {
			return fmt.Errorf("count metric series: %w", err)
		}
		if seriesCount >= int64(s.maxSeries) {
			return fmt.Errorf("max series budget exceeded")
		}
	}

	labelsJSON, err := json.Marshal(point.Labels)
	if err != nil {
		return fmt.Errorf("marshal metric labels: %w", err)
	}

	fields := map[string]any{
		"name":       point.Name,
		"labels":     string(labelsJSON),
		"value":      strconv.FormatFloat(point.Value, 'f', -1, 64),
		"updated_at": strconv.FormatInt(point.UpdatedAt.UnixNano(), 10),
	}

	dataKey := s.metricDataKey(seriesID)
	if err := s.client.HSet(ctx, dataKey, fields).Err(); err != nil {
		return fmt.Errorf("write metric hash: %w", err)
	}
	if err := s.client.SAdd(ctx, s.metricsIndexKey(), seriesID).Err(); err != nil {
		return fmt.Errorf("index metric series: %w", err)
	}

	if s.retention > 0 {
		if err := s.client.ExpireAt(ctx, dataKey, point.UpdatedAt.Add(s.retention)).Err(); err != nil {
			return fmt.Errorf("set metric ttl: %w", err)
		}
	}
	return nil
}

// Snapshot returns all currently available metric series from Redis.
func (s *RedisStore) Snapshot(ctx context.Context) (result []MetricPoint, err error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("redis store is not initialized")
	}

	ctx, finish := telemetry.StartSpan(ctx, tracerName, "store.redis.snapshot", s.spanAttributes()...)
	defer func() { finish(err) }()

	seriesIDs, err := s.client.SMembers(ctx, s.metricsIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list metric series: %w", err)
	}

	result = make([]MetricPoint, 0, len(seriesIDs))
	for _, seriesID := range seriesIDs {
		fields, err := s.client.HGetAll(ctx, s.metricDataKey(seriesID)).Result()
		if err != nil {
			return nil, fmt.Errorf("read metric series %s: %w", seriesID, err)
		}
		if len(fields) == 0 {
			continue
		}

		point, ok := decodeMetricPoint(fields)
		if !ok {
			continue
		}
		result = append(result, point)
	}

	sortPoints(result)
	return result, nil
}

// PutDocument stores body under name. Documents share the metric retention.
func (s *RedisStore) PutDocument(ctx context.Context, name string, body []byte) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis store is not initialized")
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("document name is required")
	}
	if err := s.client.Set(ctx, s.documentKey(name), body, s.retention).Err(); err != nil {
		return fmt.Errorf("write document %s: %w", name, err)
	}
	return nil
}

// Document returns the stored body of name.
func (s *RedisStore) Document(ctx context.Context, name string) ([]byte, bool, error) {
	if s == nil || s.client == nil {
		return nil, false, fmt.Errorf("redis store is not initialized")
	}
	body, err := s.client.Get(ctx, s.documentKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read document %s: %w", name, err)
	}
	return body, true, nil
}

// GC removes stale metric index references where series keys have already expired.
func (s *RedisStore) GC(ctx context.Context, _ time.Time) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis store is not initialized")
	}

	seriesIDs, err := s.client.SMembers(ctx, s.metricsIndexKey()).Result()
	if err != nil {
		return fmt.Errorf("list metric series: %w", err)
	}

	for _, seriesID := range seriesIDs {
		exists, err := s.client.Exists(ctx, s.metricDataKey(seriesID)).Result()
		if err != nil {
			return fmt.Errorf("check metric series %s: %w", seriesID, err)
		}
		if exists == 0 {
			if err := s.client.SRem(ctx, s.metricsIndexKey(), seriesID).Err(); err != nil {
				return fmt.Errorf("unindex metric series %s: %w", seriesID, err)
			}
		}
	}
	return nil
}

// DeleteOlderThan drops every indexed series last updated before cutoff,
// along with index members whose hash is gone or unreadable.
func (s *RedisStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (err error) {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis store is not initialized")
	}

	ctx, finish := telemetry.StartSpan(ctx, tracerName, "store.redis.delete_older_than", s.spanAttributes()...)
	defer func() { finish(err) }()

	seriesIDs, err := s.client.SMembers(ctx, s.metricsIndexKey()).Result()
	if err != nil {
		return fmt.Errorf("list metric series: %w", err)
	}

	cutoffNanos := cutoff.UnixNano()
	for _, seriesID := range seriesIDs {
		dataKey := s.metricDataKey(seriesID)
		raw, err := s.client.HGet(ctx, dataKey, "updated_at").Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("read metric series %s: %w", seriesID, err)
		}
		updatedAtNanos, parseErr := strconv.ParseInt(raw, 10, 64)
		if err == nil && parseErr == nil && updatedAtNanos >= cutoffNanos {
			continue
		}
		if err := s.client.Del(ctx, dataKey).Err(); err != nil {
			return fmt.Errorf("delete metric series %s: %w", seriesID, err)
		}
		if err := s.client.SRem(ctx, s.metricsIndexKey(), seriesID).Err(); err != nil {
			return fmt.Errorf("unindex metric series %s: %w", seriesID, err)
		}
	}
	return nil
}

func decodeMetricPoint(fields map[string]string) (MetricPoint, bool) {
	name := fields["name"]
	if name == "" {
		return MetricPoint{}, false
	}

	var labels map[string]string
	if err := json.Unmarshal([]byte(fields["labels"]), &labels); err != nil {
		return MetricPoint{}, false
	}

	value, err := strconv.ParseFloat(fields["value"], 64)
	if err != nil {
		return MetricPoint{}, false
	}
	updatedAtNanos, err := strconv.ParseInt(fields["updated_at"], 10, 64)
	if err != nil {
		return MetricPoint{}, false
	}

	return MetricPoint{
		Name:      name,
		Labels:    maps.Clone(labels),
		Value:     value,
		UpdatedAt: time.Unix(0, updatedAtNanos),
	}, true
}

func (s *RedisStore) spanAttributes(extra ...attribute.KeyValue) []attribute.KeyValue {
	return append([]attribute.KeyValue{
		attribute.String("db.system", "redis"),
		attribute.String("store.namespace", s.namespace),
	}, extra...)
}

func (s *RedisStore) prefixed(suffix string) string {
	return s.namespace + ":" + suffix
}

func (s *RedisStore) metricsIndexKey() string {
	return s.prefixed("metrics:index")
}

func (s *RedisStore) metricDataKey(seriesID string) string {
	return s.prefixed("metric:" + seriesID)
}

func (s *RedisStore) documentKey(name string) string {
	return s.prefixed("document:" + name)
}

func hashSeriesID(raw string) string {
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}
