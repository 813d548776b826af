package exporter

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/cam3ron2/github-activity-report/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SnapshotReader reads metric snapshots.
type SnapshotReader interface {
	Snapshot(ctx context.Context) ([]store.MetricPoint, error)
}

// NewRegistry returns a registry that renders reader snapshots as gauges.
func NewRegistry(reader SnapshotReader, logger *zap.Logger) *prometheus.Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(&snapshotCollector{reader: reader, logger: logger})
	return registry
}

// NewOpenMetricsHandler returns a handler that renders store snapshots through the Prometheus OpenMetrics encoder.
func NewOpenMetricsHandler(reader SnapshotReader, logger *zap.Logger) http.Handler {
	return promhttp.HandlerFor(NewRegistry(reader, logger), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// WriteTextfile writes the current snapshot to path in the node exporter textfile format.
func WriteTextfile(path string, reader SnapshotReader, logger *zap.Logger) error {
	if err := prometheus.WriteToTextfile(path, NewRegistry(reader, logger)); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}

type snapshotCollector struct {
	reader SnapshotReader
	logger *zap.Logger
}

func (c *snapshotCollector) Describe(_ chan<- *prometheus.Desc) {}

func (c *snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.reader == nil {
		return
	}

	points, err := c.reader.Snapshot(context.Background())
	if err != nil {
		c.logger.Warn("metric snapshot failed", zap.Error(err))
		return
	}

	for _, point := range points {
		if point.Name == "" {
			continue
		}

		labelKeys := make([]string, 0, len(point.Labels))
		for key := range point.Labels {
			labelKeys = append(labelKeys, key)
		}
		sort.Strings(labelKeys)

		labelValues := make([]string, 0, len(labelKeys))
		for _, key := range labelKeys {
			labelValues = append(labelValues, point.Labels[key])
		}

		desc := prometheus.NewDesc(point.Name, helpText(point.Name), labelKeys, nil)
		metric, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, point.Value, labelValues...)
		if err != nil {
			c.logger.Debug("skipping invalid metric", zap.String("metric", point.Name), zap.Error(err))
			continue
		}
		ch <- metric
	}
}

func helpText(name string) string {
	return "GitHub activity report gauge " + name
}
