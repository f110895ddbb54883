package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/insightloop/core/pkg/adapter"
	"github.com/insightloop/core/pkg/models"
)

// MetricQuery computes one metric: a scalar SQL query against a
// datasource whose first cell of the first row is the metric value.
type MetricQuery struct {
	DatasourceID string `json:"datasource_id" yaml:"datasource_id"`
	SQL          string `json:"sql" yaml:"sql"`
}

// MetricQuerySource computes metric snapshots by running the configured
// scalar queries through the adapter pool. A query failure fails the
// whole snapshot so the monitoring pass never evaluates rules against
// partial data.
type MetricQuerySource struct {
	repo    DatasourceRepository
	pool    *adapter.Pool
	queries map[string]MetricQuery
	logger  *slog.Logger
}

// NewMetricQuerySource creates a source over the configured metric queries.
func NewMetricQuerySource(repo DatasourceRepository, pool *adapter.Pool, queries map[string]MetricQuery) *MetricQuerySource {
	cp := make(map[string]MetricQuery, len(queries))
	for k, v := range queries {
		cp[k] = v
	}
	return &MetricQuerySource{
		repo:    repo,
		pool:    pool,
		queries: cp,
		logger:  slog.Default().With("component", "metric-source"),
	}
}

// Snapshot runs every metric query and returns the values under one
// timestamp.
func (s *MetricQuerySource) Snapshot(ctx context.Context) (models.MetricSnapshot, error) {
	values := make(map[string]float64, len(s.queries))
	for key, q := range s.queries {
		value, err := s.scalar(ctx, q)
		if err != nil {
			return models.MetricSnapshot{}, fmt.Errorf("metric %q: %w", key, err)
		}
		values[key] = value
	}
	return models.MetricSnapshot{Values: values, Timestamp: time.Now().UTC()}, nil
}

func (s *MetricQuerySource) scalar(ctx context.Context, q MetricQuery) (float64, error) {
	ds, err := s.repo.Get(ctx, q.DatasourceID)
	if err != nil {
		return 0, err
	}
	a, err := s.pool.Acquire(ctx, ds)
	if err != nil {
		return 0, err
	}
	res, err := a.Execute(ctx, q.SQL, adapter.ExecuteOptions{Timeout: 30 * time.Second, MaxRows: 1})
	s.pool.Release(ds, a, err == nil)
	if err != nil {
		return 0, err
	}
	if len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
		return 0, fmt.Errorf("query returned no value")
	}
	return toFloat(res.Rows[0][0])
}

func toFloat(cell any) (float64, error) {
	switch v := cell.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(v, 64)
	case []byte:
		return strconv.ParseFloat(string(v), 64)
	case nil:
		return 0, fmt.Errorf("query returned NULL")
	default:
		return 0, fmt.Errorf("unsupported metric value type %T", cell)
	}
}
