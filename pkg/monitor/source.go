package monitor

import (
	"context"
	"time"

	"github.com/insightloop/core/pkg/models"
)

// SourceFunc adapts a plain function into a MetricSource.
type SourceFunc func(ctx context.Context) (map[string]float64, error)

// Snapshot stamps the function's values with the current time.
func (f SourceFunc) Snapshot(ctx context.Context) (models.MetricSnapshot, error) {
	values, err := f(ctx)
	if err != nil {
		return models.MetricSnapshot{}, err
	}
	return models.MetricSnapshot{Values: values, Timestamp: time.Now().UTC()}, nil
}

// CompositeSource merges several sources into one snapshot; later sources
// win on key collisions. A failing source fails the whole snapshot so a
// pass never evaluates rules against partial data.
type CompositeSource []MetricSource

// Snapshot collects every source's values under one timestamp.
func (c CompositeSource) Snapshot(ctx context.Context) (models.MetricSnapshot, error) {
	merged := make(map[string]float64)
	for _, src := range c {
		snap, err := src.Snapshot(ctx)
		if err != nil {
			return models.MetricSnapshot{}, err
		}
		for k, v := range snap.Values {
			merged[k] = v
		}
	}
	return models.MetricSnapshot{Values: merged, Timestamp: time.Now().UTC()}, nil
}
