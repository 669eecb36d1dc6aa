package event

import (
	"fmt"
	"math"
	"time"
)

type Performance struct {
	Timestamp  time.Time      `json:"timestamp"`
	MetricName string         `json:"metricName"`
	Value      float64        `json:"value"`
	Unit       string         `json:"unit,omitempty"`
	Tags       map[string]any `json:"tags,omitempty"`
}

type PerformanceOption func(*Performance)

func WithUnit(unit string) PerformanceOption {
	return func(p *Performance) { p.Unit = unit }
}

func WithMetricTags(tags map[string]any) PerformanceOption {
	return func(p *Performance) { p.Tags = copyMap(tags) }
}

func NewPerformance(ts time.Time, metricName string, value float64, opts ...PerformanceOption) (Performance, error) {
	if metricName == "" {
		return Performance{}, missing("performance", "metricName")
	}
	if ts.IsZero() {
		return Performance{}, missing("performance", "timestamp")
	}
	// encoding/json refuses NaN and Inf, which would fail the whole batch.
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Performance{}, fmt.Errorf("performance: %s: value %v is not finite", metricName, value)
	}

	p := Performance{
		Timestamp:  ts,
		MetricName: metricName,
		Value:      value,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p, nil
}
