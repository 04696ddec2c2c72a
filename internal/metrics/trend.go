package metrics

import (
	"math"
	"sort"
	"sync"
)

// Trend records a distribution of values (milliseconds for durations).
// Inserts are O(1); median and percentiles are computed lazily at
// reporting time over a sorted copy, keeping the hot path cheap.
type Trend struct {
	name string

	mu      sync.Mutex
	samples []float64
	sum     float64
	min     float64
	max     float64
}

// NewTrend creates an empty trend.
func NewTrend(name string) *Trend {
	return &Trend{name: name, min: math.Inf(1), max: math.Inf(-1)}
}

// Name returns the metric name of the trend.
func (t *Trend) Name() string { return t.name }

// Add records one sample. Negative samples are clamped to zero so
// durations can never go negative.
func (t *Trend) Add(v float64) {
	if v < 0 {
		v = 0
	}
	t.mu.Lock()
	t.samples = append(t.samples, v)
	t.sum += v
	if v < t.min {
		t.min = v
	}
	if v > t.max {
		t.max = v
	}
	t.mu.Unlock()
}

// Count returns the number of recorded samples.
func (t *Trend) Count() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int64(len(t.samples))
}

// Avg returns the running average, or 0 with no samples.
func (t *Trend) Avg() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.samples) == 0 {
		return 0
	}
	return t.sum / float64(len(t.samples))
}

// Min returns the smallest sample, or 0 with no samples.
func (t *Trend) Min() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.samples) == 0 {
		return 0
	}
	return t.min
}

// Max returns the largest sample, or 0 with no samples.
func (t *Trend) Max() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.samples) == 0 {
		return 0
	}
	return t.max
}

// TrendStats is a point-in-time summary of a trend.
type TrendStats struct {
	Count int64   `json:"count"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Med   float64 `json:"med"`
	P90   float64 `json:"p90"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// Stats sorts a copy of the samples and computes the full summary,
// including the percentiles deferred from insert time.
func (t *Trend) Stats() TrendStats {
	t.mu.Lock()
	sorted := make([]float64, len(t.samples))
	copy(sorted, t.samples)
	sum := t.sum
	t.mu.Unlock()

	if len(sorted) == 0 {
		return TrendStats{}
	}
	sort.Float64s(sorted)

	return TrendStats{
		Count: int64(len(sorted)),
		Avg:   sum / float64(len(sorted)),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Med:   percentile(sorted, 0.50),
		P90:   percentile(sorted, 0.90),
		P95:   percentile(sorted, 0.95),
		P99:   percentile(sorted, 0.99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
