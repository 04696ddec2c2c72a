package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrendEmpty(t *testing.T) {
	tr := NewTrend("empty")
	assert.Equal(t, int64(0), tr.Count())
	assert.Equal(t, 0.0, tr.Avg())
	assert.Equal(t, 0.0, tr.Min())
	assert.Equal(t, 0.0, tr.Max())
	assert.Equal(t, TrendStats{}, tr.Stats())
}

func TestTrendRunningStats(t *testing.T) {
	tr := NewTrend("latency")
	for _, v := range []float64{10, 20, 30, 40} {
		tr.Add(v)
	}

	assert.Equal(t, int64(4), tr.Count())
	assert.InDelta(t, 25.0, tr.Avg(), 1e-9)
	assert.Equal(t, 10.0, tr.Min())
	assert.Equal(t, 40.0, tr.Max())
}

func TestTrendPercentiles(t *testing.T) {
	tr := NewTrend("latency")
	// 1..100, so pNN lands exactly on NN.
	for i := 1; i <= 100; i++ {
		tr.Add(float64(i))
	}

	stats := tr.Stats()
	assert.Equal(t, 50.0, stats.Med)
	assert.Equal(t, 90.0, stats.P90)
	assert.Equal(t, 95.0, stats.P95)
	assert.Equal(t, 99.0, stats.P99)
	assert.Equal(t, 1.0, stats.Min)
	assert.Equal(t, 100.0, stats.Max)
}

func TestTrendNegativeClamped(t *testing.T) {
	tr := NewTrend("latency")
	tr.Add(-5)
	assert.Equal(t, 0.0, tr.Min())
	assert.Equal(t, 0.0, tr.Max())
}

func TestTrendConcurrentAdd(t *testing.T) {
	tr := NewTrend("latency")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				tr.Add(float64(j))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(8000), tr.Count())
	assert.Equal(t, 999.0, tr.Max())
}
