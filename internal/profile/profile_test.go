package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUnknownProfile(t *testing.T) {
	_, err := Get("nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownProfile)
}

func TestEveryProfileWellFormed(t *testing.T) {
	for _, name := range Names() {
		p, err := Get(name)
		require.NoError(t, err, name)

		assert.Greater(t, p.TotalDuration(), time.Duration(0), name)
		require.NotEmpty(t, p.Stages, name)
		assert.Equal(t, 0, p.Stages[len(p.Stages)-1].Target,
			"%s must ramp down to zero", name)
		assert.NotEmpty(t, p.Thresholds, name)
	}
}

func TestTps500Target(t *testing.T) {
	p, err := Get("tps500")
	require.NoError(t, err)
	assert.Equal(t, 50, p.Stages[0].Target)
	assert.Equal(t, 50, p.Stages[1].Target)
}

func TestBuildStagesThreePhases(t *testing.T) {
	d := Durations{RampUp: 10 * time.Second, Steady: 30 * time.Second, RampDown: 5 * time.Second}
	stages := BuildStages(40, d)

	require.Len(t, stages, 3)
	assert.Equal(t, Stage{10 * time.Second, 40}, stages[0])
	assert.Equal(t, Stage{30 * time.Second, 40}, stages[1])
	assert.Equal(t, Stage{5 * time.Second, 0}, stages[2])
}

func TestCustomMergesThresholdsLastWriteWins(t *testing.T) {
	p, err := Custom(25, "quick", map[string][]string{
		"transaction_duration": {"p95<100"},
		"rows_inserted":        {"count>1000"},
	})
	require.NoError(t, err)

	// Override replaced the default entry entirely.
	assert.Equal(t, []string{"p95<100"}, p.Thresholds["transaction_duration"])
	// Untouched default survives.
	assert.Equal(t, []string{"rate>0.99"}, p.Thresholds["success_rate"])
	// New metric added.
	assert.Equal(t, []string{"count>1000"}, p.Thresholds["rows_inserted"])

	assert.Equal(t, 25, p.Stages[0].Target)
	assert.Equal(t, 0, p.Stages[2].Target)
}

func TestCustomUnknownPreset(t *testing.T) {
	_, err := Custom(10, "warp", nil)
	assert.ErrorIs(t, err, ErrUnknownProfile)
}

func TestStressWidensTolerance(t *testing.T) {
	base, err := Get("tps500")
	require.NoError(t, err)
	stress, err := Get("stress")
	require.NoError(t, err)

	// Overload runs accept slower responses and a higher error rate.
	assert.Equal(t, []string{"p95<2000", "p99<5000"}, stress.Thresholds["transaction_duration"])
	assert.Equal(t, []string{"rate>0.90"}, stress.Thresholds["success_rate"])
	assert.Equal(t, []string{"rate>0.99"}, base.Thresholds["success_rate"])
}

func TestGetReturnsIndependentCopy(t *testing.T) {
	a, err := Get("smoke")
	require.NoError(t, err)
	a.Stages[0].Target = 9999
	a.Thresholds["success_rate"][0] = "rate>0"
	a.Tags["tier"] = "mutated"

	b, err := Get("smoke")
	require.NoError(t, err)
	assert.Equal(t, 5, b.Stages[0].Target)
	assert.Equal(t, "rate>0.99", b.Thresholds["success_rate"][0])
	assert.Equal(t, "smoke", b.Tags["tier"])
}

func TestPresetNames(t *testing.T) {
	names := PresetNames()
	assert.Contains(t, names, "quick")
	assert.Contains(t, names, "soak")
	assert.Contains(t, names, "stress")
}
