// Package profile builds concurrency schedules and pass/fail thresholds
// for load runs. A profile is a named, immutable stage plan; thresholds
// are declarative assertions handed to the runner, never evaluated here.
package profile

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrUnknownProfile is returned when a profile name is not registered.
// Hitting it is a fatal configuration error at setup time.
var ErrUnknownProfile = errors.New("unknown load profile")

// Stage is one ramp segment: hold or move toward Target over Duration.
type Stage struct {
	Duration time.Duration `json:"duration"`
	Target   int           `json:"target"`
}

// LoadProfile is a complete run schedule. Built once per run and never
// mutated afterwards; Get and Custom hand out independent copies.
type LoadProfile struct {
	Name       string              `json:"name"`
	Stages     []Stage             `json:"stages"`
	Thresholds map[string][]string `json:"thresholds"`
	Tags       map[string]string   `json:"tags"`
}

// TotalDuration returns the sum of all stage durations.
func (p LoadProfile) TotalDuration() time.Duration {
	var total time.Duration
	for _, s := range p.Stages {
		total += s.Duration
	}
	return total
}

// Durations is one ramp-up/steady/ramp-down timing preset.
type Durations struct {
	RampUp   time.Duration
	Steady   time.Duration
	RampDown time.Duration
}

// Duration presets. Each phase is independently configurable by building
// a Durations value by hand instead of using a preset.
var presets = map[string]Durations{
	"quick":    {RampUp: 30 * time.Second, Steady: 1 * time.Minute, RampDown: 30 * time.Second},
	"standard": {RampUp: 1 * time.Minute, Steady: 5 * time.Minute, RampDown: 1 * time.Minute},
	"extended": {RampUp: 2 * time.Minute, Steady: 10 * time.Minute, RampDown: 2 * time.Minute},
	"soak":     {RampUp: 5 * time.Minute, Steady: 60 * time.Minute, RampDown: 5 * time.Minute},
	"stress":   {RampUp: 2 * time.Minute, Steady: 15 * time.Minute, RampDown: 2 * time.Minute},
}

// PresetDurations returns the named duration preset.
func PresetDurations(name string) (Durations, bool) {
	d, ok := presets[name]
	return d, ok
}

// PresetNames returns the registered preset names, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildStages produces the canonical three-phase schedule: ramp up to
// target, hold steady, ramp back down to zero. The final stage target is
// always zero so every run ends drained.
func BuildStages(target int, d Durations) []Stage {
	return []Stage{
		{Duration: d.RampUp, Target: target},
		{Duration: d.Steady, Target: target},
		{Duration: d.RampDown, Target: 0},
	}
}

// defaultThresholds returns the baseline pass/fail assertions applied to
// every profile unless overridden.
func defaultThresholds() map[string][]string {
	return map[string][]string{
		"transaction_duration": {"p95<500", "p99<1000"},
		"success_rate":         {"rate>0.99"},
	}
}

// registry holds every built-in profile. The stress and soak entries
// widen latency tolerance and raise the acceptable error rate:
// sustained and overload runs are expected to degrade, and the
// thresholds encode how much degradation still counts as a pass.
var registry = map[string]LoadProfile{
	"smoke": {
		Name:       "smoke",
		Stages:     BuildStages(5, presets["quick"]),
		Thresholds: defaultThresholds(),
		Tags:       map[string]string{"tier": "smoke"},
	},
	"tps500": {
		Name:       "tps500",
		Stages:     BuildStages(50, presets["standard"]),
		Thresholds: defaultThresholds(),
		Tags:       map[string]string{"tier": "baseline", "target_tps": "500"},
	},
	"spike": {
		Name: "spike",
		Stages: []Stage{
			{Duration: 30 * time.Second, Target: 10},
			{Duration: 30 * time.Second, Target: 200},
			{Duration: 2 * time.Minute, Target: 200},
			{Duration: 30 * time.Second, Target: 10},
			{Duration: 30 * time.Second, Target: 0},
		},
		Thresholds: map[string][]string{
			"transaction_duration": {"p95<1500", "p99<3000"},
			"success_rate":         {"rate>0.95"},
		},
		Tags: map[string]string{"tier": "spike"},
	},
	"soak": {
		Name:   "soak",
		Stages: BuildStages(30, presets["soak"]),
		Thresholds: map[string][]string{
			"transaction_duration": {"p95<800", "p99<2000"},
			"success_rate":         {"rate>0.95"},
		},
		Tags: map[string]string{"tier": "soak"},
	},
	"stress": {
		Name:   "stress",
		Stages: BuildStages(200, presets["stress"]),
		Thresholds: map[string][]string{
			"transaction_duration": {"p95<2000", "p99<5000"},
			"success_rate":         {"rate>0.90"},
		},
		Tags: map[string]string{"tier": "stress"},
	},
}

// Get returns a copy of the named profile, or ErrUnknownProfile.
func Get(name string) (LoadProfile, error) {
	p, ok := registry[name]
	if !ok {
		return LoadProfile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return p.clone(), nil
}

// Names returns the registered profile names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Custom builds a one-off profile from a target concurrency and a
// duration preset. Extra thresholds are merged over the defaults; on a
// metric-name collision the extra entry wins.
func Custom(target int, preset string, extra map[string][]string) (LoadProfile, error) {
	d, ok := PresetDurations(preset)
	if !ok {
		return LoadProfile{}, fmt.Errorf("%w: duration preset %q", ErrUnknownProfile, preset)
	}

	thresholds := defaultThresholds()
	for metric, exprs := range extra {
		thresholds[metric] = append([]string(nil), exprs...)
	}

	return LoadProfile{
		Name:       fmt.Sprintf("custom_%s_%d", preset, target),
		Stages:     BuildStages(target, d),
		Thresholds: thresholds,
		Tags:       map[string]string{"tier": "custom", "preset": preset},
	}, nil
}

func (p LoadProfile) clone() LoadProfile {
	out := LoadProfile{
		Name:       p.Name,
		Stages:     append([]Stage(nil), p.Stages...),
		Thresholds: make(map[string][]string, len(p.Thresholds)),
		Tags:       make(map[string]string, len(p.Tags)),
	}
	for metric, exprs := range p.Thresholds {
		out.Thresholds[metric] = append([]string(nil), exprs...)
	}
	for k, v := range p.Tags {
		out.Tags[k] = v
	}
	return out
}
