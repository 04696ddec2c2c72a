package scenario

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/stdb-loadgen/internal/metrics"
)

// Dispatcher selects scenarios by weight and drives their execution,
// recording exactly one metrics outcome per iteration.
type Dispatcher struct {
	scenarios []Scenario
	total     int
	env       *Env
}

// NewDispatcher builds a dispatcher from the configured name->weight
// map. Unknown scenario names are a configuration error; zero-weight
// entries are dropped.
func NewDispatcher(weights map[string]int, env *Env) (*Dispatcher, error) {
	if env == nil || env.Pool == nil || env.Gen == nil || env.Metrics == nil {
		return nil, fmt.Errorf("dispatcher env is incomplete")
	}
	if env.Log == nil {
		env.Log = logrus.NewEntry(logrus.StandardLogger())
	}

	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)

	d := &Dispatcher{env: env}
	for _, name := range names {
		weight := weights[name]
		if weight < 0 {
			return nil, fmt.Errorf("scenario %q has negative weight %d", name, weight)
		}
		build, ok := builders[name]
		if !ok {
			return nil, fmt.Errorf("unknown scenario %q", name)
		}
		if weight == 0 {
			continue
		}
		s := build()
		s.Weight = weight
		d.scenarios = append(d.scenarios, s)
		d.total += weight
	}
	if d.total == 0 {
		return nil, fmt.Errorf("no scenario has a positive weight")
	}
	return d, nil
}

// Scenarios returns the active scenarios in stable name order.
func (d *Dispatcher) Scenarios() []Scenario {
	out := make([]Scenario, len(d.scenarios))
	copy(out, d.scenarios)
	return out
}

// Pick returns one scenario chosen proportionally to its weight.
func (d *Dispatcher) Pick() *Scenario {
	n := rand.Intn(d.total)
	acc := 0
	for i := range d.scenarios {
		acc += d.scenarios[i].Weight
		if n < acc {
			return &d.scenarios[i]
		}
	}
	return &d.scenarios[0]
}

// RunOnce executes one weighted iteration. The dispatcher owns the
// timer so each iteration lands in the registry exactly once.
func (d *Dispatcher) RunOnce(ctx context.Context) {
	s := d.Pick()
	timer := d.env.Metrics.NewTimer()
	out := s.Execute(ctx, d.env)
	if !out.OK {
		kind := out.ErrKind
		if kind == "" {
			kind = metrics.ErrKindConnection
		}
		timer.StopWithError(kind, s.Kind)
		d.env.Log.WithFields(logrus.Fields{
			"scenario":   s.Name,
			"error_kind": kind,
		}).WithError(out.Err).Debug("scenario iteration failed")
		return
	}
	timer.Stop(s.Kind, out.Bytes, out.Records)
}
