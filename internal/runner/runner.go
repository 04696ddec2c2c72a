// Package runner drives virtual users through a load profile's stages,
// then evaluates the profile's thresholds against the collected metrics.
package runner

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/stdb-loadgen/internal/metrics"
	"github.com/stdb-loadgen/internal/profile"
	"github.com/stdb-loadgen/internal/scenario"
)

// rampTick is how often the scheduler re-evaluates the desired
// concurrency while ramping through a stage.
const rampTick = 250 * time.Millisecond

// Options tunes pacing; zero values mean unpaced.
type Options struct {
	// ThinkTime is the base pause between iterations of one virtual
	// user; actual pauses add up to the same amount of jitter.
	ThinkTime time.Duration
	// IterationRate caps iterations per second per virtual user.
	IterationRate float64
}

// Runner owns the run lifecycle: ramping virtual users per the profile
// stages, invoking the dispatcher each iteration, and producing the
// end-of-run report.
type Runner struct {
	profile profile.LoadProfile
	disp    *scenario.Dispatcher
	reg     *metrics.Registry
	opts    Options
	log     *logrus.Entry

	started    time.Time
	activeVUs  atomic.Int64
	iterations atomic.Int64
}

func New(p profile.LoadProfile, disp *scenario.Dispatcher, reg *metrics.Registry, opts Options, log *logrus.Logger) *Runner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{
		profile: p,
		disp:    disp,
		reg:     reg,
		opts:    opts,
		log:     log.WithField("component", "runner"),
	}
}

// ActiveVUs reports the current number of running virtual users.
func (r *Runner) ActiveVUs() int64 { return r.activeVUs.Load() }

// Iterations reports the total iterations completed so far.
func (r *Runner) Iterations() int64 { return r.iterations.Load() }

// Run executes every stage of the profile and returns the report. It
// ends early, still reporting, when ctx is cancelled.
func (r *Runner) Run(ctx context.Context) *Report {
	r.started = time.Now()
	r.log.WithFields(logrus.Fields{
		"profile": r.profile.Name,
		"stages":  len(r.profile.Stages),
	}).Info("run starting")

	var wg sync.WaitGroup
	var cancels []context.CancelFunc

	scale := func(desired int) {
		for len(cancels) < desired {
			stopCtx, cancel := context.WithCancel(ctx)
			cancels = append(cancels, cancel)
			wg.Add(1)
			r.activeVUs.Add(1)
			go r.vuLoop(ctx, stopCtx, &wg)
		}
		for len(cancels) > desired {
			last := len(cancels) - 1
			cancels[last]()
			cancels = cancels[:last]
		}
	}

	current := 0
stages:
	for i, stage := range r.profile.Stages {
		r.log.WithFields(logrus.Fields{
			"stage":  i,
			"from":   current,
			"target": stage.Target,
			"for":    stage.Duration.String(),
		}).Info("entering stage")

		stageStart := time.Now()
		ticker := time.NewTicker(rampTick)
		for {
			elapsed := time.Since(stageStart)
			if elapsed >= stage.Duration {
				break
			}
			frac := float64(elapsed) / float64(stage.Duration)
			desired := current + int(math.Round(float64(stage.Target-current)*frac))
			scale(desired)

			select {
			case <-ctx.Done():
				ticker.Stop()
				r.log.Warn("run cancelled mid-stage")
				break stages
			case <-ticker.C:
			}
		}
		ticker.Stop()
		scale(stage.Target)
		current = stage.Target
	}

	for _, cancel := range cancels {
		cancel()
	}
	wg.Wait()

	report := r.buildReport()
	r.log.WithFields(logrus.Fields{
		"iterations":   report.Iterations,
		"transactions": report.Transactions,
		"errors":       report.Errors,
		"passed":       report.Passed,
	}).Info("run finished")
	return report
}

// vuLoop is one virtual user. stopCtx only gates starting the next
// iteration; an iteration in flight runs against the run context so a
// ramp-down drains cleanly instead of aborting mid-call.
func (r *Runner) vuLoop(runCtx, stopCtx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer r.activeVUs.Add(-1)

	var limiter *rate.Limiter
	if r.opts.IterationRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(r.opts.IterationRate), 1)
	}

	for {
		select {
		case <-stopCtx.Done():
			return
		default:
		}

		if limiter != nil {
			if err := limiter.Wait(stopCtx); err != nil {
				return
			}
		}

		r.disp.RunOnce(runCtx)
		r.iterations.Add(1)

		if r.opts.ThinkTime > 0 {
			pause := r.opts.ThinkTime + time.Duration(rand.Int63n(int64(r.opts.ThinkTime)))
			select {
			case <-stopCtx.Done():
				return
			case <-time.After(pause):
			}
		}
	}
}
