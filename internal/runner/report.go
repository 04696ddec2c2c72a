package runner

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/stdb-loadgen/internal/metrics"
)

// Report is the end-of-run result: aggregate numbers, the evaluated
// thresholds, and the full metric snapshot for downstream tooling.
type Report struct {
	Profile      string            `json:"profile"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
	Duration     float64           `json:"duration_seconds"`
	Iterations   int64             `json:"iterations"`
	Transactions int64             `json:"transactions"`
	Errors       int64             `json:"errors"`
	SuccessRate  float64           `json:"success_rate"`
	Thresholds   []ThresholdResult `json:"thresholds"`
	Passed       bool              `json:"passed"`
	Snapshot     metrics.Snapshot  `json:"snapshot"`
}

func (r *Runner) buildReport() *Report {
	finished := time.Now()
	snap := r.reg.Snapshot()
	results, passed := EvaluateThresholds(r.profile.Thresholds, snap)

	return &Report{
		Profile:      r.profile.Name,
		StartedAt:    r.started,
		FinishedAt:   finished,
		Duration:     finished.Sub(r.started).Seconds(),
		Iterations:   r.iterations.Load(),
		Transactions: r.reg.Transactions(),
		Errors:       r.reg.Errors(),
		SuccessRate:  r.reg.SuccessRate(),
		Thresholds:   results,
		Passed:       passed,
		Snapshot:     snap,
	}
}

// WriteJSON emits the full machine-readable report.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText emits the human summary printed at the end of a run.
func (r *Report) WriteText(w io.Writer) {
	fmt.Fprintf(w, "\n=== %s ===\n", r.Profile)
	fmt.Fprintf(w, "Duration:      %.1fs\n", r.Duration)
	fmt.Fprintf(w, "Iterations:    %d\n", r.Iterations)
	fmt.Fprintf(w, "Transactions:  %d\n", r.Transactions)
	fmt.Fprintf(w, "Errors:        %d\n", r.Errors)
	fmt.Fprintf(w, "Success rate:  %.4f\n", r.SuccessRate)

	if v, ok := r.Snapshot.Lookup(metrics.MetricDuration); ok && v.Trend.Count > 0 {
		t := v.Trend
		fmt.Fprintf(w, "Latency (ms):  avg=%.2f min=%.2f med=%.2f p90=%.2f p95=%.2f p99=%.2f max=%.2f\n",
			t.Avg, t.Min, t.Med, t.P90, t.P95, t.P99, t.Max)
	}

	fmt.Fprintln(w, "Thresholds:")
	for _, res := range r.Thresholds {
		mark := "PASS"
		if !res.Pass {
			mark = "FAIL"
		}
		if res.Err != "" {
			fmt.Fprintf(w, "  [%s] %s: %s (%s)\n", mark, res.Metric, res.Expr, res.Err)
			continue
		}
		fmt.Fprintf(w, "  [%s] %s: %s (actual %.4f)\n", mark, res.Metric, res.Expr, res.Actual)
	}

	verdict := "PASSED"
	if !r.Passed {
		verdict = "FAILED"
	}
	fmt.Fprintf(w, "Result: %s\n", verdict)
}
