package runner

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/stdb-loadgen/internal/metrics"
)

// ThresholdResult is one evaluated pass/fail assertion.
type ThresholdResult struct {
	Metric string  `json:"metric"`
	Expr   string  `json:"expr"`
	Actual float64 `json:"actual"`
	Pass   bool    `json:"pass"`
	Err    string  `json:"error,omitempty"`
}

// exprPattern matches "<aggregate><op><number>" with an optional ms
// suffix, e.g. "p95<500", "rate>0.99", "avg<=120ms".
var exprPattern = regexp.MustCompile(`^(avg|min|max|med|p90|p95|p99|rate|count)\s*(<=|>=|<|>)\s*([0-9]+(?:\.[0-9]+)?)(ms)?$`)

// EvaluateThresholds evaluates every threshold expression against the
// snapshot. A malformed expression or an unknown metric fails the run,
// the same as a missed assertion. Results come back in stable order.
func EvaluateThresholds(thresholds map[string][]string, snap metrics.Snapshot) ([]ThresholdResult, bool) {
	names := make([]string, 0, len(thresholds))
	for name := range thresholds {
		names = append(names, name)
	}
	sort.Strings(names)

	var results []ThresholdResult
	passed := true
	for _, name := range names {
		for _, expr := range thresholds[name] {
			res := evaluateExpr(name, expr, snap)
			if !res.Pass {
				passed = false
			}
			results = append(results, res)
		}
	}
	return results, passed
}

func evaluateExpr(metric, expr string, snap metrics.Snapshot) ThresholdResult {
	res := ThresholdResult{Metric: metric, Expr: expr}

	m := exprPattern.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		res.Err = fmt.Sprintf("malformed threshold expression %q", expr)
		return res
	}
	agg, op := m[1], m[2]
	want, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		res.Err = fmt.Sprintf("bad threshold value %q", m[3])
		return res
	}

	value, ok := snap.Lookup(metric)
	if !ok {
		res.Err = fmt.Sprintf("unknown metric %q", metric)
		return res
	}
	actual, err := extract(value, agg)
	if err != nil {
		res.Err = err.Error()
		return res
	}

	res.Actual = actual
	res.Pass = compare(actual, op, want)
	return res
}

// extract pulls the aggregate named by the expression out of a metric
// value, honoring the value's type.
func extract(v metrics.Value, agg string) (float64, error) {
	switch agg {
	case "rate":
		if v.Type != "rate" {
			return 0, fmt.Errorf("aggregate %q needs a rate metric, got %s", agg, v.Type)
		}
		return v.Rate, nil
	case "count":
		if v.Type == "trend" {
			return float64(v.Trend.Count), nil
		}
		return float64(v.Count), nil
	}

	if v.Type != "trend" {
		return 0, fmt.Errorf("aggregate %q needs a trend metric, got %s", agg, v.Type)
	}
	switch agg {
	case "avg":
		return v.Trend.Avg, nil
	case "min":
		return v.Trend.Min, nil
	case "max":
		return v.Trend.Max, nil
	case "med":
		return v.Trend.Med, nil
	case "p90":
		return v.Trend.P90, nil
	case "p95":
		return v.Trend.P95, nil
	case "p99":
		return v.Trend.P99, nil
	}
	return 0, fmt.Errorf("unknown aggregate %q", agg)
}

func compare(actual float64, op string, want float64) bool {
	switch op {
	case "<":
		return actual < want
	case "<=":
		return actual <= want
	case ">":
		return actual > want
	case ">=":
		return actual >= want
	}
	return false
}
