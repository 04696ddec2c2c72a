package metrics

import "time"

// Value is the point-in-time state of one named metric. Exactly one of
// the typed fields is meaningful depending on Type.
type Value struct {
	Type  string     `json:"type"` // "counter", "rate" or "trend"
	Count int64      `json:"count,omitempty"`
	Rate  float64    `json:"rate,omitempty"`
	Trend TrendStats `json:"trend,omitempty"`
}

// Snapshot is a consistent-enough view of every metric series, taken at
// run end for reporting and threshold evaluation. Percentiles are
// computed here, not during the run.
type Snapshot struct {
	Taken   time.Time        `json:"taken"`
	Metrics map[string]Value `json:"metrics"`
}

// Snapshot materializes all metric values, computing trend percentiles.
func (r *Registry) Snapshot() Snapshot {
	m := map[string]Value{
		MetricTransactions:     {Type: "counter", Count: r.transactions.Value()},
		MetricErrors:           {Type: "counter", Count: r.errors.Value()},
		MetricSuccessRate:      {Type: "rate", Rate: r.successRate.Value(), Count: r.successRate.Total()},
		MetricDuration:         {Type: "trend", Trend: r.duration.Stats()},
		MetricBytesProcessed:   {Type: "counter", Count: r.bytesProcessed.Value()},
		MetricRecordsProcessed: {Type: "counter", Count: r.recordsProcessed.Value()},
		MetricDroppedFrames:    {Type: "counter", Count: r.droppedFrames.Value()},
		MetricRowsInserted:     {Type: "counter", Count: r.rowsInserted.Value()},
		MetricRowsUpdated:      {Type: "counter", Count: r.rowsUpdated.Value()},
		MetricRowsDeleted:      {Type: "counter", Count: r.rowsDeleted.Value()},
		MetricReducerSuccess:   {Type: "counter", Count: r.reducerSuccess.Value()},
		MetricReducerErrors:    {Type: "counter", Count: r.reducerErrors.Value()},
	}
	for kind, trend := range r.kindTrends {
		m[string(kind)+"_duration"] = Value{Type: "trend", Trend: trend.Stats()}
	}
	for kind, counter := range r.errorKinds {
		m[string(kind)+"_errors"] = Value{Type: "counter", Count: counter.Value()}
	}
	return Snapshot{Taken: time.Now(), Metrics: m}
}

// Lookup returns the named metric value from the snapshot.
func (s Snapshot) Lookup(name string) (Value, bool) {
	v, ok := s.Metrics[name]
	return v, ok
}
