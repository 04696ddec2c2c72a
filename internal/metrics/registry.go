// Package metrics provides the process-wide measurement registry for a
// load-generation run: monotonic counters, success/failure rates and
// latency distributions with lazily computed percentiles.
package metrics

import (
	"sync/atomic"
	"time"
)

// OpKind classifies an operation for per-kind latency tracking.
type OpKind string

const (
	OpRead   OpKind = "read"
	OpWrite  OpKind = "write"
	OpDelete OpKind = "delete"
	OpBatch  OpKind = "batch"
)

// ErrorKind classifies a recorded failure.
type ErrorKind string

const (
	ErrKindTimeout    ErrorKind = "timeout"
	ErrKindConnection ErrorKind = "connection"
	ErrKindValidation ErrorKind = "validation"
)

// Well-known metric names, addressable by threshold expressions.
const (
	MetricTransactions     = "transactions_total"
	MetricErrors           = "errors_total"
	MetricSuccessRate      = "success_rate"
	MetricDuration         = "transaction_duration"
	MetricBytesProcessed   = "bytes_processed"
	MetricRecordsProcessed = "records_processed"
	MetricDroppedFrames    = "dropped_frames"
	MetricRowsInserted     = "rows_inserted"
	MetricRowsUpdated      = "rows_updated"
	MetricRowsDeleted      = "rows_deleted"
	MetricReducerSuccess   = "reducer_success"
	MetricReducerErrors    = "reducer_errors"
)

// Counter is a monotonically increasing counter. Negative deltas are
// ignored so the counter can never move backwards.
type Counter struct {
	value atomic.Int64
}

// Add increments the counter by n. Calls with n < 0 are dropped.
func (c *Counter) Add(n int64) {
	if n < 0 {
		return
	}
	c.value.Add(n)
}

// Inc increments the counter by one.
func (c *Counter) Inc() {
	c.value.Add(1)
}

// Value returns the current count.
func (c *Counter) Value() int64 {
	return c.value.Load()
}

// Rate tracks the fraction of true observations in a boolean stream.
type Rate struct {
	trues atomic.Int64
	total atomic.Int64
}

// Add records one boolean observation.
func (r *Rate) Add(ok bool) {
	r.total.Add(1)
	if ok {
		r.trues.Add(1)
	}
}

// Value returns the fraction of true observations, or 0 with no samples.
func (r *Rate) Value() float64 {
	total := r.total.Load()
	if total == 0 {
		return 0
	}
	return float64(r.trues.Load()) / float64(total)
}

// Total returns the number of observations recorded.
func (r *Rate) Total() int64 {
	return r.total.Load()
}

// Registry accumulates all metrics for a single run. One Registry is
// constructed per run and shared by reference across every virtual user;
// each metric synchronizes independently, so recording against one metric
// never serializes recording against another.
type Registry struct {
	transactions Counter
	errors       Counter
	successRate  Rate

	duration   *Trend
	kindTrends map[OpKind]*Trend

	bytesProcessed   Counter
	recordsProcessed Counter

	errorKinds map[ErrorKind]*Counter

	// Persistent-channel dispatch counters.
	droppedFrames  Counter
	rowsInserted   Counter
	rowsUpdated    Counter
	rowsDeleted    Counter
	reducerSuccess Counter
	reducerErrors  Counter

	prom *promMirror
}

// New creates an empty Registry. All metric series exist up front so
// recording never allocates on the hot path.
func New() *Registry {
	r := &Registry{
		duration: NewTrend(MetricDuration),
		kindTrends: map[OpKind]*Trend{
			OpRead:   NewTrend("read_duration"),
			OpWrite:  NewTrend("write_duration"),
			OpDelete: NewTrend("delete_duration"),
			OpBatch:  NewTrend("batch_duration"),
		},
		errorKinds: map[ErrorKind]*Counter{
			ErrKindTimeout:    {},
			ErrKindConnection: {},
			ErrKindValidation: {},
		},
	}
	r.prom = newPromMirror()
	return r
}

// RecordSuccess records one successful operation: the transaction counter,
// the success rate, the overall latency trend and the kind-specific trend.
// Bytes/records counters move only for read and write kinds.
func (r *Registry) RecordSuccess(kind OpKind, duration time.Duration, bytes, records int64) {
	if duration < 0 {
		duration = 0
	}
	r.transactions.Inc()
	r.successRate.Add(true)
	ms := float64(duration) / float64(time.Millisecond)
	r.duration.Add(ms)
	if t, ok := r.kindTrends[kind]; ok {
		t.Add(ms)
	}
	if kind == OpRead || kind == OpWrite {
		r.bytesProcessed.Add(bytes)
		r.recordsProcessed.Add(records)
	}
	r.prom.observeSuccess(string(kind), duration)
}

// RecordError records one failed operation: the transaction counter, the
// error counter, the success rate and the specific error-kind counter.
func (r *Registry) RecordError(errKind ErrorKind, kind OpKind) {
	r.transactions.Inc()
	r.errors.Inc()
	r.successRate.Add(false)
	if c, ok := r.errorKinds[errKind]; ok {
		c.Inc()
	}
	r.prom.observeError(string(errKind), string(kind))
}

// RecordDroppedFrame counts an inbound frame that could not be decoded or
// carried an unrecognized tag. Dropped frames are observable but non-fatal.
func (r *Registry) RecordDroppedFrame() {
	r.droppedFrames.Inc()
	r.prom.droppedFrames.Inc()
}

// RecordSubscriptionUpdate adjusts the row counters from one
// subscription_update frame.
func (r *Registry) RecordSubscriptionUpdate(inserts, updates, deletes int64) {
	r.rowsInserted.Add(inserts)
	r.rowsUpdated.Add(updates)
	r.rowsDeleted.Add(deletes)
}

// RecordReducerOutcome adjusts the reducer counters from one
// transaction_update frame.
func (r *Registry) RecordReducerOutcome(ok bool) {
	if ok {
		r.reducerSuccess.Inc()
	} else {
		r.reducerErrors.Inc()
	}
}

// Transactions returns the total number of recorded operations.
func (r *Registry) Transactions() int64 { return r.transactions.Value() }

// Errors returns the total number of recorded failures.
func (r *Registry) Errors() int64 { return r.errors.Value() }

// SuccessRate returns the fraction of successful operations.
func (r *Registry) SuccessRate() float64 { return r.successRate.Value() }

// ErrorCount returns the count for one error kind.
func (r *Registry) ErrorCount(kind ErrorKind) int64 {
	if c, ok := r.errorKinds[kind]; ok {
		return c.Value()
	}
	return 0
}
