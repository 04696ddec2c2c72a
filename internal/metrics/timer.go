package metrics

import (
	"sync/atomic"
	"time"
)

// Timer is a scoped handle measuring one operation. Exactly one of Stop
// or StopWithError takes effect per timer; later calls are no-ops, so a
// timed code path records exactly one outcome as long as one of the two
// is reached.
type Timer struct {
	registry *Registry
	start    time.Time
	done     atomic.Bool
}

// NewTimer starts a timer against the registry.
func (r *Registry) NewTimer() *Timer {
	return &Timer{registry: r, start: time.Now()}
}

// Elapsed returns the time since the timer started.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// Stop records a success with the elapsed duration.
func (t *Timer) Stop(kind OpKind, bytes, records int64) {
	if !t.done.CompareAndSwap(false, true) {
		return
	}
	t.registry.RecordSuccess(kind, time.Since(t.start), bytes, records)
}

// StopWithError records a failure of the given kind.
func (t *Timer) StopWithError(errKind ErrorKind, kind OpKind) {
	if !t.done.CompareAndSwap(false, true) {
		return
	}
	t.registry.RecordError(errKind, kind)
}
