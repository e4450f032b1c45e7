package dispatch

import "sync/atomic"

// Metrics counts dispatcher activity across invocations. All fields are
// atomic; a single Metrics value is shared between the control loop and the
// status API.
type Metrics struct {
	ticks                int64
	dispatched           int64
	suppressed           int64
	reshardContinuations int64
}

func (m *Metrics) Snapshot() (ticks, dispatched, suppressed, reshardContinuations int64) {
	return atomic.LoadInt64(&m.ticks),
		atomic.LoadInt64(&m.dispatched),
		atomic.LoadInt64(&m.suppressed),
		atomic.LoadInt64(&m.reshardContinuations)
}

func (m *Metrics) incTicks() {
	atomic.AddInt64(&m.ticks, 1)
}

func (m *Metrics) add(r *Result) {
	atomic.AddInt64(&m.dispatched, int64(r.Dispatched))
	atomic.AddInt64(&m.suppressed, int64(r.Suppressed))
	atomic.AddInt64(&m.reshardContinuations, int64(r.ReshardContinuations))
}
