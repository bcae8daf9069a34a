// Package heartbeat provides a periodic liveness task.
package heartbeat

import (
	"time"

	fx "github.com/robotalks/wifista/pkg/framework"
)

// DefaultPeriod is the heartbeat period used when none is specified.
const DefaultPeriod = time.Second

// EmitFunc is called once per period with the current time and the
// number of emissions so far, starting at 1.
type EmitFunc func(now time.Time, count uint64)

// Heartbeat emits a liveness signal every period. It never terminates.
type Heartbeat struct {
	period time.Duration
	emit   EmitFunc
	count  uint64
}

// New creates a Heartbeat.
func New(period time.Duration, emit EmitFunc) *Heartbeat {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Heartbeat{period: period, emit: emit}
}

// Period returns the emission period.
func (h *Heartbeat) Period() time.Duration {
	return h.period
}

// Count returns the number of emissions so far.
func (h *Heartbeat) Count() uint64 {
	return h.count
}

// Step implements Task.
func (h *Heartbeat) Step(tc fx.TaskContext) fx.Poll {
	h.count++
	if h.emit != nil {
		h.emit(tc.Now(), h.count)
	}
	return fx.Sleep(h.period)
}
