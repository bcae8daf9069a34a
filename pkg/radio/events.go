package radio

import (
	"sync"
	"time"

	fx "github.com/robotalks/wifista/pkg/framework"
)

// EventLatch records driver events for WaitForEvent. A wait only
// completes on an event posted after the wait was created.
type EventLatch struct {
	// Waker is notified whenever an event is posted.
	Waker fx.Waker
	// Poll is called before a readiness check so drivers which apply
	// events lazily can catch up.
	Poll func()
	// Deadline optionally reports the earliest time an event of the
	// kind may be posted.
	Deadline func(EventKind) (time.Time, bool)

	counts [numEventKinds]uint64
	lock   sync.Mutex
}

// Post records an event of kind.
func (l *EventLatch) Post(kind EventKind) {
	l.lock.Lock()
	l.counts[kind]++
	l.lock.Unlock()
	if w := l.Waker; w != nil {
		w.Wake()
	}
}

// Count returns the number of events of kind posted so far.
func (l *EventLatch) Count(kind EventKind) uint64 {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.counts[kind]
}

// Wait returns a future ready on the next event of kind.
func (l *EventLatch) Wait(kind EventKind) fx.Future {
	return &eventWait{latch: l, kind: kind, after: l.Count(kind)}
}

type eventWait struct {
	latch *EventLatch
	kind  EventKind
	after uint64
}

func (w *eventWait) Ready() bool {
	if poll := w.latch.Poll; poll != nil {
		poll()
	}
	return w.latch.Count(w.kind) > w.after
}

func (w *eventWait) Err() error {
	return nil
}

func (w *eventWait) Deadline() (time.Time, bool) {
	if fn := w.latch.Deadline; fn != nil {
		return fn(w.kind)
	}
	return time.Time{}, false
}

// Op is the future of an asynchronous driver operation.
type Op struct {
	// Poll is called before a readiness check.
	Poll func()

	done bool
	err  error
	at   time.Time
	lock sync.Mutex
}

// NewOp creates a pending Op expected to complete at the given time.
// A zero time means unknown.
func NewOp(at time.Time) *Op {
	return &Op{at: at}
}

// CompletedOp creates an Op which is already complete.
func CompletedOp(err error) *Op {
	return &Op{done: true, err: err}
}

// Complete resolves the Op. Later calls are ignored.
func (o *Op) Complete(err error) {
	o.lock.Lock()
	defer o.lock.Unlock()
	if !o.done {
		o.done, o.err = true, err
	}
}

// Ready implements Future.
func (o *Op) Ready() bool {
	if poll := o.Poll; poll != nil {
		poll()
	}
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.done
}

// Err implements Future.
func (o *Op) Err() error {
	if poll := o.Poll; poll != nil {
		poll()
	}
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.err
}

// Deadline implements Deadliner.
func (o *Op) Deadline() (time.Time, bool) {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.at, !o.done && !o.at.IsZero()
}
