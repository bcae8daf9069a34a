package framework

import (
	"context"
	"time"
)

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// Task is a unit of cooperative execution.
// Step runs the task until its next suspension point and reports how
// the task wants to be resumed. A step must never block.
type Task interface {
	Step(TaskContext) Poll
}

// StepFunc is the func form of Task.
type StepFunc func(TaskContext) Poll

// Step implements Task.
func (f StepFunc) Step(tc TaskContext) Poll {
	return f(tc)
}

// Future is an operation or event which completes in a later step.
type Future interface {
	// Ready reports whether the future has completed.
	Ready() bool
	// Err returns the result once Ready is true.
	Err() error
}

// Deadliner is optionally implemented by a Future which knows the
// earliest time it can become ready. Schedulers on a simulated clock
// use it to jump forward.
type Deadliner interface {
	Deadline() (time.Time, bool)
}

// Spawner registers tasks to a scheduler.
type Spawner interface {
	Spawn(name string, task Task) error
}

// TimeSource provides the time for task logic.
type TimeSource interface {
	Now() time.Time
}

// TaskContext provides the context of the current step.
type TaskContext interface {
	TimeSource
	Spawner
	// Context retrieves context.Context of the running scheduler.
	Context() context.Context
	// Name is the name the task was spawned with.
	Name() string
}

// Waker wakes up an idle scheduler.
type Waker interface {
	Wake()
}

// PollKind tells the scheduler how to resume a task.
type PollKind int

// Poll kinds
const (
	PollYield PollKind = iota
	PollSleep
	PollWait
	PollExit
)

// Poll is the result of a single step.
type Poll struct {
	Kind     PollKind
	Duration time.Duration
	Future   Future
	Err      error
}

// Yield keeps the task runnable; it is resumed on the next pass.
func Yield() Poll {
	return Poll{Kind: PollYield}
}

// Sleep suspends the task until d has elapsed.
func Sleep(d time.Duration) Poll {
	return Poll{Kind: PollSleep, Duration: d}
}

// WaitFor suspends the task until f is ready.
func WaitFor(f Future) Poll {
	return Poll{Kind: PollWait, Future: f}
}

// Exit ends the task. A non-nil err is reported by the scheduler.
func Exit(err error) Poll {
	return Poll{Kind: PollExit, Err: err}
}

// String implements fmt.Stringer.
func (k PollKind) String() string {
	switch k {
	case PollYield:
		return "yield"
	case PollSleep:
		return "sleep"
	case PollWait:
		return "wait"
	case PollExit:
		return "exit"
	default:
		return "unknown"
	}
}
