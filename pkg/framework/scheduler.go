package framework

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

// DefaultCapacity is the task table size used when none is specified.
const DefaultCapacity = 8

// TaskStatus is the scheduling status of a spawned task.
type TaskStatus int

// Task statuses
const (
	TaskRunnable TaskStatus = iota
	TaskSleeping
	TaskWaiting
	TaskExited
)

// String implements fmt.Stringer.
func (s TaskStatus) String() string {
	switch s {
	case TaskRunnable:
		return "runnable"
	case TaskSleeping:
		return "sleeping"
	case TaskWaiting:
		return "waiting"
	case TaskExited:
		return "exited"
	default:
		return "unknown"
	}
}

// TaskInfo is a snapshot of a spawned task.
type TaskInfo struct {
	Name   string
	Status TaskStatus
	Steps  uint64
	WakeAt time.Time
	Err    error
}

// Scheduler runs a fixed table of tasks cooperatively on the calling
// goroutine. Tasks are resumed in table order once their suspension
// condition holds; nothing is ever preempted.
type Scheduler struct {
	Clock Clock
	// OnExit is called on the scheduler context when a task exits. When
	// set, it replaces the scheduler log of the exit.
	OnExit func(name string, err error)

	capacity int
	slots    []*taskSlot
	injected []func()
	lock     sync.Mutex
	running  int32

	wakeUpCh chan struct{}
}

type taskSlot struct {
	name   string
	task   Task
	status TaskStatus
	wakeAt time.Time
	future Future
	err    error
	steps  uint64
}

type taskContext struct {
	sched *Scheduler
	ctx   context.Context
	slot  *taskSlot
}

// NewScheduler creates a Scheduler with a fixed task table.
func NewScheduler(capacity int, clock Clock) *Scheduler {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if clock == nil {
		clock = WallClock{}
	}
	return &Scheduler{
		Clock:    clock,
		capacity: capacity,
		slots:    make([]*taskSlot, 0, capacity),
		wakeUpCh: make(chan struct{}, 1),
	}
}

// Capacity returns the size of the task table.
func (s *Scheduler) Capacity() int {
	return s.capacity
}

// Spawn implements Spawner. The task becomes runnable on the next pass.
// It fails with ErrSpawnRejected only when the task table is full.
func (s *Scheduler) Spawn(name string, task Task) error {
	s.lock.Lock()
	if len(s.slots) >= s.capacity {
		s.lock.Unlock()
		return fmt.Errorf("spawn %q: %w", name, ErrSpawnRejected)
	}
	s.slots = append(s.slots, &taskSlot{name: name, task: task})
	s.lock.Unlock()
	glog.V(4).Infof("spawn Task[%s]", name)
	s.Wake()
	return nil
}

// Inject queues fn to run on the scheduler context between two steps.
// It is safe to call from any goroutine.
func (s *Scheduler) Inject(fn func()) {
	s.lock.Lock()
	s.injected = append(s.injected, fn)
	s.lock.Unlock()
	s.Wake()
}

// Wake implements Waker.
func (s *Scheduler) Wake() {
	select {
	case s.wakeUpCh <- struct{}{}:
	default:
	}
}

// Tasks returns a snapshot of the task table.
func (s *Scheduler) Tasks() []TaskInfo {
	s.lock.Lock()
	defer s.lock.Unlock()
	infos := make([]TaskInfo, len(s.slots))
	for n, slot := range s.slots {
		infos[n] = TaskInfo{
			Name:   slot.name,
			Status: slot.status,
			Steps:  slot.steps,
			WakeAt: slot.wakeAt,
			Err:    slot.err,
		}
	}
	return infos
}

// RunForever runs the scheduler loop. It only returns when ctx is done.
func (s *Scheduler) RunForever(ctx context.Context) error {
	return s.run(ctx, time.Time{})
}

// RunFor runs the scheduler until the clock has advanced by d.
// Wake-ups due strictly before the limit are processed.
func (s *Scheduler) RunFor(ctx context.Context, d time.Duration) error {
	return s.run(ctx, s.Clock.Now().Add(d))
}

// Run implements Runnable.
func (s *Scheduler) Run(ctx context.Context) error {
	return s.RunForever(ctx)
}

func (s *Scheduler) run(ctx context.Context, limit time.Time) error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrSchedulerRunning
	}
	defer atomic.StoreInt32(&s.running, 0)

	bounded := !limit.IsZero()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if bounded && !s.Clock.Now().Before(limit) {
			return nil
		}
		if s.runPass(ctx, limit) {
			continue
		}
		next := s.nextWakeUp()
		if bounded && (next.IsZero() || !next.Before(limit)) {
			next = limit
		}
		if err := s.Clock.WaitUntil(ctx, next, s.wakeUpCh); err != nil {
			return err
		}
	}
}

// runPass steps every resumable task once and reports whether anything
// ran.
func (s *Scheduler) runPass(ctx context.Context, limit time.Time) bool {
	progressed := s.runInjected()
	for i := 0; ; i++ {
		slot := s.slotAt(i)
		if slot == nil {
			break
		}
		now := s.Clock.Now()
		if !limit.IsZero() && !now.Before(limit) {
			break
		}
		if !slot.resumable(now) {
			continue
		}
		s.step(ctx, slot)
		progressed = true
	}
	return progressed
}

func (s *Scheduler) runInjected() bool {
	s.lock.Lock()
	fns := s.injected
	s.injected = nil
	s.lock.Unlock()
	for _, fn := range fns {
		fn()
	}
	return len(fns) > 0
}

func (s *Scheduler) slotAt(i int) *taskSlot {
	s.lock.Lock()
	defer s.lock.Unlock()
	if i < len(s.slots) {
		return s.slots[i]
	}
	return nil
}

func (s *Scheduler) step(ctx context.Context, slot *taskSlot) {
	if glog.V(4) {
		glog.Infof("step Task[%s]", slot.name)
	}
	poll := slot.task.Step(&taskContext{sched: s, ctx: ctx, slot: slot})

	s.lock.Lock()
	slot.steps++
	slot.future = nil
	switch poll.Kind {
	case PollSleep:
		slot.status = TaskSleeping
		slot.wakeAt = s.Clock.Now().Add(poll.Duration)
	case PollWait:
		if poll.Future == nil {
			slot.status = TaskRunnable
			break
		}
		slot.status = TaskWaiting
		slot.future = poll.Future
	case PollExit:
		slot.status = TaskExited
		slot.err = poll.Err
	default:
		slot.status = TaskRunnable
	}
	s.lock.Unlock()

	if poll.Kind == PollExit {
		switch fn := s.OnExit; {
		case fn != nil:
			fn(slot.name, poll.Err)
		case poll.Err != nil:
			glog.Errorf("Task[%s] stopped: %v", slot.name, poll.Err)
		default:
			glog.V(2).Infof("Task[%s] finished", slot.name)
		}
	}
}

// nextWakeUp returns the earliest known wake-up time of a suspended
// task, or zero if no task has one.
func (s *Scheduler) nextWakeUp() (next time.Time) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, slot := range s.slots {
		var at time.Time
		switch slot.status {
		case TaskSleeping:
			at = slot.wakeAt
		case TaskWaiting:
			if d, ok := slot.future.(Deadliner); ok {
				if t, ok := d.Deadline(); ok {
					at = t
				}
			}
		}
		if !at.IsZero() && (next.IsZero() || at.Before(next)) {
			next = at
		}
	}
	return
}

func (t *taskSlot) resumable(now time.Time) bool {
	switch t.status {
	case TaskRunnable:
		return true
	case TaskSleeping:
		return !now.Before(t.wakeAt)
	case TaskWaiting:
		return t.future.Ready()
	default:
		return false
	}
}

func (c *taskContext) Now() time.Time {
	return c.sched.Clock.Now()
}

func (c *taskContext) Spawn(name string, task Task) error {
	return c.sched.Spawn(name, task)
}

func (c *taskContext) Context() context.Context {
	return c.ctx
}

func (c *taskContext) Name() string {
	return c.slot.name
}
