// Package firmware assembles the device image: it brings the board and
// the radio up, creates the network stack, hands the radio to the
// connection supervisor and keeps the scheduler running forever.
package firmware

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/robotalks/wifista/pkg/diag"
	fx "github.com/robotalks/wifista/pkg/framework"
	"github.com/robotalks/wifista/pkg/heartbeat"
	"github.com/robotalks/wifista/pkg/netstack"
	"github.com/robotalks/wifista/pkg/radio"
	"github.com/robotalks/wifista/pkg/supervisor"
)

// Task names
const (
	MainTask       = "main"
	ConnectionTask = "connection"
	HeartbeatTask  = "heartbeat"
)

// Board is the hardware the firmware runs on.
type Board interface {
	Name() string
	// TakePeripherals claims the board hardware, it succeeds only once.
	TakePeripherals() error
	// Clock is the timer service backing the scheduler.
	Clock() fx.Clock
	// InitRadio brings the radio up in mode.
	InitRadio(mode radio.Mode) (radio.Interface, radio.Controller, error)
	// SetWaker registers the scheduler to be woken on driver events.
	SetWaker(fx.Waker)
}

// Boot is the main task. Its first step initializes the device and
// spawns the other tasks, afterwards it only reports liveness.
type Boot struct {
	Board   Board
	Config  *Config
	Log     *diag.Logger
	Stream  *diag.Stream
	Metrics *supervisor.Metrics

	initialized bool
	stack       *netstack.Stack
	supervisor  *supervisor.Supervisor
	liveness    *heartbeat.Heartbeat
}

// Stack returns the network stack once the device is initialized.
func (b *Boot) Stack() *netstack.Stack {
	return b.stack
}

// Supervisor returns the connection supervisor once spawned.
func (b *Boot) Supervisor() *supervisor.Supervisor {
	return b.supervisor
}

// Step implements Task.
func (b *Boot) Step(tc fx.TaskContext) fx.Poll {
	if !b.initialized {
		if err := b.init(tc); err != nil {
			return fx.Exit(err)
		}
		b.initialized = true
	}
	return b.liveness.Step(tc)
}

func (b *Boot) init(tc fx.TaskContext) error {
	b.Log.Infof("Init!")
	if err := b.Board.TakePeripherals(); err != nil {
		return fmt.Errorf("take peripherals: %w", err)
	}
	b.Log.Infof("timer service: %s board, clock at %s", b.Board.Name(), tc.Now().Format(time.RFC3339))

	iface, ctl, err := b.Board.InitRadio(radio.ModeStation)
	if err != nil {
		return fmt.Errorf("initialize radio: %w", err)
	}

	stack, err := netstack.New(iface, netstack.DHCPv4(b.Config.Hostname), b.Config.SocketResources, b.Config.Seed)
	if err != nil {
		return fmt.Errorf("create network stack: %w", err)
	}
	b.stack = stack
	b.Log.Infof("network stack %v on %v, %d sockets", stack.Config(), stack.HardwareAddr(), stack.Resources())

	b.supervisor = supervisor.New(radio.NewHandle(ctl), supervisor.Config{
		Credentials: b.Config.Credentials,
		Channel:     b.Config.Channel,
		GraceDelay:  b.Config.GraceDelay,
		RetryDelay:  b.Config.RetryDelay,
	})
	b.supervisor.Log = b.Stream.Logger(ConnectionTask)
	b.supervisor.Metrics = b.Metrics
	if err := tc.Spawn(ConnectionTask, b.supervisor); err != nil {
		b.Log.Warningf("%v", err)
	}

	hbLog := b.Stream.Logger(HeartbeatTask)
	hb := heartbeat.New(b.Config.HeartbeatPeriod, func(time.Time, uint64) {
		hbLog.Infof("Hello world!")
	})
	if err := tc.Spawn(HeartbeatTask, hb); err != nil {
		b.Log.Warningf("%v", err)
	}

	b.liveness = heartbeat.New(b.Config.LivenessPeriod, func(time.Time, uint64) {
		b.Log.Infof("Bing!")
	})
	return nil
}

// Firmware is the assembled device image.
type Firmware struct {
	Config    *Config
	Stream    *diag.Stream
	Scheduler *fx.Scheduler
	Boot      *Boot
	// BootID identifies this boot on the diagnostic uplink.
	BootID  string
	Started time.Time
}

// New assembles the firmware on board. A nil stream logs through glog
// only, a nil metrics records nothing.
func New(board Board, conf *Config, stream *diag.Stream, metrics *supervisor.Metrics) (*Firmware, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if stream == nil {
		stream = diag.NewStream(board.Clock(), diag.GlogSink{})
	}
	sched := fx.NewScheduler(conf.TaskCapacity, board.Clock())
	board.SetWaker(sched)
	schedLog := stream.Logger("scheduler")
	sched.OnExit = func(name string, err error) {
		if err != nil {
			schedLog.Errorf("task %s stopped: %v", name, err)
		}
	}
	f := &Firmware{
		Config:    conf,
		Stream:    stream,
		Scheduler: sched,
		BootID:    uuid.NewString(),
		Started:   board.Clock().Now(),
		Boot: &Boot{
			Board:   board,
			Config:  conf,
			Log:     stream.Logger(MainTask),
			Stream:  stream,
			Metrics: metrics,
		},
	}
	if err := sched.Spawn(MainTask, f.Boot); err != nil {
		return nil, err
	}
	return f, nil
}

// Name implements Named.
func (f *Firmware) Name() string {
	return "firmware"
}

// Run implements Runnable. It only returns when ctx is done.
func (f *Firmware) Run(ctx context.Context) error {
	return f.Scheduler.RunForever(ctx)
}

// Run assembles the firmware on board and runs it until ctx is done.
func Run(ctx context.Context, board Board, conf *Config) error {
	f, err := New(board, conf, nil, nil)
	if err != nil {
		return err
	}
	return f.Run(ctx)
}
