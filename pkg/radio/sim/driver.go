// Package sim provides a simulated station-mode radio and board which
// run on a framework.Clock, so the firmware can be exercised on a host
// and under a simulated clock in tests.
package sim

import (
	"sort"
	"sync"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/wifista/pkg/framework"
	"github.com/robotalks/wifista/pkg/radio"
)

// Reason codes reported with failed operations.
const (
	ReasonUnspecified    uint16 = 1
	ReasonAuthFail       uint16 = 15
	ReasonNoAPFound      uint16 = 201
	ReasonAssocFail      uint16 = 203
	ReasonConnectionFail uint16 = 205
)

// Config configures the simulated radio.
type Config struct {
	Capabilities   radio.Capabilities
	StartLatency   time.Duration
	ConnectLatency time.Duration
	HardwareAddr   [6]byte
	// AccessPoint is the network in range. An empty SSID accepts any
	// credentials.
	AccessPoint radio.Credentials
}

// Defaults
const (
	DefaultStartLatency   = 100 * time.Millisecond
	DefaultConnectLatency = 1500 * time.Millisecond
)

// DefaultConfig returns the configuration of a typical station radio.
func DefaultConfig() Config {
	return Config{
		Capabilities:   radio.Capabilities(radio.CapClient) | radio.Capabilities(radio.CapAccessPoint) | radio.Capabilities(radio.CapMixed),
		StartLatency:   DefaultStartLatency,
		ConnectLatency: DefaultConnectLatency,
		HardwareAddr:   [6]byte{0x02, 0x00, 0x5e, 0x10, 0x00, 0x01},
	}
}

// Stats summarizes the calls the driver received.
type Stats struct {
	ConfigCalls  int
	StartCalls   int
	ConnectCalls []time.Time
	StateQueries []time.Time
	InFlight     int
	MaxInFlight  int
	Drops        int
}

// Driver is a simulated radio implementing radio.Controller.
type Driver struct {
	clock fx.TimeSource
	conf  Config
	latch radio.EventLatch

	started   bool
	state     radio.ConnectionState
	clientCfg *radio.ClientConfig

	rejectConfig bool
	startedErr   error
	failStarts   int
	failConnects int

	start   *pendingOp
	connect *pendingOp
	drops   []time.Time

	stats Stats
	lock  sync.Mutex
}

type pendingOp struct {
	op     *radio.Op
	at     time.Time
	reason uint16
}

// New creates a Driver on the given clock.
func New(clock fx.TimeSource, conf Config) *Driver {
	d := &Driver{clock: clock, conf: conf}
	d.latch.Poll = d.poll
	d.latch.Deadline = func(radio.EventKind) (time.Time, bool) {
		return d.nextActivity()
	}
	return d
}

// SetWaker registers the scheduler to wake on events.
func (d *Driver) SetWaker(w fx.Waker) {
	d.latch.Waker = w
}

// Capabilities implements radio.Controller.
func (d *Driver) Capabilities() radio.Capabilities {
	return d.conf.Capabilities
}

// IsStarted implements radio.Controller.
func (d *Driver) IsStarted() (bool, error) {
	d.poll()
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.startedErr != nil {
		return false, d.startedErr
	}
	return d.started, nil
}

// SetConfiguration implements radio.Controller.
func (d *Driver) SetConfiguration(cfg radio.ClientConfig) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.stats.ConfigCalls++
	if d.rejectConfig {
		return &radio.DriverError{Op: radio.ErrConfigurationRejected, Reason: ReasonUnspecified}
	}
	if err := cfg.Validate(); err != nil {
		return &radio.DriverError{Op: radio.ErrConfigurationRejected, Reason: ReasonUnspecified}
	}
	d.clientCfg = &cfg
	return nil
}

// Start implements radio.Controller.
func (d *Driver) Start() fx.Future {
	d.poll()
	d.lock.Lock()
	defer d.lock.Unlock()
	d.stats.StartCalls++
	if d.start != nil {
		return d.start.op
	}
	if d.clientCfg == nil {
		return radio.CompletedOp(&radio.DriverError{Op: radio.ErrStartFailed, Reason: ReasonUnspecified})
	}
	if d.started {
		return radio.CompletedOp(nil)
	}
	p := &pendingOp{at: d.clock.Now().Add(d.conf.StartLatency)}
	if d.failStarts > 0 {
		d.failStarts--
		p.reason = ReasonUnspecified
	}
	p.op = radio.NewOp(p.at)
	p.op.Poll = d.poll
	d.start = p
	return p.op
}

// Connect implements radio.Controller.
func (d *Driver) Connect() fx.Future {
	d.poll()
	d.lock.Lock()
	defer d.lock.Unlock()
	now := d.clock.Now()
	d.stats.ConnectCalls = append(d.stats.ConnectCalls, now)
	if !d.started {
		return radio.CompletedOp(&radio.DriverError{Op: radio.ErrNotStarted, Reason: ReasonUnspecified})
	}
	if n := d.stats.InFlight + 1; n > d.stats.MaxInFlight {
		d.stats.MaxInFlight = n
	}
	if d.connect != nil {
		glog.Warning("sim radio: connect issued while another is in flight")
		return d.connect.op
	}
	d.stats.InFlight++
	p := &pendingOp{at: now.Add(d.conf.ConnectLatency)}
	switch ap := d.conf.AccessPoint; {
	case d.failConnects > 0:
		d.failConnects--
		p.reason = ReasonConnectionFail
	case ap.SSID != "" && ap.SSID != d.clientCfg.SSID:
		p.reason = ReasonNoAPFound
	case ap.SSID != "" && ap.Passphrase != d.clientCfg.Passphrase:
		p.reason = ReasonAuthFail
	}
	p.op = radio.NewOp(p.at)
	p.op.Poll = d.poll
	d.connect = p
	d.state = radio.Connecting
	return p.op
}

// State implements radio.Controller.
func (d *Driver) State() radio.ConnectionState {
	d.poll()
	d.lock.Lock()
	defer d.lock.Unlock()
	d.stats.StateQueries = append(d.stats.StateQueries, d.clock.Now())
	return d.state
}

// WaitForEvent implements radio.Controller.
func (d *Driver) WaitForEvent(kind radio.EventKind) fx.Future {
	return d.latch.Wait(kind)
}

// HardwareAddr implements radio.Interface.
func (d *Driver) HardwareAddr() [6]byte {
	return d.conf.HardwareAddr
}

// Events returns the number of events of kind posted so far.
func (d *Driver) Events(kind radio.EventKind) uint64 {
	return d.latch.Count(kind)
}

// Drop disconnects from the access point now.
func (d *Driver) Drop() {
	d.poll()
	d.lock.Lock()
	dropped := d.dropLocked()
	d.lock.Unlock()
	if dropped {
		d.latch.Post(radio.EventStaDisconnected)
	}
}

// DropAfter schedules a disconnect after dur. It only takes effect if
// the station is associated at that time.
func (d *Driver) DropAfter(dur time.Duration) {
	d.lock.Lock()
	d.drops = append(d.drops, d.clock.Now().Add(dur))
	sort.Slice(d.drops, func(i, j int) bool { return d.drops[i].Before(d.drops[j]) })
	d.lock.Unlock()
	if w := d.latch.Waker; w != nil {
		w.Wake()
	}
}

// FailNextConnects makes the next n connect attempts fail.
func (d *Driver) FailNextConnects(n int) {
	d.lock.Lock()
	d.failConnects = n
	d.lock.Unlock()
}

// FailNextStarts makes the next n start requests fail.
func (d *Driver) FailNextStarts(n int) {
	d.lock.Lock()
	d.failStarts = n
	d.lock.Unlock()
}

// RejectConfiguration makes SetConfiguration fail.
func (d *Driver) RejectConfiguration(reject bool) {
	d.lock.Lock()
	d.rejectConfig = reject
	d.lock.Unlock()
}

// FailIsStarted makes IsStarted report err; nil restores it.
func (d *Driver) FailIsStarted(err error) {
	d.lock.Lock()
	d.startedErr = err
	d.lock.Unlock()
}

// SetAccessPoint changes the network in range.
func (d *Driver) SetAccessPoint(ap radio.Credentials) {
	d.lock.Lock()
	d.conf.AccessPoint = ap
	d.lock.Unlock()
}

// Stop powers the radio down.
func (d *Driver) Stop() {
	d.poll()
	d.lock.Lock()
	wasStarted := d.started
	dropped := d.dropLocked()
	d.started = false
	d.lock.Unlock()
	if dropped {
		d.latch.Post(radio.EventStaDisconnected)
	}
	if wasStarted {
		d.latch.Post(radio.EventStaStopped)
	}
}

// Stats returns a copy of the call statistics.
func (d *Driver) Stats() Stats {
	d.lock.Lock()
	defer d.lock.Unlock()
	stats := d.stats
	stats.ConnectCalls = append([]time.Time(nil), d.stats.ConnectCalls...)
	stats.StateQueries = append([]time.Time(nil), d.stats.StateQueries...)
	return stats
}

func (d *Driver) dropLocked() bool {
	if d.state != radio.Connected {
		return false
	}
	d.state = radio.Disconnected
	d.stats.Drops++
	return true
}

// poll applies everything due at the current time, in time order.
func (d *Driver) poll() {
	now := d.clock.Now()
	var events []radio.EventKind
	d.lock.Lock()
	for {
		kind, at, ok := d.nextDueLocked()
		if !ok || at.After(now) {
			break
		}
		switch kind {
		case dueStart:
			p := d.start
			d.start = nil
			if p.reason != 0 {
				p.op.Complete(&radio.DriverError{Op: radio.ErrStartFailed, Reason: p.reason})
				break
			}
			d.started = true
			p.op.Complete(nil)
			events = append(events, radio.EventStaStarted)
		case dueConnect:
			p := d.connect
			d.connect = nil
			d.stats.InFlight--
			if p.reason != 0 {
				d.state = radio.Disconnected
				p.op.Complete(&radio.DriverError{Op: radio.ErrConnectFailed, Reason: p.reason})
				events = append(events, radio.EventStaDisconnected)
				break
			}
			d.state = radio.Connected
			p.op.Complete(nil)
			events = append(events, radio.EventStaConnected)
		case dueDrop:
			d.drops = d.drops[1:]
			if d.dropLocked() {
				events = append(events, radio.EventStaDisconnected)
			}
		}
	}
	d.lock.Unlock()
	for _, kind := range events {
		if glog.V(2) {
			glog.Infof("sim radio: event %v", kind)
		}
		d.latch.Post(kind)
	}
}

type dueKind int

const (
	dueStart dueKind = iota
	dueConnect
	dueDrop
)

func (d *Driver) nextDueLocked() (kind dueKind, at time.Time, ok bool) {
	consider := func(k dueKind, t time.Time) {
		if !ok || t.Before(at) {
			kind, at, ok = k, t, true
		}
	}
	if d.start != nil {
		consider(dueStart, d.start.at)
	}
	if d.connect != nil {
		consider(dueConnect, d.connect.at)
	}
	if len(d.drops) > 0 {
		consider(dueDrop, d.drops[0])
	}
	return
}

func (d *Driver) nextActivity() (time.Time, bool) {
	d.lock.Lock()
	defer d.lock.Unlock()
	_, at, ok := d.nextDueLocked()
	return at, ok
}
