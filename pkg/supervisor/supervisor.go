// Package supervisor provides the task which establishes and keeps the
// station association alive.
//
// The supervisor loops forever: while associated it waits for the
// radio to report a disconnect and then holds off for a grace delay;
// otherwise it makes sure the radio is configured and started and
// issues a connect. A failed connect is retried after a fixed delay
// with no growth and no limit.
//
// Failures to apply the configuration or to start the radio are not
// retried: the task exits with the error, which stalls only this task.
// Connect failures are handled in the loop.
package supervisor

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/wifista/pkg/diag"
	fx "github.com/robotalks/wifista/pkg/framework"
	"github.com/robotalks/wifista/pkg/radio"
)

// Defaults
const (
	DefaultGraceDelay = 5 * time.Second
	DefaultRetryDelay = 5 * time.Second
)

// State is the supervisor state.
type State uint8

// States
const (
	StateIdle State = iota
	StateAwaitingStart
	StateAwaitingConnectResult
	StateConnectedWaitingForDrop
	StateBackoffBeforeRetry
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitingStart:
		return "AwaitingStart"
	case StateAwaitingConnectResult:
		return "AwaitingConnectResult"
	case StateConnectedWaitingForDrop:
		return "ConnectedWaitingForDrop"
	case StateBackoffBeforeRetry:
		return "BackoffBeforeRetry"
	default:
		return "Unknown"
	}
}

// Config defines the supervisor behavior.
type Config struct {
	Credentials radio.Credentials
	// Channel restricts the scan, 0 means all channels.
	Channel uint8
	// GraceDelay is the pause after a disconnect before the state is
	// evaluated again.
	GraceDelay time.Duration
	// RetryDelay is the pause after a failed connect. It never grows.
	RetryDelay time.Duration
}

// Supervisor is the connection supervisor task. It owns the radio.
type Supervisor struct {
	Log     *diag.Logger
	Metrics *Metrics

	radio radio.Controller
	conf  Config
	state State

	// pending is the in-flight start or connect.
	pending  fx.Future
	dropWait fx.Future

	attempts uint64
	failures uint64
}

// New creates a Supervisor and moves the radio out of h.
func New(h *radio.Handle, conf Config) *Supervisor {
	if conf.GraceDelay <= 0 {
		conf.GraceDelay = DefaultGraceDelay
	}
	if conf.RetryDelay <= 0 {
		conf.RetryDelay = DefaultRetryDelay
	}
	return &Supervisor{
		radio: h.Take(),
		conf:  conf,
	}
}

// State returns the current state.
func (s *Supervisor) State() State {
	return s.state
}

// Attempts returns the number of connects issued so far.
func (s *Supervisor) Attempts() uint64 {
	return s.attempts
}

// Failures returns the number of failed connects so far.
func (s *Supervisor) Failures() uint64 {
	return s.failures
}

// Step implements Task.
func (s *Supervisor) Step(tc fx.TaskContext) fx.Poll {
	for {
		switch s.state {
		case StateIdle:
			s.Log.Infof("start connection task")
			s.Log.Infof("Device capabilities: %v", s.radio.Capabilities())
			s.transition(StateAwaitingStart)

		case StateAwaitingStart:
			if s.pending != nil {
				if !s.pending.Ready() {
					return fx.WaitFor(s.pending)
				}
				err := s.pending.Err()
				s.pending = nil
				if err != nil {
					return s.escalate(radio.ErrStartFailed, err)
				}
				s.Log.Infof("Wifi started!")
				return s.connect()
			}
			if s.radio.State() == radio.Connected {
				s.transition(StateConnectedWaitingForDrop)
				s.dropWait = s.radio.WaitForEvent(radio.EventStaDisconnected)
				return fx.WaitFor(s.dropWait)
			}
			if started, err := s.radio.IsStarted(); err == nil && started {
				return s.connect()
			}
			cfg := radio.ClientConfig{Credentials: s.conf.Credentials, Channel: s.conf.Channel}
			if err := s.radio.SetConfiguration(cfg); err != nil {
				return s.escalate(radio.ErrConfigurationRejected, err)
			}
			s.Log.Infof("Starting wifi")
			s.pending = s.radio.Start()
			return fx.WaitFor(s.pending)

		case StateAwaitingConnectResult:
			if !s.pending.Ready() {
				return fx.WaitFor(s.pending)
			}
			err := s.pending.Err()
			s.pending = nil
			if err == nil {
				s.Log.Infof("Wifi connected!")
				s.transition(StateAwaitingStart)
				continue
			}
			s.failures++
			s.Metrics.connectFailed()
			s.Log.Warningf("Failed to connect to wifi: %v", err)
			s.transition(StateBackoffBeforeRetry)
			return fx.Sleep(s.conf.RetryDelay)

		case StateBackoffBeforeRetry:
			s.transition(StateAwaitingStart)

		case StateConnectedWaitingForDrop:
			if s.dropWait != nil {
				if !s.dropWait.Ready() {
					return fx.WaitFor(s.dropWait)
				}
				s.dropWait = nil
				s.Metrics.disconnected()
				s.Log.Warningf("Wifi disconnected, retrying in %v", s.conf.GraceDelay)
				return fx.Sleep(s.conf.GraceDelay)
			}
			s.transition(StateAwaitingStart)

		default:
			return fx.Exit(fmt.Errorf("invalid supervisor state %d", s.state))
		}
	}
}

func (s *Supervisor) connect() fx.Poll {
	if s.pending != nil {
		panic("supervisor: connect issued while an operation is in flight")
	}
	s.Log.Infof("About to connect...")
	s.attempts++
	s.Metrics.connectAttempted()
	s.pending = s.radio.Connect()
	s.transition(StateAwaitingConnectResult)
	return fx.WaitFor(s.pending)
}

func (s *Supervisor) transition(to State) {
	glog.V(2).Infof("supervisor: %v -> %v", s.state, to)
	s.Log.Infof("state %v -> %v", s.state, to)
	s.state = to
	s.Metrics.setState(to)
}

// escalate ends the task with err classified under kind.
func (s *Supervisor) escalate(kind, err error) fx.Poll {
	if !errors.Is(err, kind) {
		err = fmt.Errorf("%w: %v", kind, err)
	}
	s.Log.Errorf("%v, connection task stopped", err)
	return fx.Exit(err)
}
