// Package sh provides the interactive console of the host firmware.
// Every command runs on the scheduler context through Inject, so it
// never races with the tasks.
package sh

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/wifista/pkg/diag"
	"github.com/robotalks/wifista/pkg/firmware"
	fx "github.com/robotalks/wifista/pkg/framework"
	"github.com/robotalks/wifista/pkg/radio/sim"
)

// DefaultTimeout bounds the wait for the scheduler to run a command.
const DefaultTimeout = time.Second

var (
	// ErrTimeout indicates the scheduler didn't run the command in time.
	ErrTimeout = errors.New("command timeout")
	// ErrNoSimRadio indicates the command needs the simulated radio.
	ErrNoSimRadio = errors.New("radio is not simulated")
)

var (
	outputJSON bool

	commands = []*ishell.Cmd{
		&StatusCmd,
		&TasksCmd,
		&LogCmd,
		&DropCmd,
		&FailCmd,
	}
)

func init() {
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print console output in JSON.")
}

const shellKey = "$shell"

// Shell is the ishell backed console.
type Shell struct {
	OutputJSON bool
	Timeout    time.Duration

	Shell    *ishell.Shell
	Firmware *firmware.Firmware
	// Radio is set when the firmware runs on the simulated board.
	Radio *sim.Driver
	// Recorder keeps the entries shown by the log command.
	Recorder *diag.Recorder
}

// Status summarizes the connection.
type Status struct {
	Device     string        `json:"device"`
	Boot       string        `json:"boot"`
	Supervisor string        `json:"supervisor"`
	Radio      string        `json:"radio"`
	Attempts   uint64        `json:"attempts"`
	Failures   uint64        `json:"failures"`
	Uptime     time.Duration `json:"uptime"`
}

// New creates the console.
func New(fw *firmware.Firmware, radio *sim.Driver, rec *diag.Recorder) *Shell {
	s := &Shell{
		OutputJSON: outputJSON,
		Timeout:    DefaultTimeout,
		Shell:      ishell.New(),
		Firmware:   fw,
		Radio:      radio,
		Recorder:   rec,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(fw.Config.DeviceID + " > ")
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// Exec runs fn on the scheduler context and waits for it.
func (s *Shell) Exec(fn func() error) error {
	done := make(chan error, 1)
	s.Firmware.Scheduler.Inject(func() { done <- fn() })
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return ErrTimeout
	}
}

// Status queries the connection status.
func (s *Shell) Status() (st Status, err error) {
	err = s.Exec(func() error {
		st.Device = s.Firmware.Config.DeviceID
		st.Boot = s.Firmware.BootID
		st.Supervisor = "not started"
		if sup := s.Firmware.Boot.Supervisor(); sup != nil {
			st.Supervisor = sup.State().String()
			st.Attempts, st.Failures = sup.Attempts(), sup.Failures()
		}
		if s.Radio != nil {
			st.Radio = s.Radio.State().String()
		}
		st.Uptime = s.Firmware.Scheduler.Clock.Now().Sub(s.Firmware.Started)
		return nil
	})
	return
}

// Tasks snapshots the task table.
func (s *Shell) Tasks() (tasks []fx.TaskInfo, err error) {
	err = s.Exec(func() error {
		tasks = s.Firmware.Scheduler.Tasks()
		return nil
	})
	return
}

// Drop disconnects the simulated radio.
func (s *Shell) Drop() error {
	if s.Radio == nil {
		return ErrNoSimRadio
	}
	return s.Exec(func() error {
		s.Radio.Drop()
		return nil
	})
}

// FailConnects makes the next n connects of the simulated radio fail.
func (s *Shell) FailConnects(n int) error {
	if s.Radio == nil {
		return ErrNoSimRadio
	}
	return s.Exec(func() error {
		s.Radio.FailNextConnects(n)
		return nil
	})
}

// Run runs the shell with the args as a single command, or
// interactively when there are none.
func (s *Shell) Run(args ...string) {
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	s.Shell.Run()
}

// Close stops the interactive shell.
func (s *Shell) Close() error {
	s.Shell.Close()
	return nil
}

func (s *Shell) print(c *ishell.Context, v interface{}, text func()) {
	if !s.OutputJSON {
		text()
		return
	}
	out, err := json.Marshal(v)
	if err != nil {
		c.Err(err)
		return
	}
	c.Println(string(out))
}

var (
	// StatusCmd shows the connection status.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"s"},
		Help:    "show the connection status",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			st, err := s.Status()
			if err != nil {
				c.Err(err)
				return
			}
			s.print(c, st, func() {
				c.Printf("device %s boot %s\n", st.Device, st.Boot)
				c.Printf("supervisor %s, radio %s\n", st.Supervisor, st.Radio)
				c.Printf("attempts %d, failures %d\n", st.Attempts, st.Failures)
			})
		},
	}

	// TasksCmd lists the task table.
	TasksCmd = ishell.Cmd{
		Name:    "tasks",
		Aliases: []string{"t"},
		Help:    "list tasks",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			tasks, err := s.Tasks()
			if err != nil {
				c.Err(err)
				return
			}
			s.print(c, tasks, func() {
				for _, info := range tasks {
					c.Printf("%-12s %-9s steps %d", info.Name, info.Status, info.Steps)
					if info.Err != nil {
						c.Printf(" error: %v", info.Err)
					}
					c.Println()
				}
			})
		},
	}

	// LogCmd prints the most recent diagnostic entries.
	LogCmd = ishell.Cmd{
		Name:    "log",
		Aliases: []string{"l"},
		Help:    "[COUNT] [SOURCE...]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if s.Recorder == nil {
				c.Err(fmt.Errorf("no log recorder"))
				return
			}
			count, sources := 20, c.Args
			if len(sources) > 0 {
				if n, err := strconv.Atoi(sources[0]); err == nil {
					if n < 0 {
						c.Err(fmt.Errorf("invalid COUNT: %q", sources[0]))
						return
					}
					count, sources = n, sources[1:]
				}
			}
			entries := s.Recorder.Entries(sources...)
			if len(entries) > count {
				entries = entries[len(entries)-count:]
			}
			s.print(c, entries, func() {
				for _, e := range entries {
					c.Println(e.String())
				}
			})
		},
	}

	// DropCmd disconnects the simulated radio.
	DropCmd = ishell.Cmd{
		Name:    "drop",
		Aliases: []string{"d"},
		Help:    "disconnect the simulated radio",
		Func: func(c *ishell.Context) {
			if err := ShellFrom(c).Drop(); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		},
	}

	// FailCmd makes the next connects of the simulated radio fail.
	FailCmd = ishell.Cmd{
		Name:    "fail",
		Aliases: []string{"f"},
		Help:    "COUNT",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("COUNT required"))
				return
			}
			n, err := strconv.Atoi(c.Args[0])
			if err != nil || n < 0 {
				c.Err(fmt.Errorf("invalid COUNT: %q", c.Args[0]))
				return
			}
			if err := ShellFrom(c).FailConnects(n); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		},
	}
)
