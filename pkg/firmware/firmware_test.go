package firmware

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/wifista/pkg/diag"
	fx "github.com/robotalks/wifista/pkg/framework"
	"github.com/robotalks/wifista/pkg/radio"
	"github.com/robotalks/wifista/pkg/radio/sim"
	"github.com/robotalks/wifista/pkg/supervisor"
)

func testBoard(conf *Config) (*fx.SimClock, *sim.Board) {
	clock := fx.NewSimClock()
	simConf := sim.DefaultConfig()
	simConf.AccessPoint = conf.Credentials
	return clock, sim.NewBoard(clock, simConf)
}

func bootFirmware(t *testing.T, conf *Config, board Board) (*Firmware, *diag.Recorder) {
	rec := &diag.Recorder{}
	f, err := New(board, conf, diag.NewStream(board.Clock(), rec), nil)
	require.NoError(t, err)
	return f, rec
}

func TestBuiltinConfig(t *testing.T) {
	conf, err := LoadConfig(builtinConfig)
	require.NoError(t, err)
	require.Equal(t, "TuRgElIs", conf.Credentials.SSID)
	require.Equal(t, time.Second, conf.HeartbeatPeriod)
	require.Equal(t, 5*time.Second, conf.LivenessPeriod)
	require.Equal(t, 5*time.Second, conf.GraceDelay)
	require.Equal(t, 5*time.Second, conf.RetryDelay)
	require.Equal(t, 3, conf.TaskCapacity)
	require.Equal(t, 3, conf.SocketResources)
	require.Equal(t, uint64(1234), conf.Seed)

	require.NotEmpty(t, Default().DeviceID)
	c := NewConfig()
	c.Seed = 1
	require.Equal(t, uint64(1234), Default().Seed)
}

func TestLoadConfigRejects(t *testing.T) {
	base := string(builtinConfig)
	testCases := []struct {
		name string
		doc  string
	}{
		{"empty ssid", strings.Replace(base, "ssid: TuRgElIs", `ssid: ""`, 1)},
		{"long ssid", strings.Replace(base, "ssid: TuRgElIs", "ssid: "+strings.Repeat("s", radio.MaxSSIDLen+1), 1)},
		{"long passphrase", strings.Replace(base, "passphrase: TREX600NPRO", "passphrase: "+strings.Repeat("p", radio.MaxPassphraseLen+1), 1)},
		{"zero capacity", strings.Replace(base, "task_capacity: 3", "task_capacity: 0", 1)},
		{"bad duration", strings.Replace(base, "retry_delay: 5s", "retry_delay: soon", 1)},
		{"unknown field", base + "backoff: exponential\n"},
	}
	for _, tc := range testCases {
		_, err := LoadConfig([]byte(tc.doc))
		require.Error(t, err, tc.name)
	}

	long := strings.Replace(base, "ssid: TuRgElIs", "ssid: "+strings.Repeat("s", radio.MaxSSIDLen), 1)
	_, err := LoadConfig([]byte(long))
	require.NoError(t, err)

	_, err = LoadConfig([]byte(strings.Replace(base, "ssid: TuRgElIs", `ssid: ""`, 1)))
	var credErr *radio.CredentialsError
	require.True(t, errors.As(err, &credErr))
	require.Equal(t, "ssid", credErr.Field)
}

func TestBootSequence(t *testing.T) {
	conf := NewConfig()
	clock, board := testBoard(conf)
	f, rec := bootFirmware(t, conf, board)
	require.NotEmpty(t, f.BootID)

	require.NoError(t, f.Scheduler.RunFor(context.Background(), 12*time.Second))
	require.Equal(t, 12*time.Second, clock.Elapsed())

	main := rec.Messages(MainTask)
	require.Equal(t, "Init!", main[0])
	var bings int
	for _, msg := range main {
		if msg == "Bing!" {
			bings++
		}
	}
	require.Equal(t, 3, bings)
	require.Len(t, rec.Messages(HeartbeatTask), 12)
	require.Contains(t, rec.Messages(ConnectionTask), "Wifi connected!")

	stack := f.Boot.Stack()
	require.NotNil(t, stack)
	require.Equal(t, 3, stack.Resources())
	require.Equal(t, uint64(1234), stack.Seed())

	require.Equal(t, supervisor.StateConnectedWaitingForDrop, f.Boot.Supervisor().State())
	require.Equal(t, radio.Connected, board.Radio.State())
	require.Error(t, board.TakePeripherals())

	tasks := f.Scheduler.Tasks()
	require.Len(t, tasks, 3)
	require.Equal(t, MainTask, tasks[0].Name)
	require.Equal(t, ConnectionTask, tasks[1].Name)
	require.Equal(t, HeartbeatTask, tasks[2].Name)
}

func TestSpawnRejectionIsNotFatal(t *testing.T) {
	conf := NewConfig()
	conf.TaskCapacity = 2
	_, board := testBoard(conf)
	f, rec := bootFirmware(t, conf, board)

	require.NoError(t, f.Scheduler.RunFor(context.Background(), 11*time.Second))

	var warned bool
	for _, e := range rec.Entries(MainTask) {
		if e.Level == diag.LevelWarning && strings.Contains(e.Message, HeartbeatTask) {
			warned = true
		}
	}
	require.True(t, warned)
	require.Empty(t, rec.Messages(HeartbeatTask))
	require.Contains(t, rec.Messages(MainTask), "Bing!")
	require.Equal(t, supervisor.StateConnectedWaitingForDrop, f.Boot.Supervisor().State())
}

func TestReconnectsUnderBoot(t *testing.T) {
	conf := NewConfig()
	_, board := testBoard(conf)
	f, rec := bootFirmware(t, conf, board)

	require.NoError(t, f.Scheduler.RunFor(context.Background(), 5*time.Second))
	board.Radio.FailNextConnects(2)
	board.Radio.DropAfter(time.Second)
	require.NoError(t, f.Scheduler.RunFor(context.Background(), time.Minute))

	require.Equal(t, supervisor.StateConnectedWaitingForDrop, f.Boot.Supervisor().State())
	require.Equal(t, uint64(4), f.Boot.Supervisor().Attempts())
	require.Len(t, rec.Messages(HeartbeatTask), 65)
}

func TestBootFailsWithoutStationMode(t *testing.T) {
	conf := NewConfig()
	clock := fx.NewSimClock()
	simConf := sim.DefaultConfig()
	simConf.Capabilities = radio.Capabilities(radio.CapAccessPoint)
	board := sim.NewBoard(clock, simConf)
	f, rec := bootFirmware(t, conf, board)

	require.NoError(t, f.Scheduler.RunFor(context.Background(), time.Second))
	tasks := f.Scheduler.Tasks()
	require.Len(t, tasks, 1)
	require.Equal(t, fx.TaskExited, tasks[0].Status)
	require.True(t, errors.Is(tasks[0].Err, sim.ErrUnsupportedMode))
	var failures []diag.Entry
	for _, e := range rec.Entries() {
		if e.Level == diag.LevelError {
			failures = append(failures, e)
		}
	}
	require.Len(t, failures, 1)
	require.Equal(t, "scheduler", failures[0].Source)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	conf := NewConfig()
	conf.Credentials.SSID = ""
	_, board := testBoard(conf)
	_, err := New(board, conf, nil, nil)
	require.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	conf := NewConfig()
	_, board := testBoard(conf)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Equal(t, context.Canceled, Run(ctx, board, conf))
}
