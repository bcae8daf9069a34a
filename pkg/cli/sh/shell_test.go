package sh

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/wifista/pkg/diag"
	"github.com/robotalks/wifista/pkg/firmware"
	fx "github.com/robotalks/wifista/pkg/framework"
	"github.com/robotalks/wifista/pkg/radio/sim"
)

func runFirmware(t *testing.T) (*Shell, func()) {
	conf := firmware.NewConfig()
	simConf := sim.DefaultConfig()
	simConf.StartLatency = time.Millisecond
	simConf.ConnectLatency = time.Millisecond
	board := sim.NewBoard(fx.WallClock{}, simConf)
	rec := &diag.Recorder{Limit: 100}
	fw, err := firmware.New(board, conf, diag.NewStream(board.Clock(), rec), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		fw.Run(ctx)
		close(done)
	}()
	return New(fw, board.Radio, rec), func() {
		cancel()
		<-done
	}
}

func TestShellStatusAndTasks(t *testing.T) {
	s, stop := runFirmware(t)
	defer stop()

	require.Eventually(t, func() bool {
		st, err := s.Status()
		return err == nil && st.Radio == "CONNECTED"
	}, 2*time.Second, 10*time.Millisecond)

	st, err := s.Status()
	require.NoError(t, err)
	require.Equal(t, "ConnectedWaitingForDrop", st.Supervisor)
	require.Equal(t, uint64(1), st.Attempts)
	require.NotEmpty(t, st.Boot)

	tasks, err := s.Tasks()
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	require.Equal(t, firmware.MainTask, tasks[0].Name)
}

func TestShellDrop(t *testing.T) {
	s, stop := runFirmware(t)
	defer stop()

	require.Eventually(t, func() bool {
		st, _ := s.Status()
		return st.Radio == "CONNECTED"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.FailConnects(1))
	require.NoError(t, s.Drop())
	st, err := s.Status()
	require.NoError(t, err)
	require.Equal(t, "DISCONNECTED", st.Radio)
	require.Equal(t, 1, s.Radio.Stats().Drops)
}

func TestShellWithoutSimRadio(t *testing.T) {
	s, stop := runFirmware(t)
	defer stop()
	s.Radio = nil
	require.Equal(t, ErrNoSimRadio, s.Drop())
	require.Equal(t, ErrNoSimRadio, s.FailConnects(1))
}

func TestShellTimeout(t *testing.T) {
	conf := firmware.NewConfig()
	board := sim.NewBoard(fx.WallClock{}, sim.DefaultConfig())
	fw, err := firmware.New(board, conf, diag.NewStream(board.Clock()), nil)
	require.NoError(t, err)
	s := New(fw, board.Radio, nil)
	s.Timeout = 10 * time.Millisecond
	_, err = s.Status()
	require.Equal(t, ErrTimeout, err)
}

func TestShellLog(t *testing.T) {
	conf := firmware.NewConfig()
	board := sim.NewBoard(fx.NewSimClock(), sim.DefaultConfig())
	rec := &diag.Recorder{}
	stream := diag.NewStream(board.Clock(), rec)
	fw, err := firmware.New(board, conf, stream, nil)
	require.NoError(t, err)
	for n := 0; n < 4; n++ {
		stream.Logger("heartbeat").Infof("Hello world!")
	}
	stream.Logger("main").Infof("Bing!")

	s := New(fw, board.Radio, rec)
	testCases := []struct {
		args  []string
		lines int
		fail  bool
	}{
		{nil, 5, false},
		{[]string{"2"}, 2, false},
		{[]string{"0"}, 0, false},
		{[]string{"9", "main"}, 1, false},
		{[]string{"heartbeat"}, 4, false},
		{[]string{"-3"}, 0, true},
	}
	for _, tc := range testCases {
		var out bytes.Buffer
		s.Shell.SetOut(&out)
		var err error
		require.NotPanics(t, func() {
			err = s.Shell.Process(append([]string{"log"}, tc.args...)...)
		}, "%v", tc.args)
		if tc.fail {
			require.Error(t, err, "%v", tc.args)
		} else {
			require.NoError(t, err, "%v", tc.args)
		}
		text := strings.TrimSpace(out.String())
		var lines []string
		if text != "" {
			lines = strings.Split(text, "\n")
		}
		require.Len(t, lines, tc.lines, "%v", tc.args)
	}
}

func TestCommandsHaveHelp(t *testing.T) {
	for _, cmd := range commands {
		require.NotEmpty(t, cmd.Help, cmd.Name)
	}
}
