package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/wifista/pkg/diag"
	fx "github.com/robotalks/wifista/pkg/framework"
	"github.com/robotalks/wifista/pkg/radio"
	"github.com/robotalks/wifista/pkg/radio/sim"
)

const (
	testStartLatency   = 100 * time.Millisecond
	testConnectLatency = time.Second
	testGrace          = 5 * time.Second
	testRetry          = 5 * time.Second
)

var testCreds = radio.Credentials{SSID: "lab", Passphrase: "password1"}

type testEnv struct {
	t       *testing.T
	clock   *fx.SimClock
	sched   *fx.Scheduler
	radio   *sim.Driver
	sup     *Supervisor
	rec     *diag.Recorder
	reg     *prometheus.Registry
	exitErr error
	exited  bool
}

func newTestEnv(t *testing.T) *testEnv {
	conf := sim.DefaultConfig()
	conf.StartLatency = testStartLatency
	conf.ConnectLatency = testConnectLatency
	conf.AccessPoint = testCreds

	e := &testEnv{
		t:     t,
		clock: fx.NewSimClock(),
		rec:   &diag.Recorder{},
		reg:   prometheus.NewRegistry(),
	}
	e.sched = fx.NewScheduler(4, e.clock)
	e.sched.OnExit = func(name string, err error) {
		if name == "connection" {
			e.exited, e.exitErr = true, err
		}
	}
	e.radio = sim.New(e.clock, conf)
	e.radio.SetWaker(e.sched)
	e.sup = New(radio.NewHandle(e.radio), Config{
		Credentials: testCreds,
		GraceDelay:  testGrace,
		RetryDelay:  testRetry,
	})
	e.sup.Log = diag.NewStream(e.clock, e.rec).Logger("connection")
	e.sup.Metrics = NewMetrics(e.reg)
	require.NoError(t, e.sched.Spawn("connection", e.sup))
	return e
}

func (e *testEnv) run(d time.Duration) {
	require.NoError(e.t, e.sched.RunFor(context.Background(), d))
}

func (e *testEnv) at(t time.Time) time.Duration {
	return t.Sub(fx.SimEpoch)
}

func (e *testEnv) metric(name string) float64 {
	mfs, err := e.reg.Gather()
	require.NoError(e.t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		m := mf.GetMetric()[0]
		if c := m.GetCounter(); c != nil {
			return c.GetValue()
		}
		return m.GetGauge().GetValue()
	}
	e.t.Fatalf("metric %s not found", name)
	return 0
}

func TestConnects(t *testing.T) {
	e := newTestEnv(t)
	e.run(5 * time.Second)

	require.Equal(t, StateConnectedWaitingForDrop, e.sup.State())
	require.Equal(t, radio.Connected, e.radio.State())
	require.Equal(t, uint64(1), e.sup.Attempts())
	require.False(t, e.exited)

	msgs := e.rec.Messages("connection")
	require.Equal(t, "start connection task", msgs[0])
	require.Equal(t, "Device capabilities: {Client, AccessPoint, Mixed}", msgs[1])
	require.Contains(t, msgs, "Starting wifi")
	require.Contains(t, msgs, "Wifi started!")
	require.Contains(t, msgs, "About to connect...")
	require.Contains(t, msgs, "Wifi connected!")
	require.Contains(t, msgs, "state AwaitingStart -> ConnectedWaitingForDrop")

	stats := e.radio.Stats()
	require.Equal(t, 1, stats.ConfigCalls)
	require.Equal(t, 1, stats.StartCalls)
	require.Equal(t, testStartLatency, e.at(stats.ConnectCalls[0]))
}

func TestConnectsWithoutLogger(t *testing.T) {
	e := newTestEnv(t)
	e.sup.Log, e.sup.Metrics = nil, nil
	e.radio.FailNextConnects(1)
	e.run(testStartLatency + testConnectLatency + testRetry + testConnectLatency + time.Second)

	require.Equal(t, StateConnectedWaitingForDrop, e.sup.State())
	require.Equal(t, uint64(2), e.sup.Attempts())
	require.Equal(t, uint64(1), e.sup.Failures())
	require.Empty(t, e.rec.Entries())
}

func TestFixedDelayRetries(t *testing.T) {
	e := newTestEnv(t)
	e.radio.FailNextConnects(3)
	e.run(time.Minute)

	calls := e.radio.Stats().ConnectCalls
	require.Len(t, calls, 4)
	for n := 1; n < len(calls); n++ {
		require.Equal(t, testConnectLatency+testRetry, calls[n].Sub(calls[n-1]),
			"gap before attempt %d", n+1)
	}
	require.Equal(t, uint64(4), e.sup.Attempts())
	require.Equal(t, uint64(3), e.sup.Failures())
	require.Equal(t, StateConnectedWaitingForDrop, e.sup.State())

	require.Equal(t, float64(4), e.metric("wifista_supervisor_connect_attempts_total"))
	require.Equal(t, float64(3), e.metric("wifista_supervisor_connect_failures_total"))
	require.Equal(t, float64(StateConnectedWaitingForDrop), e.metric("wifista_supervisor_state"))

	var failures int
	for _, entry := range e.rec.Entries("connection") {
		if entry.Level == diag.LevelWarning {
			failures++
		}
	}
	require.Equal(t, 3, failures)
}

func TestRecoversFromDisconnects(t *testing.T) {
	testCases := []struct {
		name     string
		drops    []time.Duration
		failures int
	}{
		{name: "single drop", drops: []time.Duration{10 * time.Second}},
		{name: "drop burst", drops: []time.Duration{10 * time.Second, 10500 * time.Millisecond, 11 * time.Second, 30 * time.Second}},
		{name: "drops during grace", drops: []time.Duration{10 * time.Second, 12 * time.Second, 14 * time.Second, 17 * time.Second}},
		{name: "failed reconnects", drops: []time.Duration{10 * time.Second, 40 * time.Second}, failures: 2},
		{name: "periodic drops", drops: []time.Duration{
			20 * time.Second, 40 * time.Second, 60 * time.Second, 80 * time.Second, 100 * time.Second,
		}, failures: 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEnv(t)
			e.run(5 * time.Second)
			require.Equal(t, StateConnectedWaitingForDrop, e.sup.State())

			e.radio.FailNextConnects(tc.failures)
			for _, d := range tc.drops {
				e.radio.DropAfter(d)
			}
			e.run(5 * time.Minute)

			stats := e.radio.Stats()
			require.NotZero(t, stats.Drops)
			require.Equal(t, StateConnectedWaitingForDrop, e.sup.State())
			require.Equal(t, radio.Connected, e.radio.State())
			require.Equal(t, uint64(1+stats.Drops+tc.failures), e.sup.Attempts())
			require.Equal(t, 1, stats.MaxInFlight)
			require.Equal(t, float64(stats.Drops), e.metric("wifista_supervisor_disconnects_total"))
		})
	}
}

func TestGraceDelayAfterDisconnect(t *testing.T) {
	e := newTestEnv(t)
	e.run(5 * time.Second)
	e.radio.DropAfter(5 * time.Second)
	dropAt := e.clock.Now().Add(5 * time.Second)
	e.run(30 * time.Second)

	var after []time.Time
	for _, q := range e.radio.Stats().StateQueries {
		if !q.Before(dropAt) {
			after = append(after, q)
		}
	}
	require.NotEmpty(t, after)
	require.Equal(t, testGrace, after[0].Sub(dropAt))

	calls := e.radio.Stats().ConnectCalls
	require.Len(t, calls, 2)
	require.Equal(t, dropAt.Add(testGrace), calls[1])
	require.Contains(t, e.rec.Messages("connection"), "Wifi disconnected, retrying in 5s")
}

func TestConfigurationRejectedEscalates(t *testing.T) {
	e := newTestEnv(t)
	var ticks int
	require.NoError(t, e.sched.Spawn("ticker", fx.StepFunc(func(fx.TaskContext) fx.Poll {
		ticks++
		return fx.Sleep(time.Second)
	})))
	e.radio.RejectConfiguration(true)
	e.run(10 * time.Second)

	require.True(t, e.exited)
	require.True(t, errors.Is(e.exitErr, radio.ErrConfigurationRejected))
	require.Equal(t, 10, ticks)
	require.Empty(t, e.radio.Stats().ConnectCalls)
	require.Equal(t, fx.TaskExited, e.sched.Tasks()[0].Status)

	entries := e.rec.Entries("connection")
	last := entries[len(entries)-1]
	require.Equal(t, diag.LevelError, last.Level)
}

func TestStartFailedEscalates(t *testing.T) {
	e := newTestEnv(t)
	e.radio.FailNextStarts(1)
	e.run(10 * time.Second)

	require.True(t, e.exited)
	require.True(t, errors.Is(e.exitErr, radio.ErrStartFailed))
	require.Empty(t, e.radio.Stats().ConnectCalls)
}

func TestIsStartedErrorRestarts(t *testing.T) {
	e := newTestEnv(t)
	e.radio.FailIsStarted(errors.New("driver busy"))
	e.run(5 * time.Second)

	require.False(t, e.exited)
	require.Equal(t, StateConnectedWaitingForDrop, e.sup.State())
	require.Equal(t, 1, e.radio.Stats().ConfigCalls)
}

func TestRadioMovedOnce(t *testing.T) {
	h := radio.NewHandle(sim.New(fx.NewSimClock(), sim.DefaultConfig()))
	New(h, Config{Credentials: testCreds})
	require.Panics(t, func() { New(h, Config{Credentials: testCreds}) })
}

func TestStateString(t *testing.T) {
	require.Equal(t, "Idle", StateIdle.String())
	require.Equal(t, "AwaitingStart", StateAwaitingStart.String())
	require.Equal(t, "AwaitingConnectResult", StateAwaitingConnectResult.String())
	require.Equal(t, "ConnectedWaitingForDrop", StateConnectedWaitingForDrop.String())
	require.Equal(t, "BackoffBeforeRetry", StateBackoffBeforeRetry.String())
	require.Equal(t, "Unknown", State(42).String())
}
