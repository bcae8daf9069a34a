package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robotalks/wifista/pkg/cli/sh"
	"github.com/robotalks/wifista/pkg/diag"
	"github.com/robotalks/wifista/pkg/diag/mqtt"
	"github.com/robotalks/wifista/pkg/firmware"
	fx "github.com/robotalks/wifista/pkg/framework"
	"github.com/robotalks/wifista/pkg/radio/sim"
	"github.com/robotalks/wifista/pkg/supervisor"
)

var (
	mqttURL     string
	metricsAddr string
	console     bool
	logLimit    = 1000
)

func init() {
	if val := os.Getenv("WIFISTA_MQTT_URL"); val != "" {
		mqttURL = val
	}
	firmware.SetupFlags()
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL of the diagnostic uplink, e.g. mqtt://localhost:1883/wifista/")
	flag.StringVar(&metricsAddr, "metrics", metricsAddr, "Address to serve /metrics on, e.g. :9100")
	flag.BoolVar(&console, "shell", console, "Run the interactive console.")
	flag.IntVar(&logLimit, "log-limit", logLimit, "Diagnostic entries kept for the console.")
}

func metricsServer(addr string, reg *prometheus.Registry) fx.Runnable {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	return fx.NamedRun("metrics", fx.RunFunc(func(ctx context.Context) error {
		return fx.RunWithContextCloser(ctx, srv, srv.ListenAndServe)
	}))
}

func main() {
	flag.Parse()

	conf := firmware.NewConfig()
	simConf := sim.DefaultConfig()
	simConf.AccessPoint = conf.Credentials
	board := sim.NewBoard(fx.WallClock{}, simConf)

	rec := &diag.Recorder{Limit: logLimit}
	stream := diag.NewStream(board.Clock(), diag.GlogSink{}, rec)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	fw, err := firmware.New(board, conf, stream, supervisor.NewMetrics(reg))
	if err != nil {
		log.Fatalln(err)
	}

	runner := fx.NewRunner().HandleSignals().Go(fw)
	if mqttURL != "" {
		q, err := mqtt.NewQueueFromURL(mqttURL)
		if err != nil {
			log.Fatalln(err)
		}
		pub := mqtt.NewPublisher(q, conf.DeviceID, fw.BootID, 0)
		stream.AddSink(pub)
		runner.Go(pub)
	}
	if metricsAddr != "" {
		runner.Go(metricsServer(metricsAddr, reg))
	}
	if console {
		shell := sh.New(fw, board.Radio, rec)
		runner.Go(fx.NamedRun("shell", fx.RunFunc(func(ctx context.Context) error {
			return fx.RunWithContextCloser(ctx, shell, func() error {
				shell.Run(flag.Args()...)
				return nil
			})
		})))
	}

	if err := runner.Wait(); err != nil {
		log.Fatalln(err)
	}
}
