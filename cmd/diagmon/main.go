package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/robotalks/wifista/pkg/diag/msgs"
	"github.com/robotalks/wifista/pkg/diag/mqtt"
	fx "github.com/robotalks/wifista/pkg/framework"
)

var (
	mqttURL = "mqtt://localhost:1883/wifista/"
	device  string
)

func init() {
	if val := os.Getenv("WIFISTA_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&device, "device", device, "Only show events of this device.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	mqtt.SubscribeEvents(q, device, func(ev *msgs.Event) {
		boot := ev.Boot
		if len(boot) > 8 {
			boot = boot[:8]
		}
		log.Printf("%s/%s #%d %s", ev.Device, boot, ev.Seq, ev.Entry())
	})

	err = fx.NewRunner().HandleSignals().Go(fx.RunFunc(func(ctx context.Context) error {
		return fx.RunWithContextCloser(ctx, q, func() error {
			token := q.Connect()
			token.Wait()
			if err := token.Error(); err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		})
	})).Wait()
	if err != nil {
		log.Fatalln(err)
	}
}
