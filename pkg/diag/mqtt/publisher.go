package mqtt

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/wifista/pkg/diag"
	"github.com/robotalks/wifista/pkg/diag/msgs"
)

// Defaults
const (
	// DefaultBacklog is the number of entries buffered for publishing.
	DefaultBacklog = 256
	// DefaultRetryDelay is the pause between attempts to reach the broker.
	DefaultRetryDelay = 5 * time.Second
)

// DiagTopic returns the topic the stream of device is published to.
func DiagTopic(device string) string {
	return device + "/diag"
}

// Publisher is a diag.Sink mirroring entries to MQTT. Append never
// blocks: entries are queued and published by Run, and dropped when the
// backlog is full. An unreachable broker never stops Run.
type Publisher struct {
	Queue      *Queue
	Device     string
	Boot       string
	RetryDelay time.Duration

	backlog         chan diag.Entry
	dropped         uint64
	connectFailures uint64
}

// NewPublisher creates a Publisher.
func NewPublisher(q *Queue, device, boot string, backlog int) *Publisher {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	return &Publisher{
		Queue:   q,
		Device:  device,
		Boot:    boot,
		backlog: make(chan diag.Entry, backlog),
	}
}

// Append implements diag.Sink.
func (p *Publisher) Append(e diag.Entry) {
	select {
	case p.backlog <- e:
	default:
		atomic.AddUint64(&p.dropped, 1)
	}
}

// Dropped returns the number of entries dropped on a full backlog.
func (p *Publisher) Dropped() uint64 {
	return atomic.LoadUint64(&p.dropped)
}

// ConnectFailures returns the number of failed attempts to reach the
// broker.
func (p *Publisher) ConnectFailures() uint64 {
	return atomic.LoadUint64(&p.connectFailures)
}

// Name implements Named.
func (p *Publisher) Name() string {
	return "diag-uplink"
}

// Run implements Runnable. It only returns when ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	if err := p.connect(ctx); err != nil {
		return err
	}
	defer p.Queue.Close()
	topic := DiagTopic(p.Device)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-p.backlog:
			payload, err := msgs.Encode(msgs.NewEvent(e, p.Device, p.Boot))
			if err != nil {
				glog.Errorf("encode diag event %d: %v", e.Seq, err)
				continue
			}
			p.Queue.Pub(topic, payload)
		}
	}
}

func (p *Publisher) connect(ctx context.Context) error {
	delay := p.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	for {
		token := p.Queue.Connect()
		token.Wait()
		err := token.Error()
		if err == nil {
			return nil
		}
		atomic.AddUint64(&p.connectFailures, 1)
		glog.Warningf("diag uplink: %v, retrying in %v", err, delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// SubscribeEvents subscribes to the diagnostic stream of device, or of
// all devices when device is empty. Undecodable payloads are logged and
// skipped.
func SubscribeEvents(q *Queue, device string, handler func(*msgs.Event)) *Subscription {
	if device == "" {
		device = "+"
	}
	return q.Sub(DiagTopic(device), func(topic string, payload []byte) {
		ev, err := msgs.Decode(payload)
		if err != nil {
			glog.Warningf("%s: %v", topic, err)
			return
		}
		handler(ev)
	})
}
