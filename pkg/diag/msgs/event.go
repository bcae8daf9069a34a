// Package msgs defines the wire format of diagnostic events published
// by the device.
package msgs

import (
	"fmt"
	"time"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/wifista/pkg/diag"
)

// Event is a diagnostic stream entry on the wire.
type Event struct {
	Seq          uint64 `protobuf:"varint,1,opt,name=seq,proto3" json:"seq,omitempty"`
	TimeUnixNano int64  `protobuf:"varint,2,opt,name=time_unix_nano,json=timeUnixNano,proto3" json:"time_unix_nano,omitempty"`
	Source       string `protobuf:"bytes,3,opt,name=source,proto3" json:"source,omitempty"`
	Level        int32  `protobuf:"varint,4,opt,name=level,proto3" json:"level,omitempty"`
	Message      string `protobuf:"bytes,5,opt,name=message,proto3" json:"message,omitempty"`
	Device       string `protobuf:"bytes,6,opt,name=device,proto3" json:"device,omitempty"`
	Boot         string `protobuf:"bytes,7,opt,name=boot,proto3" json:"boot,omitempty"`
}

// Reset implements proto.Message.
func (m *Event) Reset() { *m = Event{} }

// String implements proto.Message.
func (m *Event) String() string { return proto.CompactTextString(m) }

// ProtoMessage implements proto.Message.
func (*Event) ProtoMessage() {}

// NewEvent converts an entry of the device identified by device and
// boot.
func NewEvent(e diag.Entry, device, boot string) *Event {
	return &Event{
		Seq:          e.Seq,
		TimeUnixNano: e.Time.UnixNano(),
		Source:       e.Source,
		Level:        int32(e.Level),
		Message:      e.Message,
		Device:       device,
		Boot:         boot,
	}
}

// Entry converts the event back to a stream entry.
func (m *Event) Entry() diag.Entry {
	return diag.Entry{
		Seq:     m.Seq,
		Time:    time.Unix(0, m.TimeUnixNano).UTC(),
		Source:  m.Source,
		Level:   diag.Level(m.Level),
		Message: m.Message,
	}
}

// Encode serializes the event.
func Encode(m *Event) ([]byte, error) {
	return proto.Marshal(m)
}

// Decode parses an event.
func Decode(data []byte) (*Event, error) {
	var m Event
	if err := proto.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode diag event: %w", err)
	}
	return &m, nil
}
