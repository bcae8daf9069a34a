package radio

import (
	"strings"

	fx "github.com/robotalks/wifista/pkg/framework"
)

// Credential limits imposed by the station driver.
const (
	MaxSSIDLen       = 32
	MaxPassphraseLen = 64
)

// ConnectionState is the association state reported by the driver.
type ConnectionState uint8

// Connection states
const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

// String implements fmt.Stringer.
func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// EventKind names an event the driver can be awaited for.
type EventKind uint8

// Station events
const (
	EventStaStarted EventKind = iota
	EventStaStopped
	EventStaConnected
	EventStaDisconnected

	numEventKinds
)

// String implements fmt.Stringer.
func (k EventKind) String() string {
	switch k {
	case EventStaStarted:
		return "StaStarted"
	case EventStaStopped:
		return "StaStopped"
	case EventStaConnected:
		return "StaConnected"
	case EventStaDisconnected:
		return "StaDisconnected"
	default:
		return "Unknown"
	}
}

// Capability is a single operating mode the radio supports.
type Capability uint8

// Capabilities
const (
	CapClient Capability = 1 << iota
	CapAccessPoint
	CapMixed
)

// Capabilities is a set of Capability.
type Capabilities uint8

// Has tests whether cap is in the set.
func (c Capabilities) Has(cap Capability) bool {
	return uint8(c)&uint8(cap) != 0
}

// String implements fmt.Stringer.
func (c Capabilities) String() string {
	var names []string
	if c.Has(CapClient) {
		names = append(names, "Client")
	}
	if c.Has(CapAccessPoint) {
		names = append(names, "AccessPoint")
	}
	if c.Has(CapMixed) {
		names = append(names, "Mixed")
	}
	return "{" + strings.Join(names, ", ") + "}"
}

// Mode is the operating mode the radio is brought up in.
type Mode uint8

// Modes
const (
	ModeStation Mode = iota
	ModeAccessPoint
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	if m == ModeStation {
		return "station"
	}
	return "access-point"
}

// Credentials identify the access point to join. They are fixed at
// build time.
type Credentials struct {
	SSID       string `yaml:"ssid"`
	Passphrase string `yaml:"passphrase"`
}

// Validate checks the credentials against the driver limits.
func (c Credentials) Validate() error {
	if c.SSID == "" {
		return &CredentialsError{Field: "ssid", Reason: "empty"}
	}
	if len(c.SSID) > MaxSSIDLen {
		return &CredentialsError{Field: "ssid", Reason: "longer than 32 bytes"}
	}
	if len(c.Passphrase) > MaxPassphraseLen {
		return &CredentialsError{Field: "passphrase", Reason: "longer than 64 bytes"}
	}
	return nil
}

// ClientConfig is the station configuration applied to the driver.
type ClientConfig struct {
	Credentials
	// Channel restricts the scan to a channel, 0 means all.
	Channel uint8
}

// Interface is the network device side of the radio, consumed by the
// IP stack.
type Interface interface {
	HardwareAddr() [6]byte
}

// Controller is the station-mode control surface of a radio driver.
// Start, Connect and WaitForEvent return futures to be awaited through
// the scheduler.
type Controller interface {
	Capabilities() Capabilities
	IsStarted() (bool, error)
	SetConfiguration(ClientConfig) error
	Start() fx.Future
	Connect() fx.Future
	State() ConnectionState
	WaitForEvent(EventKind) fx.Future
}
