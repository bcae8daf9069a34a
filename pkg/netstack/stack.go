// Package netstack is the network stack boundary the firmware hands the
// station interface to. The core never touches the stack after it has
// been created.
package netstack

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/robotalks/wifista/pkg/radio"
)

// ErrInvalidConfig is returned for an unusable stack configuration.
var ErrInvalidConfig = errors.New("invalid network configuration")

// AddressMode selects how the interface is addressed.
type AddressMode int

// Address modes
const (
	ModeDHCPv4 AddressMode = iota
	ModeStatic
)

// String implements fmt.Stringer.
func (m AddressMode) String() string {
	switch m {
	case ModeDHCPv4:
		return "dhcpv4"
	case ModeStatic:
		return "static"
	default:
		return "unknown"
	}
}

// Config is the interface address configuration.
type Config struct {
	Mode AddressMode
	// Hostname is announced in DHCP requests.
	Hostname string
	// Address, Gateway and DNS are used in ModeStatic.
	Address netip.Prefix
	Gateway netip.Addr
	DNS     []netip.Addr
}

// DHCPv4 returns a Config acquiring the address via DHCPv4.
func DHCPv4(hostname string) Config {
	return Config{Mode: ModeDHCPv4, Hostname: hostname}
}

// Static returns a Config with a fixed address.
func Static(addr netip.Prefix, gateway netip.Addr, dns ...netip.Addr) Config {
	return Config{Mode: ModeStatic, Address: addr, Gateway: gateway, DNS: dns}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeDHCPv4:
		return nil
	case ModeStatic:
		if !c.Address.IsValid() || !c.Address.Addr().Is4() {
			return fmt.Errorf("%w: static address %v", ErrInvalidConfig, c.Address)
		}
		if c.Gateway.IsValid() && !c.Address.Contains(c.Gateway) {
			return fmt.Errorf("%w: gateway %v outside %v", ErrInvalidConfig, c.Gateway, c.Address)
		}
		return nil
	default:
		return fmt.Errorf("%w: mode %d", ErrInvalidConfig, c.Mode)
	}
}

// String implements fmt.Stringer.
func (c Config) String() string {
	if c.Mode == ModeStatic {
		return fmt.Sprintf("static %v gw %v", c.Address, c.Gateway)
	}
	if c.Hostname != "" {
		return "dhcpv4 " + c.Hostname
	}
	return "dhcpv4"
}

// Stack is the network stack bound to a single interface.
type Stack struct {
	iface     radio.Interface
	conf      Config
	resources int
	seed      uint64
}

// New creates the stack for iface with the given number of socket
// resources and random seed.
func New(iface radio.Interface, conf Config, resources int, seed uint64) (*Stack, error) {
	if iface == nil {
		return nil, fmt.Errorf("%w: no interface", ErrInvalidConfig)
	}
	if resources <= 0 {
		return nil, fmt.Errorf("%w: %d socket resources", ErrInvalidConfig, resources)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &Stack{
		iface:     iface,
		conf:      conf,
		resources: resources,
		seed:      seed,
	}, nil
}

// Config returns the address configuration.
func (s *Stack) Config() Config {
	return s.conf
}

// Resources returns the number of socket slots.
func (s *Stack) Resources() int {
	return s.resources
}

// Seed returns the seed the stack was created with.
func (s *Stack) Seed() uint64 {
	return s.seed
}

// HardwareAddr returns the MAC address of the interface.
func (s *Stack) HardwareAddr() net.HardwareAddr {
	mac := s.iface.HardwareAddr()
	return net.HardwareAddr(mac[:])
}
