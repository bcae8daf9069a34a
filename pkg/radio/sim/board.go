package sim

import (
	"errors"
	"sync"

	fx "github.com/robotalks/wifista/pkg/framework"
	"github.com/robotalks/wifista/pkg/radio"
)

var (
	// ErrPeripheralsTaken indicates the board peripherals were claimed.
	ErrPeripheralsTaken = errors.New("peripherals already taken")
	// ErrRadioInitialized indicates the radio was brought up before.
	ErrRadioInitialized = errors.New("radio already initialized")
	// ErrUnsupportedMode indicates the radio can't run in the mode.
	ErrUnsupportedMode = errors.New("unsupported radio mode")
)

// Board is a simulated board carrying a single simulated radio.
type Board struct {
	Radio *Driver

	clock       fx.Clock
	peripherals bool
	radioUp     bool
	lock        sync.Mutex
}

// NewBoard creates a Board whose radio runs on clock.
func NewBoard(clock fx.Clock, conf Config) *Board {
	return &Board{
		Radio: New(clock, conf),
		clock: clock,
	}
}

// Name identifies the board.
func (b *Board) Name() string {
	return "sim"
}

// TakePeripherals claims the board hardware. It succeeds only once.
func (b *Board) TakePeripherals() error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.peripherals {
		return ErrPeripheralsTaken
	}
	b.peripherals = true
	return nil
}

// Clock returns the timer service of the board.
func (b *Board) Clock() fx.Clock {
	return b.clock
}

// InitRadio brings the radio up in mode and splits it into the network
// interface and the controller.
func (b *Board) InitRadio(mode radio.Mode) (radio.Interface, radio.Controller, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.radioUp {
		return nil, nil, ErrRadioInitialized
	}
	if mode != radio.ModeStation || !b.Radio.Capabilities().Has(radio.CapClient) {
		return nil, nil, ErrUnsupportedMode
	}
	b.radioUp = true
	return b.Radio, b.Radio, nil
}

// SetWaker registers the scheduler to wake on radio events.
func (b *Board) SetWaker(w fx.Waker) {
	b.Radio.SetWaker(w)
}
