// Package firmata drives the motor H-bridges from a host computer through
// an Arduino-class board running StandardFirmata.
package firmata

import (
	"fmt"
	"sync"

	"github.com/kraman/go-firmata"

	"nightfall/core"
)

// PWMMax is the Firmata analog write resolution
const PWMMax = 255

// board is the subset of the Firmata client the driver uses
type board interface {
	SetPinMode(pin uint8, mode firmata.PinMode) error
	DigitalWrite(pin uint8, val bool) error
	AnalogWrite(pin uint, val byte) error
}

// Driver implements core.GPIODriver and core.PWMDriver on a Firmata board
type Driver struct {
	mu     sync.Mutex
	board  board
	client *firmata.FirmataClient

	modes map[uint8]firmata.PinMode
	pins  map[uint8]bool
	duty  map[uint8]byte
}

// Open connects to the board on device
func Open(device string, baud int) (*Driver, error) {
	client, err := firmata.NewClient(device, baud)
	if err != nil {
		return nil, fmt.Errorf("failed to open firmata board %s: %w", device, err)
	}
	d := newDriver(client)
	d.client = client
	return d, nil
}

func newDriver(b board) *Driver {
	return &Driver{
		board: b,
		modes: make(map[uint8]firmata.PinMode),
		pins:  make(map[uint8]bool),
		duty:  make(map[uint8]byte),
	}
}

// Close stops every PWM output and closes the connection
func (d *Driver) Close() {
	d.mu.Lock()
	for pin := range d.duty {
		d.board.AnalogWrite(uint(pin), 0)
	}
	d.mu.Unlock()
	if d.client != nil {
		d.client.Close()
	}
}

func (d *Driver) setMode(pin uint8, mode firmata.PinMode) error {
	if m, ok := d.modes[pin]; ok && m == mode {
		return nil
	}
	if err := d.board.SetPinMode(pin, mode); err != nil {
		return fmt.Errorf("set mode on pin %d: %w", pin, err)
	}
	d.modes[pin] = mode
	return nil
}

// ConfigureOutput configures a pin as a digital output, driven low
func (d *Driver) ConfigureOutput(pin core.GPIOPin) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := uint8(pin)
	if err := d.setMode(p, firmata.Output); err != nil {
		return err
	}
	d.pins[p] = false
	return d.board.DigitalWrite(p, false)
}

// SetPin drives a digital output. Unchanged levels are not re-sent.
func (d *Driver) SetPin(pin core.GPIOPin, value bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := uint8(pin)
	if cur, ok := d.pins[p]; ok && cur == value {
		return nil
	}
	if err := d.board.DigitalWrite(p, value); err != nil {
		return err
	}
	d.pins[p] = value
	return nil
}

// ConfigureHardwarePWM configures a pin for PWM. The board fixes the
// period, so the requested one is returned unchanged.
func (d *Driver) ConfigureHardwarePWM(pin core.PWMPin, periodNs uint32) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := uint8(pin)
	if err := d.setMode(p, firmata.PWM); err != nil {
		return 0, err
	}
	if err := d.board.AnalogWrite(uint(p), 0); err != nil {
		return 0, err
	}
	d.duty[p] = 0
	return periodNs, nil
}

// SetDutyCycle sets a PWM duty in 0..PWMMax. Unchanged duties are not re-sent.
func (d *Driver) SetDutyCycle(pin core.PWMPin, value core.PWMValue) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := uint8(pin)
	v := byte(PWMMax)
	if value < PWMMax {
		v = byte(value)
	}
	if cur, ok := d.duty[p]; ok && cur == v {
		return nil
	}
	if err := d.board.AnalogWrite(uint(p), v); err != nil {
		return err
	}
	d.duty[p] = v
	return nil
}

// GetMaxValue returns the maximum duty value
func (d *Driver) GetMaxValue() uint32 {
	return PWMMax
}

// DisablePWM stops PWM and leaves the pin as a low output
func (d *Driver) DisablePWM(pin core.PWMPin) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := uint8(pin)
	if err := d.board.AnalogWrite(uint(p), 0); err != nil {
		return err
	}
	delete(d.duty, p)
	if err := d.setMode(p, firmata.Output); err != nil {
		return err
	}
	return d.board.DigitalWrite(p, false)
}
