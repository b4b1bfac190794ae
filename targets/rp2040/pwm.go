//go:build rp2040 || rp2350

package main

import (
	"machine"

	"github.com/sparques/pwm"

	"nightfall/core"
)

// PWM_MAX matches the drive frame speed range
const PWM_MAX = 255

// RP2040PWMDriver implements the PWMDriver interface for RP2040.
// Each pin belongs to one of 8 hardware slices with 2 channels each; both
// channels of a slice share one period.
type RP2040PWMDriver struct {
	// Key: slice number (0-7), Value: configured period in nanoseconds
	slices map[uint8]uint64

	// Key: pin number, Value: PWM channel
	channels map[uint32]uint8

	// Key: slice number (0-7)
	groups map[uint8]pwm.Group
}

// NewRP2040PWMDriver creates a new RP2040 PWM driver
func NewRP2040PWMDriver() *RP2040PWMDriver {
	return &RP2040PWMDriver{
		slices:   make(map[uint8]uint64),
		channels: make(map[uint32]uint8),
		groups:   make(map[uint8]pwm.Group),
	}
}

// GetMaxValue returns the maximum PWM value (255)
func (d *RP2040PWMDriver) GetMaxValue() uint32 {
	return PWM_MAX
}

// ConfigureHardwarePWM configures a pin for hardware PWM output
func (d *RP2040PWMDriver) ConfigureHardwarePWM(pin core.PWMPin, periodNs uint32) (uint32, error) {
	pinNum := uint32(pin)
	machinePin := machine.Pin(pinNum)

	// GPIO N maps to slice (N >> 1) & 7, channel N & 1
	sliceNum := uint8((pinNum >> 1) & 0x7)

	group, exists := d.groups[sliceNum]
	if !exists {
		group = pwm.Get(machinePin)
		d.groups[sliceNum] = group
	}

	// The first pin on a slice sets the period; a second pin keeps it
	period := uint64(periodNs)
	if existing, ok := d.slices[sliceNum]; ok {
		period = existing
	} else {
		if err := group.Configure(machine.PWMConfig{Period: period}); err != nil {
			return 0, err
		}
		d.slices[sliceNum] = period
	}

	machinePin.Configure(machine.PinConfig{Mode: machine.PinPWM})
	channel, err := group.Channel(machinePin)
	if err != nil {
		return 0, err
	}
	group.Set(channel, 0)
	d.channels[pinNum] = channel

	return uint32(period), nil
}

// SetDutyCycle sets the PWM duty cycle for a pin
// value: 0 (fully off) to 255 (fully on)
func (d *RP2040PWMDriver) SetDutyCycle(pin core.PWMPin, value core.PWMValue) error {
	pinNum := uint32(pin)

	channel, exists := d.channels[pinNum]
	if !exists {
		return nil
	}
	group, exists := d.groups[uint8((pinNum>>1)&0x7)]
	if !exists {
		return nil
	}

	if value > PWM_MAX {
		value = PWM_MAX
	}
	// Scale 0-255 to 0-Top()
	group.Set(channel, (uint32(value)*group.Top())/PWM_MAX)
	return nil
}

// DisablePWM drives the pin's duty to zero and forgets it
func (d *RP2040PWMDriver) DisablePWM(pin core.PWMPin) error {
	d.SetDutyCycle(pin, 0)
	delete(d.channels, uint32(pin))
	return nil
}
