package core

import (
	"errors"

	"nightfall/protocol"
)

// ErrNoChannel is returned when a motor is applied without a driver
var ErrNoChannel = errors.New("motor channel has no driver")

// MotorChannel describes one H-bridge channel: a PWM enable pin and a
// direction pin pair. Wheel selects which drive frame value it follows.
type MotorChannel struct {
	Name   string
	Wheel  protocol.Wheel
	PWM    PWMPin
	In1    GPIOPin
	In2    GPIOPin
	Invert bool // Swap In1/In2 for motors mounted mirrored
}

// Output is the pin-level state for one motor channel
type Output struct {
	Forward bool
	Reverse bool
	Duty    uint8 // 0..SpeedMax
}

// MotorOutputFor maps a signed speed to direction pins and duty.
// The speed is clamped first, so the duty is always |clamp(speed)|.
func MotorOutputFor(speed int) Output {
	speed = protocol.Clamp(speed)
	switch {
	case speed > 0:
		return Output{Forward: true, Duty: uint8(speed)}
	case speed < 0:
		return Output{Reverse: true, Duty: uint8(-speed)}
	}
	return Output{}
}

// Speed returns the signed speed this output represents
func (o Output) Speed() int {
	switch {
	case o.Forward:
		return int(o.Duty)
	case o.Reverse:
		return -int(o.Duty)
	}
	return 0
}

// Motor drives one channel through the GPIO and PWM drivers
type Motor struct {
	ch   MotorChannel
	gpio GPIODriver
	pwm  PWMDriver
	max  uint32

	last Output
}

// NewMotor binds a channel to its drivers
func NewMotor(ch MotorChannel, gpio GPIODriver, pwm PWMDriver) *Motor {
	return &Motor{ch: ch, gpio: gpio, pwm: pwm}
}

// Configure sets up the direction pins and the PWM output, leaving the motor stopped
func (m *Motor) Configure() error {
	if m.gpio == nil || m.pwm == nil {
		return ErrNoChannel
	}
	if err := m.gpio.ConfigureOutput(m.ch.In1); err != nil {
		return err
	}
	if err := m.gpio.ConfigureOutput(m.ch.In2); err != nil {
		return err
	}
	if _, err := m.pwm.ConfigureHardwarePWM(m.ch.PWM, DefaultPWMPeriodNs); err != nil {
		return err
	}
	m.max = m.pwm.GetMaxValue()
	return m.Apply(0)
}

// Apply drives the channel to the given speed.
// Every call re-asserts the same pin levels for the same speed, so it is
// safe to call on every loop iteration.
func (m *Motor) Apply(speed int) error {
	if m.gpio == nil || m.pwm == nil {
		return ErrNoChannel
	}
	if m.max == 0 {
		m.max = m.pwm.GetMaxValue()
	}

	out := MotorOutputFor(speed)
	in1, in2 := out.Forward, out.Reverse
	if m.ch.Invert {
		in1, in2 = in2, in1
	}
	duty := PWMValue(uint32(out.Duty) * m.max / protocol.SpeedMax)

	// Drop the duty before touching direction pins when stopping
	if out.Duty == 0 {
		if err := m.pwm.SetDutyCycle(m.ch.PWM, 0); err != nil {
			return err
		}
	}
	if err := m.gpio.SetPin(m.ch.In1, in1); err != nil {
		return err
	}
	if err := m.gpio.SetPin(m.ch.In2, in2); err != nil {
		return err
	}
	if out.Duty != 0 {
		if err := m.pwm.SetDutyCycle(m.ch.PWM, duty); err != nil {
			return err
		}
	}

	m.last = out
	return nil
}

// Output returns the last applied output
func (m *Motor) Output() Output {
	return m.last
}

// Channel returns the channel description
func (m *Motor) Channel() MotorChannel {
	return m.ch
}

// Ramp moves current towards target by at most step.
// Within one step it lands exactly on target. A step <= 0 disables ramping.
func Ramp(current, target, step int) int {
	if step <= 0 {
		return target
	}
	switch {
	case current < target:
		if target-current <= step {
			return target
		}
		return current + step
	case current > target:
		if current-target <= step {
			return target
		}
		return current - step
	}
	return target
}
