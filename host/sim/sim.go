// Package sim provides in-memory drivers and sensors so a node can run on a
// development machine without motor or sensor hardware.
package sim

import (
	"sync"

	"nightfall/core"
)

// PWMMax is the duty resolution of the simulated PWM driver
const PWMMax = 255

// Board implements core.GPIODriver and core.PWMDriver in memory
type Board struct {
	mu     sync.Mutex
	pins   map[core.GPIOPin]bool
	duty   map[core.PWMPin]core.PWMValue
	writes uint32
}

// NewBoard creates a board with every output low
func NewBoard() *Board {
	return &Board{
		pins: make(map[core.GPIOPin]bool),
		duty: make(map[core.PWMPin]core.PWMValue),
	}
}

// ConfigureOutput configures a pin as output
func (b *Board) ConfigureOutput(pin core.GPIOPin) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pins[pin] = false
	return nil
}

// SetPin sets a digital output
func (b *Board) SetPin(pin core.GPIOPin, value bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pins[pin] = value
	b.writes++
	return nil
}

// ConfigureHardwarePWM configures a PWM output
func (b *Board) ConfigureHardwarePWM(pin core.PWMPin, periodNs uint32) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.duty[pin] = 0
	return periodNs, nil
}

// SetDutyCycle sets a PWM duty
func (b *Board) SetDutyCycle(pin core.PWMPin, value core.PWMValue) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if value > PWMMax {
		value = PWMMax
	}
	b.duty[pin] = value
	b.writes++
	return nil
}

// GetMaxValue returns the maximum duty value
func (b *Board) GetMaxValue() uint32 {
	return PWMMax
}

// DisablePWM stops a PWM output
func (b *Board) DisablePWM(pin core.PWMPin) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.duty, pin)
	return nil
}

// Pin returns a digital output level
func (b *Board) Pin(pin core.GPIOPin) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pins[pin]
}

// Configured reports whether a pin has been set up or written
func (b *Board) Configured(pin core.GPIOPin) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.pins[pin]
	return ok
}

// Duty returns a PWM duty
func (b *Board) Duty(pin core.PWMPin) core.PWMValue {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.duty[pin]
}

// Speed returns the signed speed a motor channel is driven at, read back
// from its pins
func (b *Board) Speed(ch core.MotorChannel) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	in1, in2 := b.pins[ch.In1], b.pins[ch.In2]
	if ch.Invert {
		in1, in2 = in2, in1
	}
	duty := int(b.duty[ch.PWM])
	switch {
	case in1 && !in2:
		return duty
	case in2 && !in1:
		return -duty
	}
	return 0
}

// Range is a distance sensor whose value is set by hand
type Range struct {
	mu sync.Mutex
	cm float32
	ok bool
}

// NewRange creates a sensor reading cm
func NewRange(cm float32) *Range {
	return &Range{cm: cm, ok: true}
}

// Set changes the reading; ok false simulates a missing echo
func (r *Range) Set(cm float32, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cm, r.ok = cm, ok
}

// ReadDistanceCM implements core.RangeSensor
func (r *Range) ReadDistanceCM() (float32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cm, r.ok
}

// Level is a level sensor whose value is set by hand
type Level struct {
	mu sync.Mutex
	v  float32
	ok bool
}

// NewLevel creates a sensor reading v
func NewLevel(v float32) *Level {
	return &Level{v: v, ok: true}
}

// Set changes the reading; ok false simulates a failed sample
func (l *Level) Set(v float32, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.v, l.ok = v, ok
}

// ReadLevel implements core.LevelSensor
func (l *Level) ReadLevel() (float32, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.v, l.ok
}

// Sensors is a full simulated sensor set with safe starting values
type Sensors struct {
	Front   *Range
	Rear    *Range
	Gas     *Level
	Battery *Level
}

// NewSensors returns sensors reporting a clear path, clean air and a
// charged battery
func NewSensors() *Sensors {
	return &Sensors{
		Front:   NewRange(200),
		Rear:    NewRange(200),
		Gas:     NewLevel(100),
		Battery: NewLevel(13.2),
	}
}

// Suite wraps the sensors for the control loop
func (s *Sensors) Suite() *core.SensorSuite {
	return core.NewSensorSuite(s.Front, s.Rear, s.Gas, s.Battery)
}
