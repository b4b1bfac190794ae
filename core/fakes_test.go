package core

import (
	"bytes"
	"errors"

	"nightfall/protocol"
)

type fakeGPIO struct {
	pins       map[GPIOPin]bool
	configured map[GPIOPin]bool
	writes     int
	fail       bool
	panicOn    bool
}

func newFakeGPIO() *fakeGPIO {
	return &fakeGPIO{pins: map[GPIOPin]bool{}, configured: map[GPIOPin]bool{}}
}

func (g *fakeGPIO) ConfigureOutput(pin GPIOPin) error {
	g.configured[pin] = true
	return nil
}

func (g *fakeGPIO) SetPin(pin GPIOPin, value bool) error {
	if g.panicOn {
		panic("gpio exploded")
	}
	if g.fail {
		return errors.New("gpio failure")
	}
	g.pins[pin] = value
	g.writes++
	return nil
}

type fakePWM struct {
	duty map[PWMPin]PWMValue
	max  uint32
}

func newFakePWM(max uint32) *fakePWM {
	return &fakePWM{duty: map[PWMPin]PWMValue{}, max: max}
}

func (p *fakePWM) ConfigureHardwarePWM(pin PWMPin, periodNs uint32) (uint32, error) {
	p.duty[pin] = 0
	return periodNs, nil
}

func (p *fakePWM) SetDutyCycle(pin PWMPin, value PWMValue) error {
	p.duty[pin] = value
	return nil
}

func (p *fakePWM) GetMaxValue() uint32 {
	return p.max
}

func (p *fakePWM) DisablePWM(pin PWMPin) error {
	delete(p.duty, pin)
	return nil
}

type fakeRange struct {
	cm float32
	ok bool
}

func (f *fakeRange) ReadDistanceCM() (float32, bool) {
	return f.cm, f.ok
}

type fakeLevel struct {
	v  float32
	ok bool
}

func (f *fakeLevel) ReadLevel() (float32, bool) {
	return f.v, f.ok
}

type fakeSink struct {
	frames []protocol.Telemetry
}

func (s *fakeSink) PublishTelemetry(t protocol.Telemetry) {
	s.frames = append(s.frames, t)
}

func (s *fakeSink) last() protocol.Telemetry {
	if len(s.frames) == 0 {
		return protocol.Telemetry{}
	}
	return s.frames[len(s.frames)-1]
}

// rig is a control loop wired to fake hardware
type rig struct {
	loop    *ControlLoop
	gpio    *fakeGPIO
	pwm     *fakePWM
	motors  []*Motor
	in      *bytes.Buffer // Bytes the node will read from the link
	out     *bytes.Buffer // Bytes the node wrote to the link
	front   *fakeRange
	rear    *fakeRange
	gas     *fakeLevel
	battery *fakeLevel
	sink    *fakeSink
}

func newRig(kind RoleKind, mutate func(*LoopConfig)) *rig {
	r := &rig{
		gpio:    newFakeGPIO(),
		pwm:     newFakePWM(255),
		in:      &bytes.Buffer{},
		out:     &bytes.Buffer{},
		front:   &fakeRange{cm: 100, ok: true},
		rear:    &fakeRange{cm: 100, ok: true},
		gas:     &fakeLevel{v: 100, ok: true},
		battery: &fakeLevel{v: 13, ok: true},
		sink:    &fakeSink{},
	}

	for w := protocol.Wheel(0); w < protocol.WheelCount; w++ {
		if kind == RoleMaster && w > protocol.FrontRight {
			break // The rear controller drives one left and one right motor
		}
		ch := MotorChannel{
			Name:  w.Key(),
			Wheel: w,
			PWM:   PWMPin(10 + w),
			In1:   GPIOPin(20 + 2*int(w)),
			In2:   GPIOPin(21 + 2*int(w)),
		}
		r.motors = append(r.motors, NewMotor(ch, r.gpio, r.pwm))
	}

	cfg := DefaultLoopConfig(kind)
	cfg.Profile.RampStep = 0
	if mutate != nil {
		mutate(&cfg)
	}

	r.loop = NewControlLoop(cfg, Hardware{
		Motors:    r.motors,
		Link:      protocol.NewLink(r.in, r.out),
		Sensors:   NewSensorSuite(r.front, r.rear, r.gas, r.battery),
		Buzzer:    r.gpio,
		BuzzerPin: 2,
		Sink:      r.sink,
	})
	if err := r.loop.Configure(); err != nil {
		panic(err)
	}
	return r
}

func (r *rig) send(line string) {
	r.in.WriteString(line + "\n")
}

func (r *rig) command(name string) {
	r.loop.Mailbox().PostCommand(name)
}

// run steps the loop every 10 ms over [from, to]
func (r *rig) run(from, to uint32) {
	for t := from; t <= to; t += 10 {
		r.loop.Step(t)
	}
}

// outputs returns the signed speed each motor is currently driven at
func (r *rig) outputs() []int {
	out := make([]int, len(r.motors))
	for i, m := range r.motors {
		ch := m.Channel()
		duty := int(r.pwm.duty[ch.PWM])
		switch {
		case r.gpio.pins[ch.In1] && !r.gpio.pins[ch.In2]:
			out[i] = duty
		case r.gpio.pins[ch.In2] && !r.gpio.pins[ch.In1]:
			out[i] = -duty
		}
	}
	return out
}

func allZero(v []int) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// sentLines returns every line the node wrote to the link and clears the buffer
func (r *rig) sentLines() []protocol.Message {
	var msgs []protocol.Message
	for _, line := range bytes.Split(r.out.Bytes(), []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		msg, err := protocol.DecodeLine(line)
		if err == nil {
			msgs = append(msgs, msg)
		}
	}
	r.out.Reset()
	return msgs
}
