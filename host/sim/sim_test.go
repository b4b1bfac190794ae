package sim

import (
	"testing"

	"nightfall/core"
	"nightfall/protocol"
)

func TestBoardDrivesMotor(t *testing.T) {
	b := NewBoard()
	ch := core.MotorChannel{Name: "L", Wheel: protocol.FrontLeft, PWM: 1, In1: 2, In2: 3, Invert: true}
	m := core.NewMotor(ch, b, b)
	if err := m.Configure(); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	m.Apply(-120)
	if got := b.Speed(ch); got != -120 {
		t.Errorf("Expected -120 read back, got %d", got)
	}
	if !b.Pin(2) || b.Pin(3) {
		t.Error("Inverted reverse should drive In1")
	}
	m.Apply(0)
	if b.Speed(ch) != 0 || b.Duty(1) != 0 {
		t.Error("Expected motor stopped")
	}
}

func TestSimulatedNodeTrips(t *testing.T) {
	b := NewBoard()
	sensors := NewSensors()
	ch := core.MotorChannel{Name: "L", Wheel: protocol.FrontLeft, PWM: 1, In1: 2, In2: 3}

	cfg := core.DefaultLoopConfig(core.RoleMaster)
	cfg.Profile.RampStep = 0
	loop := core.NewControlLoop(cfg, core.Hardware{
		Motors:  []*core.Motor{core.NewMotor(ch, b, b)},
		Sensors: sensors.Suite(),
		Buzzer:  b,
	})
	loop.Configure()

	loop.Mailbox().PostCommand(protocol.CommandForward)
	loop.Step(0)
	if b.Speed(ch) != 150 {
		t.Fatalf("Expected 150, got %d", b.Speed(ch))
	}

	sensors.Front.Set(12, true)
	loop.Step(100)
	if b.Speed(ch) != 0 || loop.Snapshot().Cause != core.CauseObstacle {
		t.Errorf("Expected obstacle stop, got speed %d cause %v", b.Speed(ch), loop.Snapshot().Cause)
	}
}

func TestLevelInvalid(t *testing.T) {
	l := NewLevel(1)
	l.Set(5, false)
	if v, ok := l.ReadLevel(); ok || v != 5 {
		t.Errorf("Expected invalid 5, got %v %v", v, ok)
	}
}
