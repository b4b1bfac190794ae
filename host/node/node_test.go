package node

import (
	"context"
	"testing"
	"time"

	"nightfall/config"
	"nightfall/core"
	"nightfall/host/serial"
	"nightfall/host/sim"
	"nightfall/protocol"
)

type recordingSink struct {
	frames chan protocol.Telemetry
}

func (r *recordingSink) PublishTelemetry(t protocol.Telemetry) {
	select {
	case r.frames <- t:
	default:
	}
}

// pair wires a master and a slave through an in-memory serial cable
func pair(t *testing.T) (master, slave *Node, mb, sb *sim.Board) {
	t.Helper()
	mPort, sPort := serial.Pipe()
	mb, sb = sim.NewBoard(), sim.NewBoard()

	mcfg := config.DefaultMasterConfig()
	mcfg.Drive.RampStep = -1
	master, err := New(mcfg, Drivers{
		GPIO:       mb,
		PWM:        mb,
		Sensors:    sim.NewSensors().Suite(),
		LinkReader: serial.NewAsyncReader(mPort, 0),
		LinkWriter: mPort,
	})
	if err != nil {
		t.Fatalf("master: %v", err)
	}

	scfg := config.DefaultSlaveConfig()
	scfg.Drive.RampStep = -1
	slave, err = New(scfg, Drivers{
		GPIO:       sb,
		PWM:        sb,
		LinkReader: serial.NewAsyncReader(sPort, 0),
		LinkWriter: sPort,
	})
	if err != nil {
		t.Fatalf("slave: %v", err)
	}
	return master, slave, mb, sb
}

func TestMasterDrivesSlave(t *testing.T) {
	master, slave, _, sb := pair(t)

	// The slave reads in the background, so the master's writes never block
	master.Loop.Mailbox().PostCommand(protocol.CommandForward)
	master.Loop.Step(0)

	ch, _ := slave.Config.MotorChannels()
	deadline := time.Now().Add(2 * time.Second)
	now := uint32(0)
	for sb.Speed(ch[0]) != 150 {
		if time.Now().After(deadline) {
			t.Fatalf("Slave never followed the master, targets %v", slave.Loop.Snapshot().Targets)
		}
		now += 10
		master.Loop.Step(now)
		slave.Loop.Step(now)
		time.Sleep(time.Millisecond)
	}
	if sb.Speed(ch[2]) != 150 {
		t.Errorf("Centre groups should follow too, got %d", sb.Speed(ch[2]))
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := config.DefaultMasterConfig()
	b := sim.NewBoard()
	n, err := New(cfg, Drivers{GPIO: b, PWM: b, Sensors: sim.NewSensors().Suite()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	sink := &recordingSink{frames: make(chan protocol.Telemetry, 16)}
	n.AddSink(sink)
	n.Loop.Mailbox().PostCommand(protocol.CommandForward)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- n.Run(ctx) }()

	select {
	case <-sink.frames:
	case <-time.After(2 * time.Second):
		t.Fatal("No telemetry from the running loop")
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}

	chans, _ := cfg.MotorChannels()
	for _, ch := range chans {
		if b.Speed(ch) != 0 {
			t.Errorf("Motor %s still running after shutdown", ch.Name)
		}
	}
	if n.Loop.Snapshot().Cause != core.CauseManual {
		t.Error("Shutdown should leave the latch raised")
	}
}

func TestStepUsesClock(t *testing.T) {
	cfg := config.DefaultSlaveConfig()
	b := sim.NewBoard()
	n, err := New(cfg, Drivers{GPIO: b, PWM: b})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	clock := &core.ManualClock{}
	n.SetClock(clock)

	// Never heard from the master, so the watchdog stays quiet
	clock.Advance(5000)
	n.Step()
	snap := n.Loop.Snapshot()
	if snap.Latched() {
		t.Errorf("Expected no emergency before the master is heard, got %v", snap.Cause)
	}
	if snap.Time != 5000 {
		t.Errorf("Expected loop time 5000, got %d", snap.Time)
	}
}

func TestNoBuzzerPinLeavesGPIO0Alone(t *testing.T) {
	cfg := config.DefaultSlaveConfig()
	cfg.Sensors.BuzzerPin = ""
	b := sim.NewBoard()
	n, err := New(cfg, Drivers{GPIO: b, PWM: b})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	clock := &core.ManualClock{}
	n.SetClock(clock)

	n.Loop.Arbiter().Trip(core.CauseManual, "Test", 0)
	for i := 0; i < 10; i++ {
		clock.Advance(core.AlarmToggleMs)
		n.Step()
	}
	if b.Configured(0) {
		t.Error("Expected GPIO0 untouched without a buzzer pin")
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := config.DefaultSlaveConfig()
	cfg.Sensors.BuzzerPin = "buzzer"
	if _, err := New(cfg, Drivers{}); err == nil {
		t.Error("Expected error for a bad buzzer pin")
	}
}
