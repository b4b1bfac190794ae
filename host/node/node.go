// Package node assembles a control loop from a configuration and runs it
// on a host computer.
package node

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"nightfall/config"
	"nightfall/core"
	"nightfall/protocol"
)

// DefaultPeriod is the loop iteration period on a host
const DefaultPeriod = 10 * time.Millisecond

// Drivers are the hardware collaborators of a node
type Drivers struct {
	GPIO    core.GPIODriver
	PWM     core.PWMDriver
	Sensors *core.SensorSuite

	// Link is the serial link; Reader must not block
	LinkReader io.Reader
	LinkWriter io.Writer
}

// Node is a configured control loop plus its clock
type Node struct {
	Loop   *core.ControlLoop
	Config *config.NodeConfig

	clock  core.Clock
	period time.Duration
	sinks  multiSink
}

// New builds the loop described by cfg on the given drivers
func New(cfg *config.NodeConfig, d Drivers) (*Node, error) {
	lc, err := cfg.LoopConfig()
	if err != nil {
		return nil, err
	}
	channels, err := cfg.MotorChannels()
	if err != nil {
		return nil, err
	}

	motors := make([]*core.Motor, 0, len(channels))
	for _, ch := range channels {
		motors = append(motors, core.NewMotor(ch, d.GPIO, d.PWM))
	}

	var buzzerPin core.GPIOPin
	if cfg.Sensors.BuzzerPin != "" {
		pin, err := config.ParsePin(cfg.Sensors.BuzzerPin)
		if err != nil {
			return nil, fmt.Errorf("buzzer: %w", err)
		}
		buzzerPin = core.GPIOPin(pin)
	}

	var link *protocol.Link
	if d.LinkReader != nil || d.LinkWriter != nil {
		link = protocol.NewLink(d.LinkReader, d.LinkWriter)
	}

	n := &Node{
		Config: cfg,
		clock:  core.NewMonotonicClock(),
		period: DefaultPeriod,
	}
	hw := core.Hardware{
		Motors:    motors,
		Link:      link,
		Sensors:   d.Sensors,
		BuzzerPin: buzzerPin,
		Sink:      &n.sinks,
	}
	if d.GPIO != nil && cfg.Sensors.BuzzerPin != "" {
		hw.Buzzer = d.GPIO
	}
	n.Loop = core.NewControlLoop(lc, hw)

	if err := n.Loop.Configure(); err != nil {
		return nil, fmt.Errorf("failed to configure outputs: %w", err)
	}
	return n, nil
}

// AddSink registers another telemetry consumer. Call before Run.
func (n *Node) AddSink(s core.TelemetrySink) {
	n.sinks = append(n.sinks, s)
}

// SetClock replaces the time base. Call before Run or Step.
func (n *Node) SetClock(c core.Clock) {
	n.clock = c
}

// Run steps the loop every period until ctx is cancelled, then stops the
// motors and dumps the event ring
func (n *Node) Run(ctx context.Context) error {
	ticker := time.NewTicker(n.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			n.shutdown()
			return nil
		case <-ticker.C:
			n.Step()
		}
	}
}

// Step runs one loop iteration at the clock's current time
func (n *Node) Step() {
	n.Loop.Step(n.clock.Millis())
}

func (n *Node) shutdown() {
	// A final iteration with the latch raised drives every output to zero
	now := n.clock.Millis()
	n.Loop.Arbiter().Trip(core.CauseManual, "Shutdown", now)
	n.Loop.Step(now)
	n.Loop.Events().Dump(func(s string) { log.Println(s) })
}

// multiSink fans telemetry out to every registered sink
type multiSink []core.TelemetrySink

func (m *multiSink) PublishTelemetry(t protocol.Telemetry) {
	for _, s := range *m {
		s.PublishTelemetry(t)
	}
}
