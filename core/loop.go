package core

import (
	"errors"
	"sync"

	"nightfall/protocol"
)

// Speeds holds one value per wheel group, indexed by protocol.Wheel
type Speeds = protocol.DriveFrame

func wheelKey(i int) string {
	return protocol.Wheel(i).Key()
}

// Movement labels reported in telemetry
const (
	MoveStopped   = "STOPPED"
	MoveForward   = "FORWARD"
	MoveBackward  = "BACKWARD"
	MoveTurnLeft  = "TURN_LEFT"
	MoveTurnRight = "TURN_RIGHT"
	MoveClimbing  = "CLIMBING"
	MoveTestFront = "TEST_FRONT"
	MoveTestRear  = "TEST_REAR"
	MoveRemote    = "REMOTE"
	MoveEmergency = "EMERGENCY_STOP"
)

// scope limits a command to the local motors or to the forwarded frame
type scope uint8

const (
	scopeAll    scope = iota
	scopeRemote       // Forwarded only, local motors held at 0
	scopeLocal        // Local motors only, forwarded frame is 0
)

// origin tells where a decoded message came from
type origin uint8

const (
	fromLink origin = iota
	fromControl
)

// TelemetrySink receives the periodic telemetry broadcast
type TelemetrySink interface {
	PublishTelemetry(t protocol.Telemetry)
}

// Hardware is the set of collaborators a loop drives. Any of them may be nil.
type Hardware struct {
	Motors    []*Motor
	Link      *protocol.Link
	Sensors   *SensorSuite
	Buzzer    GPIODriver
	BuzzerPin GPIOPin
	Sink      TelemetrySink
}

// ControlLoop owns every piece of node state. All methods except
// Mailbox, Registry, Snapshot and Telemetry must be called from the loop
// goroutine.
type ControlLoop struct {
	cfg      LoopConfig
	role     Role
	motors   []*Motor
	link     *protocol.Link
	sensors  *SensorSuite
	sink     TelemetrySink
	mailbox  *Mailbox
	arbiter  *Arbiter
	peers    *PeerTable
	registry *CommandRegistry
	timers   TimerList
	alarm    *Alarm
	events   EventRing

	sensorTick    Interval
	heartbeatTick Interval
	telemetryTick Interval
	forwardTick   Interval

	started bool
	start   uint32
	now     uint32

	command  Speeds // Latest accepted command
	scope    scope
	movement string
	targets  Speeds // Arbitrated targets
	achieved Speeds // Ramped speeds applied to the motors

	statusPending bool
	outputFailing []bool

	decodeErrors uint32
	ignored      uint32
	unknown      uint32
	outputErrors uint32
	panics       uint32

	snapMu    sync.Mutex
	snap      Snapshot
	telemetry protocol.Telemetry
}

// NewControlLoop wires a loop for cfg.Role
func NewControlLoop(cfg LoopConfig, hw Hardware) *ControlLoop {
	c := &ControlLoop{
		cfg:           cfg,
		role:          cfg.Role,
		motors:        hw.Motors,
		link:          hw.Link,
		sensors:       hw.Sensors,
		sink:          hw.Sink,
		mailbox:       NewMailbox(DefaultMailboxSize),
		arbiter:       NewArbiter(cfg.Thresholds, cfg.Warning, cfg.Reset),
		peers:         NewPeerTable(0, cfg.Peers...),
		registry:      NewCommandRegistry(),
		sensorTick:    NewInterval(cfg.SensorInterval),
		heartbeatTick: NewInterval(cfg.HeartbeatInterval),
		telemetryTick: NewInterval(cfg.TelemetryInterval),
		forwardTick:   NewInterval(cfg.ForwardInterval),
		movement:      MoveStopped,
		outputFailing: make([]bool, len(hw.Motors)),
	}
	c.alarm = NewAlarm(hw.Buzzer, hw.BuzzerPin, &c.timers)
	c.arbiter.OnTrip(c.onTrip)
	c.arbiter.OnReset(c.onReset)
	c.registerCommands()
	c.publishSnapshot()
	return c
}

// Configure prepares every motor and the buzzer, leaving them stopped
func (c *ControlLoop) Configure() error {
	for _, m := range c.motors {
		if err := m.Configure(); err != nil {
			return errors.New("motor " + m.Channel().Name + ": " + err.Error())
		}
	}
	return c.alarm.Configure()
}

// SetSink replaces the telemetry sink. Call before the loop starts.
func (c *ControlLoop) SetSink(s TelemetrySink) {
	c.sink = s
}

// Step runs one loop iteration at time now (ms)
func (c *ControlLoop) Step(now uint32) {
	defer func() {
		if r := recover(); r != nil {
			c.panics++
			c.events.Record(EvtPanic, now, c.panics, 0)
			DebugPrintln("[LOOP] recovered from panic")
			c.safeStop(now)
			c.publishSnapshot()
		}
	}()

	c.now = now
	if !c.started {
		c.begin(now)
	}

	// 1. Inbound frames
	c.pollLink(now)
	c.mailbox.Drain(func(msg protocol.Message) {
		c.handleMessage(msg, fromControl, now)
	})

	// 2. Sensors and the arbiter
	if c.role.Sensing && c.sensors != nil && c.sensorTick.Due(now) {
		c.arbiter.Evaluate(c.sensors.Refresh(), now)
	}

	// 3. Liveness of peers
	c.checkLiveness(now)

	// 4. Targets
	c.updateTargets()

	// 5. Outputs
	c.applyMotors(now)
	if c.role.Forward && c.link != nil && c.forwardTick.Due(now) {
		c.forwardDrive()
	}

	// 6. Heartbeat and telemetry
	if c.role.Heartbeat && c.link != nil && c.heartbeatTick.Due(now) {
		c.sendHeartbeat(now)
	}
	if c.telemetryTick.Due(now) || c.statusPending {
		c.publishTelemetry(now)
	}

	c.timers.Dispatch(now)
	c.publishSnapshot()
}

// safeStop zeroes every output after a panic; a second panic is swallowed
func (c *ControlLoop) safeStop(now uint32) {
	defer func() {
		_ = recover()
	}()
	c.command, c.targets, c.achieved = Speeds{}, Speeds{}, Speeds{}
	c.applyMotors(now)
}

func (c *ControlLoop) begin(now uint32) {
	c.started = true
	c.start = now
	c.peers.Restart(now)
	DebugPrintln("[LOOP] " + c.role.Kind.String() + " started as " + c.role.Source)
}

func (c *ControlLoop) pollLink(now uint32) {
	if c.link == nil {
		return
	}
	c.link.Poll(now, func(line []byte) {
		msg, err := protocol.DecodeLine(line)
		if err != nil {
			// Dropped lines are not traffic: liveness is left alone
			c.decodeErrors++
			c.events.Record(EvtDecodeDrop, now, c.decodeErrors, 0)
			DebugPrintln("[LINK] dropped line: " + err.Error())
			return
		}
		c.handleMessage(msg, fromLink, now)
	})
}

func (c *ControlLoop) handleMessage(msg protocol.Message, from origin, now uint32) {
	if from == fromLink && c.role.Upstream != "" && msg.Kind != protocol.KindHeartbeat {
		c.touchPeer(c.role.Upstream, now)
	}

	switch msg.Kind {
	case protocol.KindHeartbeat:
		c.handleHeartbeat(msg.Heartbeat, now)
	case protocol.KindDrive:
		if from == fromLink && c.role.Upstream == "" {
			return // Only nodes with an upstream take drive frames from the link
		}
		c.handleDrive(msg.Drive, now)
	case protocol.KindLink:
		c.handleLinkCommand(msg.Command, now)
	case protocol.KindControl:
		c.handleControl(msg.Command, now)
	}
}

func (c *ControlLoop) handleDrive(d protocol.PartialDrive, now uint32) {
	if c.arbiter.Latched() {
		c.refuse(0xFFFF, now)
		return
	}
	c.command = d.Resolve(c.command, c.cfg.Missing)
	c.scope = scopeAll
	c.movement = MoveRemote
	if c.command.IsZero() {
		c.movement = MoveStopped
	}
}

func (c *ControlLoop) handleLinkCommand(cmd string, now uint32) {
	switch cmd {
	case protocol.LinkEmergencyStop:
		c.arbiter.Trip(CauseManual, "Remote emergency stop", now)
	case protocol.LinkEmergencyReset:
		c.arbiter.Reset()
	case protocol.LinkStop:
		c.command = Speeds{}
		c.scope = scopeAll
		if !c.arbiter.Latched() {
			c.movement = MoveStopped
		}
	default:
		c.unknown++
		DebugPrintln("[LINK] unknown cmd " + cmd)
	}
}

func (c *ControlLoop) handleControl(name string, now uint32) {
	err := c.registry.Dispatch(name, c.arbiter.Latched(), now)
	switch {
	case err == nil:
	case errors.Is(err, ErrCommandLatched):
		id := uint16(0xFFFF)
		if cmd, ok := c.registry.Lookup(name); ok {
			id = cmd.ID
		}
		c.refuse(id, now)
	default:
		c.unknown++
		DebugPrintln("[CMD] " + err.Error())
	}
}

func (c *ControlLoop) refuse(id uint16, now uint32) {
	c.ignored++
	c.events.Record(EvtCommandIgnored, now, uint32(id), 0)
	DebugPrintln("[CMD] command ignored - emergency stop active")
}

func (c *ControlLoop) handleHeartbeat(hb protocol.HeartbeatFrame, now uint32) {
	p := c.touchPeer(hb.Source, now)
	if p == nil {
		return
	}
	rising := hb.Emergency && !p.Emergency
	p.Emergency = hb.Emergency
	p.Reason = hb.Reason
	p.Uptime = hb.Uptime
	if hb.LeftSpeed != nil && hb.RightSpeed != nil {
		p.LeftSpeed, p.RightSpeed, p.HasSpeeds = *hb.LeftSpeed, *hb.RightSpeed, true
	}
	if rising && p.PropagateEmergency {
		reason := p.Name + " emergency"
		if hb.Reason != "" {
			reason += ": " + hb.Reason
		}
		c.arbiter.Trip(CausePeer, reason, now)
	}
}

func (c *ControlLoop) touchPeer(name string, now uint32) *Peer {
	p, connected := c.peers.Touch(name, now)
	if p == nil {
		return nil
	}
	if connected {
		c.events.Record(EvtPeerSeen, now, uint32(c.peers.Index(name)), 0)
		DebugPrintln("[LINK] " + name + " connected")
		if !c.peers.AnyLost() {
			c.arbiter.Clear(AlertCommunication)
		}
	}
	if name == c.role.Upstream {
		c.arbiter.SetLinkLost(false, now)
		if p.RecoverOnTraffic && c.arbiter.Latched() && c.arbiter.Cause() == CauseCommTimeout {
			c.arbiter.Reset()
		}
	}
	return p
}

func (c *ControlLoop) checkLiveness(now uint32) {
	for _, i := range c.peers.Check(now) {
		p := c.peers.At(i)
		age := p.Age(now)
		c.events.Record(EvtPeerLost, now, uint32(i), age)
		DebugPrintln("[LINK] " + p.Name + " lost after " + utoa(age) + " ms")

		if !p.Required {
			c.arbiter.Raise(AlertCommunication, LevelWarning, p.Name+" disconnected", now)
			continue
		}
		c.arbiter.Raise(AlertCommunication, LevelCritical, "Communication timeout: "+p.Name, now)
		if p.Name == c.role.Upstream {
			c.arbiter.SetLinkLost(true, now)
		}
		c.arbiter.Trip(CauseCommTimeout, "No frames from "+p.Name+" for "+utoa(age)+" ms", now)
	}
}

func (c *ControlLoop) updateTargets() {
	if c.arbiter.Latched() {
		c.targets, c.achieved = Speeds{}, Speeds{}
		return
	}
	c.targets = c.arbiter.Filter(c.command.Clamped())
	for i := range c.achieved {
		c.achieved[i] = Ramp(c.achieved[i], c.targets[i], c.cfg.Profile.RampStep)
	}
}

func (c *ControlLoop) applyMotors(now uint32) {
	for i, m := range c.motors {
		w := m.Channel().Wheel
		speed := 0
		if w < protocol.WheelCount && c.scope != scopeRemote {
			speed = c.achieved[w]
		}
		if err := m.Apply(speed); err != nil {
			c.outputErrors++
			if !c.outputFailing[i] {
				c.outputFailing[i] = true
				c.events.Record(EvtOutputError, now, uint32(i), 0)
				DebugPrintln("[MOTOR] " + m.Channel().Name + ": " + err.Error())
			}
			continue
		}
		c.outputFailing[i] = false
	}
}

func (c *ControlLoop) forwardDrive() {
	frame := c.targets
	if c.scope == scopeLocal || c.arbiter.Latched() {
		frame = Speeds{}
	}
	c.link.SendDrive(frame)
}

func (c *ControlLoop) sendHeartbeat(now uint32) {
	hb := protocol.NewHeartbeat(c.role.Source, now, now-c.start, c.arbiter.Latched(), c.arbiter.Reason()).
		WithSpeeds(c.achieved[protocol.FrontLeft], c.achieved[protocol.FrontRight])
	c.link.SendHeartbeat(hb)
}

// onTrip runs inside Arbiter.Trip: the stop is applied before Trip returns
func (c *ControlLoop) onTrip(cause Cause, reason string, now uint32) {
	c.command, c.targets, c.achieved = Speeds{}, Speeds{}, Speeds{}
	c.scope = scopeAll
	c.movement = MoveEmergency
	c.applyMotors(now)

	if c.role.Forward && c.link != nil {
		c.link.SendDrive(Speeds{})
		c.link.SendCommand(protocol.LinkEmergencyStop)
	}
	c.alarm.Start(now)
	c.events.Record(EvtTrip, now, uint32(cause), 0)
	c.statusPending = true
}

func (c *ControlLoop) onReset() {
	c.alarm.Stop()
	c.movement = MoveStopped
	c.events.Record(EvtReset, c.now, 0, 0)
	if c.role.Forward && c.link != nil {
		c.link.SendCommand(protocol.LinkEmergencyReset)
	}
	c.statusPending = true
}

func (c *ControlLoop) publishTelemetry(now uint32) {
	c.statusPending = false
	t := c.buildTelemetry(now)

	c.snapMu.Lock()
	c.telemetry = t
	c.snapMu.Unlock()

	if c.sink != nil {
		c.sink.PublishTelemetry(t)
	}
}

func (c *ControlLoop) buildTelemetry(now uint32) protocol.Telemetry {
	r := c.arbiter.Readings()
	t := protocol.Telemetry{
		Type:          protocol.TypeTelemetry,
		Source:        c.role.Source,
		Timestamp:     now,
		Uptime:        now - c.start,
		Distance:      r.Front.Value,
		DistanceValid: r.Front.Valid,
		RearDistance:  r.Rear.Value,
		Gas:           int(r.Gas.Value),
		Battery:       r.Battery.Value,
		Emergency:     c.arbiter.Latched(),
		RobotState:    protocol.StateReady,
		Movement:      c.movement,
		LeftSpeed:     c.achieved[protocol.FrontLeft],
		RightSpeed:    c.achieved[protocol.FrontRight],
		TargetLeft:    c.targets[protocol.FrontLeft],
		TargetRight:   c.targets[protocol.FrontRight],
		Motors:        c.achieved,
		Targets:       c.targets,
		Devices:       map[string]bool{c.role.Source: true},
		Heartbeats:    map[string]uint32{},
		PeerEmergency: map[string]bool{},
		DecodeErrors:  c.decodeErrors,
	}
	if t.Emergency {
		t.RobotState = protocol.StateEmergency
		t.EmergencyCause = c.arbiter.Cause().String()
		t.EmergencyReason = c.arbiter.Reason()
		t.EmergencySince = c.arbiter.Since()
	}
	for _, al := range c.arbiter.Alerts().Active() {
		t.Alerts = append(t.Alerts, protocol.AlertReport{
			Type:    al.Type.String(),
			Level:   al.Level.String(),
			Message: al.Message,
			Since:   al.Since,
		})
	}
	for i := 0; i < c.peers.Len(); i++ {
		p := c.peers.At(i)
		t.Devices[p.Name] = p.Connected
		t.Heartbeats[p.Name] = p.Age(now)
		t.PeerEmergency[p.Name] = p.Emergency
	}
	return t
}

// Mailbox returns the queue other goroutines post control messages to
func (c *ControlLoop) Mailbox() *Mailbox {
	return c.mailbox
}

// Registry returns the control command registry
func (c *ControlLoop) Registry() *CommandRegistry {
	return c.registry
}

// Arbiter returns the safety arbiter
func (c *ControlLoop) Arbiter() *Arbiter {
	return c.arbiter
}

// Peers returns the liveness table
func (c *ControlLoop) Peers() *PeerTable {
	return c.peers
}

// Events returns the post-mortem event ring
func (c *ControlLoop) Events() *EventRing {
	return &c.events
}

// Alarm returns the audible alert
func (c *ControlLoop) Alarm() *Alarm {
	return c.alarm
}
