package core

import "nightfall/protocol"

// registerCommands registers every control-channel command.
// Only emergency, emergency_reset and status run while the latch is set.
func (c *ControlLoop) registerCommands() {
	p := c.cfg.Profile
	r := c.registry

	r.Register(protocol.CommandForward, speedsString(uniform(p.Forward)),
		c.drive(uniform(p.Forward), scopeAll, MoveForward))
	r.Register(protocol.CommandBackward, speedsString(uniform(p.Backward)),
		c.drive(uniform(p.Backward), scopeAll, MoveBackward))
	r.Register(protocol.CommandLeft, speedsString(tank(-p.Turn, p.Turn)),
		c.drive(tank(-p.Turn, p.Turn), scopeAll, MoveTurnLeft))
	r.Register(protocol.CommandRight, speedsString(tank(p.Turn, -p.Turn)),
		c.drive(tank(p.Turn, -p.Turn), scopeAll, MoveTurnRight))
	r.Register(protocol.CommandStop, "", c.drive(Speeds{}, scopeAll, MoveStopped))
	r.Register(protocol.CommandClimb, speedsString(uniform(p.Climb)),
		c.drive(uniform(p.Climb), scopeAll, MoveClimbing))

	// Bench tests: front runs the forwarded groups only, rear the local motors only
	r.Register(protocol.CommandTestFront, speedsString(uniform(p.Test)),
		c.drive(uniform(p.Test), scopeRemote, MoveTestFront))
	r.Register(protocol.CommandTestRear, speedsString(uniform(p.Test)),
		c.drive(uniform(p.Test), scopeLocal, MoveTestRear))

	r.Register(protocol.CommandAutonomousStart, "", handleAutonomousStart)
	r.Register(protocol.CommandAutonomousStop, "", c.drive(Speeds{}, scopeAll, MoveStopped))

	r.RegisterLatched(protocol.CommandEmergency, "", c.handleEmergency)
	r.RegisterLatched(protocol.CommandEmergencyReset, "", c.handleEmergencyReset)
	r.RegisterLatched(protocol.CommandStatus, "", c.handleStatus)
}

// drive returns a handler that sets a fixed target assignment
func (c *ControlLoop) drive(s Speeds, sc scope, movement string) CommandHandler {
	return func(now uint32) error {
		c.command = s
		c.scope = sc
		c.movement = movement
		return nil
	}
}

// handleEmergency raises the latch from the control channel
func (c *ControlLoop) handleEmergency(now uint32) error {
	c.arbiter.Trip(CauseManual, "Manual emergency stop", now)
	return nil
}

// handleEmergencyReset is the operator acknowledgment that clears the latch.
// A forwarding node passes every reset downstream, latched or not, so a
// slave that missed an earlier reset line can still be cleared.
func (c *ControlLoop) handleEmergencyReset(now uint32) error {
	if c.arbiter.Reset() {
		return nil // onReset forwarded it
	}
	DebugPrintln("[CMD] emergency_reset: not latched")
	if c.role.Forward && c.link != nil {
		c.link.SendCommand(protocol.LinkEmergencyReset)
	}
	return nil
}

// handleStatus forces a telemetry publish on this iteration
func (c *ControlLoop) handleStatus(now uint32) error {
	c.statusPending = true
	return nil
}

// handleAutonomousStart is accepted for dashboard compatibility only
func handleAutonomousStart(now uint32) error {
	DebugPrintln("[CMD] autonomous mode is not supported")
	return nil
}

// uniform sets every group to v
func uniform(v int) Speeds {
	return Speeds{v, v, v, v}
}

// tank sets the left groups to left and the right groups to right
func tank(left, right int) Speeds {
	var s Speeds
	s[protocol.FrontLeft], s[protocol.CenterLeft] = left, left
	s[protocol.FrontRight], s[protocol.CenterRight] = right, right
	return s
}
