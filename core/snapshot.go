package core

import "nightfall/protocol"

// PeerStatus is the published view of one liveness record
type PeerStatus struct {
	Name      string
	Connected bool
	LastSeen  uint32
	Frames    uint32
	Emergency bool
}

// Snapshot is a copy of the loop state, published at the end of every
// iteration for readers on other goroutines
type Snapshot struct {
	Role   RoleKind
	Source string
	Time   uint32
	Uptime uint32

	State    SafetyState
	Cause    Cause
	Reason   string
	Since    uint32
	Trips    uint32
	Alerts   AlertSet
	Alarm    bool
	Movement string

	Command  Speeds
	Targets  Speeds
	Achieved Speeds
	Readings Readings

	Peers    [MaxPeers]PeerStatus
	NumPeers int

	Link           protocol.LinkStats
	DecodeErrors   uint32
	Ignored        uint32
	Unknown        uint32
	OutputErrors   uint32
	Panics         uint32
	MailboxDropped uint32
}

// Latched reports whether the snapshot was taken in EMERGENCY
func (s Snapshot) Latched() bool {
	return s.State == StateEmergency
}

// PeerList returns the populated peer entries
func (s Snapshot) PeerList() []PeerStatus {
	return s.Peers[:s.NumPeers]
}

func (c *ControlLoop) publishSnapshot() {
	s := Snapshot{
		Role:     c.role.Kind,
		Source:   c.role.Source,
		Time:     c.now,
		Uptime:   c.now - c.start,
		State:    c.arbiter.State(),
		Cause:    c.arbiter.Cause(),
		Reason:   c.arbiter.Reason(),
		Since:    c.arbiter.Since(),
		Trips:    c.arbiter.Trips(),
		Alerts:   c.arbiter.Alerts(),
		Alarm:    c.alarm.Active(),
		Movement: c.movement,
		Command:  c.command,
		Targets:  c.targets,
		Achieved: c.achieved,
		Readings: c.arbiter.Readings(),

		DecodeErrors:   c.decodeErrors,
		Ignored:        c.ignored,
		Unknown:        c.unknown,
		OutputErrors:   c.outputErrors,
		Panics:         c.panics,
		MailboxDropped: c.mailbox.Dropped(),
	}
	if !c.started {
		s.Uptime = 0
	}
	if c.link != nil {
		s.Link = c.link.Stats()
	}
	for i := 0; i < c.peers.Len(); i++ {
		p := c.peers.At(i)
		s.Peers[i] = PeerStatus{
			Name:      p.Name,
			Connected: p.Connected,
			LastSeen:  p.LastSeen,
			Frames:    p.Frames,
			Emergency: p.Emergency,
		}
	}
	s.NumPeers = c.peers.Len()

	c.snapMu.Lock()
	c.snap = s
	c.snapMu.Unlock()
}

// Snapshot returns the state published by the last iteration.
// Safe to call from any goroutine.
func (c *ControlLoop) Snapshot() Snapshot {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	return c.snap
}

// Telemetry returns the last telemetry frame built by the loop.
// Safe to call from any goroutine.
func (c *ControlLoop) Telemetry() protocol.Telemetry {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	return c.telemetry
}
