package core

// PeerConfig describes one remote node the loop tracks
type PeerConfig struct {
	Name    string
	Timeout uint32 // ms without a valid frame before the peer is lost

	// Required peers raise the latch when lost
	Required bool
	// RecoverOnTraffic clears a comm-timeout latch once the peer is heard again
	RecoverOnTraffic bool
	// PropagateEmergency trips the local latch when the peer reports emergency
	PropagateEmergency bool
}

// Peer is the liveness record for one remote node
type Peer struct {
	PeerConfig

	LastSeen  uint32
	Connected bool
	Lost      bool // Timed out and not heard since
	Frames    uint32

	// Last heartbeat contents
	Emergency  bool
	Reason     string
	LeftSpeed  int
	RightSpeed int
	HasSpeeds  bool
	Uptime     uint32
}

// Age returns ms since the peer was last heard
func (p *Peer) Age(now uint32) uint32 {
	return now - p.LastSeen
}

// MaxPeers is the number of peers a table tracks
const MaxPeers = 4

// PeerTable holds the liveness records of every tracked peer
type PeerTable struct {
	peers []Peer
}

// NewPeerTable creates records for the configured peers (at most MaxPeers).
// Every peer starts disconnected with its timer running from now.
func NewPeerTable(now uint32, cfgs ...PeerConfig) *PeerTable {
	if len(cfgs) > MaxPeers {
		cfgs = cfgs[:MaxPeers]
	}
	t := &PeerTable{peers: make([]Peer, len(cfgs))}
	for i, c := range cfgs {
		t.peers[i] = Peer{PeerConfig: c, LastSeen: now}
	}
	return t
}

// Restart clears every record and restarts the timers from now
func (t *PeerTable) Restart(now uint32) {
	for i := range t.peers {
		t.peers[i] = Peer{PeerConfig: t.peers[i].PeerConfig, LastSeen: now}
	}
}

// AnyLost reports whether some peer has timed out and not been heard since
func (t *PeerTable) AnyLost() bool {
	for i := range t.peers {
		if t.peers[i].Lost {
			return true
		}
	}
	return false
}

// Touch records a valid frame from the named peer. It returns the record
// (nil for an unknown name) and whether the peer just became connected.
func (t *PeerTable) Touch(name string, now uint32) (*Peer, bool) {
	p := t.Get(name)
	if p == nil {
		return nil, false
	}
	p.LastSeen = now
	p.Frames++
	p.Lost = false
	if p.Connected {
		return p, false
	}
	p.Connected = true
	return p, true
}

// Check marks peers silent for longer than their timeout as disconnected
// and returns the indices of the ones lost by this call
func (t *PeerTable) Check(now uint32) []int {
	var lost []int
	for i := range t.peers {
		p := &t.peers[i]
		if !p.Connected || p.Timeout == 0 {
			continue
		}
		if p.Age(now) > p.Timeout {
			p.Connected = false
			p.Lost = true
			lost = append(lost, i)
		}
	}
	return lost
}

// Get returns the named peer record or nil
func (t *PeerTable) Get(name string) *Peer {
	for i := range t.peers {
		if t.peers[i].Name == name {
			return &t.peers[i]
		}
	}
	return nil
}

// Index returns the position of the named peer or -1
func (t *PeerTable) Index(name string) int {
	for i := range t.peers {
		if t.peers[i].Name == name {
			return i
		}
	}
	return -1
}

// At returns the peer at index i
func (t *PeerTable) At(i int) *Peer {
	return &t.peers[i]
}

// Len returns the number of tracked peers
func (t *PeerTable) Len() int {
	return len(t.peers)
}

// Peers returns a copy of every record
func (t *PeerTable) Peers() []Peer {
	out := make([]Peer, len(t.peers))
	copy(out, t.peers)
	return out
}
