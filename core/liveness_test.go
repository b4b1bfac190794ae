package core

import "testing"

func TestPeerTableTouchAndCheck(t *testing.T) {
	table := NewPeerTable(0,
		PeerConfig{Name: "rear", Timeout: 1000, Required: true},
		PeerConfig{Name: "camera", Timeout: 5000},
	)

	if lost := table.Check(10000); len(lost) != 0 {
		t.Errorf("Peers never heard should not be reported lost, got %v", lost)
	}

	p, connected := table.Touch("rear", 100)
	if p == nil || !connected {
		t.Fatal("First frame should connect the peer")
	}
	if _, connected := table.Touch("rear", 200); connected {
		t.Error("Second frame should not report a new connection")
	}
	if p.Frames != 2 || p.LastSeen != 200 {
		t.Errorf("Expected 2 frames last seen at 200, got %d at %d", p.Frames, p.LastSeen)
	}

	if lost := table.Check(1200); len(lost) != 0 {
		t.Error("Age equal to the timeout is not lost")
	}
	lost := table.Check(1201)
	if len(lost) != 1 || table.At(lost[0]).Name != "rear" {
		t.Fatalf("Expected rear lost, got %v", lost)
	}
	if !table.AnyLost() {
		t.Error("AnyLost should report the lost peer")
	}
	if lost := table.Check(3000); len(lost) != 0 {
		t.Error("A lost peer is only reported once")
	}

	table.Touch("rear", 3000)
	if table.AnyLost() {
		t.Error("Traffic should clear the lost flag")
	}
}

func TestPeerTableWrap(t *testing.T) {
	start := uint32(0xFFFFFF00)
	table := NewPeerTable(start, PeerConfig{Name: "rear", Timeout: 1000})
	table.Touch("rear", start)

	if lost := table.Check(start + 900); len(lost) != 0 {
		t.Error("Peer lost early across the timer wrap")
	}
	if lost := table.Check(start + 1001); len(lost) != 1 {
		t.Error("Peer not lost across the timer wrap")
	}
}

func TestPeerTableUnknownAndLimits(t *testing.T) {
	cfgs := make([]PeerConfig, MaxPeers+2)
	for i := range cfgs {
		cfgs[i] = PeerConfig{Name: string(rune('a' + i)), Timeout: 100}
	}
	table := NewPeerTable(0, cfgs...)
	if table.Len() != MaxPeers {
		t.Errorf("Expected %d peers, got %d", MaxPeers, table.Len())
	}
	if p, _ := table.Touch("nobody", 0); p != nil {
		t.Error("Unknown peer should not be tracked")
	}
	if table.Index("nobody") != -1 || table.Index("b") != 1 {
		t.Error("Index returned the wrong position")
	}

	table.Touch("a", 50)
	table.Restart(500)
	if p := table.Get("a"); p.Connected || p.Frames != 0 || p.LastSeen != 500 {
		t.Errorf("Restart left state behind: %+v", p)
	}
}
