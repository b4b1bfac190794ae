// Package mcu is a host-side client for a node controller on the serial
// link. The bench console uses it to stand in for the master.
package mcu

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"nightfall/host/serial"
	"nightfall/protocol"
)

// ErrNotConnected is returned when sending before Connect
var ErrNotConnected = errors.New("not connected to a node")

// pollPeriod is how often received lines are processed
const pollPeriod = 10 * time.Millisecond

// MCU represents a connection to a node controller
type MCU struct {
	port   serial.Port
	reader *serial.AsyncReader

	mu        sync.Mutex
	link      *protocol.Link
	connected bool
	start     time.Time

	lastHeartbeat protocol.HeartbeatFrame
	heartbeatAt   time.Time
	heartbeats    uint32
	decodeErrors  uint32

	// OnHeartbeat, when set, is called for every heartbeat received
	OnHeartbeat func(protocol.HeartbeatFrame)
}

// NewMCU creates a new MCU instance (not yet connected)
func NewMCU() *MCU {
	return &MCU{}
}

// Connect connects to a node via serial port
func (m *MCU) Connect(device string) error {
	return m.ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig connects to a node with a custom serial config
func (m *MCU) ConnectWithConfig(cfg *serial.Config) error {
	// Open serial port
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	m.ConnectPort(port)
	return nil
}

// ConnectPort uses an already open port
func (m *MCU) ConnectPort(port serial.Port) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.port = port
	m.reader = serial.NewAsyncReader(port, 0)
	m.link = protocol.NewLink(m.reader, port)
	m.connected = true
	m.start = time.Now()
}

// Close closes the connection
func (m *MCU) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil
	}
	m.connected = false
	return m.port.Close()
}

// IsConnected returns whether we're connected to a node
func (m *MCU) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// SendDrive sends a drive frame
func (m *MCU) SendDrive(f protocol.DriveFrame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	if err := m.link.SendDrive(f); err != nil {
		return fmt.Errorf("failed to send drive frame: %w", err)
	}
	return nil
}

// SendCommand sends a {"cmd":...} control line
func (m *MCU) SendCommand(cmd string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	if err := m.link.SendCommand(cmd); err != nil {
		return fmt.Errorf("failed to send %s: %w", cmd, err)
	}
	return nil
}

// Poll processes every line received so far
func (m *MCU) Poll() {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return
	}
	var received []protocol.HeartbeatFrame
	now := uint32(time.Since(m.start) / time.Millisecond)
	m.link.Poll(now, func(line []byte) {
		msg, err := protocol.DecodeLine(line)
		if err != nil {
			m.decodeErrors++
			return
		}
		if msg.Kind == protocol.KindHeartbeat {
			m.lastHeartbeat = msg.Heartbeat
			m.heartbeatAt = time.Now()
			m.heartbeats++
			received = append(received, msg.Heartbeat)
		}
	})
	cb := m.OnHeartbeat
	m.mu.Unlock()

	if cb != nil {
		for _, hb := range received {
			cb(hb)
		}
	}
}

// Listen polls the link until ctx is cancelled
func (m *MCU) Listen(ctx context.Context) {
	ticker := time.NewTicker(pollPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Poll()
		}
	}
}

// LastHeartbeat returns the most recent heartbeat and when it arrived
func (m *MCU) LastHeartbeat() (protocol.HeartbeatFrame, time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHeartbeat, m.heartbeatAt, m.heartbeats > 0
}

// Stats returns the heartbeat and decode error counts and the link counters
func (m *MCU) Stats() (heartbeats, decodeErrors uint32, link protocol.LinkStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.link != nil {
		link = m.link.Stats()
	}
	return m.heartbeats, m.decodeErrors, link
}
