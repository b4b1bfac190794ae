// Package protocol implements the line-delimited JSON protocol spoken between
// the Nightfall controllers (UART) and between the master and its dashboard
// (WebSocket text frames).
package protocol

// Version represents the Nightfall firmware version
const Version = "2.0.0"

// Protocol constants
const (
	SpeedMax       = 255  // Maximum PWM magnitude carried in a drive frame
	LineMax        = 512  // Maximum accepted line length in bytes
	LineTimeoutMs  = 100  // Partial lines older than this are discarded
	LineTerminator = '\n' // Every frame ends with a newline
)

// Node source identifiers used in heartbeats and telemetry
const (
	SourceRear   = "rear"   // Master node
	SourceFront  = "front"  // Slave node
	SourceCamera = "camera" // Vision node
)

// Message type values carried in the "type" key
const (
	TypeHeartbeat = "heartbeat"
	TypeTelemetry = "telemetry"
	TypeStatus    = "status"
	TypeDevices   = "device_status"
)

// Control-channel commands ({"command": ...})
const (
	CommandForward         = "forward"
	CommandBackward        = "backward"
	CommandLeft            = "left"
	CommandRight           = "right"
	CommandStop            = "stop"
	CommandEmergency       = "emergency"
	CommandEmergencyReset  = "emergency_reset"
	CommandClimb           = "climb"
	CommandAutonomousStart = "autonomous_start"
	CommandAutonomousStop  = "autonomous_stop"
	CommandTestFront       = "test_front"
	CommandTestRear        = "test_rear"
	CommandStatus          = "status"
)

// Serial link commands ({"cmd": ...}) sent master -> slave
const (
	LinkEmergencyStop  = "emergency_stop"
	LinkEmergencyReset = "emergency_reset"
	LinkStop           = "stop"
)

// Clamp constrains a speed to [-SpeedMax, SpeedMax]
func Clamp(speed int) int {
	if speed > SpeedMax {
		return SpeedMax
	}
	if speed < -SpeedMax {
		return -SpeedMax
	}
	return speed
}
