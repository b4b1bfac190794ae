package protocol

import "encoding/json"

// Robot states reported to the dashboard
const (
	StateReady     = "READY"
	StateEmergency = "EMERGENCY"
)

// AlertReport is one active safety alert as shown on the dashboard
type AlertReport struct {
	Type    string `json:"type"`
	Level   string `json:"level"`
	Message string `json:"message"`
	Since   uint32 `json:"since"`
}

// Telemetry is the periodic master -> dashboard broadcast
type Telemetry struct {
	Type      string `json:"type"`
	Source    string `json:"source"`
	Timestamp uint32 `json:"timestamp"`
	Uptime    uint32 `json:"uptime"`

	// Sensors
	Distance      float32 `json:"dist"`
	DistanceValid bool    `json:"distValid"`
	RearDistance  float32 `json:"rearDist"`
	Gas           int     `json:"gas"`
	Battery       float32 `json:"battery"`

	// Safety
	Emergency       bool          `json:"emergency"`
	EmergencyCause  string        `json:"emergencyCause,omitempty"`
	EmergencyReason string        `json:"emergencyReason,omitempty"`
	EmergencySince  uint32        `json:"emergencySince,omitempty"`
	RobotState      string        `json:"robotState"`
	Alerts          []AlertReport `json:"alerts,omitempty"`

	// Motion
	Movement    string     `json:"movement"`
	LeftSpeed   int        `json:"leftSpeed"`
	RightSpeed  int        `json:"rightSpeed"`
	TargetLeft  int        `json:"targetLeft"`
	TargetRight int        `json:"targetRight"`
	Motors      DriveFrame `json:"motors"`
	Targets     DriveFrame `json:"targets"`

	// Peers
	Devices       map[string]bool   `json:"devices"`
	Heartbeats    map[string]uint32 `json:"heartbeats"`
	PeerEmergency map[string]bool   `json:"peerEmergency"` // Last emergency flag each peer reported

	// Link health
	DecodeErrors uint32 `json:"decodeErrors"`
}

// EncodeTelemetry returns the JSON text frame for a telemetry broadcast
func EncodeTelemetry(t Telemetry) ([]byte, error) {
	if t.Type == "" {
		t.Type = TypeTelemetry
	}
	return json.Marshal(t)
}
