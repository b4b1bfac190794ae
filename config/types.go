package config

// IntervalConfig holds the loop cadences in milliseconds
type IntervalConfig struct {
	SensorMs    uint32 // Sensor refresh and arbiter evaluation
	HeartbeatMs uint32 // Heartbeat to the master (slave only)
	TelemetryMs uint32 // Telemetry broadcast
	ForwardMs   uint32 // Drive frame forwarding (master only)
}

// SafetyConfig holds the arbiter thresholds
type SafetyConfig struct {
	EmergencyDistance float32 // cm
	WarningDistance   float32 // cm
	GasWarning        float32
	GasLimit          float32
	BatteryLow        float32 // volts
	BatteryCritical   float32 // volts
}

// PolicyConfig selects the behaviour for the ambiguous cases
type PolicyConfig struct {
	Missing string // "missing_as_zero" or "hold_previous"
	Warning string // "block_direction", "block_all" or "ignore"
	Reset   string // "manual" or "auto_clear_when_safe"
}

// DriveConfig holds the speed each control command maps to
type DriveConfig struct {
	Forward  int
	Backward int // Negative
	Turn     int
	Climb    int
	Test     int
	RampStep int // PWM units per iteration, negative disables ramping
}

// MotorConfig represents one H-bridge channel
type MotorConfig struct {
	Name   string
	Wheel  string // Drive frame key: "L", "R", "CL" or "CR"
	PWMPin string // e.g. "gpio4"
	In1Pin string
	In2Pin string
	Invert bool // Swap In1/In2
}

// PeerConfig represents one remote node tracked for liveness
type PeerConfig struct {
	Name               string
	TimeoutMs          uint32
	Required           bool // Losing it raises the latch
	RecoverOnTraffic   bool // A comm-timeout latch clears when it is heard again
	PropagateEmergency bool // Its emergency heartbeat raises the local latch
}

// SensorConfig represents the sensor wiring of a board target
type SensorConfig struct {
	FrontTrigger string
	FrontEcho    string
	RearTrigger  string
	RearEcho     string
	GasADC       string
	BatteryADC   string
	BatteryScale float32 // Volts per ADC full scale, after the divider
	BuzzerPin    string
}

// SerialConfig represents the inter-controller UART
type SerialConfig struct {
	Device        string // e.g. "/dev/ttyUSB0"
	Baud          int
	ReadTimeoutMs int
}

// DashboardConfig represents the HTTP/WebSocket control surface
type DashboardConfig struct {
	Enabled bool
	Listen  string // e.g. ":8080"
}

// MQTTConfig represents the optional MQTT telemetry mirror
type MQTTConfig struct {
	Broker      string // tcp://host:port, empty disables the mirror
	ClientID    string
	TopicPrefix string
	QoS         byte
}

// FirmataConfig represents a Firmata board driving the motors from a host
type FirmataConfig struct {
	Device string // Empty uses the simulated drivers
	Baud   int
}

// NodeConfig represents the complete node configuration
type NodeConfig struct {
	Role string // "master" or "slave"

	Intervals IntervalConfig
	Safety    SafetyConfig
	Policies  PolicyConfig
	Drive     DriveConfig
	Motors    []MotorConfig
	Peers     []PeerConfig
	Sensors   SensorConfig

	Serial    SerialConfig
	Dashboard DashboardConfig
	MQTT      MQTTConfig
	Firmata   FirmataConfig

	Debug bool
}
