package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"nightfall/core"
	"nightfall/protocol"
)

// Validation errors
var (
	ErrBadRole       = errors.New("unknown role")
	ErrBadPin        = errors.New("bad pin name")
	ErrBadWheel      = errors.New("bad wheel key")
	ErrBadThresholds = errors.New("warning distance must exceed emergency distance")
	ErrTooManyPeers  = errors.New("too many peers")
)

// LoadConfig parses a JSON configuration and returns a NodeConfig
func LoadConfig(jsonData []byte) (*NodeConfig, error) {
	var config NodeConfig

	err := json.Unmarshal(jsonData, &config)
	if err != nil {
		return nil, err
	}

	// Apply defaults
	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadFile reads and parses a JSON configuration file
func LoadFile(path string) (*NodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := LoadConfig(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}

// applyDefaults fills in missing configuration values with the stock values
// of the configured role
func applyDefaults(config *NodeConfig) {
	// Default role
	if config.Role == "" {
		config.Role = "master"
	}
	kind, err := core.ParseRole(config.Role)
	if err != nil {
		return // Validate reports it
	}
	stock := defaultFor(kind)

	// Intervals
	iv := &config.Intervals
	if iv.SensorMs == 0 {
		iv.SensorMs = stock.Intervals.SensorMs
	}
	if iv.HeartbeatMs == 0 {
		iv.HeartbeatMs = stock.Intervals.HeartbeatMs
	}
	if iv.TelemetryMs == 0 {
		iv.TelemetryMs = stock.Intervals.TelemetryMs
	}
	if iv.ForwardMs == 0 {
		iv.ForwardMs = stock.Intervals.ForwardMs
	}

	// Safety thresholds
	s := &config.Safety
	if s.EmergencyDistance == 0 {
		s.EmergencyDistance = stock.Safety.EmergencyDistance
	}
	if s.WarningDistance == 0 {
		s.WarningDistance = stock.Safety.WarningDistance
	}
	if s.GasWarning == 0 {
		s.GasWarning = stock.Safety.GasWarning
	}
	if s.GasLimit == 0 {
		s.GasLimit = stock.Safety.GasLimit
	}
	if s.BatteryLow == 0 {
		s.BatteryLow = stock.Safety.BatteryLow
	}
	if s.BatteryCritical == 0 {
		s.BatteryCritical = stock.Safety.BatteryCritical
	}

	// Policies
	p := &config.Policies
	if p.Missing == "" {
		p.Missing = protocol.MissingAsZero.String()
	}
	if p.Warning == "" {
		p.Warning = core.BlockDirection.String()
	}
	if p.Reset == "" {
		p.Reset = core.ResetManual.String()
	}

	// Drive profile
	d := &config.Drive
	if d.Forward == 0 {
		d.Forward = stock.Drive.Forward
	}
	if d.Backward == 0 {
		d.Backward = stock.Drive.Backward
	}
	if d.Turn == 0 {
		d.Turn = stock.Drive.Turn
	}
	if d.Climb == 0 {
		d.Climb = stock.Drive.Climb
	}
	if d.Test == 0 {
		d.Test = stock.Drive.Test
	}
	if d.RampStep == 0 {
		d.RampStep = stock.Drive.RampStep
	}

	if config.Motors == nil {
		config.Motors = stock.Motors
	}
	for i := range config.Motors {
		if config.Motors[i].Name == "" {
			config.Motors[i].Name = config.Motors[i].Wheel
		}
	}
	if config.Peers == nil {
		config.Peers = stock.Peers
	}
	if config.Sensors == (SensorConfig{}) {
		config.Sensors = stock.Sensors
	}
	if config.Sensors.BatteryScale == 0 {
		config.Sensors.BatteryScale = stock.Sensors.BatteryScale
	}

	// Transports
	if config.Serial.Device == "" {
		config.Serial.Device = stock.Serial.Device
	}
	if config.Serial.Baud == 0 {
		config.Serial.Baud = stock.Serial.Baud
	}
	if config.Serial.ReadTimeoutMs == 0 {
		config.Serial.ReadTimeoutMs = stock.Serial.ReadTimeoutMs
	}
	if config.Dashboard.Listen == "" {
		config.Dashboard.Listen = stock.Dashboard.Listen
	}
	if config.MQTT.ClientID == "" {
		config.MQTT.ClientID = "nightfall-" + core.RoleFor(kind).Source
	}
	if config.MQTT.TopicPrefix == "" {
		config.MQTT.TopicPrefix = "nightfall"
	}
	if config.Firmata.Baud == 0 {
		config.Firmata.Baud = 57600
	}
}

// Validate checks the configuration for values the node cannot run with
func (c *NodeConfig) Validate() error {
	if _, err := core.ParseRole(c.Role); err != nil {
		return fmt.Errorf("%w: %q", ErrBadRole, c.Role)
	}
	if c.Safety.WarningDistance <= c.Safety.EmergencyDistance {
		return ErrBadThresholds
	}
	if c.Safety.GasWarning > c.Safety.GasLimit {
		return errors.New("gas warning level must not exceed the gas limit")
	}
	if _, err := protocol.ParseMissingPolicy(c.Policies.Missing); err != nil {
		return err
	}
	if _, err := core.ParseWarningPolicy(c.Policies.Warning); err != nil {
		return err
	}
	if _, err := core.ParseResetPolicy(c.Policies.Reset); err != nil {
		return err
	}
	if c.Drive.Backward > 0 {
		return errors.New("backward speed must be negative")
	}
	for _, v := range []int{c.Drive.Forward, -c.Drive.Backward, c.Drive.Turn, c.Drive.Climb, c.Drive.Test} {
		if v > protocol.SpeedMax {
			return fmt.Errorf("drive speed %d exceeds %d", v, protocol.SpeedMax)
		}
	}
	if len(c.Peers) > core.MaxPeers {
		return fmt.Errorf("%w: %d (max %d)", ErrTooManyPeers, len(c.Peers), core.MaxPeers)
	}
	if _, err := c.MotorChannels(); err != nil {
		return err
	}
	return nil
}

// Kind returns the parsed role
func (c *NodeConfig) Kind() core.RoleKind {
	kind, _ := core.ParseRole(c.Role)
	return kind
}

// LoopConfig converts the document into the control loop configuration
func (c *NodeConfig) LoopConfig() (core.LoopConfig, error) {
	kind, err := core.ParseRole(c.Role)
	if err != nil {
		return core.LoopConfig{}, fmt.Errorf("%w: %q", ErrBadRole, c.Role)
	}
	missing, err := protocol.ParseMissingPolicy(c.Policies.Missing)
	if err != nil {
		return core.LoopConfig{}, err
	}
	warning, err := core.ParseWarningPolicy(c.Policies.Warning)
	if err != nil {
		return core.LoopConfig{}, err
	}
	reset, err := core.ParseResetPolicy(c.Policies.Reset)
	if err != nil {
		return core.LoopConfig{}, err
	}

	lc := core.DefaultLoopConfig(kind)
	lc.SensorInterval = c.Intervals.SensorMs
	lc.HeartbeatInterval = c.Intervals.HeartbeatMs
	lc.TelemetryInterval = c.Intervals.TelemetryMs
	lc.ForwardInterval = c.Intervals.ForwardMs
	lc.Thresholds = core.Thresholds{
		EmergencyDistance: c.Safety.EmergencyDistance,
		WarningDistance:   c.Safety.WarningDistance,
		GasWarning:        c.Safety.GasWarning,
		GasLimit:          c.Safety.GasLimit,
		BatteryLow:        c.Safety.BatteryLow,
		BatteryCritical:   c.Safety.BatteryCritical,
	}
	lc.Missing = missing
	lc.Warning = warning
	lc.Reset = reset
	lc.Profile = core.DriveProfile{
		Forward:  c.Drive.Forward,
		Backward: c.Drive.Backward,
		Turn:     c.Drive.Turn,
		Climb:    c.Drive.Climb,
		Test:     c.Drive.Test,
		RampStep: c.Drive.RampStep,
	}
	if lc.Profile.RampStep < 0 {
		lc.Profile.RampStep = 0
	}
	lc.Peers = make([]core.PeerConfig, len(c.Peers))
	for i, p := range c.Peers {
		lc.Peers[i] = core.PeerConfig{
			Name:               p.Name,
			Timeout:            p.TimeoutMs,
			Required:           p.Required,
			RecoverOnTraffic:   p.RecoverOnTraffic,
			PropagateEmergency: p.PropagateEmergency,
		}
	}
	return lc, nil
}

// MotorChannels converts the motor table into core channel descriptions
func (c *NodeConfig) MotorChannels() ([]core.MotorChannel, error) {
	out := make([]core.MotorChannel, 0, len(c.Motors))
	for _, m := range c.Motors {
		wheel, err := ParseWheel(m.Wheel)
		if err != nil {
			return nil, fmt.Errorf("motor %s: %w", m.Name, err)
		}
		pwm, err := ParsePin(m.PWMPin)
		if err != nil {
			return nil, fmt.Errorf("motor %s pwm: %w", m.Name, err)
		}
		in1, err := ParsePin(m.In1Pin)
		if err != nil {
			return nil, fmt.Errorf("motor %s in1: %w", m.Name, err)
		}
		in2, err := ParsePin(m.In2Pin)
		if err != nil {
			return nil, fmt.Errorf("motor %s in2: %w", m.Name, err)
		}
		out = append(out, core.MotorChannel{
			Name:   m.Name,
			Wheel:  wheel,
			PWM:    core.PWMPin(pwm),
			In1:    core.GPIOPin(in1),
			In2:    core.GPIOPin(in2),
			Invert: m.Invert,
		})
	}
	return out, nil
}

// ParsePin converts "gpio12", "GP12" or "12" into a pin number
func ParsePin(name string) (uint8, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.TrimPrefix(s, "gpio")
	s = strings.TrimPrefix(s, "gp")
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadPin, name)
	}
	return uint8(n), nil
}

// ParseWheel converts a drive frame key into a wheel group
func ParseWheel(key string) (protocol.Wheel, error) {
	for w := protocol.Wheel(0); w < protocol.WheelCount; w++ {
		if strings.EqualFold(w.Key(), key) {
			return w, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrBadWheel, key)
}

func defaultFor(kind core.RoleKind) *NodeConfig {
	if kind == core.RoleSlave {
		return DefaultSlaveConfig()
	}
	return DefaultMasterConfig()
}

func baseConfig(kind core.RoleKind) *NodeConfig {
	lc := core.DefaultLoopConfig(kind)
	th := lc.Thresholds
	prof := lc.Profile

	peers := make([]PeerConfig, len(lc.Peers))
	for i, p := range lc.Peers {
		peers[i] = PeerConfig{
			Name:               p.Name,
			TimeoutMs:          p.Timeout,
			Required:           p.Required,
			RecoverOnTraffic:   p.RecoverOnTraffic,
			PropagateEmergency: p.PropagateEmergency,
		}
	}

	return &NodeConfig{
		Role: kind.String(),
		Intervals: IntervalConfig{
			SensorMs:    lc.SensorInterval,
			HeartbeatMs: lc.HeartbeatInterval,
			TelemetryMs: lc.TelemetryInterval,
			ForwardMs:   lc.ForwardInterval,
		},
		Safety: SafetyConfig{
			EmergencyDistance: th.EmergencyDistance,
			WarningDistance:   th.WarningDistance,
			GasWarning:        th.GasWarning,
			GasLimit:          th.GasLimit,
			BatteryLow:        th.BatteryLow,
			BatteryCritical:   th.BatteryCritical,
		},
		Policies: PolicyConfig{
			Missing: protocol.MissingAsZero.String(),
			Warning: core.BlockDirection.String(),
			Reset:   core.ResetManual.String(),
		},
		Drive: DriveConfig{
			Forward:  prof.Forward,
			Backward: prof.Backward,
			Turn:     prof.Turn,
			Climb:    prof.Climb,
			Test:     prof.Test,
			RampStep: prof.RampStep,
		},
		Peers: peers,
		Serial: SerialConfig{
			Device:        "/dev/ttyUSB0",
			Baud:          115200,
			ReadTimeoutMs: 100,
		},
		Dashboard: DashboardConfig{
			Listen: ":8080",
		},
		MQTT: MQTTConfig{
			ClientID:    "nightfall-" + core.RoleFor(kind).Source,
			TopicPrefix: "nightfall",
		},
		Firmata: FirmataConfig{
			Baud: 57600,
		},
	}
}

// DefaultMasterConfig returns the rear controller configuration: one left
// and one right motor, front/rear ultrasonic, gas and battery sensing, the
// dashboard enabled
func DefaultMasterConfig() *NodeConfig {
	c := baseConfig(core.RoleMaster)
	c.Motors = []MotorConfig{
		{Name: "rear-left", Wheel: "L", PWMPin: "gpio2", In1Pin: "gpio3", In2Pin: "gpio4"},
		{Name: "rear-right", Wheel: "R", PWMPin: "gpio6", In1Pin: "gpio7", In2Pin: "gpio8"},
	}
	c.Sensors = SensorConfig{
		FrontTrigger: "gpio10",
		FrontEcho:    "gpio11",
		RearTrigger:  "gpio12",
		RearEcho:     "gpio13",
		GasADC:       "gpio26",
		BatteryADC:   "gpio27",
		BatteryScale: 16.5,
		BuzzerPin:    "gpio15",
	}
	c.Dashboard.Enabled = true
	return c
}

// DefaultSlaveConfig returns the front controller configuration: four
// wheel groups driven from the master's frames
func DefaultSlaveConfig() *NodeConfig {
	c := baseConfig(core.RoleSlave)
	c.Motors = []MotorConfig{
		{Name: "front-left", Wheel: "L", PWMPin: "gpio2", In1Pin: "gpio3", In2Pin: "gpio4"},
		{Name: "front-right", Wheel: "R", PWMPin: "gpio6", In1Pin: "gpio7", In2Pin: "gpio8"},
		{Name: "center-left", Wheel: "CL", PWMPin: "gpio10", In1Pin: "gpio11", In2Pin: "gpio12"},
		{Name: "center-right", Wheel: "CR", PWMPin: "gpio14", In1Pin: "gpio15", In2Pin: "gpio16"},
	}
	c.Sensors = SensorConfig{
		BatteryScale: 16.5,
		BuzzerPin:    "gpio22",
	}
	c.Serial.Device = "/dev/ttyUSB1"
	return c
}
