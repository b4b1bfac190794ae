package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"nightfall/core"
	"nightfall/protocol"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig([]byte(`{"Role":"slave"}`))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Kind() != core.RoleSlave {
		t.Errorf("Expected slave role, got %v", cfg.Kind())
	}
	if cfg.Serial.Baud != 115200 || cfg.Serial.ReadTimeoutMs != 100 {
		t.Errorf("Expected 115200 baud / 100 ms, got %d / %d", cfg.Serial.Baud, cfg.Serial.ReadTimeoutMs)
	}
	if len(cfg.Motors) != 4 {
		t.Errorf("Expected 4 slave motors, got %d", len(cfg.Motors))
	}
	if len(cfg.Peers) != 1 || cfg.Peers[0].TimeoutMs != 1000 || !cfg.Peers[0].Required {
		t.Errorf("Expected required rear peer with 1000 ms timeout, got %+v", cfg.Peers)
	}
	if cfg.MQTT.ClientID != "nightfall-front" {
		t.Errorf("Expected role-based MQTT client id, got %q", cfg.MQTT.ClientID)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	doc := `{
		"Role": "master",
		"Intervals": {"TelemetryMs": 250},
		"Safety": {"EmergencyDistance": 30, "WarningDistance": 80},
		"Policies": {"Missing": "hold_previous", "Reset": "auto_clear_when_safe"},
		"Drive": {"Forward": 180, "RampStep": -1},
		"Motors": [{"Wheel": "L", "PWMPin": "GP0", "In1Pin": "1", "In2Pin": "gpio2", "Invert": true}]
	}`
	cfg, err := LoadConfig([]byte(doc))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	lc, err := cfg.LoopConfig()
	if err != nil {
		t.Fatalf("LoopConfig failed: %v", err)
	}
	if lc.TelemetryInterval != 250 || lc.SensorInterval != 100 {
		t.Errorf("Expected telemetry 250 / sensor 100, got %d / %d", lc.TelemetryInterval, lc.SensorInterval)
	}
	if lc.Thresholds.EmergencyDistance != 30 || lc.Thresholds.GasLimit != 400 {
		t.Errorf("Unexpected thresholds %+v", lc.Thresholds)
	}
	if lc.Missing != protocol.MissingHoldsPrevious || lc.Reset != core.ResetAutoClearWhenSafe || lc.Warning != core.BlockDirection {
		t.Errorf("Unexpected policies %v %v %v", lc.Missing, lc.Reset, lc.Warning)
	}
	if lc.Profile.Forward != 180 || lc.Profile.Backward != -150 || lc.Profile.RampStep != 0 {
		t.Errorf("Unexpected profile %+v", lc.Profile)
	}
	if !lc.Role.Forward || lc.Role.Source != protocol.SourceRear {
		t.Errorf("Expected master role, got %+v", lc.Role)
	}

	chans, err := cfg.MotorChannels()
	if err != nil {
		t.Fatalf("MotorChannels failed: %v", err)
	}
	want := core.MotorChannel{Name: "L", Wheel: protocol.FrontLeft, PWM: 0, In1: 1, In2: 2, Invert: true}
	if len(chans) != 1 || chans[0] != want {
		t.Errorf("Expected %+v, got %+v", want, chans)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"role", `{"Role":"sideways"}`, ErrBadRole},
		{"thresholds", `{"Safety":{"EmergencyDistance":60,"WarningDistance":50}}`, ErrBadThresholds},
		{"pin", `{"Motors":[{"Wheel":"L","PWMPin":"pin9","In1Pin":"1","In2Pin":"2"}]}`, ErrBadPin},
		{"wheel", `{"Motors":[{"Wheel":"X","PWMPin":"0","In1Pin":"1","In2Pin":"2"}]}`, ErrBadWheel},
		{"peers", `{"Peers":[{"Name":"a"},{"Name":"b"},{"Name":"c"},{"Name":"d"},{"Name":"e"}]}`, ErrTooManyPeers},
	}
	for _, tt := range tests {
		_, err := LoadConfig([]byte(tt.doc))
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}

	for _, doc := range []string{
		`{"Policies":{"Warning":"maybe"}}`,
		`{"Drive":{"Backward":100}}`,
		`{"Drive":{"Climb":300}}`,
		`{not json`,
	} {
		if _, err := LoadConfig([]byte(doc)); err == nil {
			t.Errorf("Expected error for %s", doc)
		}
	}
}

func TestDefaultConfigsValid(t *testing.T) {
	for _, cfg := range []*NodeConfig{DefaultMasterConfig(), DefaultSlaveConfig()} {
		if err := cfg.Validate(); err != nil {
			t.Errorf("%s default invalid: %v", cfg.Role, err)
		}
		lc, err := cfg.LoopConfig()
		if err != nil {
			t.Fatalf("%s: %v", cfg.Role, err)
		}
		stock := core.DefaultLoopConfig(cfg.Kind())
		if lc.Thresholds != stock.Thresholds || lc.Profile != stock.Profile {
			t.Errorf("%s default drifted from the loop defaults", cfg.Role)
		}
	}
	if !DefaultMasterConfig().Dashboard.Enabled || DefaultSlaveConfig().Dashboard.Enabled {
		t.Error("Dashboard should be on for the master only")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.json")
	if err := os.WriteFile(path, []byte(`{"Role":"front"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Kind() != core.RoleSlave {
		t.Errorf("Expected front alias to select slave, got %v", cfg.Kind())
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for a missing file")
	}
}

func TestParsePin(t *testing.T) {
	for in, want := range map[string]uint8{"gpio12": 12, "GP3": 3, " 7 ": 7, "GPIO28": 28} {
		got, err := ParsePin(in)
		if err != nil || got != want {
			t.Errorf("ParsePin(%q): expected %d, got %d (%v)", in, want, got, err)
		}
	}
	if _, err := ParsePin("gpio300"); err == nil {
		t.Error("Expected error for out-of-range pin")
	}
}
