package protocol

import (
	"errors"
	"strings"
	"testing"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 0},
		{150, 150},
		{255, 255},
		{256, 255},
		{10000, 255},
		{-255, -255},
		{-256, -255},
		{-99999, -255},
	}
	for _, tt := range tests {
		if got := Clamp(tt.in); got != tt.want {
			t.Errorf("Clamp(%d): expected %d, got %d", tt.in, tt.want, got)
		}
	}
}

func TestEncodeDriveFormat(t *testing.T) {
	got := string(EncodeDrive(DriveFrame{150, 150, -20, 0}))
	want := `{"L":150,"R":150,"CL":-20,"CR":0}` + "\n"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}

	// Out of range values are clamped before transmission
	got = string(EncodeDrive(DriveFrame{300, -300, 0, 0}))
	if !strings.HasPrefix(got, `{"L":255,"R":-255,`) {
		t.Errorf("Expected clamped frame, got %q", got)
	}
}

func TestDriveRoundTrip(t *testing.T) {
	frames := []DriveFrame{
		{},
		{150, 150, 150, 150},
		{-100, 100, -100, 100},
		{255, -255, 1, -1},
		{0, 7, -200, 33},
	}
	for _, f := range frames {
		got, err := DecodeDrive(EncodeDrive(f))
		if err != nil {
			t.Errorf("DecodeDrive(%v) failed: %v", f, err)
			continue
		}
		if got != f {
			t.Errorf("Round trip mismatch: expected %v, got %v", f, got)
		}
	}
}

func TestDecodeDriveClampsAndMissingFields(t *testing.T) {
	got, err := DecodeDrive([]byte(`{"L":400,"R":-1000}`))
	if err != nil {
		t.Fatalf("DecodeDrive failed: %v", err)
	}
	if got != (DriveFrame{255, -255, 0, 0}) {
		t.Errorf("Expected clamped frame with zero centre groups, got %v", got)
	}

	prev := DriveFrame{10, 20, 30, 40}
	hold := Codec{Missing: MissingHoldsPrevious}
	got, err = hold.DecodeDrive([]byte(`{"L":100,"R":100}`), prev)
	if err != nil {
		t.Fatalf("DecodeDrive failed: %v", err)
	}
	if got != (DriveFrame{100, 100, 30, 40}) {
		t.Errorf("Expected centre groups held, got %v", got)
	}

	zero := Codec{Missing: MissingAsZero}
	got, _ = zero.DecodeDrive([]byte(`{"L":100,"R":100}`), prev)
	if got != (DriveFrame{100, 100, 0, 0}) {
		t.Errorf("Expected centre groups zeroed, got %v", got)
	}
}

func TestDecodeLineMalformed(t *testing.T) {
	for _, line := range []string{"{not json", `{"L":"fast"}`, `[1,2]`, `{"L":1.5}`} {
		_, err := DecodeLine([]byte(line))
		if !errors.Is(err, ErrParseFailure) {
			t.Errorf("DecodeLine(%q): expected ErrParseFailure, got %v", line, err)
		}
	}

	if _, err := DecodeLine([]byte("   ")); !errors.Is(err, ErrEmptyLine) {
		t.Errorf("Expected ErrEmptyLine, got %v", err)
	}
	if _, err := DecodeLine([]byte(`{"foo":1}`)); !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("Expected ErrUnknownMessage, got %v", err)
	}
	long := "{\"L\":1," + strings.Repeat(" ", LineMax) + "}"
	if _, err := DecodeLine([]byte(long)); !errors.Is(err, ErrLineTooLong) {
		t.Errorf("Expected ErrLineTooLong, got %v", err)
	}
}

func TestDecodeLineKinds(t *testing.T) {
	msg, err := DecodeLine([]byte(`{"command":"forward"}`))
	if err != nil || msg.Kind != KindControl || msg.Command != CommandForward {
		t.Errorf("Expected control forward, got %+v (%v)", msg, err)
	}

	msg, err = DecodeLine([]byte(`{"cmd":"emergency_stop"}`))
	if err != nil || msg.Kind != KindLink || msg.Command != LinkEmergencyStop {
		t.Errorf("Expected link emergency_stop, got %+v (%v)", msg, err)
	}

	msg, err = DecodeLine([]byte(`{"type":"heartbeat","source":"front","timestamp":42,"emergency":true,"leftSpeed":-5,"rightSpeed":6,"uptime":42}`))
	if err != nil || msg.Kind != KindHeartbeat {
		t.Fatalf("Expected heartbeat, got %+v (%v)", msg, err)
	}
	hb := msg.Heartbeat
	if hb.Source != SourceFront || !hb.Emergency || hb.Timestamp != 42 {
		t.Errorf("Unexpected heartbeat fields: %+v", hb)
	}
	if hb.LeftSpeed == nil || *hb.LeftSpeed != -5 || hb.RightSpeed == nil || *hb.RightSpeed != 6 {
		t.Errorf("Unexpected heartbeat speeds: %+v", hb)
	}
}

func TestHeartbeatEncode(t *testing.T) {
	hb := NewHeartbeat(SourceFront, 1000, 1000, false, "").WithSpeeds(10, -10)
	line, err := EncodeHeartbeat(hb)
	if err != nil {
		t.Fatalf("EncodeHeartbeat failed: %v", err)
	}
	if line[len(line)-1] != '\n' {
		t.Error("Heartbeat line must be newline terminated")
	}
	msg, err := DecodeLine(line)
	if err != nil || msg.Kind != KindHeartbeat {
		t.Fatalf("Expected heartbeat back, got %+v (%v)", msg, err)
	}
	if *msg.Heartbeat.LeftSpeed != 10 || *msg.Heartbeat.RightSpeed != -10 {
		t.Errorf("Speed mismatch: %+v", msg.Heartbeat)
	}

	camera, _ := EncodeHeartbeat(NewHeartbeat(SourceCamera, 5, 5, false, ""))
	if strings.Contains(string(camera), "leftSpeed") {
		t.Errorf("Heartbeat without speeds should omit them: %s", camera)
	}
}

func TestEncodeLinkCommand(t *testing.T) {
	got := string(EncodeLinkCommand(LinkEmergencyReset))
	if got != `{"cmd":"emergency_reset"}`+"\n" {
		t.Errorf("Unexpected link command line %q", got)
	}
}

func TestParseMissingPolicy(t *testing.T) {
	p, err := ParseMissingPolicy("hold_previous")
	if err != nil || p != MissingHoldsPrevious {
		t.Errorf("Expected hold_previous, got %v (%v)", p, err)
	}
	if p, _ := ParseMissingPolicy(""); p != MissingAsZero {
		t.Errorf("Expected default missing_as_zero, got %v", p)
	}
	if _, err := ParseMissingPolicy("guess"); err == nil {
		t.Error("Expected error for unknown policy")
	}
}
