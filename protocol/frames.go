package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

// Wheel identifies one of the four independently commanded wheel groups
type Wheel uint8

const (
	FrontLeft Wheel = iota
	FrontRight
	CenterLeft
	CenterRight
	WheelCount
)

// wheelKeys are the short wire keys, in Wheel order
var wheelKeys = [WheelCount]string{"L", "R", "CL", "CR"}

// Key returns the wire key for the wheel group
func (w Wheel) Key() string {
	if w >= WheelCount {
		return ""
	}
	return wheelKeys[w]
}

// DriveFrame carries the target speed of every wheel group, indexed by Wheel.
// Sign is direction, magnitude is PWM duty.
type DriveFrame [WheelCount]int

// Clamped returns a copy with every speed constrained to [-SpeedMax, SpeedMax]
func (f DriveFrame) Clamped() DriveFrame {
	for i := range f {
		f[i] = Clamp(f[i])
	}
	return f
}

// IsZero reports whether every wheel group is stopped
func (f DriveFrame) IsZero() bool {
	return f == DriveFrame{}
}

// MissingPolicy decides what an absent wheel key means when a drive frame is decoded
type MissingPolicy uint8

const (
	// MissingAsZero treats an absent key as speed 0
	MissingAsZero MissingPolicy = iota
	// MissingHoldsPrevious keeps the previously commanded speed for an absent key
	MissingHoldsPrevious
)

// ParseMissingPolicy converts a config string into a MissingPolicy
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch s {
	case "", "missing_as_zero":
		return MissingAsZero, nil
	case "hold_previous":
		return MissingHoldsPrevious, nil
	}
	return MissingAsZero, errors.New("unknown missing-field policy: " + s)
}

func (p MissingPolicy) String() string {
	if p == MissingHoldsPrevious {
		return "hold_previous"
	}
	return "missing_as_zero"
}

// PartialDrive is a decoded drive frame before the missing-field policy is applied
type PartialDrive struct {
	Values  DriveFrame
	Present [WheelCount]bool
}

// Resolve applies the missing-field policy against the previously commanded frame
func (p PartialDrive) Resolve(prev DriveFrame, policy MissingPolicy) DriveFrame {
	var out DriveFrame
	for i := range out {
		switch {
		case p.Present[i]:
			out[i] = Clamp(p.Values[i])
		case policy == MissingHoldsPrevious:
			out[i] = Clamp(prev[i])
		}
	}
	return out
}

// HeartbeatFrame is the periodic liveness message a node sends to the master
type HeartbeatFrame struct {
	Type       string `json:"type"`
	Source     string `json:"source"`
	Timestamp  uint32 `json:"timestamp"`
	Emergency  bool   `json:"emergency"`
	Reason     string `json:"reason,omitempty"`
	LeftSpeed  *int   `json:"leftSpeed,omitempty"`
	RightSpeed *int   `json:"rightSpeed,omitempty"`
	Uptime     uint32 `json:"uptime"`
}

// NewHeartbeat builds a heartbeat without speed telemetry
func NewHeartbeat(source string, now, uptime uint32, emergency bool, reason string) HeartbeatFrame {
	return HeartbeatFrame{
		Type:      TypeHeartbeat,
		Source:    source,
		Timestamp: now,
		Emergency: emergency,
		Reason:    reason,
		Uptime:    uptime,
	}
}

// WithSpeeds attaches the achieved left/right speeds
func (h HeartbeatFrame) WithSpeeds(left, right int) HeartbeatFrame {
	h.LeftSpeed = &left
	h.RightSpeed = &right
	return h
}

// MessageKind classifies a decoded line
type MessageKind uint8

const (
	KindDrive     MessageKind = iota + 1 // {"L":..,"R":..}
	KindHeartbeat                        // {"type":"heartbeat",...}
	KindLink                             // {"cmd":...}
	KindControl                          // {"command":...}
)

func (k MessageKind) String() string {
	switch k {
	case KindDrive:
		return "drive"
	case KindHeartbeat:
		return "heartbeat"
	case KindLink:
		return "link"
	case KindControl:
		return "control"
	}
	return "unknown"
}

// Message is one decoded line from the serial link or the control channel
type Message struct {
	Kind      MessageKind
	Drive     PartialDrive
	Heartbeat HeartbeatFrame
	Command   string // Link or control command name
}

// Decode errors
var (
	ErrParseFailure   = errors.New("malformed frame")
	ErrUnknownMessage = errors.New("unrecognised frame")
	ErrEmptyLine      = errors.New("empty line")
	ErrLineTooLong    = errors.New("line too long")
	ErrNotDrive       = errors.New("not a drive frame")
)

// DecodeError wraps a decode failure with its underlying cause
type DecodeError struct {
	Err   error
	Cause error
}

func (e *DecodeError) Error() string {
	if e.Cause == nil {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Cause.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// wireLine is the union of every key that may appear on a line
type wireLine struct {
	L  *int `json:"L"`
	R  *int `json:"R"`
	CL *int `json:"CL"`
	CR *int `json:"CR"`

	Type       string `json:"type"`
	Source     string `json:"source"`
	Timestamp  uint32 `json:"timestamp"`
	Emergency  bool   `json:"emergency"`
	Reason     string `json:"reason"`
	LeftSpeed  *int   `json:"leftSpeed"`
	RightSpeed *int   `json:"rightSpeed"`
	Uptime     uint32 `json:"uptime"`

	Cmd     string `json:"cmd"`
	Command string `json:"command"`
}

// DecodeLine parses one received line (terminator optional).
// A parse failure must be treated as "no frame received", never as a zero command.
func DecodeLine(line []byte) (Message, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Message{}, &DecodeError{Err: ErrEmptyLine}
	}
	if len(line) > LineMax {
		return Message{}, &DecodeError{Err: ErrLineTooLong}
	}

	var w wireLine
	if err := json.Unmarshal(line, &w); err != nil {
		return Message{}, &DecodeError{Err: ErrParseFailure, Cause: err}
	}

	switch {
	case w.Type == TypeHeartbeat:
		hb := HeartbeatFrame{
			Type:       TypeHeartbeat,
			Source:     w.Source,
			Timestamp:  w.Timestamp,
			Emergency:  w.Emergency,
			Reason:     w.Reason,
			LeftSpeed:  w.LeftSpeed,
			RightSpeed: w.RightSpeed,
			Uptime:     w.Uptime,
		}
		if hb.Source == "" {
			hb.Source = "unknown"
		}
		return Message{Kind: KindHeartbeat, Heartbeat: hb}, nil
	case w.Command != "":
		return Message{Kind: KindControl, Command: w.Command}, nil
	case w.Cmd != "":
		return Message{Kind: KindLink, Command: w.Cmd}, nil
	}

	var pd PartialDrive
	for i, v := range [WheelCount]*int{w.L, w.R, w.CL, w.CR} {
		if v != nil {
			pd.Values[i] = Clamp(*v)
			pd.Present[i] = true
		}
	}
	if pd.Present == ([WheelCount]bool{}) {
		return Message{}, &DecodeError{Err: ErrUnknownMessage}
	}
	return Message{Kind: KindDrive, Drive: pd}, nil
}

// Codec decodes drive frames under a fixed missing-field policy
type Codec struct {
	Missing MissingPolicy
}

// DecodeDrive decodes a drive frame line, resolving absent keys against prev
func (c Codec) DecodeDrive(line []byte, prev DriveFrame) (DriveFrame, error) {
	msg, err := DecodeLine(line)
	if err != nil {
		return DriveFrame{}, err
	}
	if msg.Kind != KindDrive {
		return DriveFrame{}, &DecodeError{Err: ErrNotDrive}
	}
	return msg.Drive.Resolve(prev, c.Missing), nil
}

// DecodeDrive decodes a drive frame with absent keys meaning zero
func DecodeDrive(line []byte) (DriveFrame, error) {
	return Codec{}.DecodeDrive(line, DriveFrame{})
}

// AppendDrive appends the wire form of f (clamped, newline terminated) to dst
func AppendDrive(dst []byte, f DriveFrame) []byte {
	dst = append(dst, '{')
	for i, v := range f {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = append(dst, '"')
		dst = append(dst, wheelKeys[i]...)
		dst = append(dst, '"', ':')
		dst = strconv.AppendInt(dst, int64(Clamp(v)), 10)
	}
	return append(dst, '}', LineTerminator)
}

// EncodeDrive returns the single-line wire form of a drive frame
func EncodeDrive(f DriveFrame) []byte {
	return AppendDrive(make([]byte, 0, 48), f)
}

// EncodeLinkCommand returns a {"cmd":...} line
func EncodeLinkCommand(cmd string) []byte {
	out := make([]byte, 0, 16+len(cmd))
	out = append(out, `{"cmd":`...)
	out = strconv.AppendQuote(out, cmd)
	return append(out, '}', LineTerminator)
}

// EncodeHeartbeat returns the single-line wire form of a heartbeat
func EncodeHeartbeat(h HeartbeatFrame) ([]byte, error) {
	if h.Type == "" {
		h.Type = TypeHeartbeat
	}
	out, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return append(out, LineTerminator), nil
}
