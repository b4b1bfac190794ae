package core

import (
	"errors"

	"nightfall/protocol"
)

// SafetyState is the emergency latch state
type SafetyState uint8

const (
	StateNormal SafetyState = iota
	StateEmergency
)

func (s SafetyState) String() string {
	if s == StateEmergency {
		return "EMERGENCY"
	}
	return "NORMAL"
}

// Cause is the class of event that raised the latch
type Cause uint8

const (
	CauseNone Cause = iota
	CauseObstacle
	CauseGas
	CauseCommTimeout
	CauseManual
	CausePeer
)

func (c Cause) String() string {
	switch c {
	case CauseObstacle:
		return "obstacle"
	case CauseGas:
		return "gas"
	case CauseCommTimeout:
		return "comm_timeout"
	case CauseManual:
		return "manual"
	case CausePeer:
		return "peer"
	}
	return "none"
}

// WarningPolicy decides what a warning-zone obstacle does to drive commands
type WarningPolicy uint8

const (
	// BlockDirection zeroes motion towards the obstacle, turns and the
	// opposite direction stay allowed
	BlockDirection WarningPolicy = iota
	// BlockAll zeroes every command while any obstacle is in the warning zone
	BlockAll
	// IgnoreWarning only reports the warning
	IgnoreWarning
)

// ParseWarningPolicy converts a config string into a WarningPolicy
func ParseWarningPolicy(s string) (WarningPolicy, error) {
	switch s {
	case "", "block_direction":
		return BlockDirection, nil
	case "block_all":
		return BlockAll, nil
	case "ignore":
		return IgnoreWarning, nil
	}
	return BlockDirection, errors.New("unknown warning policy: " + s)
}

func (p WarningPolicy) String() string {
	switch p {
	case BlockAll:
		return "block_all"
	case IgnoreWarning:
		return "ignore"
	}
	return "block_direction"
}

// ResetPolicy decides how the latch may be cleared
type ResetPolicy uint8

const (
	// ResetManual requires an explicit reset command
	ResetManual ResetPolicy = iota
	// ResetAutoClearWhenSafe also clears an obstacle, gas or link latch once
	// the condition that raised it has gone away
	ResetAutoClearWhenSafe
)

// ParseResetPolicy converts a config string into a ResetPolicy
func ParseResetPolicy(s string) (ResetPolicy, error) {
	switch s {
	case "", "manual":
		return ResetManual, nil
	case "auto_clear_when_safe":
		return ResetAutoClearWhenSafe, nil
	}
	return ResetManual, errors.New("unknown reset policy: " + s)
}

func (p ResetPolicy) String() string {
	if p == ResetAutoClearWhenSafe {
		return "auto_clear_when_safe"
	}
	return "manual"
}

// Thresholds are the safety limits
type Thresholds struct {
	EmergencyDistance float32 // cm, front obstacle closer than this trips
	WarningDistance   float32 // cm, obstacle closer than this restricts motion
	GasWarning        float32
	GasLimit          float32 // gas above this trips
	BatteryLow        float32 // volts
	BatteryCritical   float32 // volts
}

// DefaultThresholds returns the stock limits
func DefaultThresholds() Thresholds {
	return Thresholds{
		EmergencyDistance: 20,
		WarningDistance:   50,
		GasWarning:        300,
		GasLimit:          400,
		BatteryLow:        12.5,
		BatteryCritical:   11.5,
	}
}

// AlertType identifies one alert slot
type AlertType uint8

const (
	AlertCollision AlertType = iota
	AlertGas
	AlertBattery
	AlertCommunication
	alertCount
)

func (t AlertType) String() string {
	switch t {
	case AlertCollision:
		return "collision"
	case AlertGas:
		return "gas"
	case AlertBattery:
		return "battery"
	case AlertCommunication:
		return "communication"
	}
	return "unknown"
}

// AlertLevel is the severity of an alert
type AlertLevel uint8

const (
	LevelInfo AlertLevel = iota
	LevelWarning
	LevelCritical
)

func (l AlertLevel) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	}
	return "info"
}

// Alert is an active condition reported alongside the latch.
// Alerts follow the condition; only the latch is sticky.
type Alert struct {
	Type    AlertType
	Level   AlertLevel
	Message string
	Since   uint32
	active  bool
}

// TripHandler is called synchronously inside Trip
type TripHandler func(cause Cause, reason string, now uint32)

// Arbiter is the safety state machine and emergency latch
type Arbiter struct {
	th      Thresholds
	warning WarningPolicy
	reset   ResetPolicy

	state  SafetyState
	cause  Cause
	reason string
	since  uint32
	trips  uint32

	readings Readings
	linkLost bool
	alerts   AlertSet
	handlers []TripHandler
	onReset  []func()
}

// NewArbiter creates an arbiter in the NORMAL state
func NewArbiter(th Thresholds, warning WarningPolicy, reset ResetPolicy) *Arbiter {
	return &Arbiter{
		th:      th,
		warning: warning,
		reset:   reset,
		readings: Readings{
			Front: Reading{Value: MaxRangeCM},
			Rear:  Reading{Value: MaxRangeCM},
		},
	}
}

// OnTrip registers a handler run every time the latch is raised
func (a *Arbiter) OnTrip(h TripHandler) {
	a.handlers = append(a.handlers, h)
}

// OnReset registers a handler run every time the latch is cleared
func (a *Arbiter) OnReset(h func()) {
	a.onReset = append(a.onReset, h)
}

// Evaluate checks fresh sensor readings. It returns true if this call
// raised the latch. Invalid readings never trip.
func (a *Arbiter) Evaluate(r Readings, now uint32) bool {
	a.readings = r
	a.updateAlerts(r, now)

	if a.state == StateEmergency {
		a.autoClear(now)
		return false
	}

	if a.frontCritical() {
		return a.Trip(CauseObstacle, "Obstacle at "+itoa(int(r.Front.Value))+" cm", now)
	}
	if a.gasCritical() {
		return a.Trip(CauseGas, "Gas level "+itoa(int(r.Gas.Value)), now)
	}
	return false
}

// Trip raises the latch. All trip handlers run before Trip returns, so
// motors are already stopped when the caller continues. Returns false if
// the latch was already set; the first cause is kept.
func (a *Arbiter) Trip(cause Cause, reason string, now uint32) bool {
	if a.state == StateEmergency {
		return false
	}
	a.state = StateEmergency
	a.cause = cause
	a.reason = reason
	a.since = now
	a.trips++

	DebugPrintln("[SAFETY] EMERGENCY " + cause.String() + ": " + reason)
	for _, h := range a.handlers {
		h(cause, reason, now)
	}
	return true
}

// Reset clears the latch. Returns false if it was not set.
func (a *Arbiter) Reset() bool {
	if a.state != StateEmergency {
		return false
	}
	a.state = StateNormal
	a.cause = CauseNone
	a.reason = ""
	a.since = 0
	DebugPrintln("[SAFETY] emergency reset")
	for _, h := range a.onReset {
		h()
	}
	return true
}

// SetLinkLost records whether the watched upstream link is currently silent
func (a *Arbiter) SetLinkLost(lost bool, now uint32) {
	a.linkLost = lost
	if a.state == StateEmergency {
		a.autoClear(now)
	}
}

// autoClear resets the latch when the reset policy allows it and the
// condition that raised it has gone away
func (a *Arbiter) autoClear(now uint32) {
	if a.reset != ResetAutoClearWhenSafe {
		return
	}
	switch a.cause {
	case CauseObstacle, CauseGas, CauseCommTimeout:
	default:
		return
	}
	if a.frontCritical() || a.gasCritical() || a.linkLost {
		return
	}
	a.Reset()
}

// Filter applies the latch and the warning policy to commanded targets
func (a *Arbiter) Filter(t protocol.DriveFrame) protocol.DriveFrame {
	if a.state == StateEmergency {
		return protocol.DriveFrame{}
	}
	front := a.inWarning(a.readings.Front)
	rear := a.inWarning(a.readings.Rear)

	switch a.warning {
	case BlockAll:
		if front || rear {
			return protocol.DriveFrame{}
		}
	case BlockDirection:
		dir := directionOf(t)
		if (dir > 0 && front) || (dir < 0 && rear) {
			return protocol.DriveFrame{}
		}
	}
	return t
}

// directionOf returns +1 when every group is driving forward, -1 when every
// group is reversing, and 0 for turns or a stopped frame
func directionOf(t protocol.DriveFrame) int {
	fwd, rev := false, false
	for _, v := range t {
		if v > 0 {
			fwd = true
		} else if v < 0 {
			rev = true
		}
	}
	switch {
	case fwd && !rev:
		return 1
	case rev && !fwd:
		return -1
	}
	return 0
}

func (a *Arbiter) inWarning(r Reading) bool {
	return r.Valid && r.Value < a.th.WarningDistance
}

func (a *Arbiter) frontCritical() bool {
	f := a.readings.Front
	return f.Valid && f.Value < a.th.EmergencyDistance
}

func (a *Arbiter) gasCritical() bool {
	g := a.readings.Gas
	return g.Valid && g.Value > a.th.GasLimit
}

func (a *Arbiter) updateAlerts(r Readings, now uint32) {
	switch {
	case a.frontCritical():
		a.Raise(AlertCollision, LevelCritical, "Imminent front collision", now)
	case a.inWarning(r.Front):
		a.Raise(AlertCollision, LevelWarning, "Front obstacle too close", now)
	case a.inWarning(r.Rear):
		a.Raise(AlertCollision, LevelWarning, "Rear obstacle too close", now)
	default:
		a.Clear(AlertCollision)
	}

	switch {
	case a.gasCritical():
		a.Raise(AlertGas, LevelCritical, "Critical gas level", now)
	case r.Gas.Valid && r.Gas.Value > a.th.GasWarning:
		a.Raise(AlertGas, LevelWarning, "Gas detected", now)
	default:
		a.Clear(AlertGas)
	}

	// Battery alerts are reported only; a low battery never trips the latch
	switch {
	case !r.Battery.Valid:
		a.Clear(AlertBattery)
	case r.Battery.Value < a.th.BatteryCritical:
		a.Raise(AlertBattery, LevelCritical, "Battery critically low", now)
	case r.Battery.Value < a.th.BatteryLow:
		a.Raise(AlertBattery, LevelWarning, "Battery low", now)
	default:
		a.Clear(AlertBattery)
	}
}

// Raise activates or updates an alert. Since is kept while the alert stays active.
func (a *Arbiter) Raise(t AlertType, level AlertLevel, msg string, now uint32) {
	if t >= alertCount {
		return
	}
	al := &a.alerts[t]
	if !al.active {
		al.Since = now
		DebugPrintln("[ALERT] " + level.String() + " " + t.String() + ": " + msg)
	}
	al.Type = t
	al.Level = level
	al.Message = msg
	al.active = true
}

// Clear deactivates an alert
func (a *Arbiter) Clear(t AlertType) {
	if t >= alertCount {
		return
	}
	a.alerts[t] = Alert{}
}

// Alerts returns every alert slot; inactive slots have Active() false
func (a *Arbiter) Alerts() AlertSet {
	return a.alerts
}

// Active reports whether the alert is currently raised
func (al Alert) Active() bool {
	return al.active
}

// AlertSet holds one slot per alert type
type AlertSet [alertCount]Alert

// Active returns the raised alerts in type order
func (s AlertSet) Active() []Alert {
	var out []Alert
	for _, al := range s {
		if al.active {
			out = append(out, al)
		}
	}
	return out
}

// Get returns the slot for t
func (s AlertSet) Get(t AlertType) (Alert, bool) {
	if t >= alertCount {
		return Alert{}, false
	}
	return s[t], s[t].active
}

// Latched reports whether the node is in EMERGENCY
func (a *Arbiter) Latched() bool {
	return a.state == StateEmergency
}

// State returns the latch state
func (a *Arbiter) State() SafetyState {
	return a.state
}

// Cause returns the cause of the current latch, CauseNone when clear
func (a *Arbiter) Cause() Cause {
	return a.cause
}

// Reason returns the human-readable trip reason
func (a *Arbiter) Reason() string {
	return a.reason
}

// Since returns when the latch was raised, 0 when clear
func (a *Arbiter) Since() uint32 {
	return a.since
}

// Trips returns how many times the latch has been raised
func (a *Arbiter) Trips() uint32 {
	return a.trips
}

// Readings returns the last evaluated readings
func (a *Arbiter) Readings() Readings {
	return a.readings
}
