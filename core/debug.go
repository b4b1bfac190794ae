package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// Event is a safety-relevant event kept for post-mortem analysis
type Event struct {
	Type   uint8  // Event type code
	Time   uint32 // Loop time (ms) at event
	Value1 uint32 // Context-dependent value
	Value2 uint32 // Context-dependent value
}

// Event type codes
const (
	EvtTrip           = 1 // Latch raised, v1=cause
	EvtReset          = 2 // Latch cleared
	EvtDecodeDrop     = 3 // Line dropped, v1=total decode errors
	EvtPeerLost       = 4 // v1=peer index
	EvtPeerSeen       = 5 // v1=peer index
	EvtCommandIgnored = 6 // Command refused while latched, v1=command id
	EvtOutputError    = 7 // Motor driver error, v1=motor index
	EvtPanic          = 8 // Loop iteration recovered from a panic
)

const (
	EventRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled bool = false
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, log, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// EventRing is a fixed-size ring of recent events. Recording never
// allocates and never blocks.
type EventRing struct {
	events [EventRingSize]Event
	head   uint8
}

// Record captures an event in the ring
func (r *EventRing) Record(eventType uint8, now, value1, value2 uint32) {
	idx := r.head
	r.events[idx] = Event{
		Type:   eventType,
		Time:   now,
		Value1: value1,
		Value2: value2,
	}
	r.head = (idx + 1) % EventRingSize
}

// Events returns the recorded events, oldest first
func (r *EventRing) Events() []Event {
	out := make([]Event, 0, EventRingSize)
	for i := uint8(0); i < EventRingSize; i++ {
		evt := r.events[(r.head+i)%EventRingSize]
		if evt.Type == 0 {
			continue // Empty slot
		}
		out = append(out, evt)
	}
	return out
}

// Dump writes the ring to w (call on shutdown/error)
func (r *EventRing) Dump(w DebugWriter) {
	if w == nil {
		return
	}

	w("[EVENTS] === Event Ring Dump ===")
	for _, evt := range r.Events() {
		w("[EVENTS] " + EventName(evt.Type) +
			" t=" + utoa(evt.Time) +
			" v1=" + utoa(evt.Value1) +
			" v2=" + utoa(evt.Value2))
	}
	w("[EVENTS] === End Dump ===")
}

// Clear empties the ring
func (r *EventRing) Clear() {
	for i := range r.events {
		r.events[i] = Event{}
	}
	r.head = 0
}

// EventName returns the display name of an event type
func EventName(eventType uint8) string {
	switch eventType {
	case EvtTrip:
		return "TRIP"
	case EvtReset:
		return "RESET"
	case EvtDecodeDrop:
		return "DECODE_DROP"
	case EvtPeerLost:
		return "PEER_LOST"
	case EvtPeerSeen:
		return "PEER_SEEN"
	case EvtCommandIgnored:
		return "CMD_IGNORED"
	case EvtOutputError:
		return "OUTPUT_ERR"
	case EvtPanic:
		return "PANIC!"
	}
	return "UNKNOWN"
}
