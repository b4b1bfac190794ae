package dashboard

import (
	"nightfall/core"
	"nightfall/protocol"
)

// Status is the /api/status document and the status frame sent to a
// WebSocket client when it connects
type Status struct {
	Type     string `json:"type"`
	Status   string `json:"status"`
	Version  string `json:"version"`
	Role     string `json:"role"`
	Source   string `json:"source"`
	Uptime   uint32 `json:"uptime"`
	Movement string `json:"movement"`

	Emergency       bool   `json:"emergency"`
	RobotState      string `json:"robotState"`
	EmergencyCause  string `json:"emergencyCause,omitempty"`
	EmergencyReason string `json:"emergencyReason,omitempty"`
	EmergencySince  uint32 `json:"emergencySince,omitempty"`
	Trips           uint32 `json:"trips"`
	Alarm           bool   `json:"alarm"`

	FrontDistance float32 `json:"frontDistance"`
	RearDistance  float32 `json:"rearDistance"`
	GasLevel      float32 `json:"gasLevel"`
	Battery       float32 `json:"battery"`

	MotorsActive bool                `json:"motorsActive"`
	Motors       protocol.DriveFrame `json:"motors"`
	Targets      protocol.DriveFrame `json:"targets"`

	Peers    []PeerStatus `json:"peers"`
	Counters Counters     `json:"counters"`
}

// PeerStatus is one liveness record as shown on the dashboard
type PeerStatus struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	LastSeen  uint32 `json:"lastSeen"`
	Frames    uint32 `json:"frames"`
	Emergency bool   `json:"emergency"`
}

// Counters are the error and traffic counters of the node
type Counters struct {
	LinesIn        uint32 `json:"linesIn"`
	LinesOut       uint32 `json:"linesOut"`
	LinesDropped   uint32 `json:"linesDropped"`
	WriteErrors    uint32 `json:"writeErrors"`
	DecodeErrors   uint32 `json:"decodeErrors"`
	Ignored        uint32 `json:"ignored"`
	Unknown        uint32 `json:"unknown"`
	OutputErrors   uint32 `json:"outputErrors"`
	Panics         uint32 `json:"panics"`
	MailboxDropped uint32 `json:"mailboxDropped"`
}

// Devices is the /api/devices document
type Devices struct {
	Type       string            `json:"type"`
	Devices    map[string]bool   `json:"devices"`
	Heartbeats map[string]uint32 `json:"heartbeats"`
}

// CommandInfo is one control command as listed on /api/commands
type CommandInfo struct {
	ID           uint16 `json:"id"`
	Name         string `json:"name"`
	Format       string `json:"format,omitempty"`
	AllowLatched bool   `json:"allowLatched"`
}

// CommandList is the /api/commands document
type CommandList struct {
	Commands   []CommandInfo `json:"commands"`
	Dictionary string        `json:"dictionary"`
}

// NewCommandList lists the registry in registration order
func NewCommandList(r *core.CommandRegistry) CommandList {
	list := CommandList{Dictionary: r.GetDictionary()}
	for id := 0; id < r.Count(); id++ {
		cmd, ok := r.GetCommand(uint16(id))
		if !ok {
			continue
		}
		list.Commands = append(list.Commands, CommandInfo{
			ID:           cmd.ID,
			Name:         cmd.Name,
			Format:       cmd.Format,
			AllowLatched: cmd.AllowLatched,
		})
	}
	return list
}

// MotorReport is the /api/motors document
type MotorReport struct {
	FrontLeft   int  `json:"frontLeft"`
	FrontRight  int  `json:"frontRight"`
	CenterLeft  int  `json:"centerLeft"`
	CenterRight int  `json:"centerRight"`
	Emergency   bool `json:"emergency"`
}

// NewStatus builds the status document from a loop snapshot
func NewStatus(s core.Snapshot) Status {
	st := Status{
		Type:          protocol.TypeStatus,
		Status:        "online",
		Version:       protocol.Version,
		Role:          s.Role.String(),
		Source:        s.Source,
		Uptime:        s.Uptime,
		Movement:      s.Movement,
		Emergency:     s.Latched(),
		RobotState:    protocol.StateReady,
		Trips:         s.Trips,
		Alarm:         s.Alarm,
		FrontDistance: s.Readings.Front.Value,
		RearDistance:  s.Readings.Rear.Value,
		GasLevel:      s.Readings.Gas.Value,
		Battery:       s.Readings.Battery.Value,
		MotorsActive:  !s.Achieved.IsZero(),
		Motors:        s.Achieved,
		Targets:       s.Targets,
		Counters: Counters{
			LinesIn:        s.Link.LinesIn,
			LinesOut:       s.Link.LinesOut,
			LinesDropped:   s.Link.LinesDropped,
			WriteErrors:    s.Link.WriteErrors,
			DecodeErrors:   s.DecodeErrors,
			Ignored:        s.Ignored,
			Unknown:        s.Unknown,
			OutputErrors:   s.OutputErrors,
			Panics:         s.Panics,
			MailboxDropped: s.MailboxDropped,
		},
	}
	if st.Emergency {
		st.RobotState = protocol.StateEmergency
		st.EmergencyCause = s.Cause.String()
		st.EmergencyReason = s.Reason
		st.EmergencySince = s.Since
	}
	for _, p := range s.PeerList() {
		st.Peers = append(st.Peers, PeerStatus{
			Name:      p.Name,
			Connected: p.Connected,
			LastSeen:  p.LastSeen,
			Frames:    p.Frames,
			Emergency: p.Emergency,
		})
	}
	return st
}

// NewDevices builds the device document from a snapshot
func NewDevices(s core.Snapshot) Devices {
	d := Devices{
		Type:       protocol.TypeDevices,
		Devices:    map[string]bool{s.Source: true},
		Heartbeats: map[string]uint32{},
	}
	for _, p := range s.PeerList() {
		d.Devices[p.Name] = p.Connected
		if p.Connected {
			d.Heartbeats[p.Name] = s.Time - p.LastSeen
		}
	}
	return d
}

// NewMotorReport builds the motor document from a snapshot
func NewMotorReport(s core.Snapshot) MotorReport {
	return MotorReport{
		FrontLeft:   s.Achieved[protocol.FrontLeft],
		FrontRight:  s.Achieved[protocol.FrontRight],
		CenterLeft:  s.Achieved[protocol.CenterLeft],
		CenterRight: s.Achieved[protocol.CenterRight],
		Emergency:   s.Latched(),
	}
}
