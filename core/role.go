package core

import (
	"errors"

	"nightfall/protocol"
)

// RoleKind selects which side of the serial link a node is on
type RoleKind uint8

const (
	RoleMaster RoleKind = iota
	RoleSlave
)

func (k RoleKind) String() string {
	if k == RoleSlave {
		return "slave"
	}
	return "master"
}

// ParseRole converts a config string into a RoleKind
func ParseRole(s string) (RoleKind, error) {
	switch s {
	case "master", "rear":
		return RoleMaster, nil
	case "slave", "front":
		return RoleSlave, nil
	}
	return RoleMaster, errors.New("unknown role: " + s)
}

// Role describes what a node does each loop iteration
type Role struct {
	Kind   RoleKind
	Source string // Name used in heartbeats and telemetry

	// Upstream is the peer whose drive traffic this node depends on.
	// Every valid link frame refreshes it.
	Upstream string

	Sensing   bool // Reads sensors and evaluates the arbiter
	Forward   bool // Sends drive frames and safety commands over the link
	Heartbeat bool // Sends heartbeats over the link
}

// MasterRole is the rear controller: sensors, arbitration, forwarding
func MasterRole() Role {
	return Role{
		Kind:    RoleMaster,
		Source:  protocol.SourceRear,
		Sensing: true,
		Forward: true,
	}
}

// SlaveRole is the front controller: executes drive frames from the master
func SlaveRole() Role {
	return Role{
		Kind:      RoleSlave,
		Source:    protocol.SourceFront,
		Upstream:  protocol.SourceRear,
		Heartbeat: true,
	}
}

// RoleFor returns the stock role for kind
func RoleFor(kind RoleKind) Role {
	if kind == RoleSlave {
		return SlaveRole()
	}
	return MasterRole()
}

// DefaultPeers returns the peers a role tracks out of the box
func DefaultPeers(kind RoleKind) []PeerConfig {
	if kind == RoleSlave {
		return []PeerConfig{
			{Name: protocol.SourceRear, Timeout: 1000, Required: true},
		}
	}
	return []PeerConfig{
		{Name: protocol.SourceFront, Timeout: 5000, PropagateEmergency: true},
		{Name: protocol.SourceCamera, Timeout: 5000},
	}
}

// DriveProfile holds the speed each control command maps to
type DriveProfile struct {
	Forward  int
	Backward int // Negative
	Turn     int // Magnitude; the inner side runs at -Turn
	Climb    int
	Test     int
	RampStep int // Max change per iteration, 0 disables ramping
}

// DefaultDriveProfile returns the stock speeds
func DefaultDriveProfile() DriveProfile {
	return DriveProfile{
		Forward:  150,
		Backward: -150,
		Turn:     100,
		Climb:    200,
		Test:     100,
		RampStep: 5,
	}
}

// LoopConfig is everything the control loop needs besides hardware
type LoopConfig struct {
	Role Role

	SensorInterval    uint32 // ms
	HeartbeatInterval uint32 // ms
	TelemetryInterval uint32 // ms
	ForwardInterval   uint32 // ms

	Thresholds Thresholds
	Warning    WarningPolicy
	Reset      ResetPolicy
	Missing    protocol.MissingPolicy
	Profile    DriveProfile
	Peers      []PeerConfig
}

// DefaultLoopConfig returns the stock configuration for kind
func DefaultLoopConfig(kind RoleKind) LoopConfig {
	return LoopConfig{
		Role:              RoleFor(kind),
		SensorInterval:    100,
		HeartbeatInterval: 1000,
		TelemetryInterval: 500,
		ForwardInterval:   50,
		Thresholds:        DefaultThresholds(),
		Profile:           DefaultDriveProfile(),
		Peers:             DefaultPeers(kind),
	}
}
