package state

import "fmt"

// Status is the observed lifecycle state of one port entry.
//
// Idle -> Connecting -> Active -> (Stopped | Failed), and both terminal
// states return to Connecting when the user toggles the entry again.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusActive
	StatusStopped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "Idle"
	case StatusConnecting:
		return "Connecting"
	case StatusActive:
		return "Active"
	case StatusStopped:
		return "Stopped"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Entry identifies one exposed service port from the namespace
// snapshot. The protocol is part of the identity: a service may expose
// the same port number over both TCP and UDP. Immutable for the
// process lifetime.
type Entry struct {
	Service    string
	RemotePort int32
	Label      string
	Protocol   string
}

// Key returns the table key for the entry.
func (e Entry) Key() string {
	return fmt.Sprintf("%s:%d/%s", e.Service, e.RemotePort, e.Protocol)
}
