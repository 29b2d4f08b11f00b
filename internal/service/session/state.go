package session

import "fmt"

// State is the connection state of a session.
//
// Transitions:
//
//	IDLE ──Connect()──→ CONNECTING ──ok──→ CONNECTED ──Disconnect()/close──→ IDLE
//	                        │
//	                        └──failure──→ ERROR (resting state, Connect may retry)
//	                        └──Disconnect()──→ IDLE
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// live reports whether a transport session exists in this state.
func (s State) live() bool {
	return s == StateConnecting || s == StateConnected
}

// Status is a point-in-time view of the connection.
type Status struct {
	IsConnected  bool `json:"isConnected"`
	IsConnecting bool `json:"isConnecting"`
	HasSession   bool `json:"hasSession"`
}
