package relayclient

import "encoding/json"

// Role selects which relay endpoint and message subset the client uses.
type Role int

const (
	// RoleAgent registers on connect and receives pairing codes.
	RoleAgent Role = iota

	// RoleClient redeems pairing codes and may re-pair after loss.
	RoleClient
)

// String returns the string representation of the role.
func (r Role) String() string {
	switch r {
	case RoleAgent:
		return "agent"
	case RoleClient:
		return "client"
	default:
		return "unknown"
	}
}

// State is the connection state of a Client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StatePaired
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StatePaired:
		return "paired"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *State) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	switch name {
	case "connecting":
		*s = StateConnecting
	case "connected":
		*s = StateConnected
	case "paired":
		*s = StatePaired
	default:
		*s = StateDisconnected
	}
	return nil
}
