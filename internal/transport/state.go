package transport

// State is the push-channel connection state. The adapter owns the single
// authoritative value; consumers poll it via Adapter.State.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	// StateError means the reconnect budget was exhausted. It holds until an
	// explicit Connect call starts a fresh cycle.
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
