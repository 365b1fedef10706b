package realtime

// State is the connection state of the manager.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is the observable connection status. A copy is passed to every
// status listener after each transition, so listeners never see a
// half-applied state.
type Status struct {
	State             State
	ReconnectAttempts int
	FallbackActive    bool
}
