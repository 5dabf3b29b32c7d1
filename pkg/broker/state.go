package broker

// State is the lifecycle state of a single broker connection.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateInitialized
	StateConnected
	StateRunning
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateInitialized:
		return "initialized"
	case StateConnected:
		return "connected"
	case StateRunning:
		return "running"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
