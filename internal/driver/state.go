package driver

// State is the lifecycle of a run: Idle → Configured → Running → Complete.
// Configure moves any state back to Configured.
type State int

const (
	StateIdle State = iota
	StateConfigured
	StateRunning
	StateComplete
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so states read well in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
