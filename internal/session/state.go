package session

// CallState is the lifecycle position of one session. States only move
// forward: Idle → Connecting → Active → Finished.
type CallState int

const (
	// StateIdle is the initial state; no call has been requested.
	StateIdle CallState = iota

	// StateConnecting means a call was requested and the engine has not yet
	// confirmed it.
	StateConnecting

	// StateActive means the engine reported call-start.
	StateActive

	// StateFinished is terminal for the machine.
	StateFinished
)

// String returns the lower-case name of the state.
func (s CallState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name so snapshots read well as JSON.
func (s CallState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
