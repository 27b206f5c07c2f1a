package player

// State is a playback lifecycle state. Transitions happen only on the
// orchestrator's event loop.
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateReady
	StatePlaying
	StateReconnecting
	StateError
)

var stateNames = map[State]string{
	StateIdle:         "idle",
	StatePreparing:    "preparing",
	StateReady:        "ready",
	StatePlaying:      "playing",
	StateReconnecting: "reconnecting",
	StateError:        "error",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}
