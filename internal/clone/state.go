package clone

// State is a step of the clone protocol.
type State int

const (
	StateIdle State = iota
	StateCreateAttempted
	StateCreated
	StateCollisionHandling
	StateDumpRestoreInFlight
	StateCompleted
	StateFailed
)

var stateNames = [...]string{
	StateIdle:                "idle",
	StateCreateAttempted:     "create-attempted",
	StateCreated:             "created",
	StateCollisionHandling:   "collision-handling",
	StateDumpRestoreInFlight: "dump-restore-in-flight",
	StateCompleted:           "completed",
	StateFailed:              "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
