package session

// State is the lifecycle position of a Driver.
type State string

const (
	StateIdle       State = "idle"
	StateEntering   State = "entering"
	StateListening  State = "listening"
	StateResponding State = "responding"
	StateExiting    State = "exiting"
	StateTerminated State = "terminated"
)

