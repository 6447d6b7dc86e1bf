package device

// LoopState tracks where the receive loop is in its iteration.
type LoopState int32

const (
	StateReady LoopState = iota
	StateReceiving
	StateProcessing
	StateRestart
	StateStopped
)

func (s LoopState) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateReceiving:
		return "RECEIVING"
	case StateProcessing:
		return "PROCESSING"
	case StateRestart:
		return "RESTART"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// ExitReason records why Loop.Run returned.
type ExitReason int

const (
	ExitReset ExitReason = iota + 1
	ExitFatal
	ExitEndOfSession
)

func (r ExitReason) String() string {
	switch r {
	case ExitReset:
		return "reset"
	case ExitFatal:
		return "fatal"
	case ExitEndOfSession:
		return "end_of_session"
	default:
		return "unknown"
	}
}

// Exit is the loop's terminal result. Err is nil for end-of-session.
type Exit struct {
	Reason ExitReason
	Err    error
}
