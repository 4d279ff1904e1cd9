package httpclient

// State is a phase of a single call's lifecycle.
type State int

const (
	StateIdle State = iota
	StateSending
	StateAwaitingBackoff
	StateRefreshing
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateAwaitingBackoff:
		return "awaiting_backoff"
	case StateRefreshing:
		return "refreshing"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Observer is notified on every state transition of a call.
type Observer func(callID string, from, to State)
