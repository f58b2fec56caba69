package controller

// State is the UI state of a page session.
type State int

const (
	// StateIdle means no request is in flight and the submit control is usable.
	StateIdle State = iota
	// StateSubmitting means a request was issued and no chunk has arrived yet.
	StateSubmitting
	// StateDisplaying means at least one chunk has been appended to the output region.
	StateDisplaying
	// StateError means the last request failed and the failure message is shown.
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateDisplaying:
		return "displaying"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
