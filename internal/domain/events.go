package domain

// EventType identifies an Event sent to subscribers.
type EventType string

const (
	EventState     EventType = "state"
	EventTick      EventType = "tick"
	EventCompleted EventType = "completed"
	EventReset     EventType = "reset"
	// EventError reports a failure no request was waiting for, such as the
	// countdown failing to persist. Err carries the cause.
	EventError EventType = "error"
)

// TickStatus is the countdown as seen by a subscriber.
type TickStatus struct {
	Remaining  int  `json:"remaining"`
	Total      int  `json:"total"`
	RunningLow bool `json:"runningLow"`
}

// Event is broadcast to session subscribers on every observable change.
type Event struct {
	Type   EventType   `json:"type"`
	Phase  Phase       `json:"phase"`
	Tick   *TickStatus `json:"tick,omitempty"`
	Forced bool        `json:"forced,omitempty"`
	Err    error       `json:"-"`
}
