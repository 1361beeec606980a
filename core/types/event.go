package types

// Event represents a typed event emitted during state transitions.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Copy returns a detached copy safe to hand to subscribers.
func (e *Event) Copy() *Event {
	if e == nil {
		return nil
	}
	clone := &Event{Type: e.Type}
	if len(e.Attributes) > 0 {
		clone.Attributes = make(map[string]string, len(e.Attributes))
		for key, value := range e.Attributes {
			clone.Attributes[key] = value
		}
	}
	return clone
}
