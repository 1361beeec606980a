package events

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// EmitterFunc adapts a plain function to the Emitter interface.
type EmitterFunc func(Event)

// Emit implements the Emitter interface.
func (f EmitterFunc) Emit(evt Event) {
	if f != nil {
		f(evt)
	}
}

// Sinks fans each event out to every attached emitter, in order. Nil entries
// are skipped so callers can wire sinks conditionally.
type Sinks []Emitter

// Emit implements the Emitter interface.
func (s Sinks) Emit(evt Event) {
	for _, sink := range s {
		if sink != nil {
			sink.Emit(evt)
		}
	}
}
