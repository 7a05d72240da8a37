package state

// EventKind is one of the four event channels an engine exposes.
type EventKind int

const (
	// EventNew fires once when an entity is first observed.
	EventNew EventKind = iota
	// EventStopped fires once when an entity's grace period expires.
	EventStopped
	// EventUpdate fires once per completed cycle with the full sorted
	// snapshot.
	EventUpdate
	// EventError fires when a cycle fails to complete; the engine keeps
	// scheduling cycles regardless.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventNew:
		return "new"
	case EventStopped:
		return "stopped"
	case EventUpdate:
		return "update"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is delivered to listeners. Entity is set for new/stopped,
// Snapshot for update, Err for error.
type Event struct {
	Kind     EventKind
	Entity   Entity
	Snapshot []Entity
	Err      error
}

// Listener receives engine events. Listeners are invoked synchronously
// outside the engine lock and must not call back into the engine from
// the callback.
type Listener func(Event)
