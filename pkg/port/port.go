// Package port holds the definition of a captured signal line
package port

// EventType indicates the type of change to the line level.
type EventType int

const (
	_ EventType = iota
	// RisingEdge indicates a low to high transition.
	RisingEdge
	// FallingEdge indicates a high to low transition.
	FallingEdge
)

// String returns the edge name.
func (t EventType) String() string {
	switch t {
	case RisingEdge:
		return "rising"
	case FallingEdge:
		return "falling"
	default:
		return "unknown"
	}
}

// Event is a single transition of the line.
type Event struct {
	// Sample is the sample number at which the transition was detected.
	Sample uint64
	// The type of state change event this structure represents.
	Type EventType
}

// Level returns the line level after the transition.
func (e Event) Level() Level {
	if e.Type == RisingEdge {
		return High
	}
	return Low
}

// Level is the state of the line.
type Level int

const (
	// Low indicates a low line level.
	Low Level = 0
	// High indicates a high line level.
	High Level = 1
)

// Invert returns the opposite level.
func (l Level) Invert() Level {
	if l == High {
		return Low
	}
	return High
}

// Edge returns the event type of a transition ending at level l.
func (l Level) Edge() EventType {
	if l == High {
		return RisingEdge
	}
	return FallingEdge
}

func (l Level) String() string {
	if l == High {
		return "high"
	}
	return "low"
}
