package model

// EventKind discriminates what a connection transmits and what a target
// has to be able to receive.
type EventKind int

const (
	// SpikeEvent is the primary event kind: a single spike with weight
	// and delay, the hot path of the simulation.
	SpikeEvent EventKind = iota
	// RateEvent is a secondary event kind carrying a continuous payload.
	RateEvent
	// ModulatoryEvent drives plasticity-triggered weight updates.
	ModulatoryEvent
)

func (k EventKind) String() string {
	switch k {
	case SpikeEvent:
		return "spike"
	case RateEvent:
		return "rate"
	case ModulatoryEvent:
		return "modulatory"
	default:
		return "unknown"
	}
}

// Event is what gets delivered to a target's event-handling entry point.
// Weight and DelaySteps are stamped by the delivering connection.
type Event struct {
	Kind       EventKind
	Receptor   int
	Sender     GlobalID
	Weight     float64
	DelaySteps Steps
	// Payload carries the samples of a secondary (rate) event; nil for
	// plain spikes.
	Payload []float64
}
