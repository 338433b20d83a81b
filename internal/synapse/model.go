// Package synapse defines the registered connection models and the
// immutable registry that maps model names to storage indices.
package synapse

import (
	"errors"

	"synaptor/internal/model"
)

var (
	ErrModelNotFound = errors.New("synapse model not found")
	ErrBadParameter  = errors.New("bad synapse parameter")
)

// Unlabeled marks a connection that carries no label.
const Unlabeled int64 = -1

// State is the per-connection record held in connection storage. Aux is
// model-specific extra state with a layout fixed by the owning Model.
type State struct {
	Weight float64
	Delay  model.Steps
	Label  int64
	Aux    []float64
}

// Model defines one registered synapse type: its defaults, its event
// semantics and the codec for per-connection state.
type Model interface {
	Name() string
	// EventKind is what connections of this type transmit; targets are
	// capability-checked against it before a connection is committed.
	EventKind() model.EventKind
	// Primary reports whether the event kind rides the primary (spike)
	// delivery path. Secondary types are served by SendSecondary.
	Primary() bool
	SupportsLabel() bool
	// Triggered reports whether connections of this type register with
	// their emitter for weight-update broadcasts.
	Triggered() bool

	DefaultWeight() float64
	DefaultDelayMS() float64

	// NewState builds the per-connection record. Weight and delay have
	// already been resolved against the defaults; the model validates
	// label usage and its Extra fields.
	NewState(weight float64, delay model.Steps, p Params) (State, error)

	// StatusMap renders one connection's state as a key-value record.
	StatusMap(s State, tb model.TimeBase) map[string]any

	// ApplyStatus updates mutable state fields from a key-value record.
	// Delay is excluded here: delay changes are range-checked and applied
	// by the connection manager.
	ApplyStatus(s *State, status map[string]any) error

	// TriggerUpdate applies a batch of timestamped modulatory event
	// counts to one connection. Only meaningful for Triggered models.
	TriggerUpdate(s *State, events []model.TimedCount, nowMS float64)
}
