// Package node defines the interface the connectivity core requires from
// neuron and device objects, plus the directory that maps global ids to
// their owning (rank, thread, local id).
package node

import (
	"errors"

	"synaptor/internal/model"
)

var ErrReceptor = errors.New("event type not supported by target")

// Node is the contract a neuron or device exposes to the connectivity
// core. The capability check runs during connect, before a connection is
// committed; Deliver is the run-time event-handling entry point.
type Node interface {
	GID() model.GlobalID
	// AcceptsEvent reports whether events of the given kind on the given
	// receptor port apply to this node. A refusal wraps ErrReceptor.
	AcceptsEvent(kind model.EventKind, receptor int) error
	Deliver(ev model.Event)
	// HasInputRouting is false for device-like targets, which bypass the
	// multi-round resolution protocol and are routed locally.
	HasInputRouting() bool
}
