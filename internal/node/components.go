package node

import (
	"fmt"

	"synaptor/internal/model"
)

// LIFNeuron is a minimal leaky integrate-and-fire stand-in used by the
// CLI builder and by tests. It accepts spikes on any receptor below
// MaxReceptor and rate events on receptor 0.
type LIFNeuron struct {
	gid         model.GlobalID
	MaxReceptor int
	Received    []model.Event
}

func NewLIFNeuron(gid model.GlobalID) *LIFNeuron {
	return &LIFNeuron{gid: gid, MaxReceptor: 1}
}

func (n *LIFNeuron) GID() model.GlobalID { return n.gid }

func (n *LIFNeuron) AcceptsEvent(kind model.EventKind, receptor int) error {
	switch kind {
	case model.SpikeEvent:
		if receptor < 0 || receptor >= n.MaxReceptor {
			return fmt.Errorf("%w: neuron %d has no receptor %d", ErrReceptor, n.gid, receptor)
		}
		return nil
	case model.RateEvent:
		if receptor != 0 {
			return fmt.Errorf("%w: neuron %d takes rate input on receptor 0 only", ErrReceptor, n.gid)
		}
		return nil
	default:
		return fmt.Errorf("%w: neuron %d rejects %s events", ErrReceptor, n.gid, kind)
	}
}

func (n *LIFNeuron) Deliver(ev model.Event) {
	n.Received = append(n.Received, ev)
}

func (n *LIFNeuron) HasInputRouting() bool { return true }

// SpikeRecorder is a device target: it has no input routing and takes
// any primary event.
type SpikeRecorder struct {
	gid      model.GlobalID
	Received []model.Event
}

func NewSpikeRecorder(gid model.GlobalID) *SpikeRecorder {
	return &SpikeRecorder{gid: gid}
}

func (r *SpikeRecorder) GID() model.GlobalID { return r.gid }

func (r *SpikeRecorder) AcceptsEvent(kind model.EventKind, _ int) error {
	if kind != model.SpikeEvent {
		return fmt.Errorf("%w: recorder %d records spikes only", ErrReceptor, r.gid)
	}
	return nil
}

func (r *SpikeRecorder) Deliver(ev model.Event) {
	r.Received = append(r.Received, ev)
}

func (r *SpikeRecorder) HasInputRouting() bool { return false }

// SpikeGenerator is a device source: it emits spikes into the network
// and never receives.
type SpikeGenerator struct {
	gid model.GlobalID
}

func NewSpikeGenerator(gid model.GlobalID) *SpikeGenerator {
	return &SpikeGenerator{gid: gid}
}

func (g *SpikeGenerator) GID() model.GlobalID { return g.gid }

func (g *SpikeGenerator) AcceptsEvent(kind model.EventKind, _ int) error {
	return fmt.Errorf("%w: generator %d does not receive events", ErrReceptor, g.gid)
}

func (g *SpikeGenerator) Deliver(model.Event) {}

func (g *SpikeGenerator) HasInputRouting() bool { return false }
