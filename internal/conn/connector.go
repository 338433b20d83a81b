// Package conn holds the per-thread, per-synapse-type dense arrays of
// connection records and their incremental counters. Records live on the
// thread owning the target neuron; the presynaptic half of the routing
// information lives in the source table, lcid-aligned with these arrays.
package conn

import (
	"errors"
	"fmt"
	"sort"

	"synaptor/internal/delay"
	"synaptor/internal/model"
	"synaptor/internal/synapse"
)

var ErrNotFound = errors.New("connection not found")

// Connector is the dense storage of one synapse type on one thread.
// Grouping records by type keeps event dispatch free of per-record
// model lookups.
type Connector struct {
	syn        model.SynIndex
	mdl        synapse.Model
	states     []synapse.State
	targetLIDs []model.LocalID
}

func newConnector(syn model.SynIndex, mdl synapse.Model) *Connector {
	return &Connector{syn: syn, mdl: mdl}
}

func (c *Connector) Model() synapse.Model { return c.mdl }

func (c *Connector) Len() int { return len(c.states) }

func (c *Connector) append(s synapse.State, target model.LocalID) model.LCID {
	c.states = append(c.states, s)
	c.targetLIDs = append(c.targetLIDs, target)
	return model.LCID(len(c.states) - 1)
}

func (c *Connector) State(lcid model.LCID) (*synapse.State, error) {
	if int(lcid) >= len(c.states) {
		return nil, fmt.Errorf("%w: lcid %d of %d", ErrNotFound, lcid, len(c.states))
	}
	return &c.states[lcid], nil
}

// TargetLID is the reverse lookup from a local connection index to the
// receiving neuron's local id.
func (c *Connector) TargetLID(lcid model.LCID) (model.LocalID, error) {
	if int(lcid) >= len(c.targetLIDs) {
		return 0, fmt.Errorf("%w: lcid %d of %d", ErrNotFound, lcid, len(c.targetLIDs))
	}
	return c.targetLIDs[lcid], nil
}

func (c *Connector) DelayRange() (delay.Range, bool) {
	if len(c.states) == 0 {
		return delay.Range{}, false
	}
	r := delay.Range{Min: c.states[0].Delay, Max: c.states[0].Delay}
	for _, s := range c.states[1:] {
		if s.Delay < r.Min {
			r.Min = s.Delay
		}
		if s.Delay > r.Max {
			r.Max = s.Delay
		}
	}
	return r, true
}

// removeSwap deletes one record by moving the last record into its slot.
// The displaced record's lcid changes, like after a sort.
func (c *Connector) removeSwap(lcid model.LCID) error {
	n := len(c.states)
	if int(lcid) >= n {
		return fmt.Errorf("%w: lcid %d of %d", ErrNotFound, lcid, n)
	}
	c.states[lcid] = c.states[n-1]
	c.targetLIDs[lcid] = c.targetLIDs[n-1]
	c.states = c.states[:n-1]
	c.targetLIDs = c.targetLIDs[:n-1]
	return nil
}

// SortLockstep arranges the records into the canonical order — ascending
// source global id, ties broken by ascending receiving local id — and
// permutes the caller's lcid-aligned source slice the same way. The sort
// is stable, so applying it twice yields the same order as once. All
// cached lcids are invalidated.
func (c *Connector) SortLockstep(sources []model.GlobalID) error {
	if len(sources) != len(c.states) {
		return fmt.Errorf("source column length %d does not match %d connections", len(sources), len(c.states))
	}
	perm := make([]int, len(c.states))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool {
		i, j := perm[a], perm[b]
		if sources[i] != sources[j] {
			return sources[i] < sources[j]
		}
		return c.targetLIDs[i] < c.targetLIDs[j]
	})

	states := make([]synapse.State, len(c.states))
	targets := make([]model.LocalID, len(c.targetLIDs))
	srcs := make([]model.GlobalID, len(sources))
	for pos, i := range perm {
		states[pos] = c.states[i]
		targets[pos] = c.targetLIDs[i]
		srcs[pos] = sources[i]
	}
	copy(c.states, states)
	copy(c.targetLIDs, targets)
	copy(sources, srcs)
	return nil
}

func (c *Connector) rebaseDelays(tc model.TimeConverter) {
	for i := range c.states {
		c.states[i].Delay = tc.ConvertSteps(c.states[i].Delay)
	}
}
