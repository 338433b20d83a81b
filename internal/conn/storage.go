package conn

import (
	"fmt"

	"synaptor/internal/delay"
	"synaptor/internal/model"
	"synaptor/internal/synapse"
)

// Storage is the full connection store of one rank: threads × synapse
// types × dense record arrays, plus the per-thread-per-type counters
// that make aggregate counts O(types) instead of O(connections).
// Each thread's partition is owned exclusively by that thread.
type Storage struct {
	reg     *synapse.Registry
	threads []threadStorage
}

type threadStorage struct {
	connectors []*Connector // indexed by SynIndex; nil until first use
	counts     []uint64
}

func NewStorage(threads int, reg *synapse.Registry) (*Storage, error) {
	if threads <= 0 {
		return nil, fmt.Errorf("thread count must be > 0, got %d", threads)
	}
	if reg == nil {
		return nil, fmt.Errorf("synapse registry is required")
	}
	s := &Storage{reg: reg, threads: make([]threadStorage, threads)}
	for t := range s.threads {
		s.threads[t] = threadStorage{
			connectors: make([]*Connector, reg.Len()),
			counts:     make([]uint64, reg.Len()),
		}
	}
	return s, nil
}

func (s *Storage) Threads() int { return len(s.threads) }

func (s *Storage) valid(tid model.ThreadID, syn model.SynIndex) error {
	if int(tid) < 0 || int(tid) >= len(s.threads) {
		return fmt.Errorf("thread %d out of range", tid)
	}
	if syn < 0 || int(syn) >= s.reg.Len() {
		return fmt.Errorf("synapse index %d out of range", syn)
	}
	return nil
}

// Append stores one connection record and returns its lcid.
func (s *Storage) Append(tid model.ThreadID, syn model.SynIndex, st synapse.State, target model.LocalID) (model.LCID, error) {
	if err := s.valid(tid, syn); err != nil {
		return 0, err
	}
	ts := &s.threads[tid]
	if ts.connectors[syn] == nil {
		mdl, _ := s.reg.Model(syn)
		ts.connectors[syn] = newConnector(syn, mdl)
	}
	lcid := ts.connectors[syn].append(st, target)
	ts.counts[syn]++
	return lcid, nil
}

// Connector exposes the dense array of one (thread, type) pair; nil
// second return if nothing was ever stored there.
func (s *Storage) Connector(tid model.ThreadID, syn model.SynIndex) (*Connector, bool) {
	if err := s.valid(tid, syn); err != nil {
		return nil, false
	}
	c := s.threads[tid].connectors[syn]
	return c, c != nil
}

// Remove deletes one record by swap-with-last and decrements the
// counter. The caller must apply the same swap to its lcid-aligned
// source column.
func (s *Storage) Remove(tid model.ThreadID, syn model.SynIndex, lcid model.LCID) error {
	if err := s.valid(tid, syn); err != nil {
		return err
	}
	ts := &s.threads[tid]
	if ts.connectors[syn] == nil {
		return fmt.Errorf("%w: no %s connections on thread %d", ErrNotFound, s.synName(syn), tid)
	}
	if err := ts.connectors[syn].removeSwap(lcid); err != nil {
		return err
	}
	ts.counts[syn]--
	return nil
}

func (s *Storage) synName(syn model.SynIndex) string {
	if mdl, ok := s.reg.Model(syn); ok {
		return mdl.Name()
	}
	return fmt.Sprintf("syn#%d", syn)
}

// Count reports one thread/type counter.
func (s *Storage) Count(tid model.ThreadID, syn model.SynIndex) uint64 {
	if err := s.valid(tid, syn); err != nil {
		return 0
	}
	return s.threads[tid].counts[syn]
}

// CountOf sums one type's counters across threads.
func (s *Storage) CountOf(syn model.SynIndex) uint64 {
	var total uint64
	for t := range s.threads {
		if syn >= 0 && int(syn) < len(s.threads[t].counts) {
			total += s.threads[t].counts[syn]
		}
	}
	return total
}

// Total sums all counters; never a re-scan of the arrays.
func (s *Storage) Total() uint64 {
	var total uint64
	for t := range s.threads {
		for _, c := range s.threads[t].counts {
			total += c
		}
	}
	return total
}

// DelayRanges scans every array's delays for the extrema fold.
func (s *Storage) DelayRanges() []delay.Range {
	var ranges []delay.Range
	for t := range s.threads {
		for _, c := range s.threads[t].connectors {
			if c == nil {
				continue
			}
			if r, ok := c.DelayRange(); ok {
				ranges = append(ranges, r)
			}
		}
	}
	return ranges
}

// RebaseDelays converts every stored delay to a new time base.
func (s *Storage) RebaseDelays(tc model.TimeConverter) {
	for t := range s.threads {
		for _, c := range s.threads[t].connectors {
			if c != nil {
				c.rebaseDelays(tc)
			}
		}
	}
}
