package manager

import (
	"context"
	"fmt"

	"synaptor/internal/delay"
	"synaptor/internal/exchange"
	"synaptor/internal/model"
)

// SortConnections arranges every thread/type array into the canonical
// order (ascending source global id, ties by receiving local id),
// permuting the source table in lockstep. All cached lcids are
// invalidated. Device storage is untouched: its routing entries hold
// live lcids that a re-sort would break, and device delivery never
// traverses by source.
func (m *Manager) SortConnections() error {
	for tid := 0; tid < m.Threads(); tid++ {
		t := model.ThreadID(tid)
		if m.sourceTable.IsCleared(t) {
			return fmt.Errorf("source table on thread %d was discarded; cannot sort", tid)
		}
		for syn := 0; syn < m.synapses.Len(); syn++ {
			idx := model.SynIndex(syn)
			c, ok := m.storage.Connector(t, idx)
			if !ok {
				continue
			}
			col := m.sourceTable.Column(t, idx)
			if err := c.SortLockstep(col); err != nil {
				return err
			}
			if err := m.sourceTable.SetColumn(t, idx, col); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manager) sourceOwner(gid model.GlobalID) (model.Rank, model.ThreadID, model.LocalID, bool) {
	loc, ok := m.nodes.Owner(gid)
	if !ok || loc.Device {
		return 0, 0, 0, false
	}
	return loc.Rank, loc.Thread, loc.LID, true
}

// ResolveTargets runs the bounded multi-round exchange that transfers
// the target-known routing data to each connection's source side. It is
// a synchronous, barrier-style collective: every rank must call it, and
// it either drains completely or the network build is incomplete.
func (m *Manager) ResolveTargets(ctx context.Context) error {
	if err := m.SortConnections(); err != nil {
		return err
	}
	for tid := 0; tid < m.Threads(); tid++ {
		t := model.ThreadID(tid)
		if err := m.targetTable.Prepare(t, m.nodes.LocalCount(t)); err != nil {
			return err
		}
		m.sourceTable.ResetEntryPoint(t)
	}

	drained := false
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		send := make([]exchange.Batch, m.numRanks)
		roundDrained := true
		if !drained {
			var err error
			roundDrained, err = m.fillRound(send)
			if err != nil {
				return err
			}
		}
		selfComplete := drained || roundDrained
		for r := range send {
			send[r].Complete = selfComplete
		}

		recv, err := m.transport.ExchangeTargetData(ctx, m.rank, send)
		if err != nil {
			return err
		}
		allComplete := selfComplete
		for _, batch := range recv {
			for _, td := range batch.Data {
				if err := m.addTarget(td); err != nil {
					return err
				}
			}
			allComplete = allComplete && batch.Complete
		}
		drained = selfComplete
		if allComplete {
			break
		}
	}

	if !m.keepSourceTable {
		for tid := 0; tid < m.Threads(); tid++ {
			m.sourceTable.Clear(model.ThreadID(tid))
		}
	}
	m.haveChanged = false
	return nil
}

// fillRound packs pending routing records into the per-peer batches,
// resuming each thread from its checkpoint. A record that would not fit
// is retracted whole and deferred; it reports whether every thread
// reached the end of its staging table.
func (m *Manager) fillRound(send []exchange.Batch) (bool, error) {
	drained := true
	for tid := 0; tid < m.Threads(); tid++ {
		t := model.ThreadID(tid)
		m.sourceTable.RestoreEntryPoint(t)
		for {
			td, destRank, ok, err := m.sourceTable.NextTargetData(t, 0, model.Rank(m.numRanks), m.sourceOwner)
			if err != nil {
				return false, fmt.Errorf("%w: %v", exchange.ErrProtocolInvariant, err)
			}
			if !ok {
				break
			}
			if len(send[destRank].Data) >= m.bufferCap {
				m.sourceTable.RejectLast(t)
				drained = false
				break
			}
			send[destRank].Data = append(send[destRank].Data, td)
		}
		m.sourceTable.SaveEntryPoint(t)
	}
	return drained, nil
}

// addTarget files one received routing record under the local source
// neuron it describes. Receiving a record that cannot be placed is an
// unrecoverable mismatch between ranks' tables.
func (m *Manager) addTarget(td model.TargetData) error {
	if int(td.SourceThread) < 0 || int(td.SourceThread) >= m.Threads() {
		return fmt.Errorf("%w: record for thread %d of %d", exchange.ErrProtocolInvariant, td.SourceThread, m.Threads())
	}
	if int(td.SourceLID) >= m.nodes.LocalCount(td.SourceThread) {
		return fmt.Errorf("%w: record for local id %d beyond %d neurons on thread %d",
			exchange.ErrProtocolInvariant, td.SourceLID, m.nodes.LocalCount(td.SourceThread), td.SourceThread)
	}
	if err := m.targetTable.Add(td.SourceThread, td.SourceLID, td.Target); err != nil {
		return fmt.Errorf("%w: %v", exchange.ErrProtocolInvariant, err)
	}
	return nil
}

// UpdateDelayExtrema folds every thread's delay tracker and every
// storage array into the global [min_delay, max_delay]. Operator-pinned
// bounds win; observed values outside them are an error.
func (m *Manager) UpdateDelayExtrema() error {
	ranges := m.storage.DelayRanges()
	ranges = append(ranges, m.devTo.DelayRanges()...)
	ranges = append(ranges, m.devFrom.DelayRanges()...)
	min, max, ok := delay.Fold(m.checkers, ranges...)

	if m.userSet {
		pmin, pmax, _ := m.checkers[0].Pinned()
		if ok && (min < pmin || max > pmax) {
			return fmt.Errorf("%w: observed [%d, %d] outside pinned [%d, %d]",
				delay.ErrDelayRange, min, max, pmin, pmax)
		}
		m.minDelay, m.maxDelay = pmin, pmax
		return nil
	}
	if ok {
		m.minDelay, m.maxDelay = min, max
	}
	return nil
}

// MinDelay bounds how far ranks may advance before synchronizing.
func (m *Manager) MinDelay() model.Steps { return m.minDelay }

func (m *Manager) MaxDelay() model.Steps { return m.maxDelay }

func (m *Manager) UserSetDelayExtrema() bool { return m.userSet }

// pinDelayExtrema installs operator bounds on every thread's tracker.
func (m *Manager) pinDelayExtrema(minMS, maxMS float64) error {
	minSteps, err := m.timeBase.DelaySteps(minMS)
	if err != nil {
		return err
	}
	maxSteps, err := m.timeBase.DelaySteps(maxMS)
	if err != nil {
		return err
	}
	for _, c := range m.checkers {
		if err := c.SetBounds(minSteps, maxSteps); err != nil {
			return err
		}
	}
	m.userSet = true
	m.minDelay, m.maxDelay = minSteps, maxSteps
	return nil
}

// Calibrate rebases every stored delay and all trackers after a
// time-resolution change and rebuilds the extrema.
func (m *Manager) Calibrate(tc model.TimeConverter) error {
	if err := tc.New.Validate(); err != nil {
		return err
	}
	m.storage.RebaseDelays(tc)
	m.devTo.RebaseDelays(tc)
	m.devFrom.RebaseDelays(tc)
	for _, c := range m.checkers {
		c.Rebase(tc)
	}
	m.minDelay = tc.ConvertSteps(m.minDelay)
	m.maxDelay = tc.ConvertSteps(m.maxDelay)
	m.timeBase = tc.New
	return m.UpdateDelayExtrema()
}

// RestructureTables rebuilds the routing tables wholesale, e.g. after
// structural plasticity. Connect and send activity on all threads must
// be quiesced first. The staging table must still be present.
func (m *Manager) RestructureTables() error {
	for tid := 0; tid < m.Threads(); tid++ {
		t := model.ThreadID(tid)
		if m.sourceTable.IsCleared(t) {
			return fmt.Errorf("source table on thread %d was discarded; cannot restructure", tid)
		}
	}
	for tid := 0; tid < m.Threads(); tid++ {
		t := model.ThreadID(tid)
		m.targetTable.Clear(t)
		m.sourceTable.ResetEntryPoint(t)
	}
	m.haveChanged = true
	return nil
}

// TriggerUpdateWeight broadcasts a batch of timestamped modulatory
// event counts to the connections of triggered synapse types registered
// with one emitting neuron. Only those connectors are visited.
func (m *Manager) TriggerUpdateWeight(emitter model.GlobalID, events []model.TimedCount, nowMS float64) error {
	sites, ok := m.triggers[emitter]
	if !ok {
		return nil
	}
	for site := range sites {
		if m.sourceTable.IsCleared(site.tid) {
			return fmt.Errorf("source table on thread %d was discarded; cannot match emitter %d", site.tid, emitter)
		}
		c, ok := m.storage.Connector(site.tid, site.syn)
		if !ok {
			continue
		}
		mdl := c.Model()
		for lcid := model.LCID(0); int(lcid) < c.Len(); lcid++ {
			src, ok := m.sourceTable.SourceGID(site.tid, site.syn, lcid)
			if !ok || src != emitter {
				continue
			}
			st, err := c.State(lcid)
			if err != nil {
				return err
			}
			mdl.TriggerUpdate(st, events, nowMS)
		}
	}
	return nil
}
