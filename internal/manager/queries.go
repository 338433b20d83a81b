package manager

import (
	"fmt"

	"synaptor/internal/conn"
	"synaptor/internal/model"
	"synaptor/internal/sourcetable"
	"synaptor/internal/status"
	"synaptor/internal/synapse"
)

// NumConnections is the total connection count of this rank, from the
// incremental counters only.
func (m *Manager) NumConnections() uint64 {
	return m.storage.Total() + m.devTo.Total() + m.devFrom.Total()
}

// NumConnectionsOf counts one synapse type across all threads.
func (m *Manager) NumConnectionsOf(synapseModel string) (uint64, error) {
	idx, _, err := m.synapses.Lookup(synapseModel)
	if err != nil {
		return 0, err
	}
	return m.storage.CountOf(idx) + m.devTo.CountOf(idx) + m.devFrom.CountOf(idx), nil
}

// resolveConnection addresses one connection record by its 5-tuple and
// verifies both endpoints. Zero matches is a not-found error; the
// coordinates cannot address more than one.
func (m *Manager) resolveConnection(sgid, tgid model.GlobalID, tid model.ThreadID, idx model.SynIndex) (*conn.Connector, func(model.LCID) bool, error) {
	if int(tid) < 0 || int(tid) >= m.Threads() {
		return nil, nil, fmt.Errorf("%w: thread %d out of range", conn.ErrNotFound, tid)
	}
	if m.sourceTable.IsCleared(tid) {
		return nil, nil, fmt.Errorf("source table on thread %d was discarded; rebuild with keep_source_table", tid)
	}
	c, ok := m.storage.Connector(tid, idx)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d -> %d", conn.ErrNotFound, sgid, tgid)
	}
	matches := func(lcid model.LCID) bool {
		src, ok := m.sourceTable.SourceGID(tid, idx, lcid)
		if !ok || src != sgid {
			return false
		}
		lid, err := c.TargetLID(lcid)
		if err != nil {
			return false
		}
		gid, ok := m.nodes.GIDOf(tid, lid)
		return ok && gid == tgid
	}
	return c, matches, nil
}

// GetSynapseStatus reads one connection addressed by (source, target,
// thread, synapse type, lcid).
func (m *Manager) GetSynapseStatus(sgid, tgid model.GlobalID, tid model.ThreadID, synapseModel string, lcid model.LCID) (map[string]any, error) {
	idx, mdl, err := m.synapses.Lookup(synapseModel)
	if err != nil {
		return nil, err
	}
	c, matches, err := m.resolveConnection(sgid, tgid, tid, idx)
	if err != nil {
		return nil, err
	}
	st, err := c.State(lcid)
	if err != nil {
		return nil, err
	}
	if !matches(lcid) {
		return nil, fmt.Errorf("%w: no %s connection %d -> %d at lcid %d on thread %d",
			conn.ErrNotFound, synapseModel, sgid, tgid, lcid, tid)
	}
	rec := mdl.StatusMap(*st, m.timeBase)
	rec["source"] = uint64(sgid)
	rec["target"] = uint64(tgid)
	return rec, nil
}

// SetSynapseStatus updates one connection. Delay changes are validated
// against the thread's tracker before anything is written; other fields
// go through the model's codec.
func (m *Manager) SetSynapseStatus(sgid, tgid model.GlobalID, tid model.ThreadID, synapseModel string, lcid model.LCID, rec map[string]any) error {
	idx, mdl, err := m.synapses.Lookup(synapseModel)
	if err != nil {
		return err
	}
	c, matches, err := m.resolveConnection(sgid, tgid, tid, idx)
	if err != nil {
		return err
	}
	st, err := c.State(lcid)
	if err != nil {
		return err
	}
	if !matches(lcid) {
		return fmt.Errorf("%w: no %s connection %d -> %d at lcid %d on thread %d",
			conn.ErrNotFound, synapseModel, sgid, tgid, lcid, tid)
	}

	if raw, ok := rec["delay_ms"]; ok {
		ms, ok := status.AsFloat64(raw)
		if !ok {
			return fmt.Errorf("%w: delay_ms must be numeric", synapse.ErrBadParameter)
		}
		steps, err := m.timeBase.DelaySteps(ms)
		if err != nil {
			return err
		}
		if err := m.checkers[tid].Observe(steps); err != nil {
			return err
		}
		st.Delay = steps
	}
	return mdl.ApplyStatus(st, rec)
}

// ConnFilter selects connections for GetConnections. A nil id set or
// empty synapse name matches everything on that axis.
type ConnFilter struct {
	Sources []model.GlobalID
	Targets []model.GlobalID
	Synapse string
	Label   synapse.OptionalInt
}

func idSet(ids []model.GlobalID) map[model.GlobalID]struct{} {
	if ids == nil {
		return nil
	}
	set := make(map[model.GlobalID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// GetConnections returns one record per connection on this rank
// matching the filter, including device connections.
func (m *Manager) GetConnections(f ConnFilter) ([]model.ConnInfo, error) {
	synFrom, synTo := 0, m.synapses.Len()
	if f.Synapse != "" {
		idx, _, err := m.synapses.Lookup(f.Synapse)
		if err != nil {
			return nil, err
		}
		synFrom, synTo = int(idx), int(idx)+1
	}
	sources := idSet(f.Sources)
	targets := idSet(f.Targets)

	var out []model.ConnInfo
	collect := func(storage *conn.Storage, srcTable *sourcetable.Table, targetGID func(model.ThreadID, model.LocalID) (model.GlobalID, bool), requireSources bool) error {
		for tid := 0; tid < m.Threads(); tid++ {
			t := model.ThreadID(tid)
			if requireSources && srcTable.IsCleared(t) {
				var staged uint64
				for syn := synFrom; syn < synTo; syn++ {
					staged += storage.Count(t, model.SynIndex(syn))
				}
				if staged == 0 {
					continue
				}
				return fmt.Errorf("source table on thread %d was discarded; rebuild with keep_source_table", tid)
			}
			for syn := synFrom; syn < synTo; syn++ {
				idx := model.SynIndex(syn)
				c, ok := storage.Connector(t, idx)
				if !ok {
					continue
				}
				mdl := c.Model()
				for lcid := model.LCID(0); int(lcid) < c.Len(); lcid++ {
					src, ok := srcTable.SourceGID(t, idx, lcid)
					if !ok {
						return fmt.Errorf("source table on thread %d was discarded; rebuild with keep_source_table", tid)
					}
					if sources != nil {
						if _, ok := sources[src]; !ok {
							continue
						}
					}
					lid, err := c.TargetLID(lcid)
					if err != nil {
						return err
					}
					tgid, ok := targetGID(t, lid)
					if !ok {
						return fmt.Errorf("%w: receiver %d on thread %d", ErrUnknownNode, lid, tid)
					}
					if targets != nil {
						if _, ok := targets[tgid]; !ok {
							continue
						}
					}
					st, err := c.State(lcid)
					if err != nil {
						return err
					}
					if f.Label.Valid && st.Label != f.Label.Value {
						continue
					}
					out = append(out, model.ConnInfo{
						Source:  src,
						Target:  tgid,
						Thread:  t,
						Synapse: mdl.Name(),
						LCID:    lcid,
						Weight:  st.Weight,
						DelayMS: m.timeBase.MS(st.Delay),
					})
				}
			}
		}
		return nil
	}

	if err := collect(m.storage, m.sourceTable, m.nodes.GIDOf, true); err != nil {
		return nil, err
	}
	deviceGID := func(tid model.ThreadID, lid model.LocalID) (model.GlobalID, bool) {
		dev, ok := m.nodes.LocalDevice(tid, lid)
		if !ok {
			return model.InvalidGlobalID, false
		}
		return dev.GID(), true
	}
	if err := collect(m.devTo, m.devToSources, deviceGID, false); err != nil {
		return nil, err
	}
	if err := collect(m.devFrom, m.devFromSources, m.nodes.GIDOf, false); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSources lists, per queried target, the source gids of its incoming
// connections of one synapse type.
func (m *Manager) GetSources(targets []model.GlobalID, synapseModel string) ([][]model.GlobalID, error) {
	out := make([][]model.GlobalID, len(targets))
	for i, tgid := range targets {
		infos, err := m.GetConnections(ConnFilter{Targets: []model.GlobalID{tgid}, Synapse: synapseModel})
		if err != nil {
			return nil, err
		}
		for _, info := range infos {
			out[i] = append(out[i], info.Source)
		}
	}
	return out, nil
}

// GetTargets lists, per queried source, the target gids of its outgoing
// connections of one synapse type.
func (m *Manager) GetTargets(sources []model.GlobalID, synapseModel string) ([][]model.GlobalID, error) {
	out := make([][]model.GlobalID, len(sources))
	for i, sgid := range sources {
		infos, err := m.GetConnections(ConnFilter{Sources: []model.GlobalID{sgid}, Synapse: synapseModel})
		if err != nil {
			return nil, err
		}
		for _, info := range infos {
			out[i] = append(out[i], info.Target)
		}
	}
	return out, nil
}

// TargetGID is the reverse lookup from storage coordinates to the
// receiving neuron's global id.
func (m *Manager) TargetGID(tid model.ThreadID, syn model.SynIndex, lcid model.LCID) (model.GlobalID, error) {
	c, ok := m.storage.Connector(tid, syn)
	if !ok {
		return model.InvalidGlobalID, fmt.Errorf("%w: no storage at thread %d syn %d", conn.ErrNotFound, tid, syn)
	}
	lid, err := c.TargetLID(lcid)
	if err != nil {
		return model.InvalidGlobalID, err
	}
	gid, ok := m.nodes.GIDOf(tid, lid)
	if !ok {
		return model.InvalidGlobalID, fmt.Errorf("%w: receiver %d on thread %d", ErrUnknownNode, lid, tid)
	}
	return gid, nil
}
