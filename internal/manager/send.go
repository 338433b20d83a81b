package manager

import (
	"fmt"

	"synaptor/internal/conn"
	"synaptor/internal/model"
	"synaptor/internal/node"
)

// deliver pushes one event through the connection record a routing
// entry addresses: stamp weight and delay, hand it to the receiver.
func (m *Manager) deliver(storage *conn.Storage, t model.Target, ev model.Event, device bool) error {
	c, ok := storage.Connector(t.Thread, t.Syn)
	if !ok {
		return fmt.Errorf("%w: no storage for target %+v", conn.ErrNotFound, t)
	}
	st, err := c.State(t.LCID)
	if err != nil {
		return err
	}
	lid, err := c.TargetLID(t.LCID)
	if err != nil {
		return err
	}
	var receiver node.Node
	if device {
		receiver, ok = m.nodes.LocalDevice(t.Thread, lid)
	} else {
		receiver, ok = m.nodes.Local(t.Thread, lid)
	}
	if !ok {
		return fmt.Errorf("%w: receiver %d on thread %d", ErrUnknownNode, lid, t.Thread)
	}
	ev.Weight = st.Weight
	ev.DelaySteps = st.Delay
	receiver.Deliver(ev)
	return nil
}

// Send fans out a primary event from a local source neuron: local
// receivers are delivered directly, remote routing entries are returned
// for the external transport to carry. Runs once per min-delay interval
// per thread; each thread reads only its own partition.
func (m *Manager) Send(tid model.ThreadID, sgid model.GlobalID, ev model.Event) ([]model.Target, error) {
	return m.fanOut(tid, sgid, ev, true)
}

// SendSecondary fans out a secondary (payload) event, walking only
// targets of secondary synapse types.
func (m *Manager) SendSecondary(tid model.ThreadID, sgid model.GlobalID, ev model.Event) ([]model.Target, error) {
	return m.fanOut(tid, sgid, ev, false)
}

func (m *Manager) fanOut(tid model.ThreadID, sgid model.GlobalID, ev model.Event, primary bool) ([]model.Target, error) {
	loc, ok := m.nodes.Owner(sgid)
	if !ok || loc.Device {
		return nil, fmt.Errorf("%w: source %d", ErrUnknownNode, sgid)
	}
	if loc.Rank != m.rank || loc.Thread != tid {
		return nil, fmt.Errorf("source %d is not owned by rank %d thread %d", sgid, m.rank, tid)
	}
	ev.Sender = sgid

	var remote []model.Target
	for _, t := range m.targetTable.Targets(tid, loc.LID) {
		mdl, ok := m.synapses.Model(t.Syn)
		if !ok || mdl.Primary() != primary {
			continue
		}
		if t.Rank != m.rank {
			remote = append(remote, t)
			continue
		}
		if err := m.deliver(m.storage, t, ev, false); err != nil {
			return remote, err
		}
	}
	return remote, nil
}

// SendLocal fans out an event from a source node to local receivers
// only, dropping remote entries.
func (m *Manager) SendLocal(tid model.ThreadID, source node.Node, ev model.Event) error {
	_, err := m.Send(tid, source.GID(), ev)
	return err
}

// SendOne delivers an event through one specific connection, addressed
// by its storage coordinates. Used when the transport hands back a
// remote routing entry on the receiving rank.
func (m *Manager) SendOne(t model.Target, ev model.Event) error {
	if t.Rank != m.rank {
		return fmt.Errorf("target %+v is not owned by rank %d", t, m.rank)
	}
	return m.deliver(m.storage, t, ev, false)
}

// SendToDevices delivers an event to every device target of a local
// source neuron. Device routing never leaves the rank.
func (m *Manager) SendToDevices(tid model.ThreadID, sgid model.GlobalID, ev model.Event) error {
	loc, ok := m.nodes.Owner(sgid)
	if !ok || loc.Device {
		return fmt.Errorf("%w: source %d", ErrUnknownNode, sgid)
	}
	if loc.Rank != m.rank || loc.Thread != tid {
		return fmt.Errorf("source %d is not owned by rank %d thread %d", sgid, m.rank, tid)
	}
	ev.Sender = sgid
	for _, t := range m.devTable.ToDevice(tid, loc.LID) {
		if err := m.deliver(m.devTo, t, ev, true); err != nil {
			return err
		}
	}
	return nil
}

// SendFromDevice delivers an event from the thread's replica of a local
// source device to its neuron targets on that thread. Full delivery is
// one call per thread.
func (m *Manager) SendFromDevice(tid model.ThreadID, ldid model.LocalID, ev model.Event) error {
	device, ok := m.nodes.LocalDevice(tid, ldid)
	if !ok {
		return fmt.Errorf("%w: device %d on thread %d", ErrUnknownNode, ldid, tid)
	}
	ev.Sender = device.GID()
	for _, t := range m.devTable.FromDevice(tid, ldid) {
		if err := m.deliver(m.devFrom, t, ev, false); err != nil {
			return err
		}
	}
	return nil
}
