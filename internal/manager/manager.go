// Package manager orchestrates the connectivity core: it records
// connect requests target-first, drives the multi-round resolution
// protocol that compiles the presynaptic routing tables, maintains the
// global delay extrema and serves queries and event fan-out.
package manager

import (
	"context"
	"errors"
	"fmt"

	"synaptor/internal/conn"
	"synaptor/internal/delay"
	"synaptor/internal/exchange"
	"synaptor/internal/model"
	"synaptor/internal/node"
	"synaptor/internal/rules"
	"synaptor/internal/sourcetable"
	"synaptor/internal/synapse"
	"synaptor/internal/targettable"
)

var ErrUnknownNode = errors.New("unknown node")

const defaultBufferCapacity = 64

// Config wires one rank's manager. Registries are immutable and built
// by the caller at start-up; nothing here is ambient global state.
type Config struct {
	Rank     model.Rank
	Threads  int
	TimeBase model.TimeBase

	Synapses *synapse.Registry
	Rules    *rules.Registry
	Nodes    *node.Directory

	Transport exchange.Transport
	// BufferCapacity bounds how many routing records fit in one
	// per-peer batch of a resolution round.
	BufferCapacity int

	// KeepSourceTable retains the staging table after resolution so
	// source-side queries keep working at the cost of memory.
	KeepSourceTable bool
}

type triggerSite struct {
	tid model.ThreadID
	syn model.SynIndex
}

// Manager is the connection manager of one compute rank.
type Manager struct {
	rank     model.Rank
	numRanks int
	timeBase model.TimeBase

	synapses *synapse.Registry
	rules    *rules.Registry
	nodes    *node.Directory

	transport exchange.Transport
	bufferCap int

	storage     *conn.Storage
	sourceTable *sourcetable.Table
	targetTable *targettable.Table

	// Device connections are always local and bypass the resolution
	// protocol; they get their own storage and routing tables, split by
	// direction because the stored target lid addresses a different id
	// space in each.
	devTable       *targettable.DeviceTable
	devTo          *conn.Storage
	devFrom        *conn.Storage
	devToSources   *sourcetable.Table
	devFromSources *sourcetable.Table

	checkers []*delay.Checker
	minDelay model.Steps
	maxDelay model.Steps
	userSet  bool

	keepSourceTable bool
	haveChanged     bool
	triggers        map[model.GlobalID]map[triggerSite]struct{}
}

func New(cfg Config) (*Manager, error) {
	if cfg.Threads <= 0 {
		return nil, fmt.Errorf("thread count must be > 0, got %d", cfg.Threads)
	}
	if cfg.Synapses == nil {
		return nil, fmt.Errorf("synapse registry is required")
	}
	if cfg.Rules == nil {
		return nil, fmt.Errorf("rule registry is required")
	}
	if cfg.Nodes == nil {
		return nil, fmt.Errorf("node directory is required")
	}
	if cfg.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if err := cfg.TimeBase.Validate(); err != nil {
		return nil, err
	}
	if int(cfg.Rank) < 0 || int(cfg.Rank) >= cfg.Transport.Ranks() {
		return nil, fmt.Errorf("rank %d out of range for %d-rank transport", cfg.Rank, cfg.Transport.Ranks())
	}
	if cfg.BufferCapacity < 0 {
		return nil, fmt.Errorf("buffer capacity must be >= 0, got %d", cfg.BufferCapacity)
	}
	if cfg.BufferCapacity == 0 {
		cfg.BufferCapacity = defaultBufferCapacity
	}

	numSyn := cfg.Synapses.Len()
	storage, err := conn.NewStorage(cfg.Threads, cfg.Synapses)
	if err != nil {
		return nil, err
	}
	devTo, err := conn.NewStorage(cfg.Threads, cfg.Synapses)
	if err != nil {
		return nil, err
	}
	devFrom, err := conn.NewStorage(cfg.Threads, cfg.Synapses)
	if err != nil {
		return nil, err
	}
	srcTable, err := sourcetable.New(cfg.Rank, cfg.Threads, numSyn)
	if err != nil {
		return nil, err
	}
	devToSources, err := sourcetable.New(cfg.Rank, cfg.Threads, numSyn)
	if err != nil {
		return nil, err
	}
	devFromSources, err := sourcetable.New(cfg.Rank, cfg.Threads, numSyn)
	if err != nil {
		return nil, err
	}
	tgtTable, err := targettable.New(cfg.Threads)
	if err != nil {
		return nil, err
	}
	devTable, err := targettable.NewDeviceTable(cfg.Threads)
	if err != nil {
		return nil, err
	}

	defaultSteps, err := cfg.TimeBase.DelaySteps(1.0)
	if err != nil {
		return nil, err
	}
	checkers := make([]*delay.Checker, cfg.Threads)
	for i := range checkers {
		checkers[i] = delay.NewChecker()
	}

	return &Manager{
		rank:            cfg.Rank,
		numRanks:        cfg.Transport.Ranks(),
		timeBase:        cfg.TimeBase,
		synapses:        cfg.Synapses,
		rules:           cfg.Rules,
		nodes:           cfg.Nodes,
		transport:       cfg.Transport,
		bufferCap:       cfg.BufferCapacity,
		storage:         storage,
		sourceTable:     srcTable,
		targetTable:     tgtTable,
		devTable:        devTable,
		devTo:           devTo,
		devFrom:         devFrom,
		devToSources:    devToSources,
		devFromSources:  devFromSources,
		checkers:        checkers,
		minDelay:        defaultSteps,
		maxDelay:        defaultSteps,
		keepSourceTable: cfg.KeepSourceTable,
		triggers:        make(map[model.GlobalID]map[triggerSite]struct{}),
	}, nil
}

func (m *Manager) Rank() model.Rank { return m.rank }

func (m *Manager) Threads() int { return m.storage.Threads() }

func (m *Manager) TimeBase() model.TimeBase { return m.timeBase }

// Connect records one connection from sgid to tgid. Optional weight and
// delay take the model defaults. The request is a no-op on ranks that do
// not own the side responsible for storing it.
func (m *Manager) Connect(sgid, tgid model.GlobalID, synapseModel string, p synapse.Params) error {
	idx, mdl, err := m.synapses.Lookup(synapseModel)
	if err != nil {
		return err
	}
	srcLoc, ok := m.nodes.Owner(sgid)
	if !ok {
		return fmt.Errorf("%w: source %d", ErrUnknownNode, sgid)
	}
	tgtLoc, ok := m.nodes.Owner(tgid)
	if !ok {
		return fmt.Errorf("%w: target %d", ErrUnknownNode, tgid)
	}

	switch {
	case tgtLoc.Device:
		if srcLoc.Device {
			return fmt.Errorf("device-to-device connection %d -> %d is not supported", sgid, tgid)
		}
		// Device targets are routed where the source lives.
		if srcLoc.Rank != m.rank {
			return nil
		}
		if tgtLoc.Rank != m.rank {
			return fmt.Errorf("device %d is not local to rank %d", tgid, m.rank)
		}
		return m.connectToDevice(sgid, srcLoc, tgtLoc, idx, mdl, p)
	case srcLoc.Device:
		if tgtLoc.Rank != m.rank {
			return nil
		}
		if srcLoc.Rank != m.rank {
			return fmt.Errorf("device %d is not local to rank %d", sgid, m.rank)
		}
		return m.connectFromDevice(sgid, srcLoc, tgid, tgtLoc, idx, mdl, p)
	default:
		// Standard pipeline: only the rank owning the target stores
		// the connection; the source side learns about it during
		// resolution.
		if tgtLoc.Rank != m.rank {
			return nil
		}
		return m.connectPrimary(sgid, tgid, tgtLoc, idx, mdl, p)
	}
}

// buildState validates everything that can fail before any table is
// touched: receptor capability, delay bounds, model parameters.
func (m *Manager) buildState(target node.Node, tid model.ThreadID, mdl synapse.Model, p synapse.Params) (synapse.State, error) {
	receptor := int(p.Receptor.Or(0))
	if err := target.AcceptsEvent(mdl.EventKind(), receptor); err != nil {
		return synapse.State{}, err
	}
	steps, err := m.timeBase.DelaySteps(p.DelayMS.Or(mdl.DefaultDelayMS()))
	if err != nil {
		return synapse.State{}, err
	}
	if err := m.checkers[tid].Check(steps); err != nil {
		return synapse.State{}, err
	}
	return mdl.NewState(p.Weight.Or(mdl.DefaultWeight()), steps, p)
}

func (m *Manager) connectPrimary(sgid, tgid model.GlobalID, tgtLoc node.Location, idx model.SynIndex, mdl synapse.Model, p synapse.Params) error {
	tid := tgtLoc.Thread
	target, ok := m.nodes.Local(tid, tgtLoc.LID)
	if !ok {
		return fmt.Errorf("%w: target %d", ErrUnknownNode, tgid)
	}
	state, err := m.buildState(target, tid, mdl, p)
	if err != nil {
		return err
	}

	if _, err := m.storage.Append(tid, idx, state, tgtLoc.LID); err != nil {
		return err
	}
	if err := m.sourceTable.Append(tid, idx, sgid, mdl.Primary()); err != nil {
		return err
	}
	_ = m.checkers[tid].Observe(state.Delay)
	if mdl.Triggered() {
		m.registerTrigger(sgid, tid, idx)
	}
	m.haveChanged = true
	return nil
}

func (m *Manager) connectToDevice(sgid model.GlobalID, srcLoc, tgtLoc node.Location, idx model.SynIndex, mdl synapse.Model, p synapse.Params) error {
	// Stored on the source neuron's thread, delivered to that thread's
	// device replica.
	tid := srcLoc.Thread
	device, ok := m.nodes.LocalDevice(tid, tgtLoc.LID)
	if !ok {
		return fmt.Errorf("%w: device target", ErrUnknownNode)
	}
	state, err := m.buildState(device, tid, mdl, p)
	if err != nil {
		return err
	}

	lcid, err := m.devTo.Append(tid, idx, state, tgtLoc.LID)
	if err != nil {
		return err
	}
	if err := m.devToSources.Append(tid, idx, sgid, mdl.Primary()); err != nil {
		return err
	}
	// Always locally resolvable: file the routing entry directly.
	if err := m.devTable.AddToDevice(tid, srcLoc.LID, model.Target{
		Rank: m.rank, Thread: tid, Syn: idx, LCID: lcid,
	}); err != nil {
		return err
	}
	_ = m.checkers[tid].Observe(state.Delay)
	m.haveChanged = true
	return nil
}

func (m *Manager) connectFromDevice(sgid model.GlobalID, srcLoc node.Location, tgid model.GlobalID, tgtLoc node.Location, idx model.SynIndex, mdl synapse.Model, p synapse.Params) error {
	tid := tgtLoc.Thread
	target, ok := m.nodes.Local(tid, tgtLoc.LID)
	if !ok {
		return fmt.Errorf("%w: target %d", ErrUnknownNode, tgid)
	}
	state, err := m.buildState(target, tid, mdl, p)
	if err != nil {
		return err
	}

	lcid, err := m.devFrom.Append(tid, idx, state, tgtLoc.LID)
	if err != nil {
		return err
	}
	if err := m.devFromSources.Append(tid, idx, sgid, mdl.Primary()); err != nil {
		return err
	}
	// Routed from the target thread's device replica: each thread's
	// replica drives only its own thread's neuron targets.
	if err := m.devTable.AddFromDevice(tid, srcLoc.LID, model.Target{
		Rank: m.rank, Thread: tid, Syn: idx, LCID: lcid,
	}); err != nil {
		return err
	}
	_ = m.checkers[tid].Observe(state.Delay)
	m.haveChanged = true
	return nil
}

func (m *Manager) registerTrigger(emitter model.GlobalID, tid model.ThreadID, syn model.SynIndex) {
	sites, ok := m.triggers[emitter]
	if !ok {
		sites = make(map[triggerSite]struct{})
		m.triggers[emitter] = sites
	}
	sites[triggerSite{tid: tid, syn: syn}] = struct{}{}
}

// ConnectWithRule resolves a named rule against the registry and lets
// the matching builder drive the connect primitives.
func (m *Manager) ConnectWithRule(ctx context.Context, rule string, sources, targets []model.GlobalID, spec rules.Spec) error {
	b, err := m.rules.Lookup(rule)
	if err != nil {
		return err
	}
	return b.Build(ctx, m, sources, targets, spec)
}

// ConnectBulk connects every source to every target with one synapse
// type. Weight and delay arrays hold zero values (model default), one
// shared value, or one value per pair in row-major source order. The
// batch stops at the first failing pair; connections made before the
// failure remain.
func (m *Manager) ConnectBulk(ctx context.Context, sources, targets []model.GlobalID, synapseModel string, weights, delaysMS []float64) error {
	n := len(sources) * len(targets)
	pick := func(values []float64, i int, what string) (synapse.OptionalDouble, error) {
		switch len(values) {
		case 0:
			return synapse.OptionalDouble{}, nil
		case 1:
			return synapse.Double(values[0]), nil
		case n:
			return synapse.Double(values[i]), nil
		default:
			return synapse.OptionalDouble{}, fmt.Errorf("%s array has %d entries, want 1 or %d", what, len(values), n)
		}
	}
	i := 0
	for _, s := range sources {
		for _, t := range targets {
			if err := ctx.Err(); err != nil {
				return err
			}
			var p synapse.Params
			var err error
			if p.Weight, err = pick(weights, i, "weight"); err != nil {
				return err
			}
			if p.DelayMS, err = pick(delaysMS, i, "delay"); err != nil {
				return err
			}
			if err := m.Connect(s, t, synapseModel, p); err != nil {
				return err
			}
			i++
		}
	}
	return nil
}

// Disconnect removes the connection from sgid to tgid of the given
// type. With several parallel connections the first match (lowest lcid)
// goes. Swap-with-last removal invalidates cached lcids on that array.
func (m *Manager) Disconnect(sgid, tgid model.GlobalID, synapseModel string) error {
	idx, _, err := m.synapses.Lookup(synapseModel)
	if err != nil {
		return err
	}
	tgtLoc, ok := m.nodes.Owner(tgid)
	if !ok {
		return fmt.Errorf("%w: target %d", ErrUnknownNode, tgid)
	}
	if tgtLoc.Rank != m.rank {
		return nil
	}
	if tgtLoc.Device {
		return fmt.Errorf("disconnecting device targets is not supported")
	}
	tid := tgtLoc.Thread
	if m.sourceTable.IsCleared(tid) {
		return fmt.Errorf("source table on thread %d was discarded; rebuild with keep_source_table", tid)
	}

	c, ok := m.storage.Connector(tid, idx)
	if !ok {
		return fmt.Errorf("%w: %d -> %d (%s)", conn.ErrNotFound, sgid, tgid, synapseModel)
	}
	for lcid := model.LCID(0); int(lcid) < c.Len(); lcid++ {
		lid, err := c.TargetLID(lcid)
		if err != nil {
			return err
		}
		src, ok := m.sourceTable.SourceGID(tid, idx, lcid)
		if !ok || src != sgid || lid != tgtLoc.LID {
			continue
		}
		if err := m.storage.Remove(tid, idx, lcid); err != nil {
			return err
		}
		if err := m.sourceTable.RemoveSwap(tid, idx, lcid); err != nil {
			return err
		}
		m.haveChanged = true
		return nil
	}
	return fmt.Errorf("%w: %d -> %d (%s)", conn.ErrNotFound, sgid, tgid, synapseModel)
}

// HaveConnectionsChanged reports whether connections were created or
// removed since the last completed resolution.
func (m *Manager) HaveConnectionsChanged() bool { return m.haveChanged }

func (m *Manager) SetHaveConnectionsChanged(changed bool) { m.haveChanged = changed }

// IsSourceTableCleared reports whether the staging table was discarded
// after resolution on every thread.
func (m *Manager) IsSourceTableCleared() bool {
	for tid := 0; tid < m.Threads(); tid++ {
		if !m.sourceTable.IsCleared(model.ThreadID(tid)) {
			return false
		}
	}
	return true
}
