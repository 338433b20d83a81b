// Package synaptor is the embedding surface: it builds multi-rank
// networks from declarative specs, serves connectivity queries and
// persists snapshots.
package synaptor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"synaptor/internal/exchange"
	"synaptor/internal/manager"
	"synaptor/internal/model"
	"synaptor/internal/netspec"
	"synaptor/internal/node"
	"synaptor/internal/rules"
	"synaptor/internal/storage"
	"synaptor/internal/synapse"
)

const defaultDBPath = "synaptor.db"

type Options struct {
	StoreKind string
	DBPath    string
}

// Client hosts at most one built network plus the snapshot store.
type Client struct {
	store storage.Store

	net *network
}

type network struct {
	spec     *netspec.Spec
	managers []*manager.Manager
	dirs     []*node.Directory
}

type BuildSummary struct {
	Network        string
	Ranks          int
	Threads        int
	Nodes          int
	NumConnections uint64
	MinDelayMS     float64
	MaxDelayMS     float64
}

type QueryRequest struct {
	Sources []model.GlobalID
	Targets []model.GlobalID
	Synapse string
	Label   synapse.OptionalInt
}

type ConnectionItem struct {
	Rank model.Rank
	Info model.ConnInfo
}

type SnapshotSummary struct {
	SnapshotID     string
	Network        string
	NumConnections int
}

func New(opts Options) (*Client, error) {
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	store, err := storage.NewStore(opts.StoreKind, dbPath)
	if err != nil {
		return nil, err
	}
	return &Client{store: store}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

// SynapseModels lists the registered synapse model names.
func (c *Client) SynapseModels() []string {
	reg, _ := synapse.NewRegistry(synapse.DefaultModels()...)
	return reg.Names()
}

// ConnectionRules lists the registered connectivity rule names.
func (c *Client) ConnectionRules() []string {
	reg, _ := rules.NewRegistry(rules.DefaultBuilders()...)
	return reg.Names()
}

// nodeFor instantiates one population member.
func nodeFor(kind string, gid model.GlobalID) node.Node {
	switch kind {
	case netspec.KindRecorder:
		return node.NewSpikeRecorder(gid)
	case netspec.KindGenerator:
		return node.NewSpikeGenerator(gid)
	default:
		return node.NewLIFNeuron(gid)
	}
}

// placement assigns neuron gids round-robin across ranks, then
// round-robin across each rank's threads. Every rank computes the same
// layout, so remote locations never need exchanging. Devices are not
// placed: each rank hosts its own replica, which keeps device traffic
// rank-local.
type placement struct {
	ranks, threads int
	neuronNext     map[[2]int]int
}

func newPlacement(ranks, threads int) *placement {
	return &placement{
		ranks:      ranks,
		threads:    threads,
		neuronNext: make(map[[2]int]int),
	}
}

func (p *placement) place(gid model.GlobalID) node.Location {
	i := int(gid - 1)
	rank := i % p.ranks
	thread := (i / p.ranks) % p.threads
	lid := p.neuronNext[[2]int{rank, thread}]
	p.neuronNext[[2]int{rank, thread}] = lid + 1
	return node.Location{
		Rank:   model.Rank(rank),
		Thread: model.ThreadID(thread),
		LID:    model.LocalID(lid),
	}
}

func (p *placement) deviceThread(gid model.GlobalID) model.ThreadID {
	return model.ThreadID((int(gid-1) / p.ranks) % p.threads)
}

// Build constructs the network the spec describes: per-rank directories
// and managers over a shared in-process transport, all projections
// connected, routing tables resolved.
func (c *Client) Build(ctx context.Context, spec *netspec.Spec) (BuildSummary, error) {
	if spec == nil {
		return BuildSummary{}, errors.New("network spec is required")
	}
	if c.net != nil {
		return BuildSummary{}, fmt.Errorf("network %s is already built", c.net.spec.Name)
	}

	synReg, err := synapse.NewRegistry(synapse.DefaultModels()...)
	if err != nil {
		return BuildSummary{}, err
	}
	ruleReg, err := rules.NewRegistry(rules.DefaultBuilders()...)
	if err != nil {
		return BuildSummary{}, err
	}
	transport, err := exchange.NewInProc(spec.Ranks)
	if err != nil {
		return BuildSummary{}, err
	}

	dirs := make([]*node.Directory, spec.Ranks)
	for rank := range dirs {
		if dirs[rank], err = node.NewDirectory(model.Rank(rank), spec.Threads); err != nil {
			return BuildSummary{}, err
		}
	}
	plc := newPlacement(spec.Ranks, spec.Threads)
	for _, pop := range spec.Populations {
		device := pop.Kind != netspec.KindNeuron
		for _, gid := range pop.GIDs() {
			if device {
				tid := plc.deviceThread(gid)
				for _, dir := range dirs {
					if _, err := dir.AddLocal(tid, nodeFor(pop.Kind, gid)); err != nil {
						return BuildSummary{}, err
					}
				}
				continue
			}
			loc := plc.place(gid)
			for rank, dir := range dirs {
				if int(loc.Rank) == rank {
					if _, err := dir.AddLocal(loc.Thread, nodeFor(pop.Kind, gid)); err != nil {
						return BuildSummary{}, err
					}
				} else if err := dir.AddRemote(gid, loc); err != nil {
					return BuildSummary{}, err
				}
			}
		}
	}

	managers := make([]*manager.Manager, spec.Ranks)
	for rank := range managers {
		managers[rank], err = manager.New(manager.Config{
			Rank:            model.Rank(rank),
			Threads:         spec.Threads,
			TimeBase:        spec.TimeBase(),
			Synapses:        synReg,
			Rules:           ruleReg,
			Nodes:           dirs[rank],
			Transport:       transport,
			BufferCapacity:  spec.BufferCapacity,
			KeepSourceTable: spec.KeepSourceTable,
		})
		if err != nil {
			return BuildSummary{}, err
		}
		if spec.MinDelayMS != 0 {
			if err := managers[rank].SetStatus(map[string]any{
				"min_delay_ms": spec.MinDelayMS,
				"max_delay_ms": spec.MaxDelayMS,
			}); err != nil {
				return BuildSummary{}, err
			}
		}
	}

	// Every rank sees the same connect stream; each stores only what it
	// owns.
	for _, proj := range spec.Projections {
		src, _ := spec.Population(proj.Source)
		tgt, _ := spec.Population(proj.Target)
		rspec := rules.Spec{
			Synapse:   proj.Synapse,
			Weights:   proj.Weights,
			DelaysMS:  proj.DelaysMS,
			Outdegree: proj.Outdegree,
			Seed:      proj.Seed,
		}
		if proj.Receptor != nil {
			rspec.Receptor = synapse.Int(*proj.Receptor)
		}
		if proj.Label != nil {
			rspec.Label = synapse.Int(*proj.Label)
		}
		for _, m := range managers {
			if err := m.ConnectWithRule(ctx, proj.Rule, src.GIDs(), tgt.GIDs(), rspec); err != nil {
				return BuildSummary{}, fmt.Errorf("project %s -> %s: %w", proj.Source, proj.Target, err)
			}
		}
	}

	var wg sync.WaitGroup
	errs := make([]error, len(managers))
	for i, m := range managers {
		wg.Add(1)
		go func(i int, m *manager.Manager) {
			defer wg.Done()
			errs[i] = m.ResolveTargets(ctx)
		}(i, m)
	}
	wg.Wait()
	for rank, err := range errs {
		if err != nil {
			return BuildSummary{}, fmt.Errorf("resolve rank %d: %w", rank, err)
		}
	}
	for _, m := range managers {
		if err := m.UpdateDelayExtrema(); err != nil {
			return BuildSummary{}, err
		}
	}

	c.net = &network{spec: spec, managers: managers, dirs: dirs}
	return c.buildSummary(), nil
}

func (c *Client) buildSummary() BuildSummary {
	spec := c.net.spec
	summary := BuildSummary{
		Network: spec.Name,
		Ranks:   spec.Ranks,
		Threads: spec.Threads,
		Nodes:   spec.TotalNodes(),
	}
	tb := spec.TimeBase()
	for rank, m := range c.net.managers {
		summary.NumConnections += m.NumConnections()
		minMS, maxMS := tb.MS(m.MinDelay()), tb.MS(m.MaxDelay())
		if rank == 0 || minMS < summary.MinDelayMS {
			summary.MinDelayMS = minMS
		}
		if maxMS > summary.MaxDelayMS {
			summary.MaxDelayMS = maxMS
		}
	}
	return summary
}

func (c *Client) built() (*network, error) {
	if c.net == nil {
		return nil, errors.New("no network built")
	}
	return c.net, nil
}

// Manager exposes one rank's connection manager, mainly for embedders
// driving sends directly.
func (c *Client) Manager(rank model.Rank) (*manager.Manager, error) {
	net, err := c.built()
	if err != nil {
		return nil, err
	}
	if int(rank) < 0 || int(rank) >= len(net.managers) {
		return nil, fmt.Errorf("rank %d out of range", rank)
	}
	return net.managers[rank], nil
}

// Query enumerates connections matching the filter across all ranks.
func (c *Client) Query(req QueryRequest) ([]ConnectionItem, error) {
	net, err := c.built()
	if err != nil {
		return nil, err
	}
	var out []ConnectionItem
	for rank, m := range net.managers {
		infos, err := m.GetConnections(manager.ConnFilter{
			Sources: req.Sources,
			Targets: req.Targets,
			Synapse: req.Synapse,
			Label:   req.Label,
		})
		if err != nil {
			return nil, fmt.Errorf("query rank %d: %w", rank, err)
		}
		for _, info := range infos {
			out = append(out, ConnectionItem{Rank: model.Rank(rank), Info: info})
		}
	}
	return out, nil
}

// Status reports one rank's status record.
func (c *Client) Status(rank model.Rank) (map[string]any, error) {
	m, err := c.Manager(rank)
	if err != nil {
		return nil, err
	}
	return m.GetStatus(), nil
}

// Snapshot persists the built network's connectivity under a fresh id.
func (c *Client) Snapshot(ctx context.Context) (SnapshotSummary, error) {
	net, err := c.built()
	if err != nil {
		return SnapshotSummary{}, err
	}
	items, err := c.Query(QueryRequest{})
	if err != nil {
		return SnapshotSummary{}, err
	}

	tb := net.spec.TimeBase()
	snap := storage.NetworkSnapshot{
		ID:           uuid.NewString(),
		Network:      net.spec.Name,
		CreatedAt:    time.Now().UTC(),
		ResolutionMS: tb.ResolutionMS,
	}
	summary := c.buildSummary()
	snap.MinDelayMS = summary.MinDelayMS
	snap.MaxDelayMS = summary.MaxDelayMS
	for _, item := range items {
		snap.Connections = append(snap.Connections, item.Info)
	}

	if err := c.store.SaveSnapshot(ctx, snap); err != nil {
		return SnapshotSummary{}, err
	}
	return SnapshotSummary{
		SnapshotID:     snap.ID,
		Network:        snap.Network,
		NumConnections: len(snap.Connections),
	}, nil
}

// Snapshots lists stored snapshots, oldest first.
func (c *Client) Snapshots(ctx context.Context) ([]storage.SnapshotInfo, error) {
	return c.store.ListSnapshots(ctx)
}

// GetSnapshot loads one stored snapshot.
func (c *Client) GetSnapshot(ctx context.Context, id string) (storage.NetworkSnapshot, error) {
	snap, ok, err := c.store.GetSnapshot(ctx, id)
	if err != nil {
		return storage.NetworkSnapshot{}, err
	}
	if !ok {
		return storage.NetworkSnapshot{}, fmt.Errorf("snapshot not found: %s", id)
	}
	return snap, nil
}
