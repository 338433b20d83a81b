package manager

import (
	"context"
	"errors"
	"testing"

	"synaptor/internal/conn"
	"synaptor/internal/delay"
	"synaptor/internal/exchange"
	"synaptor/internal/model"
	"synaptor/internal/node"
	"synaptor/internal/rules"
	"synaptor/internal/synapse"
)

// newTestRig builds a single-rank, single-thread manager hosting the
// given number of neurons with gids 1..n.
func newTestRig(t *testing.T, neurons int, mut func(*Config)) (*Manager, []*node.LIFNeuron) {
	t.Helper()
	dir, err := node.NewDirectory(0, 1)
	if err != nil {
		t.Fatalf("new directory: %v", err)
	}
	cells := make([]*node.LIFNeuron, neurons)
	for i := range cells {
		cells[i] = node.NewLIFNeuron(model.GlobalID(i + 1))
		if _, err := dir.AddLocal(0, cells[i]); err != nil {
			t.Fatalf("add neuron %d: %v", i+1, err)
		}
	}
	syn, err := synapse.NewRegistry(synapse.DefaultModels()...)
	if err != nil {
		t.Fatalf("new synapse registry: %v", err)
	}
	rul, err := rules.NewRegistry(rules.DefaultBuilders()...)
	if err != nil {
		t.Fatalf("new rule registry: %v", err)
	}
	tr, err := exchange.NewInProc(1)
	if err != nil {
		t.Fatalf("new transport: %v", err)
	}
	cfg := Config{
		Rank:      0,
		Threads:   1,
		TimeBase:  model.DefaultTimeBase(),
		Synapses:  syn,
		Rules:     rul,
		Nodes:     dir,
		Transport: tr,
	}
	if mut != nil {
		mut(&cfg)
	}
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m, cells
}

func TestConnectAndQuerySingleConnection(t *testing.T) {
	m, cells := newTestRig(t, 2, nil)

	err := m.Connect(1, 2, "static", synapse.Params{
		Weight:  synapse.Double(1.5),
		DelayMS: synapse.Double(1.0),
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got := m.NumConnections(); got != 1 {
		t.Fatalf("num connections: got=%d want=1", got)
	}
	if !m.HaveConnectionsChanged() {
		t.Fatal("expected have_connections_changed after connect")
	}

	rec, err := m.GetSynapseStatus(1, 2, 0, "static", 0)
	if err != nil {
		t.Fatalf("get synapse status: %v", err)
	}
	if rec["weight"] != 1.5 {
		t.Fatalf("unexpected weight: %v", rec["weight"])
	}
	if rec["delay_ms"] != 1.0 {
		t.Fatalf("unexpected delay: %v", rec["delay_ms"])
	}
	if rec["source"] != uint64(1) || rec["target"] != uint64(2) {
		t.Fatalf("unexpected endpoints: %v -> %v", rec["source"], rec["target"])
	}

	if err := m.ResolveTargets(context.Background()); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if m.HaveConnectionsChanged() {
		t.Fatal("resolution should reset have_connections_changed")
	}

	remote, err := m.Send(0, 1, model.Event{Kind: model.SpikeEvent})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(remote) != 0 {
		t.Fatalf("single rank produced remote targets: %+v", remote)
	}
	if len(cells[1].Received) != 1 {
		t.Fatalf("target received %d events, want 1", len(cells[1].Received))
	}
	got := cells[1].Received[0]
	if got.Weight != 1.5 || got.Sender != 1 {
		t.Fatalf("unexpected delivered event: %+v", got)
	}
}

func TestConnectRejectsBadReceptorWithoutSideEffects(t *testing.T) {
	m, _ := newTestRig(t, 2, nil)

	err := m.Connect(1, 2, "static", synapse.Params{Receptor: synapse.Int(5)})
	if !errors.Is(err, node.ErrReceptor) {
		t.Fatalf("expected ErrReceptor, got %v", err)
	}
	if got := m.NumConnections(); got != 0 {
		t.Fatalf("failed connect left %d connections", got)
	}
}

func TestConnectUnknownModelAndNodes(t *testing.T) {
	m, _ := newTestRig(t, 2, nil)

	if err := m.Connect(1, 2, "nope", synapse.Params{}); !errors.Is(err, synapse.ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
	if err := m.Connect(99, 2, "static", synapse.Params{}); !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("expected ErrUnknownNode for source, got %v", err)
	}
	if err := m.Connect(1, 99, "static", synapse.Params{}); !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("expected ErrUnknownNode for target, got %v", err)
	}
}

func TestPinnedDelayExtremaRejectOutOfRangeConnect(t *testing.T) {
	m, _ := newTestRig(t, 2, nil)

	err := m.SetStatus(map[string]any{"min_delay_ms": 1.0, "max_delay_ms": 2.0})
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if !m.UserSetDelayExtrema() {
		t.Fatal("expected user-set extrema")
	}

	err = m.Connect(1, 2, "static", synapse.Params{DelayMS: synapse.Double(5.0)})
	if !errors.Is(err, delay.ErrDelayRange) {
		t.Fatalf("expected ErrDelayRange, got %v", err)
	}
	if got := m.NumConnections(); got != 0 {
		t.Fatalf("rejected connect left %d connections", got)
	}

	if err := m.Connect(1, 2, "static", synapse.Params{DelayMS: synapse.Double(1.5)}); err != nil {
		t.Fatalf("in-range connect: %v", err)
	}
	if err := m.UpdateDelayExtrema(); err != nil {
		t.Fatalf("update extrema: %v", err)
	}
	tb := m.TimeBase()
	if tb.MS(m.MinDelay()) != 1.0 || tb.MS(m.MaxDelay()) != 2.0 {
		t.Fatalf("pinned extrema not in force: [%v, %v]", tb.MS(m.MinDelay()), tb.MS(m.MaxDelay()))
	}
}

func TestSetStatusRequiresBothBounds(t *testing.T) {
	m, _ := newTestRig(t, 2, nil)
	if err := m.SetStatus(map[string]any{"min_delay_ms": 1.0}); err == nil {
		t.Fatal("expected error for lone min_delay_ms")
	}
}

func TestUpdateDelayExtremaTracksObservedRange(t *testing.T) {
	m, _ := newTestRig(t, 3, nil)

	if err := m.Connect(1, 2, "static", synapse.Params{DelayMS: synapse.Double(0.5)}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := m.Connect(2, 3, "static", synapse.Params{DelayMS: synapse.Double(4.0)}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := m.UpdateDelayExtrema(); err != nil {
		t.Fatalf("update extrema: %v", err)
	}
	tb := m.TimeBase()
	if tb.MS(m.MinDelay()) != 0.5 || tb.MS(m.MaxDelay()) != 4.0 {
		t.Fatalf("unexpected extrema: [%v, %v]", tb.MS(m.MinDelay()), tb.MS(m.MaxDelay()))
	}
}

func TestDisconnect(t *testing.T) {
	m, _ := newTestRig(t, 3, nil)

	for _, tgt := range []model.GlobalID{2, 3} {
		if err := m.Connect(1, tgt, "static", synapse.Params{}); err != nil {
			t.Fatalf("connect 1 -> %d: %v", tgt, err)
		}
	}
	if err := m.Disconnect(1, 2, "static"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if got := m.NumConnections(); got != 1 {
		t.Fatalf("num connections after disconnect: got=%d want=1", got)
	}
	infos, err := m.GetConnections(ConnFilter{})
	if err != nil {
		t.Fatalf("get connections: %v", err)
	}
	if len(infos) != 1 || infos[0].Target != 3 {
		t.Fatalf("unexpected survivors: %+v", infos)
	}
	if err := m.Disconnect(1, 2, "static"); !errors.Is(err, conn.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConnectWithRuleAllToAllPerPairWeights(t *testing.T) {
	m, _ := newTestRig(t, 4, nil)

	err := m.ConnectWithRule(context.Background(), "all_to_all",
		[]model.GlobalID{1, 2}, []model.GlobalID{3, 4},
		rules.Spec{
			Synapse: "static",
			Weights: []float64{0.1, 0.2, 0.3, 0.4},
		})
	if err != nil {
		t.Fatalf("connect with rule: %v", err)
	}
	if got := m.NumConnections(); got != 4 {
		t.Fatalf("num connections: got=%d want=4", got)
	}

	infos, err := m.GetConnections(ConnFilter{Sources: []model.GlobalID{2}})
	if err != nil {
		t.Fatalf("get connections: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("source filter returned %d connections, want 2", len(infos))
	}
	// Row-major pair order: source 2 got weights 0.3 and 0.4.
	weights := map[float64]bool{}
	for _, info := range infos {
		weights[info.Weight] = true
	}
	if !weights[0.3] || !weights[0.4] {
		t.Fatalf("unexpected weights for source 2: %+v", infos)
	}
}

func TestGetConnectionsFilters(t *testing.T) {
	m, _ := newTestRig(t, 4, nil)

	if err := m.Connect(1, 3, "static", synapse.Params{}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := m.Connect(2, 3, "static_labeled", synapse.Params{Label: synapse.Int(7)}); err != nil {
		t.Fatalf("connect labeled: %v", err)
	}
	if err := m.Connect(2, 4, "static_labeled", synapse.Params{Label: synapse.Int(9)}); err != nil {
		t.Fatalf("connect labeled: %v", err)
	}

	infos, err := m.GetConnections(ConnFilter{Synapse: "static_labeled", Label: synapse.Int(7)})
	if err != nil {
		t.Fatalf("get connections: %v", err)
	}
	if len(infos) != 1 || infos[0].Source != 2 || infos[0].Target != 3 {
		t.Fatalf("label filter mismatch: %+v", infos)
	}

	infos, err = m.GetConnections(ConnFilter{Targets: []model.GlobalID{3}})
	if err != nil {
		t.Fatalf("get connections: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("target filter returned %d connections, want 2", len(infos))
	}

	if _, err := m.GetConnections(ConnFilter{Synapse: "nope"}); !errors.Is(err, synapse.ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
}

func TestGetSourcesAndTargets(t *testing.T) {
	m, _ := newTestRig(t, 4, nil)

	pairs := [][2]model.GlobalID{{1, 3}, {2, 3}, {1, 4}}
	for _, p := range pairs {
		if err := m.Connect(p[0], p[1], "static", synapse.Params{}); err != nil {
			t.Fatalf("connect %d -> %d: %v", p[0], p[1], err)
		}
	}

	srcs, err := m.GetSources([]model.GlobalID{3, 4}, "static")
	if err != nil {
		t.Fatalf("get sources: %v", err)
	}
	if len(srcs[0]) != 2 || len(srcs[1]) != 1 || srcs[1][0] != 1 {
		t.Fatalf("unexpected sources: %+v", srcs)
	}

	tgts, err := m.GetTargets([]model.GlobalID{1}, "static")
	if err != nil {
		t.Fatalf("get targets: %v", err)
	}
	if len(tgts[0]) != 2 {
		t.Fatalf("unexpected targets: %+v", tgts)
	}
}

func TestSetSynapseStatusUpdatesWeightAndDelay(t *testing.T) {
	m, _ := newTestRig(t, 2, nil)

	if err := m.Connect(1, 2, "static", synapse.Params{}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	err := m.SetSynapseStatus(1, 2, 0, "static", 0, map[string]any{
		"weight":   2.5,
		"delay_ms": 3.0,
	})
	if err != nil {
		t.Fatalf("set synapse status: %v", err)
	}
	rec, err := m.GetSynapseStatus(1, 2, 0, "static", 0)
	if err != nil {
		t.Fatalf("get synapse status: %v", err)
	}
	if rec["weight"] != 2.5 || rec["delay_ms"] != 3.0 {
		t.Fatalf("status not applied: %+v", rec)
	}

	err = m.SetSynapseStatus(1, 2, 0, "static", 0, map[string]any{"delay_ms": "soon"})
	if !errors.Is(err, synapse.ErrBadParameter) {
		t.Fatalf("expected ErrBadParameter, got %v", err)
	}
}

func TestGetSynapseStatusWrongEndpointsNotFound(t *testing.T) {
	m, _ := newTestRig(t, 3, nil)

	if err := m.Connect(1, 2, "static", synapse.Params{}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := m.GetSynapseStatus(3, 2, 0, "static", 0); !errors.Is(err, conn.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for wrong source, got %v", err)
	}
	if _, err := m.GetSynapseStatus(1, 3, 0, "static", 0); !errors.Is(err, conn.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for wrong target, got %v", err)
	}
}

func TestDeviceConnections(t *testing.T) {
	dir, err := node.NewDirectory(0, 1)
	if err != nil {
		t.Fatalf("new directory: %v", err)
	}
	cell := node.NewLIFNeuron(1)
	recorder := node.NewSpikeRecorder(2)
	generator := node.NewSpikeGenerator(3)
	for _, n := range []node.Node{cell, recorder, generator} {
		if _, err := dir.AddLocal(0, n); err != nil {
			t.Fatalf("add node %d: %v", n.GID(), err)
		}
	}
	syn, err := synapse.NewRegistry(synapse.DefaultModels()...)
	if err != nil {
		t.Fatalf("new synapse registry: %v", err)
	}
	rul, err := rules.NewRegistry(rules.DefaultBuilders()...)
	if err != nil {
		t.Fatalf("new rule registry: %v", err)
	}
	tr, err := exchange.NewInProc(1)
	if err != nil {
		t.Fatalf("new transport: %v", err)
	}
	m, err := New(Config{Rank: 0, Threads: 1, TimeBase: model.DefaultTimeBase(),
		Synapses: syn, Rules: rul, Nodes: dir, Transport: tr})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	// Neuron to recorder, generator to neuron. Both bypass resolution.
	if err := m.Connect(1, 2, "static", synapse.Params{Weight: synapse.Double(0.7)}); err != nil {
		t.Fatalf("connect to device: %v", err)
	}
	if err := m.Connect(3, 1, "static", synapse.Params{Weight: synapse.Double(0.9)}); err != nil {
		t.Fatalf("connect from device: %v", err)
	}
	if err := m.Connect(3, 2, "static", synapse.Params{}); err == nil {
		t.Fatal("expected device-to-device connect to fail")
	}
	if got := m.NumConnections(); got != 2 {
		t.Fatalf("num connections: got=%d want=2", got)
	}

	if err := m.SendToDevices(0, 1, model.Event{Kind: model.SpikeEvent}); err != nil {
		t.Fatalf("send to devices: %v", err)
	}
	if len(recorder.Received) != 1 || recorder.Received[0].Weight != 0.7 {
		t.Fatalf("recorder got %+v", recorder.Received)
	}

	genLoc, _ := dir.Owner(3)
	if err := m.SendFromDevice(0, genLoc.LID, model.Event{Kind: model.SpikeEvent}); err != nil {
		t.Fatalf("send from device: %v", err)
	}
	if len(cell.Received) != 1 || cell.Received[0].Weight != 0.9 {
		t.Fatalf("neuron got %+v", cell.Received)
	}

	infos, err := m.GetConnections(ConnFilter{})
	if err != nil {
		t.Fatalf("get connections: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("get_connections returned %d records, want 2", len(infos))
	}
}

func TestTriggerUpdateWeightVisitsOnlyEmitter(t *testing.T) {
	m, _ := newTestRig(t, 3, nil)

	if err := m.Connect(1, 3, "stdp_mod", synapse.Params{Weight: synapse.Double(1.0)}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := m.Connect(2, 3, "stdp_mod", synapse.Params{Weight: synapse.Double(1.0)}); err != nil {
		t.Fatalf("connect: %v", err)
	}

	events := []model.TimedCount{{TimeMS: 10.0, Count: 3}}
	if err := m.TriggerUpdateWeight(1, events, 10.0); err != nil {
		t.Fatalf("trigger update: %v", err)
	}

	rec1, err := m.GetSynapseStatus(1, 3, 0, "stdp_mod", 0)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	rec2, err := m.GetSynapseStatus(2, 3, 0, "stdp_mod", 1)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if rec1["weight"].(float64) <= 1.0 {
		t.Fatalf("emitter connection weight unchanged: %v", rec1["weight"])
	}
	if rec2["weight"].(float64) != 1.0 {
		t.Fatalf("bystander connection weight changed: %v", rec2["weight"])
	}
}

func TestSendSecondarySkipsPrimaryTargets(t *testing.T) {
	m, cells := newTestRig(t, 2, nil)

	if err := m.Connect(1, 2, "static", synapse.Params{}); err != nil {
		t.Fatalf("connect primary: %v", err)
	}
	if err := m.Connect(1, 2, "rate_connection", synapse.Params{Weight: synapse.Double(0.3)}); err != nil {
		t.Fatalf("connect secondary: %v", err)
	}
	if err := m.ResolveTargets(context.Background()); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if _, err := m.SendSecondary(0, 1, model.Event{Kind: model.RateEvent, Payload: []float64{0.5}}); err != nil {
		t.Fatalf("send secondary: %v", err)
	}
	if len(cells[1].Received) != 1 {
		t.Fatalf("secondary fan-out delivered %d events, want 1", len(cells[1].Received))
	}
	if cells[1].Received[0].Weight != 0.3 {
		t.Fatalf("unexpected secondary event: %+v", cells[1].Received[0])
	}
}

func TestStatusSurface(t *testing.T) {
	m, _ := newTestRig(t, 2, nil)

	if err := m.Connect(1, 2, "static", synapse.Params{}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	rec := m.GetStatus()
	if rec["num_connections"] != uint64(1) {
		t.Fatalf("unexpected num_connections: %v", rec["num_connections"])
	}
	if rec["source_table_cleared"] != false {
		t.Fatalf("unexpected source_table_cleared: %v", rec["source_table_cleared"])
	}
	models, ok := rec["synapse_models"].([]string)
	if !ok || len(models) != 4 {
		t.Fatalf("unexpected synapse_models: %v", rec["synapse_models"])
	}

	if err := m.SetStatus(map[string]any{"keep_source_table": true}); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if m.GetStatus()["keep_source_table"] != true {
		t.Fatal("keep_source_table not applied")
	}

	kr := m.KernelRecord()
	if kr.NumConnections != 1 || !kr.KeepSourceTable {
		t.Fatalf("unexpected kernel record: %+v", kr)
	}
}

// newThreadedRig builds a single-rank manager with the given thread
// count, placing neuron gids 1..n round-robin across threads.
func newThreadedRig(t *testing.T, threads, neurons int) (*Manager, *node.Directory, []*node.LIFNeuron) {
	t.Helper()
	dir, err := node.NewDirectory(0, threads)
	if err != nil {
		t.Fatalf("new directory: %v", err)
	}
	cells := make([]*node.LIFNeuron, neurons)
	for i := range cells {
		cells[i] = node.NewLIFNeuron(model.GlobalID(i + 1))
		if _, err := dir.AddLocal(model.ThreadID(i%threads), cells[i]); err != nil {
			t.Fatalf("add neuron %d: %v", i+1, err)
		}
	}
	syn, err := synapse.NewRegistry(synapse.DefaultModels()...)
	if err != nil {
		t.Fatalf("new synapse registry: %v", err)
	}
	rul, err := rules.NewRegistry(rules.DefaultBuilders()...)
	if err != nil {
		t.Fatalf("new rule registry: %v", err)
	}
	tr, err := exchange.NewInProc(1)
	if err != nil {
		t.Fatalf("new transport: %v", err)
	}
	m, err := New(Config{Rank: 0, Threads: threads, TimeBase: model.DefaultTimeBase(),
		Synapses: syn, Rules: rul, Nodes: dir, Transport: tr, KeepSourceTable: true})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m, dir, cells
}

func TestMultiThreadConnectResolveSend(t *testing.T) {
	// gids 1, 3 live on thread 0; gids 2, 4 on thread 1.
	m, _, cells := newThreadedRig(t, 2, 4)

	err := m.ConnectWithRule(context.Background(), "all_to_all",
		[]model.GlobalID{1, 2}, []model.GlobalID{3, 4},
		rules.Spec{
			Synapse: "static",
			Weights: []float64{0.1, 0.2, 0.3, 0.4},
		})
	if err != nil {
		t.Fatalf("connect with rule: %v", err)
	}
	if got := m.NumConnections(); got != 4 {
		t.Fatalf("num connections: got=%d want=4", got)
	}

	// Records live on the target's thread.
	infos, err := m.GetConnections(ConnFilter{Targets: []model.GlobalID{4}})
	if err != nil {
		t.Fatalf("get connections: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("target filter returned %d connections, want 2", len(infos))
	}
	for _, info := range infos {
		if info.Thread != 1 {
			t.Fatalf("connection onto gid 4 stored on thread %d: %+v", info.Thread, info)
		}
	}

	if err := m.ResolveTargets(context.Background()); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := m.Send(0, 1, model.Event{Kind: model.SpikeEvent}); err != nil {
		t.Fatalf("send from thread 0: %v", err)
	}
	if _, err := m.Send(1, 2, model.Event{Kind: model.SpikeEvent}); err != nil {
		t.Fatalf("send from thread 1: %v", err)
	}
	for _, tgt := range []int{2, 3} {
		if got := len(cells[tgt].Received); got != 2 {
			t.Fatalf("gid %d received %d events, want 2", tgt+1, got)
		}
	}
	weights := map[float64]bool{}
	for _, ev := range append(cells[2].Received, cells[3].Received...) {
		weights[ev.Weight] = true
	}
	for _, w := range []float64{0.1, 0.2, 0.3, 0.4} {
		if !weights[w] {
			t.Fatalf("weight %v never delivered: %v", w, weights)
		}
	}
}

func TestDeviceRoutingAcrossThreads(t *testing.T) {
	dir, err := node.NewDirectory(0, 2)
	if err != nil {
		t.Fatalf("new directory: %v", err)
	}
	cell := node.NewLIFNeuron(1)
	recorder := node.NewSpikeRecorder(2)
	generator := node.NewSpikeGenerator(3)
	// The neuron lives on thread 1; both devices have thread 0 as home.
	if _, err := dir.AddLocal(1, cell); err != nil {
		t.Fatalf("add neuron: %v", err)
	}
	for _, n := range []node.Node{recorder, generator} {
		if _, err := dir.AddLocal(0, n); err != nil {
			t.Fatalf("add device %d: %v", n.GID(), err)
		}
	}
	syn, err := synapse.NewRegistry(synapse.DefaultModels()...)
	if err != nil {
		t.Fatalf("new synapse registry: %v", err)
	}
	rul, err := rules.NewRegistry(rules.DefaultBuilders()...)
	if err != nil {
		t.Fatalf("new rule registry: %v", err)
	}
	tr, err := exchange.NewInProc(1)
	if err != nil {
		t.Fatalf("new transport: %v", err)
	}
	m, err := New(Config{Rank: 0, Threads: 2, TimeBase: model.DefaultTimeBase(),
		Synapses: syn, Rules: rul, Nodes: dir, Transport: tr})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	if err := m.Connect(1, 2, "static", synapse.Params{Weight: synapse.Double(0.7)}); err != nil {
		t.Fatalf("connect to device: %v", err)
	}
	if err := m.SendToDevices(1, 1, model.Event{Kind: model.SpikeEvent}); err != nil {
		t.Fatalf("send to devices: %v", err)
	}
	if len(recorder.Received) != 1 || recorder.Received[0].Weight != 0.7 {
		t.Fatalf("recorder got %+v", recorder.Received)
	}

	if err := m.Connect(3, 1, "static", synapse.Params{Weight: synapse.Double(0.9)}); err != nil {
		t.Fatalf("connect from device: %v", err)
	}
	genLoc, _ := dir.Owner(3)
	// Each thread's replica drives only its own thread's targets: the
	// neuron is reached from thread 1, and thread 0 has nothing to do.
	if err := m.SendFromDevice(1, genLoc.LID, model.Event{Kind: model.SpikeEvent}); err != nil {
		t.Fatalf("send from device on thread 1: %v", err)
	}
	if len(cell.Received) != 1 || cell.Received[0].Weight != 0.9 {
		t.Fatalf("neuron got %+v", cell.Received)
	}
	if err := m.SendFromDevice(0, genLoc.LID, model.Event{Kind: model.SpikeEvent}); err != nil {
		t.Fatalf("send from device on thread 0: %v", err)
	}
	if len(cell.Received) != 1 {
		t.Fatalf("thread 0 replica delivered across threads: %+v", cell.Received)
	}

	infos, err := m.GetConnections(ConnFilter{})
	if err != nil {
		t.Fatalf("get connections: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("get_connections returned %d records, want 2", len(infos))
	}
	for _, info := range infos {
		if info.Thread != 1 {
			t.Fatalf("device connection stored off the neuron's thread: %+v", info)
		}
	}
}

func TestConnectBulkPerPairWeights(t *testing.T) {
	m, _ := newTestRig(t, 4, nil)

	err := m.ConnectBulk(context.Background(),
		[]model.GlobalID{1, 2, 3}, []model.GlobalID{4},
		"static", []float64{0.1, 0.2, 0.3}, nil)
	if err != nil {
		t.Fatalf("connect bulk: %v", err)
	}
	if got := m.NumConnections(); got != 3 {
		t.Fatalf("num connections: got=%d want=3", got)
	}
	infos, err := m.GetConnections(ConnFilter{Sources: []model.GlobalID{2}})
	if err != nil {
		t.Fatalf("get connections: %v", err)
	}
	if len(infos) != 1 || infos[0].Weight != 0.2 {
		t.Fatalf("pair weight mismatch: %+v", infos)
	}

	err = m.ConnectBulk(context.Background(),
		[]model.GlobalID{1, 2}, []model.GlobalID{4},
		"static", []float64{0.1, 0.2, 0.3}, nil)
	if err == nil {
		t.Fatal("expected mismatched weight array to fail")
	}
}

func TestConnectBulkFailFastKeepsEarlierConnections(t *testing.T) {
	m, _ := newTestRig(t, 4, nil)

	if err := m.SetStatus(map[string]any{"min_delay_ms": 1.0, "max_delay_ms": 2.0}); err != nil {
		t.Fatalf("set status: %v", err)
	}
	err := m.ConnectBulk(context.Background(),
		[]model.GlobalID{1, 2, 3}, []model.GlobalID{4},
		"static", nil, []float64{1.5, 5.0, 1.5})
	if !errors.Is(err, delay.ErrDelayRange) {
		t.Fatalf("expected ErrDelayRange, got %v", err)
	}
	// Non-transactional: the pair before the failure survives.
	if got := m.NumConnections(); got != 1 {
		t.Fatalf("num connections after aborted batch: got=%d want=1", got)
	}
}

func TestCalibrateRebasesDelays(t *testing.T) {
	m, _ := newTestRig(t, 2, nil)

	if err := m.Connect(1, 2, "static", synapse.Params{DelayMS: synapse.Double(1.0)}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	old := m.TimeBase()
	next := model.TimeBase{ResolutionMS: 0.2}
	if err := m.Calibrate(model.TimeConverter{Old: old, New: next}); err != nil {
		t.Fatalf("calibrate: %v", err)
	}

	rec, err := m.GetSynapseStatus(1, 2, 0, "static", 0)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if rec["delay_ms"] != 1.0 {
		t.Fatalf("delay in ms changed across calibration: %v", rec["delay_ms"])
	}
	if m.TimeBase().ResolutionMS != 0.2 {
		t.Fatalf("time base not swapped: %+v", m.TimeBase())
	}
}
