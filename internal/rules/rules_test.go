package rules

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"synaptor/internal/model"
	"synaptor/internal/synapse"
)

type recordedConnect struct {
	source model.GlobalID
	target model.GlobalID
	syn    string
	params synapse.Params
}

type fakeTarget struct {
	calls   []recordedConnect
	failAt  int // fail on the n-th call (1-based); 0 never fails
	failErr error
}

func (f *fakeTarget) Connect(s, t model.GlobalID, syn string, p synapse.Params) error {
	f.calls = append(f.calls, recordedConnect{source: s, target: t, syn: syn, params: p})
	if f.failAt > 0 && len(f.calls) == f.failAt {
		return f.failErr
	}
	return nil
}

func TestRegistryLookup(t *testing.T) {
	reg, err := NewRegistry(DefaultBuilders()...)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if _, err := reg.Lookup("one_to_one"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if _, err := reg.Lookup("nope"); !errors.Is(err, ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound, got: %v", err)
	}
	names := reg.Names()
	if len(names) != 3 || names[0] != "one_to_one" {
		t.Fatalf("names = %v", names)
	}

	if _, err := NewRegistry(OneToOne{}, OneToOne{}); err == nil {
		t.Fatal("expected duplicate rule error")
	}
}

func TestOneToOnePerPairArrays(t *testing.T) {
	f := &fakeTarget{}
	spec := Spec{
		Synapse:  "static",
		Weights:  []float64{0.1, 0.2, 0.3},
		DelaysMS: []float64{1.5},
	}
	sources := []model.GlobalID{1, 2, 3}
	targets := []model.GlobalID{4, 5, 6}

	if err := (OneToOne{}).Build(context.Background(), f, sources, targets, spec); err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(f.calls) != 3 {
		t.Fatalf("made %d connections, want 3", len(f.calls))
	}
	for i, c := range f.calls {
		if c.source != sources[i] || c.target != targets[i] || c.syn != "static" {
			t.Fatalf("call %d: %+v", i, c)
		}
		if !c.params.Weight.Valid || c.params.Weight.Value != spec.Weights[i] {
			t.Fatalf("call %d weight: %+v", i, c.params.Weight)
		}
		if c.params.DelayMS.Value != 1.5 {
			t.Fatalf("call %d delay: %+v", i, c.params.DelayMS)
		}
	}
}

func TestOneToOneValidation(t *testing.T) {
	f := &fakeTarget{}
	err := (OneToOne{}).Build(context.Background(), f, []model.GlobalID{1}, []model.GlobalID{2, 3}, Spec{})
	if err == nil {
		t.Fatal("expected collection length error")
	}
	err = (OneToOne{}).Build(context.Background(), f,
		[]model.GlobalID{1, 2}, []model.GlobalID{3, 4},
		Spec{Weights: []float64{0.1, 0.2, 0.3}})
	if err == nil {
		t.Fatal("expected weight array length error")
	}
}

func TestOneToOneFailFastKeepsEarlierConnections(t *testing.T) {
	f := &fakeTarget{failAt: 2, failErr: fmt.Errorf("boom")}
	err := (OneToOne{}).Build(context.Background(), f,
		[]model.GlobalID{1, 2, 3}, []model.GlobalID{4, 5, 6}, Spec{Synapse: "static"})
	if err == nil {
		t.Fatal("expected propagated connect error")
	}
	// Bulk connect is not transactional: the first connection stays.
	if len(f.calls) != 2 {
		t.Fatalf("stopped after %d calls, want 2", len(f.calls))
	}
}

func TestAllToAllRowMajor(t *testing.T) {
	f := &fakeTarget{}
	spec := Spec{Synapse: "static", Weights: []float64{1, 2, 3, 4}}
	err := (AllToAll{}).Build(context.Background(), f,
		[]model.GlobalID{10, 11}, []model.GlobalID{20, 21}, spec)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := []recordedConnect{
		{source: 10, target: 20},
		{source: 10, target: 21},
		{source: 11, target: 20},
		{source: 11, target: 21},
	}
	for i, c := range f.calls {
		if c.source != want[i].source || c.target != want[i].target {
			t.Fatalf("pair %d: %+v", i, c)
		}
		if c.params.Weight.Value != float64(i+1) {
			t.Fatalf("pair %d weight %g", i, c.params.Weight.Value)
		}
	}
}

func TestFixedOutdegreeDeterministic(t *testing.T) {
	build := func() []recordedConnect {
		f := &fakeTarget{}
		spec := Spec{Synapse: "static", Outdegree: 3, Seed: 17}
		if err := (FixedOutdegree{}).Build(context.Background(), f,
			[]model.GlobalID{1, 2}, []model.GlobalID{5, 6, 7}, spec); err != nil {
			t.Fatalf("build: %v", err)
		}
		return f.calls
	}
	a, b := build(), build()
	if len(a) != 6 {
		t.Fatalf("made %d connections, want 6", len(a))
	}
	for i := range a {
		if !reflect.DeepEqual(a[i], b[i]) {
			t.Fatalf("same seed produced different pick at %d: %+v vs %+v", i, a[i], b[i])
		}
	}

	f := &fakeTarget{}
	if err := (FixedOutdegree{}).Build(context.Background(), f, nil, []model.GlobalID{1}, Spec{}); err == nil {
		t.Fatal("expected outdegree validation error")
	}
}

func TestBuildHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &fakeTarget{}
	err := (AllToAll{}).Build(ctx, f, []model.GlobalID{1}, []model.GlobalID{2}, Spec{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got: %v", err)
	}
}
