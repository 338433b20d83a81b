package synapse

import (
	"errors"
	"testing"

	"synaptor/internal/model"
)

func TestRegistryLookup(t *testing.T) {
	reg, err := NewRegistry(DefaultModels()...)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	idx, m, err := reg.Lookup("static")
	if err != nil {
		t.Fatalf("lookup static: %v", err)
	}
	if m.Name() != "static" {
		t.Fatalf("unexpected model: %s", m.Name())
	}
	got, ok := reg.Model(idx)
	if !ok || got != m {
		t.Fatal("Model(idx) disagrees with Lookup")
	}

	if _, _, err := reg.Lookup("no_such_model"); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got: %v", err)
	}
	if _, ok := reg.Model(model.SynIndex(reg.Len())); ok {
		t.Fatal("out-of-range index should not resolve")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(NewStatic("static", false), NewStatic("static", true))
	if err == nil {
		t.Fatal("expected duplicate model error")
	}
	if _, err := NewRegistry(); err == nil {
		t.Fatal("expected empty registry error")
	}
}

func TestStaticStateDefaultsAndLabels(t *testing.T) {
	plain := NewStatic("static", false)
	if _, err := plain.NewState(1, 10, Params{Label: Int(7)}); !errors.Is(err, ErrBadParameter) {
		t.Fatalf("expected label rejection, got: %v", err)
	}
	if _, err := plain.NewState(1, 10, Params{Extra: map[string]float64{"tau": 1}}); !errors.Is(err, ErrBadParameter) {
		t.Fatalf("expected extra-key rejection, got: %v", err)
	}

	labeled := NewStatic("static_labeled", true)
	s, err := labeled.NewState(2.5, 10, Params{Label: Int(7)})
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	if s.Weight != 2.5 || s.Delay != 10 || s.Label != 7 {
		t.Fatalf("unexpected state: %+v", s)
	}

	s, err = plain.NewState(1, 10, Params{})
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	if s.Label != Unlabeled {
		t.Fatalf("unlabeled connection got label %d", s.Label)
	}
}

func TestStatusMapRoundTrip(t *testing.T) {
	tb := model.TimeBase{ResolutionMS: 0.1}
	m := NewStatic("static_labeled", true)
	s, err := m.NewState(1.5, 10, Params{Label: Int(3)})
	if err != nil {
		t.Fatalf("new state: %v", err)
	}

	status := m.StatusMap(s, tb)
	if status["weight"] != 1.5 || status["delay_ms"] != 1.0 {
		t.Fatalf("unexpected status: %v", status)
	}
	if status["label"] != int64(3) {
		t.Fatalf("unexpected label: %v", status["label"])
	}

	if err := m.ApplyStatus(&s, map[string]any{"weight": 2.25, "label": 9}); err != nil {
		t.Fatalf("apply status: %v", err)
	}
	if s.Weight != 2.25 || s.Label != 9 {
		t.Fatalf("status not applied: %+v", s)
	}
	if err := m.ApplyStatus(&s, map[string]any{"tau": 1.0}); !errors.Is(err, ErrBadParameter) {
		t.Fatalf("expected unknown-key rejection, got: %v", err)
	}
}

func TestSTDPModTriggerUpdate(t *testing.T) {
	m := NewSTDPMod("stdp_mod", 20.0, 0.1)
	s, err := m.NewState(1.0, 10, Params{})
	if err != nil {
		t.Fatalf("new state: %v", err)
	}

	m.TriggerUpdate(&s, []model.TimedCount{{TimeMS: 10, Count: 2}}, 10)
	if s.Weight <= 1.0 {
		t.Fatalf("weight should grow after modulatory events, got %g", s.Weight)
	}
	if s.Aux[0] != 2.0 {
		t.Fatalf("trace = %g, want 2", s.Aux[0])
	}

	// Trace decays when the broadcast moves time forward with no events.
	before := s.Aux[0]
	m.TriggerUpdate(&s, nil, 50)
	if s.Aux[0] >= before {
		t.Fatalf("trace should decay, got %g -> %g", before, s.Aux[0])
	}
}
