package synapse

import (
	"fmt"
	"math"

	"synaptor/internal/model"
)

// DefaultModels returns the model set registered by the standard build:
// plain and labeled static synapses, a secondary rate connection and a
// modulated plastic synapse.
func DefaultModels() []Model {
	return []Model{
		NewStatic("static", false),
		NewStatic("static_labeled", true),
		NewRateConnection("rate_connection"),
		NewSTDPMod("stdp_mod", 20.0, 0.01),
	}
}

// Static is a fixed-weight synapse. The labeled variant additionally
// carries a query label.
type Static struct {
	name    string
	labeled bool
}

func NewStatic(name string, labeled bool) *Static {
	return &Static{name: name, labeled: labeled}
}

func (m *Static) Name() string               { return m.name }
func (m *Static) EventKind() model.EventKind { return model.SpikeEvent }
func (m *Static) Primary() bool              { return true }
func (m *Static) SupportsLabel() bool        { return m.labeled }
func (m *Static) Triggered() bool            { return false }
func (m *Static) DefaultWeight() float64     { return 1.0 }
func (m *Static) DefaultDelayMS() float64    { return 1.0 }

func (m *Static) NewState(weight float64, delay model.Steps, p Params) (State, error) {
	label, err := labelFor(m, p)
	if err != nil {
		return State{}, err
	}
	if err := rejectExtra(m.name, p.Extra); err != nil {
		return State{}, err
	}
	return State{Weight: weight, Delay: delay, Label: label}, nil
}

func (m *Static) StatusMap(s State, tb model.TimeBase) map[string]any {
	return baseStatus(m.name, s, tb)
}

func (m *Static) ApplyStatus(s *State, status map[string]any) error {
	return applyBaseStatus(m, s, status, nil)
}

func (m *Static) TriggerUpdate(*State, []model.TimedCount, float64) {}

// RateConnection transmits a continuous payload on the secondary
// delivery path.
type RateConnection struct {
	name string
}

func NewRateConnection(name string) *RateConnection {
	return &RateConnection{name: name}
}

func (m *RateConnection) Name() string               { return m.name }
func (m *RateConnection) EventKind() model.EventKind { return model.RateEvent }
func (m *RateConnection) Primary() bool              { return false }
func (m *RateConnection) SupportsLabel() bool        { return false }
func (m *RateConnection) Triggered() bool            { return false }
func (m *RateConnection) DefaultWeight() float64     { return 1.0 }
func (m *RateConnection) DefaultDelayMS() float64    { return 1.0 }

func (m *RateConnection) NewState(weight float64, delay model.Steps, p Params) (State, error) {
	label, err := labelFor(m, p)
	if err != nil {
		return State{}, err
	}
	if err := rejectExtra(m.name, p.Extra); err != nil {
		return State{}, err
	}
	return State{Weight: weight, Delay: delay, Label: label}, nil
}

func (m *RateConnection) StatusMap(s State, tb model.TimeBase) map[string]any {
	return baseStatus(m.name, s, tb)
}

func (m *RateConnection) ApplyStatus(s *State, status map[string]any) error {
	return applyBaseStatus(m, s, status, nil)
}

func (m *RateConnection) TriggerUpdate(*State, []model.TimedCount, float64) {}

// STDPMod is a plastic synapse whose weight is driven by modulatory
// event broadcasts from a registered emitter. Per-connection Aux layout:
// [0] eligibility trace, [1] time of last trace update in ms.
type STDPMod struct {
	name   string
	tauMS  float64
	lambda float64
}

func NewSTDPMod(name string, tauMS, lambda float64) *STDPMod {
	return &STDPMod{name: name, tauMS: tauMS, lambda: lambda}
}

func (m *STDPMod) Name() string               { return m.name }
func (m *STDPMod) EventKind() model.EventKind { return model.SpikeEvent }
func (m *STDPMod) Primary() bool              { return true }
func (m *STDPMod) SupportsLabel() bool        { return false }
func (m *STDPMod) Triggered() bool            { return true }
func (m *STDPMod) DefaultWeight() float64     { return 1.0 }
func (m *STDPMod) DefaultDelayMS() float64    { return 1.0 }

func (m *STDPMod) NewState(weight float64, delay model.Steps, p Params) (State, error) {
	label, err := labelFor(m, p)
	if err != nil {
		return State{}, err
	}
	trace := 0.0
	for key, value := range p.Extra {
		switch key {
		case "trace":
			trace = value
		default:
			return State{}, fmt.Errorf("%w: %s does not define %q", ErrBadParameter, m.name, key)
		}
	}
	return State{Weight: weight, Delay: delay, Label: label, Aux: []float64{trace, 0}}, nil
}

func (m *STDPMod) StatusMap(s State, tb model.TimeBase) map[string]any {
	status := baseStatus(m.name, s, tb)
	status["trace"] = s.Aux[0]
	return status
}

func (m *STDPMod) ApplyStatus(s *State, status map[string]any) error {
	return applyBaseStatus(m, s, status, func(key string, value float64) error {
		if key != "trace" {
			return fmt.Errorf("%w: %s does not define %q", ErrBadParameter, m.name, key)
		}
		s.Aux[0] = value
		return nil
	})
}

func (m *STDPMod) TriggerUpdate(s *State, events []model.TimedCount, nowMS float64) {
	trace, last := s.Aux[0], s.Aux[1]
	for _, ev := range events {
		trace = trace*math.Exp((last-ev.TimeMS)/m.tauMS) + float64(ev.Count)
		last = ev.TimeMS
	}
	trace *= math.Exp((last - nowMS) / m.tauMS)
	s.Weight += m.lambda * trace
	s.Aux[0], s.Aux[1] = trace, nowMS
}

func labelFor(m Model, p Params) (int64, error) {
	if !p.Label.Valid {
		return Unlabeled, nil
	}
	if !m.SupportsLabel() {
		return 0, fmt.Errorf("%w: %s does not support labels", ErrBadParameter, m.Name())
	}
	return p.Label.Value, nil
}

func rejectExtra(name string, extra map[string]float64) error {
	for key := range extra {
		return fmt.Errorf("%w: %s does not define %q", ErrBadParameter, name, key)
	}
	return nil
}

func baseStatus(name string, s State, tb model.TimeBase) map[string]any {
	status := map[string]any{
		"synapse_model": name,
		"weight":        s.Weight,
		"delay_ms":      tb.MS(s.Delay),
	}
	if s.Label != Unlabeled {
		status["label"] = s.Label
	}
	return status
}

// applyBaseStatus handles the fields shared by all models and hands
// unknown keys to the model-specific extra handler. The delay_ms key is
// the manager's responsibility and is skipped here.
func applyBaseStatus(m Model, s *State, status map[string]any, extra func(string, float64) error) error {
	for key, raw := range status {
		switch key {
		case "synapse_model", "delay_ms":
			continue
		case "weight":
			v, ok := asFloat(raw)
			if !ok {
				return fmt.Errorf("%w: weight must be numeric", ErrBadParameter)
			}
			s.Weight = v
		case "label":
			v, ok := asInt(raw)
			if !ok {
				return fmt.Errorf("%w: label must be an integer", ErrBadParameter)
			}
			if !m.SupportsLabel() {
				return fmt.Errorf("%w: %s does not support labels", ErrBadParameter, m.Name())
			}
			s.Label = v
		default:
			v, ok := asFloat(raw)
			if !ok {
				return fmt.Errorf("%w: %s must be numeric", ErrBadParameter, key)
			}
			if extra == nil {
				return fmt.Errorf("%w: %s does not define %q", ErrBadParameter, m.Name(), key)
			}
			if err := extra(key, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

func asInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int64:
		return x, true
	case float64:
		if x == math.Trunc(x) {
			return int64(x), true
		}
		return 0, false
	default:
		return 0, false
	}
}
