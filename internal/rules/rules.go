// Package rules resolves named connectivity rules against an immutable
// registry built at start-up and drives the connection manager's connect
// primitives through the narrow ConnectTarget surface.
package rules

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"synaptor/internal/model"
	"synaptor/internal/synapse"
)

var ErrRuleNotFound = errors.New("connection rule not found")

// ConnectTarget is the connect surface a rule builder drives. The
// connection manager implements it; builders never see more of the
// manager than this.
type ConnectTarget interface {
	Connect(source, target model.GlobalID, synapseModel string, p synapse.Params) error
}

// Spec carries the synapse-parameter record of a bulk connect. Weights
// and delays are either absent (model default), a single shared value,
// or one value per created connection in the builder's pair order.
type Spec struct {
	Synapse   string
	Weights   []float64
	DelaysMS  []float64
	Receptor  synapse.OptionalInt
	Label     synapse.OptionalInt
	Outdegree int
	Seed      int64
}

// Builder is one registered connectivity rule.
type Builder interface {
	Name() string
	Build(ctx context.Context, tgt ConnectTarget, sources, targets []model.GlobalID, spec Spec) error
}

// Registry is the immutable rule mapping passed into the manager's
// construction.
type Registry struct {
	byName map[string]Builder
	names  []string
}

func NewRegistry(builders ...Builder) (*Registry, error) {
	if len(builders) == 0 {
		return nil, fmt.Errorf("at least one connection rule is required")
	}
	r := &Registry{byName: make(map[string]Builder, len(builders))}
	for _, b := range builders {
		if b == nil {
			return nil, fmt.Errorf("connection rule is required")
		}
		name := b.Name()
		if name == "" {
			return nil, fmt.Errorf("connection rule name is required")
		}
		if _, exists := r.byName[name]; exists {
			return nil, fmt.Errorf("duplicate connection rule: %s", name)
		}
		r.byName[name] = b
		r.names = append(r.names, name)
	}
	return r, nil
}

func (r *Registry) Lookup(name string) (Builder, error) {
	b, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, name)
	}
	return b, nil
}

// Names returns rule names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// DefaultBuilders returns the rule set registered by the standard build.
func DefaultBuilders() []Builder {
	return []Builder{OneToOne{}, AllToAll{}, FixedOutdegree{}}
}

// paramsAt assembles the per-pair parameter record for pair index i of n.
func paramsAt(spec Spec, i, n int) (synapse.Params, error) {
	p := synapse.Params{Receptor: spec.Receptor, Label: spec.Label}
	pick := func(values []float64, what string) (synapse.OptionalDouble, error) {
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
	var err error
	if p.Weight, err = pick(spec.Weights, "weight"); err != nil {
		return synapse.Params{}, err
	}
	if p.DelayMS, err = pick(spec.DelaysMS, "delay"); err != nil {
		return synapse.Params{}, err
	}
	return p, nil
}

// OneToOne connects sources[i] to targets[i].
type OneToOne struct{}

func (OneToOne) Name() string { return "one_to_one" }

func (OneToOne) Build(ctx context.Context, tgt ConnectTarget, sources, targets []model.GlobalID, spec Spec) error {
	if len(sources) != len(targets) {
		return fmt.Errorf("one_to_one needs equal collections, got %d sources and %d targets", len(sources), len(targets))
	}
	n := len(sources)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := paramsAt(spec, i, n)
		if err != nil {
			return err
		}
		if err := tgt.Connect(sources[i], targets[i], spec.Synapse, p); err != nil {
			return err
		}
	}
	return nil
}

// AllToAll connects every source to every target; pair order is
// row-major by source.
type AllToAll struct{}

func (AllToAll) Name() string { return "all_to_all" }

func (AllToAll) Build(ctx context.Context, tgt ConnectTarget, sources, targets []model.GlobalID, spec Spec) error {
	n := len(sources) * len(targets)
	i := 0
	for _, s := range sources {
		for _, t := range targets {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := paramsAt(spec, i, n)
			if err != nil {
				return err
			}
			if err := tgt.Connect(s, t, spec.Synapse, p); err != nil {
				return err
			}
			i++
		}
	}
	return nil
}

// FixedOutdegree connects every source to Outdegree targets drawn with
// replacement from the target collection, deterministically from Seed.
type FixedOutdegree struct{}

func (FixedOutdegree) Name() string { return "fixed_outdegree" }

func (FixedOutdegree) Build(ctx context.Context, tgt ConnectTarget, sources, targets []model.GlobalID, spec Spec) error {
	if spec.Outdegree <= 0 {
		return fmt.Errorf("fixed_outdegree needs outdegree > 0, got %d", spec.Outdegree)
	}
	if len(targets) == 0 {
		return fmt.Errorf("fixed_outdegree needs a non-empty target collection")
	}
	rng := rand.New(rand.NewSource(spec.Seed))
	n := len(sources) * spec.Outdegree
	i := 0
	for _, s := range sources {
		for k := 0; k < spec.Outdegree; k++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := paramsAt(spec, i, n)
			if err != nil {
				return err
			}
			t := targets[rng.Intn(len(targets))]
			if err := tgt.Connect(s, t, spec.Synapse, p); err != nil {
				return err
			}
			i++
		}
	}
	return nil
}
