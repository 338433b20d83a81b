// Package netspec loads and validates the declarative network
// description: populations of nodes and the projections connecting
// them. The description is placement-free; ranks and threads are an
// execution concern resolved by the builder.
package netspec

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"synaptor/internal/model"
)

// Spec is one network description.
type Spec struct {
	// Name identifies the network in exports and snapshots.
	Name string `yaml:"name"`

	// ResolutionMS is the simulation time base; zero takes the default.
	ResolutionMS float64 `yaml:"resolution_ms,omitempty"`

	// Ranks and Threads shape the execution layout. Zero means one.
	Ranks   int `yaml:"ranks,omitempty"`
	Threads int `yaml:"threads,omitempty"`

	// MinDelayMS/MaxDelayMS pin the delay extrema; both or neither.
	MinDelayMS float64 `yaml:"min_delay_ms,omitempty"`
	MaxDelayMS float64 `yaml:"max_delay_ms,omitempty"`

	KeepSourceTable bool `yaml:"keep_source_table,omitempty"`
	BufferCapacity  int  `yaml:"buffer_capacity,omitempty"`

	Populations []Population `yaml:"populations"`
	Projections []Projection `yaml:"projections"`
}

// Population is a named, contiguously-numbered group of identical
// nodes.
type Population struct {
	Name string `yaml:"name"`
	Size int    `yaml:"size"`

	// Kind is neuron, recorder or generator.
	Kind string `yaml:"kind,omitempty"`

	// first is the global id of the population's first member, assigned
	// during validation.
	first model.GlobalID
}

// Projection connects a source population to a target population under
// a named rule.
type Projection struct {
	Source  string `yaml:"source"`
	Target  string `yaml:"target"`
	Rule    string `yaml:"rule"`
	Synapse string `yaml:"synapse"`

	// Weights and DelaysMS follow the rule's parameter convention:
	// absent, one shared value, or one value per created connection.
	Weights  []float64 `yaml:"weights,omitempty"`
	DelaysMS []float64 `yaml:"delays_ms,omitempty"`

	Receptor  *int64 `yaml:"receptor,omitempty"`
	Label     *int64 `yaml:"label,omitempty"`
	Outdegree int    `yaml:"outdegree,omitempty"`
	Seed      int64  `yaml:"seed,omitempty"`
}

const (
	KindNeuron    = "neuron"
	KindRecorder  = "recorder"
	KindGenerator = "generator"
)

// Load reads and validates a spec file.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read network spec: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a spec document, rejecting unknown
// fields.
func Parse(data []byte) (*Spec, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Spec
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode network spec: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the description and assigns global id ranges to the
// populations, in declaration order starting at 1.
func (s *Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("network name is required")
	}
	if s.ResolutionMS < 0 {
		return fmt.Errorf("resolution_ms must be >= 0, got %v", s.ResolutionMS)
	}
	if s.Ranks < 0 || s.Threads < 0 {
		return fmt.Errorf("ranks and threads must be >= 0")
	}
	if s.Ranks == 0 {
		s.Ranks = 1
	}
	if s.Threads == 0 {
		s.Threads = 1
	}
	if (s.MinDelayMS == 0) != (s.MaxDelayMS == 0) {
		return fmt.Errorf("min_delay_ms and max_delay_ms must be set together")
	}
	if s.MinDelayMS > s.MaxDelayMS {
		return fmt.Errorf("min_delay_ms %v exceeds max_delay_ms %v", s.MinDelayMS, s.MaxDelayMS)
	}
	if s.BufferCapacity < 0 {
		return fmt.Errorf("buffer_capacity must be >= 0, got %d", s.BufferCapacity)
	}
	if len(s.Populations) == 0 {
		return fmt.Errorf("at least one population is required")
	}

	next := model.GlobalID(1)
	byName := make(map[string]*Population, len(s.Populations))
	for i := range s.Populations {
		p := &s.Populations[i]
		if p.Name == "" {
			return fmt.Errorf("population name is required")
		}
		if _, exists := byName[p.Name]; exists {
			return fmt.Errorf("duplicate population: %s", p.Name)
		}
		if p.Size <= 0 {
			return fmt.Errorf("population %s needs size > 0, got %d", p.Name, p.Size)
		}
		switch p.Kind {
		case "":
			p.Kind = KindNeuron
		case KindNeuron, KindRecorder, KindGenerator:
		default:
			return fmt.Errorf("population %s has unknown kind %q", p.Name, p.Kind)
		}
		p.first = next
		next += model.GlobalID(p.Size)
		byName[p.Name] = p
	}

	for i, proj := range s.Projections {
		src, ok := byName[proj.Source]
		if !ok {
			return fmt.Errorf("projection %d references unknown source population %q", i, proj.Source)
		}
		tgt, ok := byName[proj.Target]
		if !ok {
			return fmt.Errorf("projection %d references unknown target population %q", i, proj.Target)
		}
		if proj.Rule == "" {
			return fmt.Errorf("projection %d: rule is required", i)
		}
		if proj.Synapse == "" {
			return fmt.Errorf("projection %d: synapse is required", i)
		}
		if src.Kind == KindRecorder {
			return fmt.Errorf("projection %d: recorders cannot be sources", i)
		}
		if tgt.Kind == KindGenerator {
			return fmt.Errorf("projection %d: generators cannot be targets", i)
		}
		for _, d := range proj.DelaysMS {
			if d <= 0 {
				return fmt.Errorf("projection %d: delays must be > 0, got %v", i, d)
			}
		}
	}
	return nil
}

// Population returns the named population.
func (s *Spec) Population(name string) (*Population, bool) {
	for i := range s.Populations {
		if s.Populations[i].Name == name {
			return &s.Populations[i], true
		}
	}
	return nil, false
}

// GIDs lists the global ids of the population's members.
func (p *Population) GIDs() []model.GlobalID {
	out := make([]model.GlobalID, p.Size)
	for i := range out {
		out[i] = p.first + model.GlobalID(i)
	}
	return out
}

// First is the global id of the population's first member.
func (p *Population) First() model.GlobalID { return p.first }

// TotalNodes is the number of nodes the description declares.
func (s *Spec) TotalNodes() int {
	total := 0
	for _, p := range s.Populations {
		total += p.Size
	}
	return total
}

// TimeBase is the spec's time base, defaulted when unset.
func (s *Spec) TimeBase() model.TimeBase {
	if s.ResolutionMS == 0 {
		return model.DefaultTimeBase()
	}
	return model.TimeBase{ResolutionMS: s.ResolutionMS}
}
