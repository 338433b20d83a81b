package synapse

import (
	"fmt"

	"synaptor/internal/model"
)

// Registry is the immutable synapse-model mapping. It is built once at
// start-up and passed into the connection manager's construction; there
// is no ambient mutable registry.
type Registry struct {
	models []Model
	byName map[string]model.SynIndex
}

func NewRegistry(models ...Model) (*Registry, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("at least one synapse model is required")
	}
	r := &Registry{
		models: make([]Model, 0, len(models)),
		byName: make(map[string]model.SynIndex, len(models)),
	}
	for _, m := range models {
		if m == nil {
			return nil, fmt.Errorf("synapse model is required")
		}
		name := m.Name()
		if name == "" {
			return nil, fmt.Errorf("synapse model name is required")
		}
		if _, exists := r.byName[name]; exists {
			return nil, fmt.Errorf("duplicate synapse model: %s", name)
		}
		r.byName[name] = model.SynIndex(len(r.models))
		r.models = append(r.models, m)
	}
	return r, nil
}

func (r *Registry) Lookup(name string) (model.SynIndex, Model, error) {
	idx, ok := r.byName[name]
	if !ok {
		return model.InvalidSynIndex, nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	return idx, r.models[idx], nil
}

func (r *Registry) Model(idx model.SynIndex) (Model, bool) {
	if idx < 0 || int(idx) >= len(r.models) {
		return nil, false
	}
	return r.models[idx], true
}

func (r *Registry) Len() int {
	return len(r.models)
}

// Names returns model names in registry (storage index) order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.models))
	for i, m := range r.models {
		names[i] = m.Name()
	}
	return names
}
