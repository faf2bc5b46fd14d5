package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/qclab/internal/algorithms"
	"github.com/san-kum/qclab/internal/dynamo"
	"github.com/san-kum/qclab/internal/models"
)

type Registry struct {
	models     map[string]models.Constructor
	algorithms map[string]func(map[string]any) (*dynamo.Algorithm, error)
}

func NewRegistry() *Registry {
	r := &Registry{
		models:     make(map[string]models.Constructor),
		algorithms: make(map[string]func(map[string]any) (*dynamo.Algorithm, error)),
	}

	for _, name := range models.Names() {
		r.models[name] = func(overrides map[string]any, opts ...dynamo.ModelOption) (*dynamo.Model, error) {
			return models.New(name, overrides, opts...)
		}
	}
	for _, name := range algorithms.Names() {
		r.algorithms[name] = func(overrides map[string]any) (*dynamo.Algorithm, error) {
			return algorithms.New(name, overrides)
		}
	}
	return r
}

// RegisterModel adds or replaces a model constructor.
func (r *Registry) RegisterModel(name string, ctor models.Constructor) {
	r.models[name] = ctor
}

// RegisterAlgorithm adds or replaces an algorithm constructor.
func (r *Registry) RegisterAlgorithm(name string, ctor func(map[string]any) (*dynamo.Algorithm, error)) {
	r.algorithms[name] = ctor
}

func (r *Registry) GetModel(name string, constants map[string]any, opts ...dynamo.ModelOption) (*dynamo.Model, error) {
	fn, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", name)
	}
	return fn(constants, opts...)
}

func (r *Registry) GetAlgorithm(name string, settings map[string]any) (*dynamo.Algorithm, error) {
	fn, ok := r.algorithms[name]
	if !ok {
		return nil, fmt.Errorf("unknown algorithm: %s", name)
	}
	return fn(settings)
}

func (r *Registry) ListModels() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) ListAlgorithms() []string {
	names := make([]string, 0, len(r.algorithms))
	for name := range r.algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
