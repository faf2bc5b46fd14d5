package models

import (
	"fmt"
	"sort"

	"github.com/san-kum/qclab/internal/dynamo"
)

// Constructor builds a model instance from constant overrides.
type Constructor func(overrides map[string]any, opts ...dynamo.ModelOption) (*dynamo.Model, error)

var registry = map[string]Constructor{
	SpinBoson.Name:  NewSpinBoson,
	FMOComplex.Name: NewFMOComplex,
}

var templates = map[string]*dynamo.ModelTemplate{
	SpinBoson.Name:  SpinBoson,
	FMOComplex.Name: FMOComplex,
}

func New(name string, overrides map[string]any, opts ...dynamo.ModelOption) (*dynamo.Model, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", name)
	}
	return ctor(overrides, opts...)
}

// Template returns the declaration of a registered model.
func Template(name string) (*dynamo.ModelTemplate, bool) {
	t, ok := templates[name]
	return t, ok
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for k := range registry {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
