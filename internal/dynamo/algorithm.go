package dynamo

import (
	"context"

	"github.com/san-kum/qclab/internal/settings"
)

// AlgorithmTemplate declares an algorithm variant. Templates are shared
// between instances and must not be edited after declaration.
type AlgorithmTemplate struct {
	Name     string
	Defaults map[string]any
	// UpdateSettings re-derives dependent settings after a mutation; nil
	// means no derived settings.
	UpdateSettings func(a *Algorithm) error

	InitializationRecipe Recipe
	UpdateRecipe         Recipe
	OutputRecipe         Recipe
	OutputVariables      []string
	TestRecipe           Recipe
}

type Algorithm struct {
	Name     string
	Settings *settings.Container

	InitializationRecipe Recipe
	UpdateRecipe         Recipe
	OutputRecipe         Recipe
	OutputVariables      []string
	TestRecipe           Recipe

	update func(a *Algorithm) error
}

// NewAlgorithm merges overrides onto the template defaults, finalizes the
// settings and copies the template recipes into the new instance.
func NewAlgorithm(tmpl *AlgorithmTemplate, overrides map[string]any) (*Algorithm, error) {
	merged, err := settings.Merge(tmpl.Defaults, overrides, true)
	if err != nil {
		return nil, &ConfigError{Owner: tmpl.Name, Err: err}
	}

	a := &Algorithm{Name: tmpl.Name, update: tmpl.UpdateSettings}
	a.Settings = settings.FromMap(merged, a.UpdateAlgorithmSettings)
	a.Settings.MarkComplete()
	if err := a.Settings.Recalculate(); err != nil {
		return nil, &ConfigError{Owner: tmpl.Name, Err: err}
	}

	a.InitializationRecipe = tmpl.InitializationRecipe.Clone()
	a.UpdateRecipe = tmpl.UpdateRecipe.Clone()
	a.OutputRecipe = tmpl.OutputRecipe.Clone()
	a.OutputVariables = append([]string(nil), tmpl.OutputVariables...)
	a.TestRecipe = tmpl.TestRecipe.Clone()
	return a, nil
}

// UpdateAlgorithmSettings is the settings callback.
func (a *Algorithm) UpdateAlgorithmSettings() error {
	if a.update == nil {
		return nil
	}
	return a.update(a)
}

// Execute runs r with this algorithm as the step handle.
func (a *Algorithm) Execute(ctx context.Context, sim *Simulation, r Recipe, p, s *Vector) (*Vector, *Vector, error) {
	return Execute(ctx, a, sim, r, p, s)
}

// Clone returns an independent instance with the same settings and recipes.
func (a *Algorithm) Clone() *Algorithm {
	c := &Algorithm{
		Name:                 a.Name,
		update:               a.update,
		InitializationRecipe: a.InitializationRecipe.Clone(),
		UpdateRecipe:         a.UpdateRecipe.Clone(),
		OutputRecipe:         a.OutputRecipe.Clone(),
		OutputVariables:      append([]string(nil), a.OutputVariables...),
		TestRecipe:           a.TestRecipe.Clone(),
	}
	c.Settings = settings.FromMap(a.Settings.Snapshot(), c.UpdateAlgorithmSettings)
	c.Settings.MarkComplete()
	return c
}
