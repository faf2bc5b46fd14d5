// Package algorithms declares the quantum-classical algorithms available to
// a simulation.
package algorithms

import (
	"fmt"
	"sort"

	"github.com/san-kum/qclab/internal/dynamo"
	"github.com/san-kum/qclab/internal/tasks"
)

// MeanField is Ehrenfest dynamics: classical coordinates feel the
// wavefunction-averaged force while the wavefunction evolves under the
// Hamiltonian at the current coordinates.
var MeanField = &dynamo.AlgorithmTemplate{
	Name:     "mean_field",
	Defaults: map[string]any{},
	InitializationRecipe: dynamo.MustRecipe(
		dynamo.Entry{Index: 0, Step: dynamo.Step{Name: "assign_norm_factor_mf", Fn: tasks.AssignNormFactorMF}},
		dynamo.Entry{Index: 1, Step: dynamo.Step{Name: "assign_seed_to_parameters", Fn: tasks.AssignSeedToParameters}},
		dynamo.Entry{Index: 2, Step: dynamo.Step{Name: "initialize_z", Fn: tasks.InitializeZ}},
		dynamo.Entry{Index: 3, Step: dynamo.Step{Name: "update_h_quantum", Fn: tasks.UpdateHQuantum}},
	),
	UpdateRecipe: dynamo.MustRecipe(
		dynamo.Entry{Index: 0, Step: dynamo.Step{Name: "update_h_quantum", Fn: tasks.UpdateHQuantum}},
		dynamo.Entry{Index: 1, Step: dynamo.Step{Name: "update_z_rk4", Fn: tasks.UpdateZRK4}},
		dynamo.Entry{Index: 2, Step: dynamo.Step{Name: "update_wf_db_rk4", Fn: tasks.UpdateWfDbRK4}},
	),
	OutputRecipe: dynamo.MustRecipe(
		dynamo.Entry{Index: 0, Step: dynamo.Step{Name: "update_dm_db_mf", Fn: tasks.UpdateDmDbMF}},
		dynamo.Entry{Index: 1, Step: dynamo.Step{Name: "update_quantum_energy", Fn: tasks.UpdateQuantumEnergy}},
		dynamo.Entry{Index: 2, Step: dynamo.Step{Name: "update_classical_energy", Fn: tasks.UpdateClassicalEnergy}},
	),
	OutputVariables: []string{
		tasks.FieldDmDb,
		tasks.FieldClassicalEnergy,
		tasks.FieldQuantumEnergy,
	},
	TestRecipe: dynamo.Sequence(
		dynamo.Step{Name: "check_finite", Fn: tasks.CheckFinite(tasks.FieldZ, tasks.FieldWfDb)},
	),
}

func NewMeanField(overrides map[string]any) (*dynamo.Algorithm, error) {
	return dynamo.NewAlgorithm(MeanField, overrides)
}

var registry = map[string]*dynamo.AlgorithmTemplate{
	MeanField.Name: MeanField,
}

func New(name string, overrides map[string]any) (*dynamo.Algorithm, error) {
	tmpl, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown algorithm: %s", name)
	}
	return dynamo.NewAlgorithm(tmpl, overrides)
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for k := range registry {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
