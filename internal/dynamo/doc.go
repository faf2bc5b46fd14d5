// Package dynamo provides the recipe engine for quantum-classical ensemble
// dynamics.
//
// The package defines the types every algorithm and model is assembled from:
//
//   - [Recipe]: ordered, integer-indexed sequence of named [Step] values
//   - [Execute]: runs a recipe against a (parameter, state) [Vector] pair
//   - [Algorithm]: initialization, update and output recipes plus settings
//   - [Model]: constants, ordered named initializers and Hamiltonian ingredients
//   - [Simulation]: binds a model and an algorithm to run settings
//   - [Data]: per-seed ensemble results with merge support
//
// # Templates
//
// Algorithm and model variants are declared as [AlgorithmTemplate] and
// [ModelTemplate] values. Constructors materialize private copies of the
// template recipes, so editing one instance never affects another:
//
//	mf, _ := algorithms.NewMeanField(nil)
//	mf.UpdateRecipe.Insert(5, dynamo.Step{Name: "log", Fn: logStep})
//
// # Thread Safety
//
// Algorithm, Model and Simulation are read-only while an ensemble runs.
// Their settings containers must only be mutated from one goroutine, before
// or after a run.
package dynamo
