package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for recipe, model and ensemble operations.
var (
	// ErrDuplicateStep indicates two steps registered under one index.
	ErrDuplicateStep = errors.New("dynamo: duplicate step index")

	// ErrUnknownStep indicates a replace against an index with no step.
	ErrUnknownStep = errors.New("dynamo: no step at index")

	// ErrNilStep indicates a step without a function.
	ErrNilStep = errors.New("dynamo: step function is nil")

	// ErrIncompatibleStep indicates a step that returned no parameter or state.
	ErrIncompatibleStep = errors.New("dynamo: step returned nil parameter or state")

	// ErrMissingField indicates a recipe read a field no earlier step wrote.
	ErrMissingField = errors.New("dynamo: field not present")

	// ErrDimensionMismatch indicates arrays whose shapes do not agree.
	ErrDimensionMismatch = errors.New("dynamo: array shape mismatch")

	// ErrInvalidState indicates NaN or Inf in a propagated field.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrNoIngredient indicates a recipe needs an ingredient the model lacks.
	ErrNoIngredient = errors.New("dynamo: model does not provide ingredient")

	// ErrNoCommunicator indicates the parallel facility is missing.
	ErrNoCommunicator = errors.New("dynamo: parallel communicator unavailable")

	// ErrSeedOverlap indicates a merge of data sets sharing a seed.
	ErrSeedOverlap = errors.New("dynamo: seed already present in data")

	// ErrSeedMismatch indicates a seed record that is not a permutation of
	// the seeds held by the data.
	ErrSeedMismatch = errors.New("dynamo: seed record does not match held seeds")
)

// ConfigError reports an unrecognized, missing or invalid setting found while
// constructing an algorithm, model or simulation.
type ConfigError struct {
	Owner string
	Key   string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s config: %v", e.Owner, e.Err)
	}
	return fmt.Sprintf("%s config %q: %v", e.Owner, e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// RecipeError reports a malformed recipe or a failing step.
type RecipeError struct {
	Index int
	Name  string
	Err   error
}

func (e *RecipeError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("recipe step %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("recipe step %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *RecipeError) Unwrap() error { return e.Err }

// EnvironmentError reports that the parallel facility cannot be used.
type EnvironmentError struct {
	Facility string
	Err      error
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("environment %s: %v", e.Facility, e.Err)
}

func (e *EnvironmentError) Unwrap() error { return e.Err }
