// Package dynamics propagates one batch of trajectories through an
// algorithm's recipes.
package dynamics

import (
	"context"
	"fmt"

	"github.com/san-kum/qclab/internal/batch"
	"github.com/san-kum/qclab/internal/dynamo"
)

// Integrator runs one batch and merges its trajectories into data, which may
// be nil. It returns the data holding the merged result.
type Integrator func(ctx context.Context, sim *dynamo.Simulation, b batch.Batch, data *dynamo.Data) (*dynamo.Data, error)

var _ Integrator = Run

// Run executes the initialization recipe once, then walks the time grid:
// at every output step it runs the output and test recipes and records the
// output variables, and between grid points it runs the update recipe.
func Run(ctx context.Context, sim *dynamo.Simulation, b batch.Batch, data *dynamo.Data) (*dynamo.Data, error) {
	if err := sim.Validate(); err != nil {
		return nil, err
	}
	if b.Size != len(b.Seeds) || b.Size == 0 {
		return nil, fmt.Errorf("dynamics: batch %d has size %d for %d seeds", b.Index, b.Size, len(b.Seeds))
	}

	alg := sim.Algorithm
	ts := sim.Timesteps()
	p := dynamo.NewVector(b.Seeds)
	s := sim.BatchState(b.Seeds)

	p, s, err := alg.Execute(ctx, sim, alg.InitializationRecipe, p, s)
	if err != nil {
		return nil, fmt.Errorf("batch %d initialization: %w", b.Index, err)
	}

	out := dynamo.NewData()
	if err := out.Begin(b.Seeds, ts.Output); err != nil {
		return nil, err
	}

	for k := 0; k < ts.Steps; k++ {
		if k%ts.Stride == 0 {
			if p, s, err = alg.Execute(ctx, sim, alg.OutputRecipe, p, s); err != nil {
				return nil, fmt.Errorf("batch %d output at step %d: %w", b.Index, k, err)
			}
			if p, s, err = alg.Execute(ctx, sim, alg.TestRecipe, p, s); err != nil {
				return nil, fmt.Errorf("batch %d check at step %d: %w", b.Index, k, err)
			}
			if err := record(out, k/ts.Stride, alg.OutputVariables, p, s); err != nil {
				return nil, fmt.Errorf("batch %d step %d: %w", b.Index, k, err)
			}
		}
		if k < ts.Steps-1 {
			if p, s, err = alg.Execute(ctx, sim, alg.UpdateRecipe, p, s); err != nil {
				return nil, fmt.Errorf("batch %d update at step %d: %w", b.Index, k, err)
			}
		}
	}

	if data == nil {
		return out, nil
	}
	if err := data.Merge(out); err != nil {
		return nil, err
	}
	return data, nil
}

// record stores every output variable, read from the state first and the
// parameter second.
func record(out *dynamo.Data, t int, names []string, p, s *dynamo.Vector) error {
	for _, name := range names {
		a, ok := s.Get(name)
		if !ok {
			if a, ok = p.Get(name); !ok {
				return fmt.Errorf("%w: output variable %s", dynamo.ErrMissingField, name)
			}
		}
		if err := out.Record(t, name, a); err != nil {
			return err
		}
	}
	return nil
}
