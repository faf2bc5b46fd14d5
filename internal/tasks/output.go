package tasks

import (
	"fmt"

	"github.com/san-kum/qclab/internal/dynamo"
)

// UpdateDmDbMF stores the pure-state density matrix wf wf^dagger.
func UpdateDmDbMF(_ *dynamo.Algorithm, _ *dynamo.Simulation, p, s *dynamo.Vector) (*dynamo.Vector, *dynamo.Vector, error) {
	wf, err := s.Field(FieldWfDb)
	if err != nil {
		return p, s, err
	}
	batch, n := wf.Shape[0], wf.Stride()
	dm := dynamo.NewArray(batch, n, n)
	for b := 0; b < batch; b++ {
		psi, dst := wf.Row(b), dm.Row(b)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				dst[i*n+j] = psi[i] * conj(psi[j])
			}
		}
	}
	s.Set(FieldDmDb, dm)
	return p, s, nil
}

// UpdateQuantumEnergy stores <wf|h_quantum|wf>.
func UpdateQuantumEnergy(_ *dynamo.Algorithm, _ *dynamo.Simulation, p, s *dynamo.Vector) (*dynamo.Vector, *dynamo.Vector, error) {
	wf, err := s.Field(FieldWfDb)
	if err != nil {
		return p, s, err
	}
	h, err := s.Field(FieldHQuantum)
	if err != nil {
		return p, s, err
	}
	batch, n := wf.Shape[0], wf.Stride()
	if len(h.Data) != batch*n*n {
		return p, s, fmt.Errorf("%w: h_quantum shape %v for wavefunction %v", dynamo.ErrDimensionMismatch, h.Shape, wf.Shape)
	}
	e := dynamo.NewRealArray(batch)
	for b := 0; b < batch; b++ {
		psi, hb := wf.Row(b), h.Row(b)
		var acc complex128
		for i := 0; i < n; i++ {
			ci := conj(psi[i])
			for j := 0; j < n; j++ {
				acc += ci * hb[i*n+j] * psi[j]
			}
		}
		e.Data[b] = complex(real(acc), 0)
	}
	s.Set(FieldQuantumEnergy, e)
	return p, s, nil
}

// UpdateClassicalEnergy stores H_c(z), zero when the model has no classical
// Hamiltonian.
func UpdateClassicalEnergy(_ *dynamo.Algorithm, sim *dynamo.Simulation, p, s *dynamo.Vector) (*dynamo.Vector, *dynamo.Vector, error) {
	z, err := s.Field(FieldZ)
	if err != nil {
		return p, s, err
	}
	e, err := sim.Model.HC(p, z)
	if err != nil {
		return p, s, err
	}
	if e == nil {
		e = dynamo.NewRealArray(s.BatchSize())
	}
	e.Real = true
	s.Set(FieldClassicalEnergy, e)
	return p, s, nil
}

// CheckFinite returns a step failing with dynamo.ErrInvalidState when any
// named state field holds NaN or Inf.
func CheckFinite(names ...string) dynamo.StepFunc {
	return func(_ *dynamo.Algorithm, _ *dynamo.Simulation, p, s *dynamo.Vector) (*dynamo.Vector, *dynamo.Vector, error) {
		for _, name := range names {
			a, err := s.Field(name)
			if err != nil {
				return p, s, err
			}
			if !a.IsFinite() {
				return p, s, fmt.Errorf("%w: %s", dynamo.ErrInvalidState, name)
			}
		}
		return p, s, nil
	}
}
