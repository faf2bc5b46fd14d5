package tasks

import (
	"fmt"

	"github.com/san-kum/qclab/internal/dynamo"
)

// AssignNormFactorMF records the number of trajectories a mean-field batch
// averages over.
func AssignNormFactorMF(_ *dynamo.Algorithm, _ *dynamo.Simulation, p, s *dynamo.Vector) (*dynamo.Vector, *dynamo.Vector, error) {
	p.SetScalar(ScalarNormFactor, float64(s.BatchSize()))
	return p, s, nil
}

// AssignSeedToParameters copies the batch seeds into the parameter and the
// state as real arrays.
func AssignSeedToParameters(_ *dynamo.Algorithm, _ *dynamo.Simulation, p, s *dynamo.Vector) (*dynamo.Vector, *dynamo.Vector, error) {
	seeds := dynamo.NewRealArray(len(s.Seeds))
	for i, sd := range s.Seeds {
		seeds.Data[i] = complex(float64(sd), 0)
	}
	p.Set(FieldSeed, seeds)
	s.Set(FieldSeed, seeds.Clone())
	return p, s, nil
}

// InitializeZ samples the classical coordinates of every seed.
func InitializeZ(_ *dynamo.Algorithm, sim *dynamo.Simulation, p, s *dynamo.Vector) (*dynamo.Vector, *dynamo.Vector, error) {
	z, err := sim.Model.InitClassical(s.Seeds)
	if err != nil {
		return p, s, err
	}
	if len(z.Shape) == 0 || z.Shape[0] != s.BatchSize() {
		return p, s, fmt.Errorf("%w: init_classical returned shape %v for %d seeds", dynamo.ErrDimensionMismatch, z.Shape, s.BatchSize())
	}
	s.Set(FieldZ, z)
	return p, s, nil
}

// UpdateHQuantum sets h_quantum = H_q + H_qc(z). Missing ingredients count
// as zero.
func UpdateHQuantum(_ *dynamo.Algorithm, sim *dynamo.Simulation, p, s *dynamo.Vector) (*dynamo.Vector, *dynamo.Vector, error) {
	z, err := s.Field(FieldZ)
	if err != nil {
		return p, s, err
	}
	n, err := sim.Model.NumQuantumStates()
	if err != nil {
		return p, s, err
	}
	batch := s.BatchSize()
	h := dynamo.NewArray(batch, n, n)

	hq, err := sim.Model.HQ(p, batch)
	if err != nil {
		return p, s, err
	}
	hqc, err := sim.Model.HQC(p, z)
	if err != nil {
		return p, s, err
	}
	for _, term := range []*dynamo.Array{hq, hqc} {
		if term == nil {
			continue
		}
		if !term.SameShape(h) {
			return p, s, fmt.Errorf("%w: hamiltonian term shape %v, want %v", dynamo.ErrDimensionMismatch, term.Shape, h.Shape)
		}
		for i, v := range term.Data {
			h.Data[i] += v
		}
	}
	s.Set(FieldHQuantum, h)
	return p, s, nil
}
