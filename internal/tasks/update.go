package tasks

import (
	"fmt"

	"github.com/san-kum/qclab/internal/dynamo"
	"github.com/san-kum/qclab/internal/integrators"
)

// meanFieldForce returns F_j = <wf|dH_qc/dz*_j|wf> for every batch member.
func meanFieldForce(d *dynamo.Array, wf *dynamo.Array, nc, n int) []complex128 {
	batch := wf.Shape[0]
	out := make([]complex128, batch*nc)
	for b := 0; b < batch; b++ {
		psi := wf.Row(b)
		db := d.Row(b)
		for j := 0; j < nc; j++ {
			m := db[j*n*n : (j+1)*n*n]
			var f complex128
			for a := 0; a < n; a++ {
				ca := conj(psi[a])
				for c := 0; c < n; c++ {
					if v := m[a*n+c]; v != 0 {
						f += ca * v * psi[c]
					}
				}
			}
			out[b*nc+j] = f
		}
	}
	return out
}

// UpdateZRK4 advances z by one step of dz/dt = -i (dH_c/dz* + F) with the
// wavefunction held fixed.
func UpdateZRK4(_ *dynamo.Algorithm, sim *dynamo.Simulation, p, s *dynamo.Vector) (*dynamo.Vector, *dynamo.Vector, error) {
	z, err := s.Field(FieldZ)
	if err != nil {
		return p, s, err
	}
	wf, err := s.Field(FieldWfDb)
	if err != nil {
		return p, s, err
	}
	n, err := sim.Model.NumQuantumStates()
	if err != nil {
		return p, s, err
	}
	nc := z.Stride()

	deriv := func(_ float64, y, dy []complex128) error {
		at := &dynamo.Array{Shape: z.Shape, Data: y}
		grad, err := sim.Model.DHCDZC(p, at)
		if err != nil {
			return err
		}
		clear(dy)
		if grad != nil {
			if len(grad.Data) != len(y) {
				return fmt.Errorf("%w: dh_c/dz* shape %v, want %v", dynamo.ErrDimensionMismatch, grad.Shape, z.Shape)
			}
			copy(dy, grad.Data)
		}
		d, err := sim.Model.DHQCDZC(p, at)
		if err != nil {
			return err
		}
		if d != nil {
			if len(d.Data) != len(y)*n*n {
				return fmt.Errorf("%w: dh_qc/dz* shape %v", dynamo.ErrDimensionMismatch, d.Shape)
			}
			for i, f := range meanFieldForce(d, wf, nc, n) {
				dy[i] += f
			}
		}
		for i := range dy {
			dy[i] *= -1i
		}
		return nil
	}

	next, err := integrators.NewRK4().Step(deriv, z.Data, 0, sim.Dt())
	if err != nil {
		return p, s, err
	}
	s.Set(FieldZ, &dynamo.Array{Shape: append([]int(nil), z.Shape...), Data: next})
	return p, s, nil
}

// UpdateWfDbRK4 advances the diabatic wavefunction by one step of
// dwf/dt = -i h_quantum wf.
func UpdateWfDbRK4(_ *dynamo.Algorithm, sim *dynamo.Simulation, p, s *dynamo.Vector) (*dynamo.Vector, *dynamo.Vector, error) {
	wf, err := s.Field(FieldWfDb)
	if err != nil {
		return p, s, err
	}
	h, err := s.Field(FieldHQuantum)
	if err != nil {
		return p, s, err
	}
	n := wf.Stride()
	if len(h.Data) != len(wf.Data)*n {
		return p, s, fmt.Errorf("%w: h_quantum shape %v for wavefunction %v", dynamo.ErrDimensionMismatch, h.Shape, wf.Shape)
	}

	deriv := func(_ float64, y, dy []complex128) error {
		for b := 0; b < len(y)/n; b++ {
			hb := h.Row(b)
			psi := y[b*n : (b+1)*n]
			for i := 0; i < n; i++ {
				var acc complex128
				for j := 0; j < n; j++ {
					acc += hb[i*n+j] * psi[j]
				}
				dy[b*n+i] = -1i * acc
			}
		}
		return nil
	}

	next, err := integrators.NewRK4().Step(deriv, wf.Data, 0, sim.Dt())
	if err != nil {
		return p, s, err
	}
	s.Set(FieldWfDb, &dynamo.Array{Shape: append([]int(nil), wf.Shape...), Data: next})
	return p, s, nil
}

func conj(v complex128) complex128 { return complex(real(v), -imag(v)) }
