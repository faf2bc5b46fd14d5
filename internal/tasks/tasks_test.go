package tasks

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/san-kum/qclab/internal/dynamo"
	"github.com/san-kum/qclab/internal/logging"
	"github.com/san-kum/qclab/internal/models"
)

func newSim(t *testing.T, modelOverrides map[string]any) *dynamo.Simulation {
	t.Helper()
	sim, err := dynamo.NewSimulation(map[string]any{"dt": 0.01, "tmax": 1.0, "dt_output": 0.1})
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}
	sim.Model, err = models.NewSpinBoson(modelOverrides, dynamo.WithModelLogger(logging.Noop()))
	if err != nil {
		t.Fatalf("NewSpinBoson: %v", err)
	}
	return sim
}

func groundState(batch int) *dynamo.Array {
	wf := dynamo.NewArray(batch, 2)
	for b := 0; b < batch; b++ {
		wf.Row(b)[0] = 1
	}
	return wf
}

func run(t *testing.T, sim *dynamo.Simulation, steps []dynamo.StepFunc, p, s *dynamo.Vector) (*dynamo.Vector, *dynamo.Vector) {
	t.Helper()
	var err error
	for i, fn := range steps {
		p, s, err = fn(nil, sim, p, s)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	return p, s
}

func TestInitializationSteps(t *testing.T) {
	sim := newSim(t, map[string]any{"A": 4})
	seeds := []int{7, 8, 9}
	p, s := dynamo.NewVector(seeds), dynamo.NewVector(seeds)
	s.Set(FieldWfDb, groundState(3))

	p, s = run(t, sim, []dynamo.StepFunc{AssignNormFactorMF, AssignSeedToParameters, InitializeZ, UpdateHQuantum}, p, s)

	if nf, _ := p.Scalar(ScalarNormFactor); nf != 3 {
		t.Errorf("norm_factor = %v, want 3", nf)
	}
	seed, _ := p.Field(FieldSeed)
	if real(seed.Data[2]) != 9 {
		t.Errorf("seed parameter = %v", seed.Data)
	}
	z, _ := s.Field(FieldZ)
	if z.Shape[0] != 3 || z.Shape[1] != 4 {
		t.Errorf("z shape = %v", z.Shape)
	}
	h, _ := s.Field(FieldHQuantum)
	if h.Shape[0] != 3 || h.Shape[1] != 2 || h.Shape[2] != 2 {
		t.Errorf("h_quantum shape = %v", h.Shape)
	}
	for b := 0; b < 3; b++ {
		r := h.Row(b)
		if r[1] != complex(0.5, 0) || r[2] != complex(0.5, 0) {
			t.Errorf("batch %d off-diagonal = %v %v, want V", b, r[1], r[2])
		}
	}
}

func TestUpdateWfDbRK4Phase(t *testing.T) {
	sim := newSim(t, nil)
	s := dynamo.NewVector([]int{0})
	s.Set(FieldWfDb, groundState(1))
	h := dynamo.NewArray(1, 2, 2)
	h.Data[0], h.Data[3] = 2, -1
	s.Set(FieldHQuantum, h)

	p := dynamo.NewVector([]int{0})
	for k := 0; k < 100; k++ {
		p, s = run(t, sim, []dynamo.StepFunc{UpdateWfDbRK4}, p, s)
	}
	wf, _ := s.Field(FieldWfDb)
	want := cmplx.Exp(complex(0, -2*1.0))
	if cmplx.Abs(wf.Data[0]-want) > 1e-8 || wf.Data[1] != 0 {
		t.Errorf("wf = %v, want [%v 0]", wf.Data, want)
	}
}

func TestUpdateZRK4FreeOscillator(t *testing.T) {
	sim := newSim(t, map[string]any{"A": 3, "l_reorg": 0.0})
	seeds := []int{1}
	p, s := dynamo.NewVector(seeds), dynamo.NewVector(seeds)
	s.Set(FieldWfDb, groundState(1))
	p, s = run(t, sim, []dynamo.StepFunc{InitializeZ}, p, s)
	z0, _ := s.Field(FieldZ)
	z0 = z0.Clone()

	p, s = run(t, sim, []dynamo.StepFunc{UpdateZRK4}, p, s)
	z1, _ := s.Field(FieldZ)
	w, _ := sim.Model.Constants.Floats("harmonic_oscillator_frequency")
	for j := 0; j < 3; j++ {
		want := z0.Data[j] * cmplx.Exp(complex(0, -w[j]*0.01))
		if cmplx.Abs(z1.Data[j]-want) > 1e-10 {
			t.Errorf("mode %d: z = %v, want %v", j, z1.Data[j], want)
		}
	}
}

func TestMeanFieldForceShiftsCoordinates(t *testing.T) {
	sim := newSim(t, map[string]any{"A": 2, "l_reorg": 0.5})
	seeds := []int{0}
	zero := dynamo.NewArray(1, 2)

	step := func(wf *dynamo.Array) *dynamo.Array {
		p, s := dynamo.NewVector(seeds), dynamo.NewVector(seeds)
		s.Set(FieldZ, zero.Clone())
		s.Set(FieldWfDb, wf)
		_, s = run(t, sim, []dynamo.StepFunc{UpdateZRK4}, p, s)
		z, _ := s.Field(FieldZ)
		return z
	}
	up := step(groundState(1))
	down := dynamo.NewArray(1, 2)
	down.Data[1] = 1
	dn := step(down)
	for j := 0; j < 2; j++ {
		if up.Data[j] == 0 || cmplx.Abs(up.Data[j]+dn.Data[j]) > 1e-12 {
			t.Errorf("mode %d: force from opposite states should be opposite, got %v and %v", j, up.Data[j], dn.Data[j])
		}
	}
}

func TestOutputSteps(t *testing.T) {
	sim := newSim(t, map[string]any{"A": 2})
	s := dynamo.NewVector([]int{0, 1})
	wf := dynamo.NewArray(2, 2)
	wf.Row(0)[0], wf.Row(0)[1] = complex(0.6, 0), complex(0, 0.8)
	wf.Row(1)[0] = 1
	s.Set(FieldWfDb, wf)
	h := dynamo.NewArray(2, 2, 2)
	for b := 0; b < 2; b++ {
		r := h.Row(b)
		r[0], r[1], r[2], r[3] = 1, 0.5, 0.5, -1
	}
	s.Set(FieldHQuantum, h)
	s.Set(FieldZ, dynamo.NewArray(2, 2))

	p := dynamo.NewVector([]int{0, 1})
	_, s = run(t, sim, []dynamo.StepFunc{UpdateDmDbMF, UpdateQuantumEnergy, UpdateClassicalEnergy}, p, s)

	dm, _ := s.Field(FieldDmDb)
	r := dm.Row(0)
	if tr := real(r[0] + r[3]); math.Abs(tr-1) > 1e-12 {
		t.Errorf("trace = %v, want 1", tr)
	}
	if r[1] != conj(r[2]) {
		t.Errorf("density matrix not hermitian: %v", r)
	}

	e, _ := s.Field(FieldQuantumEnergy)
	// 0.36 - 0.64 + 2*Re(0.6 * 0.5 * 0.8i) = -0.28
	if math.Abs(real(e.Data[0])+0.28) > 1e-12 || real(e.Data[1]) != 1 {
		t.Errorf("quantum energy = %v", e.Data)
	}
	if !e.Real {
		t.Error("quantum energy should be marked real")
	}
	ec, _ := s.Field(FieldClassicalEnergy)
	if ec.Data[0] != 0 || ec.Data[1] != 0 {
		t.Errorf("classical energy at z=0 = %v", ec.Data)
	}
}

func TestCheckFinite(t *testing.T) {
	s := dynamo.NewVector([]int{0})
	z := dynamo.NewArray(1, 1)
	s.Set(FieldZ, z)
	check := CheckFinite(FieldZ)
	if _, _, err := check(nil, nil, dynamo.NewVector(nil), s); err != nil {
		t.Fatalf("finite state rejected: %v", err)
	}
	z.Data[0] = complex(math.NaN(), 0)
	if _, _, err := check(nil, nil, dynamo.NewVector(nil), s); !errors.Is(err, dynamo.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
	if _, _, err := CheckFinite("missing")(nil, nil, dynamo.NewVector(nil), s); !errors.Is(err, dynamo.ErrMissingField) {
		t.Errorf("expected ErrMissingField, got %v", err)
	}
}

func TestMissingFields(t *testing.T) {
	sim := newSim(t, nil)
	s := dynamo.NewVector([]int{0})
	for name, fn := range map[string]dynamo.StepFunc{
		"UpdateHQuantum":        UpdateHQuantum,
		"UpdateZRK4":            UpdateZRK4,
		"UpdateWfDbRK4":         UpdateWfDbRK4,
		"UpdateDmDbMF":          UpdateDmDbMF,
		"UpdateClassicalEnergy": UpdateClassicalEnergy,
	} {
		if _, _, err := fn(nil, sim, dynamo.NewVector(nil), s); !errors.Is(err, dynamo.ErrMissingField) {
			t.Errorf("%s: expected ErrMissingField, got %v", name, err)
		}
	}
}
