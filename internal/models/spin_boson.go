package models

import (
	"fmt"
	"math"

	"github.com/san-kum/qclab/internal/dynamo"
	"github.com/san-kum/qclab/internal/ingredients"
)

// SpinBoson is a two-level system linearly coupled to A harmonic bath modes
// sampled from a Debye spectral density with cutoff W and reorganization
// energy l_reorg.
var SpinBoson = &dynamo.ModelTemplate{
	Name: "spin_boson",
	Defaults: map[string]any{
		"V":          0.5,
		"E":          0.5,
		"A":          100,
		"W":          0.1,
		"l_reorg":    0.005,
		"boson_mass": 1.0,
		"kBT":        1.0,
	},
	Initializers: []dynamo.Initializer{
		{Name: "model", Fn: spinBosonModelConstants},
		{Name: "h_c", Fn: spinBosonHC},
		{Name: "h_qc", Fn: spinBosonHQC},
		{Name: "h_q", Fn: spinBosonHQ},
	},
	Ingredients: dynamo.Ingredients{
		HQ:            twoLevelHQ,
		HQC:           ingredients.DiagonalLinearHQC,
		HC:            ingredients.HarmonicOscillatorHC,
		DHQCDZC:       ingredients.DiagonalLinearDHQCDZC,
		DHCDZC:        ingredients.HarmonicOscillatorDHCDZC,
		InitClassical: ingredients.HarmonicOscillatorBoltzmannInit,
	},
}

func NewSpinBoson(overrides map[string]any, opts ...dynamo.ModelOption) (*dynamo.Model, error) {
	return dynamo.NewModel(SpinBoson, overrides, opts...)
}

func spinBosonModelConstants(m *dynamo.Model) error {
	a, err := m.Constants.Int("A")
	if err != nil {
		return err
	}
	if a < 1 {
		return fmt.Errorf("A must be at least 1, got %d", a)
	}
	mass, err := m.Constants.Float("boson_mass")
	if err != nil {
		return err
	}
	w, err := m.Constants.Float("W")
	if err != nil {
		return err
	}
	freq := make([]float64, a)
	masses := make([]float64, a)
	for j := range freq {
		freq[j] = w * math.Tan((float64(j)+0.5)*math.Pi/(2*float64(a)))
		masses[j] = mass
	}
	m.Constants.Set("num_quantum_states", 2)
	m.Constants.Set("num_classical_coordinates", a)
	m.Constants.Set(ingredients.KeyMass, masses)
	m.Constants.Set(ingredients.KeyWeight, freq)
	m.Constants.Set("w", freq)
	return nil
}

func spinBosonHC(m *dynamo.Model) error {
	w, err := m.Constants.Floats("w")
	if err != nil {
		return err
	}
	return m.Constants.Set(ingredients.KeyFrequency, w)
}

// spinBosonHQC couples each mode to sigma_z with strength
// w_j sqrt(2 l_reorg / A) in position, rescaled to z.
func spinBosonHQC(m *dynamo.Model) error {
	lr, err := m.Constants.Float("l_reorg")
	if err != nil {
		return err
	}
	w, err := m.Constants.Floats("w")
	if err != nil {
		return err
	}
	mass, err := m.Constants.Floats(ingredients.KeyMass)
	if err != nil {
		return err
	}
	h, err := m.Constants.Floats(ingredients.KeyWeight)
	if err != nil {
		return err
	}
	a := len(w)
	g := make([]float64, 2*a)
	for j := 0; j < a; j++ {
		gq := w[j] * math.Sqrt(2*lr/float64(a))
		gz := gq / math.Sqrt(2*mass[j]*h[j])
		g[j] = gz
		g[a+j] = -gz
	}
	return m.Constants.Set(ingredients.KeyCoupling, g)
}

func spinBosonHQ(m *dynamo.Model) error {
	e, err := m.Constants.Float("E")
	if err != nil {
		return err
	}
	v, err := m.Constants.Float("V")
	if err != nil {
		return err
	}
	m.Constants.Set("two_level_00", e)
	m.Constants.Set("two_level_11", -e)
	m.Constants.Set("two_level_01_re", v)
	m.Constants.Set("two_level_01_im", 0.0)
	return nil
}

// twoLevelHQ builds [[a, b], [b*, d]] from the two_level_* constants.
func twoLevelHQ(m *dynamo.Model, _ *dynamo.Vector, batchSize int) (*dynamo.Array, error) {
	keys := []string{"two_level_00", "two_level_11", "two_level_01_re", "two_level_01_im"}
	vals := make([]float64, len(keys))
	for i, k := range keys {
		v, err := m.Constants.Float(k)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	off := complex(vals[2], vals[3])
	single := &dynamo.Array{
		Shape: []int{2, 2},
		Data:  []complex128{complex(vals[0], 0), off, complex(real(off), -imag(off)), complex(vals[1], 0)},
	}
	return single.Broadcast(batchSize), nil
}
