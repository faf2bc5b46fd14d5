package models

import (
	"sync"

	"github.com/san-kum/qclab/internal/dynamo"
	"github.com/san-kum/qclab/internal/ingredients"
)

// InvCMToKBT converts wavenumbers to units of kBT at 298.15 K.
const InvCMToKBT = 0.00509506

const fmoSites = 8

// fmoSiteEnergies is the FMO monomer Hamiltonian in cm^-1.
var fmoSiteEnergies = [fmoSites][fmoSites]float64{
	{12505.0, 94.8, 5.5, -5.9, 7.1, -15.1, -12.2, 39.5},
	{94.8, 12425.0, 29.8, 7.6, 1.6, 13.1, 5.7, 7.9},
	{5.5, 29.8, 12195.0, -58.9, -1.2, -9.3, 3.4, 1.4},
	{-5.9, 7.6, -58.9, 12375.0, -64.1, -17.4, -62.3, -1.6},
	{7.1, 1.6, -1.2, -64.1, 12600.0, 89.5, -4.6, 4.4},
	{-15.1, 13.1, -9.3, -17.4, 89.5, 12515.0, 35.1, -9.1},
	{-12.2, 5.7, 3.4, -62.3, -4.6, 35.1, 12465.0, -11.1},
	{39.5, 7.9, 1.4, -1.6, 4.4, -9.1, -11.1, 12700.0},
}

// FMOComplex is the eight-site Fenna-Matthews-Olson complex with one
// harmonic mode per site. Energies are in units of kBT at 298.15 K.
var FMOComplex = &dynamo.ModelTemplate{
	Name: "fmo_complex",
	Defaults: map[string]any{
		"temp":   1.0,
		"mass":   1.0,
		"lambda": 0.22360679774997896,
		"w":      117 * InvCMToKBT,
	},
	Initializers: []dynamo.Initializer{
		{Name: "model", Fn: fmoModelConstants},
		{Name: "h_c", Fn: fmoHC},
		{Name: "h_qc", Fn: fmoHQC},
		{Name: "h_q", Fn: func(*dynamo.Model) error { return nil }},
	},
	Ingredients: dynamo.Ingredients{
		HQC:           ingredients.DiagonalLinearHQC,
		HC:            ingredients.HarmonicOscillatorHC,
		DHQCDZC:       ingredients.DiagonalLinearDHQCDZC,
		DHCDZC:        ingredients.HarmonicOscillatorDHCDZC,
		InitClassical: ingredients.HarmonicOscillatorBoltzmannInit,
	},
}

// NewFMOComplex builds an FMO model whose quantum Hamiltonian is cached per
// batch size. The cache is shared by every goroutine using the model.
func NewFMOComplex(overrides map[string]any, opts ...dynamo.ModelOption) (*dynamo.Model, error) {
	ing := FMOComplex.Ingredients
	ing.HQ = (&fmoHQ{}).build
	return dynamo.NewModel(FMOComplex, overrides, append([]dynamo.ModelOption{dynamo.WithIngredients(ing)}, opts...)...)
}

func fmoModelConstants(m *dynamo.Model) error {
	mass, err := m.Constants.Float("mass")
	if err != nil {
		return err
	}
	w, err := m.Constants.Float("w")
	if err != nil {
		return err
	}
	temp, err := m.Constants.Float("temp")
	if err != nil {
		return err
	}
	m.Constants.Set("num_quantum_states", fmoSites)
	m.Constants.Set("num_classical_coordinates", fmoSites)
	m.Constants.Set(ingredients.KeyWeight, filled(w))
	m.Constants.Set(ingredients.KeyMass, filled(mass))
	m.Constants.Set(ingredients.KeyKBT, temp)
	return nil
}

func fmoHC(m *dynamo.Model) error {
	w, err := m.Constants.Float("w")
	if err != nil {
		return err
	}
	return m.Constants.Set(ingredients.KeyFrequency, filled(w))
}

func fmoHQC(m *dynamo.Model) error {
	lam, err := m.Constants.Float("lambda")
	if err != nil {
		return err
	}
	w, err := m.Constants.Float("w")
	if err != nil {
		return err
	}
	g := make([]float64, fmoSites*fmoSites)
	for i := 0; i < fmoSites; i++ {
		g[i*fmoSites+i] = w * lam
	}
	return m.Constants.Set(ingredients.KeyCoupling, g)
}

func filled(v float64) []float64 {
	out := make([]float64, fmoSites)
	for i := range out {
		out[i] = v
	}
	return out
}

// fmoHamiltonian converts the site matrix to kBT units and shifts the
// diagonal so its smallest entry is zero.
func fmoHamiltonian() *dynamo.Array {
	lo := fmoSiteEnergies[0][0]
	for i := 1; i < fmoSites; i++ {
		lo = min(lo, fmoSiteEnergies[i][i])
	}
	out := dynamo.NewArray(fmoSites, fmoSites)
	for i := 0; i < fmoSites; i++ {
		for j := 0; j < fmoSites; j++ {
			v := fmoSiteEnergies[i][j] * InvCMToKBT
			if i == j {
				v -= lo * InvCMToKBT
			}
			out.Data[i*fmoSites+j] = complex(v, 0)
		}
	}
	return out
}

// fmoHQ memoizes the broadcast Hamiltonian for the last batch size seen.
// Callers must treat the returned array as read-only.
type fmoHQ struct {
	mu    sync.Mutex
	batch int
	cache *dynamo.Array
}

func (f *fmoHQ) build(_ *dynamo.Model, _ *dynamo.Vector, batchSize int) (*dynamo.Array, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cache == nil || f.batch != batchSize {
		f.cache = fmoHamiltonian().Broadcast(batchSize)
		f.batch = batchSize
	}
	return f.cache, nil
}
