package ingredients

import (
	"fmt"

	"github.com/san-kum/qclab/internal/dynamo"
)

const (
	KeyWeight    = "classical_coordinate_weight"
	KeyMass      = "classical_coordinate_mass"
	KeyFrequency = "harmonic_oscillator_frequency"
	KeyCoupling  = "diagonal_linear_coupling"
	KeyKBT       = "kBT"
)

func coordinateList(m *dynamo.Model, key string, nc int) ([]float64, error) {
	v, err := m.Constants.Floats(key)
	if err != nil {
		return nil, err
	}
	if len(v) != nc {
		return nil, fmt.Errorf("%w: %s has %d entries, want %d", dynamo.ErrDimensionMismatch, key, len(v), nc)
	}
	return v, nil
}

// oscillator holds the per-coordinate harmonic constants.
type oscillator struct {
	nc   int
	h    []float64
	m    []float64
	freq []float64
}

func loadOscillator(m *dynamo.Model) (*oscillator, error) {
	nc, err := m.NumClassicalCoordinates()
	if err != nil {
		return nil, err
	}
	o := &oscillator{nc: nc}
	if o.h, err = coordinateList(m, KeyWeight, nc); err != nil {
		return nil, err
	}
	if o.m, err = coordinateList(m, KeyMass, nc); err != nil {
		return nil, err
	}
	if o.freq, err = coordinateList(m, KeyFrequency, nc); err != nil {
		return nil, err
	}
	return o, nil
}

func checkCoordinates(z *dynamo.Array, nc int) (int, error) {
	if len(z.Shape) != 2 || z.Shape[1] != nc {
		return 0, fmt.Errorf("%w: z has shape %v, want [batch %d]", dynamo.ErrDimensionMismatch, z.Shape, nc)
	}
	return z.Shape[0], nil
}
