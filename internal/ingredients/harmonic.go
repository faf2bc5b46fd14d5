package ingredients

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/san-kum/qclab/internal/dynamo"
)

// HarmonicOscillatorHC is the classical energy sum_j (w_j^2/h_j) x_j^2 + h_j y_j^2.
func HarmonicOscillatorHC(m *dynamo.Model, _ *dynamo.Vector, z *dynamo.Array) (*dynamo.Array, error) {
	o, err := loadOscillator(m)
	if err != nil {
		return nil, err
	}
	batch, err := checkCoordinates(z, o.nc)
	if err != nil {
		return nil, err
	}
	out := dynamo.NewRealArray(batch)
	for b := 0; b < batch; b++ {
		row := z.Row(b)
		e := 0.0
		for j, v := range row {
			x, y := real(v), imag(v)
			e += o.freq[j]*o.freq[j]/o.h[j]*x*x + o.h[j]*y*y
		}
		out.Data[b] = complex(e, 0)
	}
	return out, nil
}

// HarmonicOscillatorDHCDZC is dH_c/dz* = (w^2/h) x + i h y per coordinate.
func HarmonicOscillatorDHCDZC(m *dynamo.Model, _ *dynamo.Vector, z *dynamo.Array) (*dynamo.Array, error) {
	o, err := loadOscillator(m)
	if err != nil {
		return nil, err
	}
	batch, err := checkCoordinates(z, o.nc)
	if err != nil {
		return nil, err
	}
	out := dynamo.NewArray(batch, o.nc)
	for b := 0; b < batch; b++ {
		in, dst := z.Row(b), out.Row(b)
		for j, v := range in {
			dst[j] = complex(o.freq[j]*o.freq[j]/o.h[j]*real(v), o.h[j]*imag(v))
		}
	}
	return out, nil
}

// HarmonicOscillatorBoltzmannInit samples z from the thermal distribution of
// each oscillator. Every seed owns its random stream, so a trajectory's
// initial condition does not depend on the batch it lands in.
func HarmonicOscillatorBoltzmannInit(m *dynamo.Model, seeds []int) (*dynamo.Array, error) {
	o, err := loadOscillator(m)
	if err != nil {
		return nil, err
	}
	kBT, err := m.Constants.Float(KeyKBT)
	if err != nil {
		return nil, err
	}
	out := dynamo.NewArray(len(seeds), o.nc)
	for b, seed := range seeds {
		src := rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15)
		row := out.Row(b)
		for j := 0; j < o.nc; j++ {
			mass, h, w := o.m[j], o.h[j], o.freq[j]
			q := distuv.Normal{Mu: 0, Sigma: math.Sqrt(kBT / (mass * w * w)), Src: src}.Rand()
			p := distuv.Normal{Mu: 0, Sigma: math.Sqrt(mass * kBT), Src: src}.Rand()
			row[j] = complex(math.Sqrt(h*mass/2)*q, p/math.Sqrt(2*h*mass))
		}
	}
	return out, nil
}
