package ingredients

import (
	"fmt"

	"github.com/san-kum/qclab/internal/dynamo"
)

// coupling is g[i*nc+j], the coefficient of (z_j + z_j*) on diagonal
// element i.
func coupling(m *dynamo.Model) (g []float64, n, nc int, err error) {
	if n, err = m.NumQuantumStates(); err != nil {
		return nil, 0, 0, err
	}
	if nc, err = m.NumClassicalCoordinates(); err != nil {
		return nil, 0, 0, err
	}
	if g, err = m.Constants.Floats(KeyCoupling); err != nil {
		return nil, 0, 0, err
	}
	if len(g) != n*nc {
		return nil, 0, 0, fmt.Errorf("%w: %s has %d entries, want %d x %d", dynamo.ErrDimensionMismatch, KeyCoupling, len(g), n, nc)
	}
	return g, n, nc, nil
}

// DiagonalLinearHQC is H_qc[i][i] = sum_j g_ij (z_j + z_j*), zero elsewhere.
func DiagonalLinearHQC(m *dynamo.Model, _ *dynamo.Vector, z *dynamo.Array) (*dynamo.Array, error) {
	g, n, nc, err := coupling(m)
	if err != nil {
		return nil, err
	}
	batch, err := checkCoordinates(z, nc)
	if err != nil {
		return nil, err
	}
	out := dynamo.NewArray(batch, n, n)
	for b := 0; b < batch; b++ {
		zr, dst := z.Row(b), out.Row(b)
		for i := 0; i < n; i++ {
			s := 0.0
			for j := 0; j < nc; j++ {
				s += g[i*nc+j] * 2 * real(zr[j])
			}
			dst[i*n+i] = complex(s, 0)
		}
	}
	return out, nil
}

// DiagonalLinearDHQCDZC is dH_qc/dz*_j, diagonal with entries g_ij. It does
// not depend on z beyond its batch size.
func DiagonalLinearDHQCDZC(m *dynamo.Model, _ *dynamo.Vector, z *dynamo.Array) (*dynamo.Array, error) {
	g, n, nc, err := coupling(m)
	if err != nil {
		return nil, err
	}
	batch, err := checkCoordinates(z, nc)
	if err != nil {
		return nil, err
	}
	out := dynamo.NewArray(batch, nc, n, n)
	for b := 0; b < batch; b++ {
		dst := out.Row(b)
		for j := 0; j < nc; j++ {
			for i := 0; i < n; i++ {
				dst[j*n*n+i*n+i] = complex(g[i*nc+j], 0)
			}
		}
	}
	return out, nil
}
