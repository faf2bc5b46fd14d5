package metrics

import (
	"fmt"

	"github.com/san-kum/qclab/internal/dynamo"
)

// Metric reduces a finished ensemble to one number.
type Metric interface {
	Name() string
	Compute(d *dynamo.Data) (float64, error)
}

// Defaults are the metrics reported for mean-field runs.
func Defaults(nstates int) []Metric {
	out := []Metric{NewEnergyDrift(), NewMeanEnergy(), NewTraceDeviation()}
	for i := 0; i < nstates; i++ {
		out = append(out, NewFinalPopulation(i))
	}
	return out
}

// Summary computes every metric, skipping those whose variables the data
// does not hold.
func Summary(d *dynamo.Data, ms ...Metric) (map[string]float64, error) {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		v, err := m.Compute(d)
		if err != nil {
			if isMissing(err) {
				continue
			}
			return nil, fmt.Errorf("%s: %w", m.Name(), err)
		}
		out[m.Name()] = v
	}
	return out, nil
}
