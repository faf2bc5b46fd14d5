package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/qclab/internal/dynamo"
	"github.com/san-kum/qclab/internal/tasks"
)

// Populations returns the ensemble-mean diabatic populations, indexed
// [time][state], from the recorded density matrix.
func Populations(d *dynamo.Data) ([][]float64, error) {
	series, ok := d.Series(tasks.FieldDmDb)
	if !ok {
		return nil, missing(tasks.FieldDmDb)
	}
	if len(series.Shape) != 2 || series.Shape[0] != series.Shape[1] {
		return nil, fmt.Errorf("%w: %s has shape %v, want n×n", dynamo.ErrDimensionMismatch, tasks.FieldDmDb, series.Shape)
	}
	n := series.Shape[0]
	mean, err := d.Mean(tasks.FieldDmDb)
	if err != nil {
		return nil, err
	}
	times := len(d.Times())
	out := make([][]float64, times)
	for t := range out {
		row := make([]float64, n)
		for i := 0; i < n; i++ {
			row[i] = real(mean[t*n*n+i*n+i])
		}
		out[t] = row
	}
	return out, nil
}

// FinalPopulation is the mean population of one diabatic state at the last
// output time.
type FinalPopulation struct {
	name  string
	state int
}

func NewFinalPopulation(state int) *FinalPopulation {
	return &FinalPopulation{name: fmt.Sprintf("final_population_%d", state), state: state}
}

func (p *FinalPopulation) Name() string { return p.name }

func (p *FinalPopulation) Compute(d *dynamo.Data) (float64, error) {
	pops, err := Populations(d)
	if err != nil {
		return 0, err
	}
	if len(pops) == 0 {
		return 0, nil
	}
	last := pops[len(pops)-1]
	if p.state >= len(last) {
		return 0, fmt.Errorf("state %d outside %d states", p.state, len(last))
	}
	return last[p.state], nil
}

// TraceDeviation is the largest departure of the mean density matrix trace
// from one. Unitary propagation keeps it at round-off level.
type TraceDeviation struct {
	name string
}

func NewTraceDeviation() *TraceDeviation {
	return &TraceDeviation{name: "trace_deviation"}
}

func (s *TraceDeviation) Name() string { return s.name }

func (s *TraceDeviation) Compute(d *dynamo.Data) (float64, error) {
	pops, err := Populations(d)
	if err != nil {
		return 0, err
	}
	var dev float64
	for _, row := range pops {
		dev = math.Max(dev, math.Abs(floats.Sum(row)-1))
	}
	return dev, nil
}
