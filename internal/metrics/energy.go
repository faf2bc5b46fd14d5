package metrics

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/qclab/internal/dynamo"
	"github.com/san-kum/qclab/internal/tasks"
)

// TotalEnergy returns quantum plus classical energy of one trajectory at
// every output time.
func TotalEnergy(d *dynamo.Data, seed int) ([]float64, error) {
	q, ok := d.Trajectory(tasks.FieldQuantumEnergy, seed)
	if !ok {
		return nil, missing(tasks.FieldQuantumEnergy)
	}
	c, ok := d.Trajectory(tasks.FieldClassicalEnergy, seed)
	if !ok {
		return nil, missing(tasks.FieldClassicalEnergy)
	}
	out := make([]float64, len(q))
	for i := range q {
		out[i] = real(q[i]) + real(c[i])
	}
	return out, nil
}

// MeanEnergy is the ensemble mean total energy at t=0.
type MeanEnergy struct {
	name string
}

func NewMeanEnergy() *MeanEnergy {
	return &MeanEnergy{name: "mean_energy"}
}

func (e *MeanEnergy) Name() string { return e.name }

func (e *MeanEnergy) Compute(d *dynamo.Data) (float64, error) {
	if d.Len() == 0 {
		return 0, nil
	}
	initial := make([]float64, 0, d.Len())
	for _, seed := range d.Seeds() {
		total, err := TotalEnergy(d, seed)
		if err != nil {
			return 0, err
		}
		initial = append(initial, total[0])
	}
	return floats.Sum(initial) / float64(len(initial)), nil
}

// EnergyDrift is the largest relative change of total energy from its
// initial value over every trajectory and output time.
type EnergyDrift struct {
	name string
}

func NewEnergyDrift() *EnergyDrift {
	return &EnergyDrift{name: "energy_drift"}
}

func (e *EnergyDrift) Name() string { return e.name }

func (e *EnergyDrift) Compute(d *dynamo.Data) (float64, error) {
	var maxDrift float64
	for _, seed := range d.Seeds() {
		total, err := TotalEnergy(d, seed)
		if err != nil {
			return 0, err
		}
		if len(total) == 0 {
			continue
		}
		e0 := total[0]
		scale := math.Abs(e0)
		if scale == 0 {
			scale = 1
		}
		floats.AddConst(-e0, total)
		drift := math.Max(floats.Max(total), -floats.Min(total)) / scale
		maxDrift = math.Max(maxDrift, drift)
	}
	return maxDrift, nil
}

var errMissing = errors.New("variable not recorded")

type missingError struct{ name string }

func (e *missingError) Error() string { return e.name + ": " + errMissing.Error() }

func (e *missingError) Unwrap() error { return errMissing }

func missing(name string) error { return &missingError{name: name} }

func isMissing(err error) bool { return errors.Is(err, errMissing) }
