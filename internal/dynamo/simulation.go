package dynamo

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/qclab/internal/settings"
)

const (
	DefaultNumTrajs  = 10
	DefaultBatchSize = 1
	DefaultTmax      = 10.0
	DefaultDt        = 0.01
	DefaultDtOutput  = 0.1
)

func simulationDefaults() map[string]any {
	return map[string]any{
		"num_trajs":  DefaultNumTrajs,
		"batch_size": DefaultBatchSize,
		"tmax":       DefaultTmax,
		"dt":         DefaultDt,
		"dt_output":  DefaultDtOutput,
		// num_tasks overrides the parallel worker count when positive.
		"num_tasks": 0,
	}
}

// Timesteps is the propagation grid derived from tmax, dt and dt_output.
type Timesteps struct {
	Dt     float64
	Steps  int // time points including t=0
	Stride int // update steps between outputs
	Output []float64
}

// Simulation binds a model and an algorithm to run settings and an initial
// unbatched state.
type Simulation struct {
	Settings  *settings.Container
	Model     *Model
	Algorithm *Algorithm
	State     *Vector

	steps Timesteps
}

func NewSimulation(overrides map[string]any) (*Simulation, error) {
	merged, err := settings.Merge(simulationDefaults(), overrides, true)
	if err != nil {
		return nil, &ConfigError{Owner: "simulation", Err: err}
	}
	s := &Simulation{State: NewVector(nil)}
	s.Settings = settings.FromMap(merged, s.UpdateSimulationSettings)
	s.Settings.MarkComplete()
	if err := s.Settings.Recalculate(); err != nil {
		return nil, err
	}
	return s, nil
}

// UpdateSimulationSettings validates the run settings and re-derives the
// time grid.
func (s *Simulation) UpdateSimulationSettings() error {
	var errs []error
	readPositive := func(key string) float64 {
		v, err := s.Settings.Float(key)
		if err == nil && v <= 0 {
			err = fmt.Errorf("must be positive, got %v", v)
		}
		if err != nil {
			errs = append(errs, &ConfigError{Owner: "simulation", Key: key, Err: err})
		}
		return v
	}
	readCount := func(key string, min int) int {
		v, err := s.Settings.Int(key)
		if err == nil && v < min {
			err = fmt.Errorf("must be at least %d, got %d", min, v)
		}
		if err != nil {
			errs = append(errs, &ConfigError{Owner: "simulation", Key: key, Err: err})
		}
		return v
	}

	tmax := readPositive("tmax")
	dt := readPositive("dt")
	dtOut := readPositive("dt_output")
	readCount("num_trajs", 1)
	readCount("batch_size", 1)
	readCount("num_tasks", 0)
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	stride := int(math.Round(dtOut / dt))
	if stride < 1 {
		return &ConfigError{Owner: "simulation", Key: "dt_output", Err: fmt.Errorf("must not be smaller than dt (%v < %v)", dtOut, dt)}
	}
	steps := int(math.Round(tmax/dt)) + 1

	ts := Timesteps{Dt: dt, Steps: steps, Stride: stride}
	for k := 0; k < steps; k += stride {
		ts.Output = append(ts.Output, float64(k)*dt)
	}
	s.steps = ts
	s.Settings.Set("num_steps", steps)
	s.Settings.Set("output_stride", stride)
	return nil
}

// Timesteps returns a copy of the derived time grid.
func (s *Simulation) Timesteps() Timesteps {
	ts := s.steps
	ts.Output = append([]float64(nil), s.steps.Output...)
	return ts
}

// Dt is the propagation step.
func (s *Simulation) Dt() float64 { return s.steps.Dt }

func (s *Simulation) NumTrajs() int {
	n, _ := s.Settings.Int("num_trajs")
	return n
}

func (s *Simulation) BatchSize() int {
	n, _ := s.Settings.Int("batch_size")
	return n
}

func (s *Simulation) NumTasks() int {
	n, _ := s.Settings.Int("num_tasks")
	return n
}

// SetInitialState stores an unbatched initial field, e.g. the wavefunction.
func (s *Simulation) SetInitialState(name string, a *Array) { s.State.Set(name, a) }

// BatchState broadcasts every initial field along a batch dimension.
func (s *Simulation) BatchState(seeds []int) *Vector {
	v := NewVector(seeds)
	for _, name := range s.State.Names() {
		a, _ := s.State.Get(name)
		v.Set(name, a.Broadcast(len(seeds)))
	}
	return v
}

// Validate checks that the simulation is ready to be integrated.
func (s *Simulation) Validate() error {
	if s.Model == nil {
		return &ConfigError{Owner: "simulation", Key: "model", Err: errors.New("not set")}
	}
	if s.Algorithm == nil {
		return &ConfigError{Owner: "simulation", Key: "algorithm", Err: errors.New("not set")}
	}
	return nil
}
