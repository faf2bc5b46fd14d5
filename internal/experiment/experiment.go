package experiment

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/san-kum/qclab/internal/config"
	"github.com/san-kum/qclab/internal/driver"
	"github.com/san-kum/qclab/internal/dynamo"
	"github.com/san-kum/qclab/internal/logging"
	"github.com/san-kum/qclab/internal/tasks"
)

// Experiment turns a run configuration into a simulation and drives it.
type Experiment struct {
	cfg    *config.Config
	reg    *Registry
	sim    *dynamo.Simulation
	logger logging.Logger
}

func New(cfg *config.Config, reg *Registry, logger logging.Logger) *Experiment {
	if reg == nil {
		reg = NewRegistry()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Experiment{cfg: cfg, reg: reg, logger: logger}
}

// Setup builds the simulation, model and algorithm and sets the initial
// wavefunction.
func (e *Experiment) Setup() error {
	if err := e.cfg.Validate(); err != nil {
		return &dynamo.ConfigError{Owner: "config", Err: err}
	}
	sim, err := dynamo.NewSimulation(e.cfg.SimulationSettings())
	if err != nil {
		return err
	}
	sim.Model, err = e.reg.GetModel(e.cfg.Model.Name, e.cfg.Model.Constants, dynamo.WithModelLogger(e.logger))
	if err != nil {
		return err
	}
	sim.Algorithm, err = e.reg.GetAlgorithm(e.cfg.Algorithm.Name, e.cfg.Algorithm.Settings)
	if err != nil {
		return err
	}

	n, err := sim.Model.NumQuantumStates()
	if err != nil {
		return err
	}
	wf, err := InitialWavefunction(e.cfg.InitialState, n)
	if err != nil {
		return err
	}
	sim.SetInitialState(tasks.FieldWfDb, wf)
	e.sim = sim

	e.logger.Debug(context.Background(), "experiment ready",
		logging.String("model", sim.Model.Name),
		logging.String("algorithm", sim.Algorithm.Name),
		logging.Int("num_trajs", sim.NumTrajs()),
		logging.Int("batch_size", sim.BatchSize()),
		logging.Int("quantum_states", n),
	)
	return nil
}

// Run integrates the ensemble with the configured driver. Seeds from the
// configuration are applied before opts, so an explicit WithSeeds wins.
func (e *Experiment) Run(ctx context.Context, opts ...driver.Option) (*dynamo.Data, error) {
	if e.sim == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	all := []driver.Option{driver.WithLogger(e.logger)}
	if len(e.cfg.Simulation.Seeds) > 0 {
		all = append(all, driver.WithSeeds(e.cfg.Simulation.Seeds))
	}
	if e.cfg.Driver.Workers > 0 {
		all = append(all, driver.WithWorkers(e.cfg.Driver.Workers))
	}
	all = append(all, opts...)

	if e.cfg.Driver.Mode == "parallel" {
		return driver.Parallel(ctx, e.sim, all...)
	}
	return driver.Serial(ctx, e.sim, all...)
}

// Simulation returns the simulation built by Setup.
func (e *Experiment) Simulation() *dynamo.Simulation {
	return e.sim
}

// InitialWavefunction builds the normalized diabatic wavefunction for n
// states.
func InitialWavefunction(st config.InitialState, n int) (*dynamo.Array, error) {
	wf := dynamo.NewArray(n)
	if len(st.Amplitudes) == 0 {
		if st.State < 0 || st.State >= n {
			return nil, &dynamo.ConfigError{Owner: "initial_state", Key: "state", Err: fmt.Errorf("%d outside %d states", st.State, n)}
		}
		wf.Data[st.State] = 1
		return wf, nil
	}

	if len(st.Amplitudes) != n {
		return nil, &dynamo.ConfigError{Owner: "initial_state", Key: "wf_db", Err: fmt.Errorf("%d amplitudes for %d states", len(st.Amplitudes), n)}
	}
	var norm float64
	for i, a := range st.Amplitudes {
		phase := 0.0
		if len(st.Phases) > 0 {
			phase = st.Phases[i]
		}
		wf.Data[i] = complex(a, 0) * cmplx.Exp(complex(0, phase))
		norm += a * a
	}
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, &dynamo.ConfigError{Owner: "initial_state", Key: "wf_db", Err: fmt.Errorf("cannot normalize (norm² %v)", norm)}
	}
	scale := complex(1/math.Sqrt(norm), 0)
	for i := range wf.Data {
		wf.Data[i] *= scale
	}
	return wf, nil
}
