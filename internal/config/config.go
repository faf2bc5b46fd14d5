package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/qclab/internal/logging"
)

const (
	DefaultModel     = "spin_boson"
	DefaultAlgorithm = "mean_field"
	DefaultNumTrajs  = 10
	DefaultBatchSize = 1
	DefaultTmax      = 10.0
	DefaultDt        = 0.01
	DefaultDtOutput  = 0.1
	DefaultMode      = "serial"
)

type Config struct {
	Simulation   SimulationConfig `yaml:"simulation"`
	Model        ModelConfig      `yaml:"model"`
	Algorithm    AlgorithmConfig  `yaml:"algorithm"`
	InitialState InitialState     `yaml:"initial_state"`
	Driver       DriverConfig     `yaml:"driver"`
	Output       OutputConfig     `yaml:"output"`
	Log          logging.Config   `yaml:"log"`
}

type SimulationConfig struct {
	NumTrajs  int     `yaml:"num_trajs"`
	BatchSize int     `yaml:"batch_size"`
	Tmax      float64 `yaml:"tmax"`
	Dt        float64 `yaml:"dt"`
	DtOutput  float64 `yaml:"dt_output"`
	NumTasks  int     `yaml:"num_tasks,omitempty"`
	Seeds     []int   `yaml:"seeds,omitempty"`
}

type ModelConfig struct {
	Name      string         `yaml:"name"`
	Constants map[string]any `yaml:"constants,omitempty"`
}

type AlgorithmConfig struct {
	Name     string         `yaml:"name"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// InitialState describes the diabatic wavefunction every trajectory starts
// from. Amplitudes wins over State when both are given.
type InitialState struct {
	State      int       `yaml:"state"`
	Amplitudes []float64 `yaml:"wf_db,omitempty"`
	Phases     []float64 `yaml:"phases,omitempty"`
}

type DriverConfig struct {
	Mode    string `yaml:"mode"` // serial or parallel
	Workers int    `yaml:"workers,omitempty"`
}

type OutputConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Simulation: SimulationConfig{
			NumTrajs:  DefaultNumTrajs,
			BatchSize: DefaultBatchSize,
			Tmax:      DefaultTmax,
			Dt:        DefaultDt,
			DtOutput:  DefaultDtOutput,
		},
		Model:     ModelConfig{Name: DefaultModel},
		Algorithm: AlgorithmConfig{Name: DefaultAlgorithm},
		Driver:    DriverConfig{Mode: DefaultMode},
		Log:       logging.Config{Level: "info", Format: "text"},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks fields that the simulation settings cannot check later.
func (c *Config) Validate() error {
	if c.Model.Name == "" {
		return fmt.Errorf("model.name is required")
	}
	if c.Algorithm.Name == "" {
		return fmt.Errorf("algorithm.name is required")
	}
	switch c.Driver.Mode {
	case "", "serial", "parallel":
	default:
		return fmt.Errorf("driver.mode must be serial or parallel, got %q", c.Driver.Mode)
	}
	if c.Driver.Workers < 0 {
		return fmt.Errorf("driver.workers must not be negative, got %d", c.Driver.Workers)
	}
	if c.InitialState.State < 0 {
		return fmt.Errorf("initial_state.state must not be negative, got %d", c.InitialState.State)
	}
	if n := len(c.InitialState.Phases); n > 0 && n != len(c.InitialState.Amplitudes) {
		return fmt.Errorf("initial_state.phases has %d entries, wf_db has %d", n, len(c.InitialState.Amplitudes))
	}
	return nil
}

// SimulationSettings returns the run settings as overrides for
// dynamo.NewSimulation. Zero values are left to the simulation defaults.
func (c *Config) SimulationSettings() map[string]any {
	out := make(map[string]any)
	s := c.Simulation
	if s.NumTrajs != 0 {
		out["num_trajs"] = s.NumTrajs
	}
	if s.BatchSize != 0 {
		out["batch_size"] = s.BatchSize
	}
	if s.Tmax != 0 {
		out["tmax"] = s.Tmax
	}
	if s.Dt != 0 {
		out["dt"] = s.Dt
	}
	if s.DtOutput != 0 {
		out["dt_output"] = s.DtOutput
	}
	if s.NumTasks != 0 {
		out["num_tasks"] = s.NumTasks
	}
	return out
}

// Clone returns a deep copy, so presets can be handed out and edited.
func (c *Config) Clone() *Config {
	out := *c
	out.Simulation.Seeds = append([]int(nil), c.Simulation.Seeds...)
	out.Model.Constants = cloneMap(c.Model.Constants)
	out.Algorithm.Settings = cloneMap(c.Algorithm.Settings)
	out.InitialState.Amplitudes = append([]float64(nil), c.InitialState.Amplitudes...)
	out.InitialState.Phases = append([]float64(nil), c.InitialState.Phases...)
	return &out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
