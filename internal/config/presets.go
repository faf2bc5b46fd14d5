package config

import "sort"

var Presets = map[string]map[string]*Config{
	"spin_boson": {
		"default": {
			Simulation: SimulationConfig{NumTrajs: 200, BatchSize: 50, Tmax: 10.0, Dt: 0.01, DtOutput: 0.1},
			Model:      ModelConfig{Name: "spin_boson"},
			Algorithm:  AlgorithmConfig{Name: "mean_field"},
			Driver:     DriverConfig{Mode: "serial"},
		},
		"strong": {
			Simulation: SimulationConfig{NumTrajs: 200, BatchSize: 50, Tmax: 20.0, Dt: 0.01, DtOutput: 0.1},
			Model:      ModelConfig{Name: "spin_boson", Constants: map[string]any{"l_reorg": 0.05}},
			Algorithm:  AlgorithmConfig{Name: "mean_field"},
			Driver:     DriverConfig{Mode: "parallel"},
		},
		"cold": {
			Simulation: SimulationConfig{NumTrajs: 100, BatchSize: 25, Tmax: 10.0, Dt: 0.01, DtOutput: 0.1},
			Model:      ModelConfig{Name: "spin_boson", Constants: map[string]any{"kBT": 0.1}},
			Algorithm:  AlgorithmConfig{Name: "mean_field"},
			Driver:     DriverConfig{Mode: "serial"},
		},
		"quick": {
			Simulation: SimulationConfig{NumTrajs: 8, BatchSize: 4, Tmax: 1.0, Dt: 0.01, DtOutput: 0.1},
			Model:      ModelConfig{Name: "spin_boson", Constants: map[string]any{"A": 10}},
			Algorithm:  AlgorithmConfig{Name: "mean_field"},
			Driver:     DriverConfig{Mode: "serial"},
		},
	},
	"fmo_complex": {
		"site1": {
			Simulation: SimulationConfig{NumTrajs: 100, BatchSize: 25, Tmax: 50.0, Dt: 0.01, DtOutput: 0.5},
			Model:      ModelConfig{Name: "fmo_complex"},
			Algorithm:  AlgorithmConfig{Name: "mean_field"},
			Driver:     DriverConfig{Mode: "parallel"},
		},
		"site6": {
			Simulation:   SimulationConfig{NumTrajs: 100, BatchSize: 25, Tmax: 50.0, Dt: 0.01, DtOutput: 0.5},
			Model:        ModelConfig{Name: "fmo_complex"},
			Algorithm:    AlgorithmConfig{Name: "mean_field"},
			InitialState: InitialState{State: 5},
			Driver:       DriverConfig{Mode: "parallel"},
		},
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(model, name string) *Config {
	byName, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := byName[name]
	if !ok {
		return nil
	}
	out := cfg.Clone()
	if out.Log.Level == "" {
		out.Log = DefaultConfig().Log
	}
	return out
}

func ListPresets(model string) []string {
	byName, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ListPresetModels() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
