package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Model.Name != "spin_boson" {
		t.Errorf("expected model spin_boson, got %s", cfg.Model.Name)
	}
	if cfg.Algorithm.Name != "mean_field" {
		t.Errorf("expected algorithm mean_field, got %s", cfg.Algorithm.Name)
	}
	if cfg.Simulation.Dt <= 0 {
		t.Error("dt should be positive")
	}
	if cfg.Simulation.Tmax <= 0 {
		t.Error("tmax should be positive")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	doc := `
simulation:
  num_trajs: 40
  batch_size: 8
  tmax: 2
model:
  name: spin_boson
  constants:
    A: 10
    kBT: 0.5
initial_state:
  wf_db: [1, 0]
driver:
  mode: parallel
  workers: 4
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Simulation.NumTrajs != 40 || cfg.Simulation.BatchSize != 8 {
		t.Errorf("unexpected sizes %d/%d", cfg.Simulation.NumTrajs, cfg.Simulation.BatchSize)
	}
	if cfg.Simulation.Dt != DefaultDt {
		t.Errorf("dt should keep its default, got %v", cfg.Simulation.Dt)
	}
	if cfg.Algorithm.Name != DefaultAlgorithm {
		t.Errorf("algorithm should keep its default, got %s", cfg.Algorithm.Name)
	}
	if cfg.Model.Constants["A"] != 10 {
		t.Errorf("expected A=10, got %v", cfg.Model.Constants["A"])
	}
	if cfg.Driver.Mode != "parallel" || cfg.Driver.Workers != 4 {
		t.Errorf("unexpected driver %+v", cfg.Driver)
	}

	s := cfg.SimulationSettings()
	if s["tmax"] != 2.0 {
		t.Errorf("expected tmax override 2, got %v", s["tmax"])
	}
	if _, ok := s["num_tasks"]; ok {
		t.Error("zero num_tasks should be left to the simulation default")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"mode", "driver:\n  mode: mpi\n", "driver.mode"},
		{"workers", "driver:\n  workers: -1\n", "driver.workers"},
		{"phases", "initial_state:\n  wf_db: [1, 0]\n  phases: [0]\n", "phases"},
		{"model", "model:\n  name: \"\"\n", "model.name"},
		{"syntax", "simulation: [", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			if err := os.WriteFile(path, []byte(tt.doc), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := GetPreset("spin_boson", "strong")
	cfg.Simulation.Seeds = []int{3, 1, 2}

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Model.Constants["l_reorg"] != 0.05 {
		t.Errorf("expected l_reorg 0.05, got %v", got.Model.Constants["l_reorg"])
	}
	if len(got.Simulation.Seeds) != 3 || got.Simulation.Seeds[0] != 3 {
		t.Errorf("seeds not kept in order: %v", got.Simulation.Seeds)
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("fmo_complex", "site6")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.InitialState.State != 5 {
		t.Errorf("expected state 5, got %d", cfg.InitialState.State)
	}
	if cfg.Log.Level == "" {
		t.Error("preset should carry the default log config")
	}
}

func TestGetPreset_Copy(t *testing.T) {
	cfg := GetPreset("spin_boson", "cold")
	cfg.Model.Constants["kBT"] = 9.0
	cfg.Simulation.NumTrajs = 1

	again := GetPreset("spin_boson", "cold")
	if again.Model.Constants["kBT"] != 0.1 {
		t.Errorf("preset constants were edited through a copy: %v", again.Model.Constants["kBT"])
	}
	if again.Simulation.NumTrajs != 100 {
		t.Errorf("preset simulation was edited through a copy: %d", again.Simulation.NumTrajs)
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	cfg := GetPreset("spin_boson", "nonexistent")
	if cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}

	cfg = GetPreset("nonexistent", "default")
	if cfg != nil {
		t.Error("expected nil for nonexistent model")
	}
}

func TestListPresets(t *testing.T) {
	presets := ListPresets("spin_boson")
	if len(presets) == 0 {
		t.Error("expected presets for spin_boson")
	}
	for i := 1; i < len(presets); i++ {
		if presets[i-1] > presets[i] {
			t.Errorf("presets not sorted: %v", presets)
		}
	}

	presets = ListPresets("nonexistent")
	if presets != nil {
		t.Error("expected nil for nonexistent model")
	}

	models := ListPresetModels()
	if len(models) != 2 {
		t.Errorf("expected 2 preset models, got %v", models)
	}
}

func TestPresetsValid(t *testing.T) {
	for _, model := range ListPresetModels() {
		for _, name := range ListPresets(model) {
			cfg := GetPreset(model, name)
			if err := cfg.Validate(); err != nil {
				t.Errorf("%s/%s: %v", model, name, err)
			}
			if cfg.Model.Name != model {
				t.Errorf("%s/%s: model name %s", model, name, cfg.Model.Name)
			}
		}
	}
}
