package dynamo

import (
	"errors"
	"testing"
)

func TestSimulationTimesteps(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]any
		steps     int
		stride    int
		outputs   int
	}{
		{"defaults", nil, 1001, 10, 101},
		{"coarse", map[string]any{"tmax": 1.0, "dt": 0.1, "dt_output": 0.1}, 11, 1, 11},
		{"uneven", map[string]any{"tmax": 1.0, "dt": 0.1, "dt_output": 0.3}, 11, 3, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim, err := NewSimulation(tt.overrides)
			if err != nil {
				t.Fatalf("NewSimulation: %v", err)
			}
			ts := sim.Timesteps()
			if ts.Steps != tt.steps || ts.Stride != tt.stride || len(ts.Output) != tt.outputs {
				t.Errorf("got steps=%d stride=%d outputs=%d, want %d %d %d",
					ts.Steps, ts.Stride, len(ts.Output), tt.steps, tt.stride, tt.outputs)
			}
			if got, _ := sim.Settings.Int("num_steps"); got != tt.steps {
				t.Errorf("num_steps setting = %d", got)
			}
		})
	}
}

func TestSimulationRederivesOnSet(t *testing.T) {
	sim, _ := NewSimulation(map[string]any{"tmax": 1.0, "dt": 0.1, "dt_output": 0.1})
	if err := sim.Settings.Set("tmax", 2.0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := sim.Timesteps().Steps; got != 21 {
		t.Errorf("steps after tmax update = %d, want 21", got)
	}
}

func TestSimulationInvalidSettings(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]any
	}{
		{"negative dt", map[string]any{"dt": -0.1}},
		{"zero batch", map[string]any{"batch_size": 0}},
		{"zero trajs", map[string]any{"num_trajs": 0}},
		{"output finer than dt", map[string]any{"dt": 0.1, "dt_output": 0.01}},
		{"wrong type", map[string]any{"tmax": "long"}},
		{"unknown key", map[string]any{"tmaxx": 1.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSimulation(tt.overrides)
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Errorf("expected ConfigError, got %v", err)
			}
		})
	}
}

func TestSimulationBatchState(t *testing.T) {
	sim, _ := NewSimulation(nil)
	wf := NewArray(2)
	wf.Data[0] = 1
	sim.SetInitialState("wf_db", wf)

	v := sim.BatchState([]int{3, 4, 5})
	got, err := v.Field("wf_db")
	if err != nil {
		t.Fatalf("Field: %v", err)
	}
	if got.Shape[0] != 3 || got.Shape[1] != 2 {
		t.Fatalf("shape = %v", got.Shape)
	}
	for b := 0; b < 3; b++ {
		if got.Row(b)[0] != 1 || got.Row(b)[1] != 0 {
			t.Errorf("row %d = %v", b, got.Row(b))
		}
	}
	if err := sim.Validate(); err == nil {
		t.Error("Validate passed without model and algorithm")
	}
}
