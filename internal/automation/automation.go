package automation

import (
	"context"
	"fmt"
	"os"

	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/qclab/internal/config"
	"github.com/san-kum/qclab/internal/dynamo"
	"github.com/san-kum/qclab/internal/experiment"
	"github.com/san-kum/qclab/internal/logging"
	"github.com/san-kum/qclab/internal/metrics"
	"github.com/san-kum/qclab/internal/storage"
)

// Scenario defines a scripted sequence of ensemble runs
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"-"`
}

// ScenarioStep is one run. Its configuration starts from the named preset,
// or the defaults, and is then overlaid with the step's own fields.
type ScenarioStep struct {
	SaveAs string
	Config *config.Config
}

type scenarioFile struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Steps       []yaml.Node `yaml:"steps"`
}

type stepHeader struct {
	SaveAs string `yaml:"save_as"`
	Preset string `yaml:"preset"`
	Model  struct {
		Name string `yaml:"name"`
	} `yaml:"model"`
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(data)
}

func ParseScenario(data []byte) (*Scenario, error) {
	var file scenarioFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	sc := &Scenario{Name: file.Name, Description: file.Description}
	for i := range file.Steps {
		node := &file.Steps[i]
		var hdr stepHeader
		if err := node.Decode(&hdr); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}

		cfg := config.DefaultConfig()
		if hdr.Preset != "" {
			model := hdr.Model.Name
			if model == "" {
				model = config.DefaultModel
			}
			cfg = config.GetPreset(model, hdr.Preset)
			if cfg == nil {
				return nil, fmt.Errorf("step %d: unknown preset %s/%s", i+1, model, hdr.Preset)
			}
		}
		if err := node.Decode(cfg); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		sc.Steps = append(sc.Steps, ScenarioStep{SaveAs: hdr.SaveAs, Config: cfg})
	}
	return sc, nil
}

// StepResult is the outcome of one scenario step.
type StepResult struct {
	Name    string
	RunID   string
	Data    *dynamo.Data
	Metrics map[string]float64
}

// RunScenario executes all steps in a scenario. Steps are stored when st is
// non-nil.
func RunScenario(ctx context.Context, scenario *Scenario, registry *experiment.Registry, st *storage.Store, log logging.Logger) ([]StepResult, error) {
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		name := step.SaveAs
		if name == "" {
			name = fmt.Sprintf("%s_%d", step.Config.Model.Name, i+1)
		}
		log.Info(ctx, "scenario step",
			logging.String("scenario", scenario.Name),
			logging.Int("step", i+1),
			logging.Int("steps", len(scenario.Steps)),
			logging.String("name", name),
		)

		exp := experiment.New(step.Config, registry, log)
		if err := exp.Setup(); err != nil {
			return results, fmt.Errorf("step %d setup: %w", i+1, err)
		}

		data, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}

		sim := exp.Simulation()
		n, _ := sim.Model.NumQuantumStates()
		summary, err := metrics.Summary(data, metrics.Defaults(n)...)
		if err != nil {
			return results, fmt.Errorf("step %d metrics: %w", i+1, err)
		}

		res := StepResult{Name: name, Data: data, Metrics: summary}
		if st != nil {
			meta := storage.MetadataFor(sim)
			meta.Driver = step.Config.Driver.Mode
			meta.Metrics = summary
			if res.RunID, err = st.Save(meta, data); err != nil {
				return results, fmt.Errorf("step %d save: %w", i+1, err)
			}
		}
		results = append(results, res)
	}

	return results, nil
}

// ParameterSweep runs ensembles across evenly spaced values of one model
// constant.
type ParameterSweep struct {
	Base     *config.Config
	Param    string
	ParamMin float64
	ParamMax float64
	NumSteps int
}

// SweepResult holds results from a parameter sweep
type SweepResult struct {
	ParamValue float64
	Metrics    map[string]float64
	Final      []float64 // mean populations at the last output time
}

// RunSweep executes a parameter sweep
func RunSweep(ctx context.Context, sweep *ParameterSweep, registry *experiment.Registry, log logging.Logger) ([]SweepResult, error) {
	if sweep.NumSteps < 1 {
		return nil, fmt.Errorf("sweep needs at least one step, got %d", sweep.NumSteps)
	}
	values := make([]float64, sweep.NumSteps)
	if sweep.NumSteps == 1 {
		values[0] = sweep.ParamMin
	} else {
		floats.Span(values, sweep.ParamMin, sweep.ParamMax)
	}

	results := make([]SweepResult, 0, sweep.NumSteps)
	for i, v := range values {
		cfg := sweep.Base.Clone()
		if cfg.Model.Constants == nil {
			cfg.Model.Constants = make(map[string]any)
		}
		cfg.Model.Constants[sweep.Param] = v

		exp := experiment.New(cfg, registry, log)
		if err := exp.Setup(); err != nil {
			return results, fmt.Errorf("%s=%g: %w", sweep.Param, v, err)
		}
		data, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("%s=%g: %w", sweep.Param, v, err)
		}

		n, _ := exp.Simulation().Model.NumQuantumStates()
		summary, err := metrics.Summary(data, metrics.Defaults(n)...)
		if err != nil {
			return results, err
		}
		res := SweepResult{ParamValue: v, Metrics: summary}
		if pops, err := metrics.Populations(data); err == nil && len(pops) > 0 {
			res.Final = pops[len(pops)-1]
		}
		results = append(results, res)

		log.Info(ctx, "sweep point",
			logging.Int("step", i+1),
			logging.Int("steps", sweep.NumSteps),
			logging.String("param", sweep.Param),
			logging.Float("value", v),
		)
	}

	return results, nil
}
