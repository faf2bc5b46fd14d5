package dynamo

import (
	"context"
	"fmt"

	"github.com/san-kum/qclab/internal/logging"
	"github.com/san-kum/qclab/internal/settings"
)

// Initializer derives model constants from primary inputs. Initializers run
// in list order, so later ones may read constants set by earlier ones.
type Initializer struct {
	Name string
	Fn   func(m *Model) error
}

// Ingredients are the Hamiltonian terms a model supplies to the task library.
// A nil ingredient contributes nothing.
type Ingredients struct {
	// HQ returns the quantum Hamiltonian, shape batch×n×n.
	HQ func(m *Model, p *Vector, batchSize int) (*Array, error)
	// HQC returns the quantum-classical coupling at z, shape batch×n×n.
	HQC func(m *Model, p *Vector, z *Array) (*Array, error)
	// HC returns the classical energy at z, shape batch.
	HC func(m *Model, p *Vector, z *Array) (*Array, error)
	// DHQCDZC returns dH_qc/dz*, shape batch×nc×n×n.
	DHQCDZC func(m *Model, p *Vector, z *Array) (*Array, error)
	// DHCDZC returns dH_c/dz*, shape batch×nc.
	DHCDZC func(m *Model, p *Vector, z *Array) (*Array, error)
	// InitClassical samples classical coordinates per seed, shape batch×nc.
	InitClassical func(m *Model, seeds []int) (*Array, error)
}

// ModelTemplate declares a model variant.
type ModelTemplate struct {
	Name         string
	Defaults     map[string]any
	Initializers []Initializer
	Ingredients  Ingredients
}

type Model struct {
	Name         string
	Constants    *settings.Container
	Initializers []Initializer

	ingredients Ingredients
	logger      logging.Logger
}

type ModelOption func(*Model)

// WithModelLogger sets the logger used for initializer diagnostics.
func WithModelLogger(l logging.Logger) ModelOption {
	return func(m *Model) { m.logger = l }
}

// WithIngredients replaces the template ingredients, for example with
// closures that own per-instance caches.
func WithIngredients(ing Ingredients) ModelOption {
	return func(m *Model) { m.ingredients = ing }
}

// NewModel merges overrides onto the template constants, marks them complete
// and runs the initializers once.
func NewModel(tmpl *ModelTemplate, overrides map[string]any, opts ...ModelOption) (*Model, error) {
	merged, err := settings.Merge(tmpl.Defaults, overrides, true)
	if err != nil {
		return nil, &ConfigError{Owner: tmpl.Name, Err: err}
	}

	m := &Model{
		Name:         tmpl.Name,
		Initializers: append([]Initializer(nil), tmpl.Initializers...),
		ingredients:  tmpl.Ingredients,
		logger:       logging.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.Constants = settings.FromMap(merged, m.InitializeConstants)
	m.Constants.MarkComplete()
	if err := m.Constants.Recalculate(); err != nil {
		return nil, &ConfigError{Owner: tmpl.Name, Err: err}
	}
	return m, nil
}

// InitializeConstants runs every initializer in order.
func (m *Model) InitializeConstants() error {
	for _, init := range m.Initializers {
		if init.Fn == nil {
			continue
		}
		if err := init.Fn(m); err != nil {
			return fmt.Errorf("initializer %s: %w", init.Name, err)
		}
	}
	return nil
}

// SwapInitializer replaces the first initializer named name with next,
// keeping its position. When no initializer matches, next is appended and
// false is returned; callers that depend on ordering must check placement.
func (m *Model) SwapInitializer(name string, next Initializer) bool {
	for i, init := range m.Initializers {
		if init.Name == name {
			m.Initializers[i] = next
			return true
		}
	}
	m.logger.Warn(context.Background(), "initializer not found, appending",
		logging.String("model", m.Name),
		logging.String("missing", name),
		logging.String("appended", next.Name),
	)
	m.Initializers = append(m.Initializers, next)
	return false
}

func (m *Model) InitializerNames() []string {
	names := make([]string, len(m.Initializers))
	for i, init := range m.Initializers {
		names[i] = init.Name
	}
	return names
}

func (m *Model) Ingredients() Ingredients { return m.ingredients }

func (m *Model) SetIngredients(ing Ingredients) { m.ingredients = ing }

func (m *Model) NumQuantumStates() (int, error) {
	return m.Constants.Int("num_quantum_states")
}

func (m *Model) NumClassicalCoordinates() (int, error) {
	return m.Constants.Int("num_classical_coordinates")
}

func (m *Model) HQ(p *Vector, batchSize int) (*Array, error) {
	if m.ingredients.HQ == nil {
		return nil, nil
	}
	return m.ingredients.HQ(m, p, batchSize)
}

func (m *Model) HQC(p *Vector, z *Array) (*Array, error) {
	if m.ingredients.HQC == nil {
		return nil, nil
	}
	return m.ingredients.HQC(m, p, z)
}

func (m *Model) HC(p *Vector, z *Array) (*Array, error) {
	if m.ingredients.HC == nil {
		return nil, nil
	}
	return m.ingredients.HC(m, p, z)
}

func (m *Model) DHQCDZC(p *Vector, z *Array) (*Array, error) {
	if m.ingredients.DHQCDZC == nil {
		return nil, nil
	}
	return m.ingredients.DHQCDZC(m, p, z)
}

func (m *Model) DHCDZC(p *Vector, z *Array) (*Array, error) {
	if m.ingredients.DHCDZC == nil {
		return nil, nil
	}
	return m.ingredients.DHCDZC(m, p, z)
}

// InitClassical has no neutral value, so a missing ingredient is an error.
func (m *Model) InitClassical(seeds []int) (*Array, error) {
	if m.ingredients.InitClassical == nil {
		return nil, fmt.Errorf("%w: init_classical (%s)", ErrNoIngredient, m.Name)
	}
	return m.ingredients.InitClassical(m, seeds)
}
