package dynamo

import (
	"context"
	"fmt"
	"sort"
)

// StepFunc advances a (parameter, state) pair. Ownership of both vectors
// passes to the step; it returns the pair the next step receives.
type StepFunc func(alg *Algorithm, sim *Simulation, p, s *Vector) (*Vector, *Vector, error)

// Step is a named, addressable recipe step.
type Step struct {
	Name string
	Fn   StepFunc
}

type Entry struct {
	Index int
	Step  Step
}

// Recipe is an ordered sequence of steps keyed by unique integer indices.
// Mutating methods never write to storage shared with other Recipe values,
// so copies of a Recipe behave as independent values.
type Recipe struct {
	entries []Entry
}

// NewRecipe sorts entries by index and rejects duplicates and nil steps.
func NewRecipe(entries ...Entry) (Recipe, error) {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	for i, e := range sorted {
		if e.Step.Fn == nil {
			return Recipe{}, &RecipeError{Index: e.Index, Name: e.Step.Name, Err: ErrNilStep}
		}
		if i > 0 && sorted[i-1].Index == e.Index {
			return Recipe{}, &RecipeError{Index: e.Index, Name: e.Step.Name, Err: ErrDuplicateStep}
		}
	}
	return Recipe{entries: sorted}, nil
}

// MustRecipe is NewRecipe for package-level templates.
func MustRecipe(entries ...Entry) Recipe {
	r, err := NewRecipe(entries...)
	if err != nil {
		panic(err)
	}
	return r
}

// Sequence numbers steps 0..n-1 in the given order.
func Sequence(steps ...Step) Recipe {
	entries := make([]Entry, len(steps))
	for i, s := range steps {
		entries[i] = Entry{Index: i, Step: s}
	}
	return MustRecipe(entries...)
}

func (r Recipe) Len() int { return len(r.entries) }

// Entries returns the steps in execution order.
func (r Recipe) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r Recipe) Indices() []int {
	out := make([]int, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Index
	}
	return out
}

func (r Recipe) Names() []string {
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Step.Name
	}
	return out
}

func (r Recipe) find(index int) (int, bool) {
	i := sort.Search(len(r.entries), func(i int) bool { return r.entries[i].Index >= index })
	return i, i < len(r.entries) && r.entries[i].Index == index
}

func (r Recipe) Step(index int) (Step, bool) {
	i, ok := r.find(index)
	if !ok {
		return Step{}, false
	}
	return r.entries[i].Step, true
}

// Insert adds a step at a new index.
func (r *Recipe) Insert(index int, step Step) error {
	if step.Fn == nil {
		return &RecipeError{Index: index, Name: step.Name, Err: ErrNilStep}
	}
	i, ok := r.find(index)
	if ok {
		return &RecipeError{Index: index, Name: step.Name, Err: ErrDuplicateStep}
	}
	entries := make([]Entry, 0, len(r.entries)+1)
	entries = append(entries, r.entries[:i]...)
	entries = append(entries, Entry{Index: index, Step: step})
	entries = append(entries, r.entries[i:]...)
	r.entries = entries
	return nil
}

// Replace swaps the step at an existing index.
func (r *Recipe) Replace(index int, step Step) error {
	if step.Fn == nil {
		return &RecipeError{Index: index, Name: step.Name, Err: ErrNilStep}
	}
	i, ok := r.find(index)
	if !ok {
		return &RecipeError{Index: index, Name: step.Name, Err: ErrUnknownStep}
	}
	entries := r.Entries()
	entries[i].Step = step
	r.entries = entries
	return nil
}

// Remove deletes the step at index and reports whether one existed.
func (r *Recipe) Remove(index int) bool {
	i, ok := r.find(index)
	if !ok {
		return false
	}
	entries := make([]Entry, 0, len(r.entries)-1)
	entries = append(entries, r.entries[:i]...)
	entries = append(entries, r.entries[i+1:]...)
	r.entries = entries
	return true
}

func (r Recipe) Clone() Recipe { return Recipe{entries: r.Entries()} }

// Execute runs every step of r once in ascending index order, threading the
// (parameter, state) pair. The first failing step stops execution.
func Execute(ctx context.Context, alg *Algorithm, sim *Simulation, r Recipe, p, s *Vector) (*Vector, *Vector, error) {
	for _, e := range r.entries {
		if err := ctx.Err(); err != nil {
			return p, s, err
		}
		np, ns, err := e.Step.Fn(alg, sim, p, s)
		if err != nil {
			return p, s, &RecipeError{Index: e.Index, Name: e.Step.Name, Err: err}
		}
		if np == nil || ns == nil {
			return p, s, &RecipeError{Index: e.Index, Name: e.Step.Name, Err: ErrIncompatibleStep}
		}
		p, s = np, ns
	}
	return p, s, nil
}

func (r Recipe) String() string {
	return fmt.Sprintf("recipe%v", r.Names())
}
