package dynamo

import (
	"fmt"
	"sort"
)

// Series holds one output variable for every trajectory of a Data set. Each
// row is time-major: row[t*Elem()+j] is element j at output time t.
type Series struct {
	Shape []int
	Real  bool
	rows  [][]complex128
}

// Elem is the number of elements recorded per output time.
func (s *Series) Elem() int { return size(s.Shape) }

func (s *Series) Row(i int) []complex128 { return s.rows[i] }

// Data accumulates per-seed results of an ensemble. Rows are kept in seed
// order by Merge.
type Data struct {
	seeds  []int
	times  []float64
	series map[string]*Series
}

func NewData() *Data {
	return &Data{series: make(map[string]*Series)}
}

func (d *Data) Len() int { return len(d.seeds) }

func (d *Data) Seeds() []int { return append([]int(nil), d.seeds...) }

func (d *Data) Times() []float64 { return append([]float64(nil), d.times...) }

func (d *Data) Names() []string {
	names := make([]string, 0, len(d.series))
	for k := range d.series {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (d *Data) Series(name string) (*Series, bool) {
	s, ok := d.series[name]
	return s, ok
}

// MaxSeed returns the largest seed held, if any.
func (d *Data) MaxSeed() (int, bool) {
	if len(d.seeds) == 0 {
		return 0, false
	}
	hi := d.seeds[0]
	for _, s := range d.seeds[1:] {
		if s > hi {
			hi = s
		}
	}
	return hi, true
}

// Begin prepares an empty data set to record a batch.
func (d *Data) Begin(seeds []int, times []float64) error {
	if len(d.seeds) > 0 {
		return fmt.Errorf("dynamo: begin on non-empty data (%d seeds)", len(d.seeds))
	}
	d.seeds = append([]int(nil), seeds...)
	d.times = append([]float64(nil), times...)
	return nil
}

// Record stores the batch-shaped array a as variable name at output index t.
func (d *Data) Record(t int, name string, a *Array) error {
	if t < 0 || t >= len(d.times) {
		return fmt.Errorf("dynamo: output index %d outside %d output times", t, len(d.times))
	}
	if len(a.Shape) == 0 || a.Shape[0] != len(d.seeds) {
		return fmt.Errorf("%w: %s has shape %v, want leading dimension %d", ErrDimensionMismatch, name, a.Shape, len(d.seeds))
	}
	s, ok := d.series[name]
	if !ok {
		s = &Series{Shape: append([]int(nil), a.Shape[1:]...), Real: a.Real}
		elem := s.Elem()
		s.rows = make([][]complex128, len(d.seeds))
		for i := range s.rows {
			s.rows[i] = make([]complex128, len(d.times)*elem)
		}
		d.series[name] = s
	}
	elem := s.Elem()
	if a.Stride() != elem {
		return fmt.Errorf("%w: %s element size %d, want %d", ErrDimensionMismatch, name, a.Stride(), elem)
	}
	for b := range d.seeds {
		copy(s.rows[b][t*elem:(t+1)*elem], a.Row(b))
	}
	return nil
}

// Trajectory returns the recorded row of name for one seed.
func (d *Data) Trajectory(name string, seed int) ([]complex128, bool) {
	s, ok := d.series[name]
	if !ok {
		return nil, false
	}
	for i, sd := range d.seeds {
		if sd == seed {
			return s.rows[i], true
		}
	}
	return nil, false
}

// Merge adds the trajectories of o, which must cover seeds disjoint from d
// and share its output times and variables. The result is in seed order.
func (d *Data) Merge(o *Data) error {
	if o == nil || len(o.seeds) == 0 {
		return nil
	}
	if len(d.seeds) == 0 {
		d.times = append([]float64(nil), o.times...)
		d.series = make(map[string]*Series, len(o.series))
		for name, s := range o.series {
			d.series[name] = &Series{Shape: append([]int(nil), s.Shape...), Real: s.Real}
		}
	} else if err := d.compatible(o); err != nil {
		return err
	}

	held := make(map[int]struct{}, len(d.seeds))
	for _, s := range d.seeds {
		held[s] = struct{}{}
	}
	for _, s := range o.seeds {
		if _, dup := held[s]; dup {
			return fmt.Errorf("%w: %d", ErrSeedOverlap, s)
		}
	}

	type ref struct {
		seed  int
		other bool
		idx   int
	}
	refs := make([]ref, 0, len(d.seeds)+len(o.seeds))
	for i, s := range d.seeds {
		refs = append(refs, ref{seed: s, idx: i})
	}
	for i, s := range o.seeds {
		refs = append(refs, ref{seed: s, other: true, idx: i})
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].seed < refs[j].seed })

	seeds := make([]int, len(refs))
	for i, r := range refs {
		seeds[i] = r.seed
	}
	for name, s := range d.series {
		src := o.series[name]
		rows := make([][]complex128, len(refs))
		for i, r := range refs {
			if r.other {
				rows[i] = append([]complex128(nil), src.rows[r.idx]...)
			} else {
				rows[i] = s.rows[r.idx]
			}
		}
		s.rows = rows
	}
	d.seeds = seeds
	return nil
}

func (d *Data) compatible(o *Data) error {
	if len(d.times) != len(o.times) {
		return fmt.Errorf("%w: %d output times, other has %d", ErrDimensionMismatch, len(d.times), len(o.times))
	}
	for i := range d.times {
		if d.times[i] != o.times[i] {
			return fmt.Errorf("%w: output time %d differs (%v vs %v)", ErrDimensionMismatch, i, d.times[i], o.times[i])
		}
	}
	if len(d.series) != len(o.series) {
		return fmt.Errorf("%w: variables %v vs %v", ErrDimensionMismatch, d.Names(), o.Names())
	}
	for name, s := range d.series {
		os, ok := o.series[name]
		if !ok {
			return fmt.Errorf("%w: other data lacks %s", ErrMissingField, name)
		}
		if os.Elem() != s.Elem() {
			return fmt.Errorf("%w: %s element size %d vs %d", ErrDimensionMismatch, name, s.Elem(), os.Elem())
		}
	}
	return nil
}

// SetSeeds overwrites the seed record with seeds, which must be a
// permutation of the held seeds, and reorders rows to match it.
func (d *Data) SetSeeds(seeds []int) error {
	if len(seeds) != len(d.seeds) {
		return fmt.Errorf("%w: %d seeds given, %d held", ErrSeedMismatch, len(seeds), len(d.seeds))
	}
	pos := make(map[int]int, len(d.seeds))
	for i, s := range d.seeds {
		pos[s] = i
	}
	order := make([]int, len(seeds))
	for i, s := range seeds {
		j, ok := pos[s]
		if !ok {
			return fmt.Errorf("%w: seed %d not held or repeated", ErrSeedMismatch, s)
		}
		delete(pos, s)
		order[i] = j
	}
	for _, s := range d.series {
		rows := make([][]complex128, len(order))
		for i, j := range order {
			rows[i] = s.rows[j]
		}
		s.rows = rows
	}
	d.seeds = append([]int(nil), seeds...)
	return nil
}

// Mean averages name over all trajectories; the result is time-major with
// Elem values per output time.
func (d *Data) Mean(name string) ([]complex128, error) {
	s, ok := d.series[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	out := make([]complex128, len(d.times)*s.Elem())
	if len(s.rows) == 0 {
		return out, nil
	}
	for _, row := range s.rows {
		for i, v := range row {
			out[i] += v
		}
	}
	n := complex(float64(len(s.rows)), 0)
	for i := range out {
		out[i] /= n
	}
	return out, nil
}

// MeanReal is Mean keeping real parts only.
func (d *Data) MeanReal(name string) ([]float64, error) {
	m, err := d.Mean(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(m))
	for i, v := range m {
		out[i] = real(v)
	}
	return out, nil
}
