package dynamo

import (
	"fmt"
	"math"
	"sort"
)

// Array is a dense row-major array. Shape[0] is the batch dimension for
// batch-shaped fields. Real marks arrays whose imaginary parts are zero.
type Array struct {
	Shape []int
	Data  []complex128
	Real  bool
}

func NewArray(shape ...int) *Array {
	return &Array{Shape: append([]int(nil), shape...), Data: make([]complex128, size(shape))}
}

func NewRealArray(shape ...int) *Array {
	a := NewArray(shape...)
	a.Real = true
	return a
}

func size(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func (a *Array) Len() int { return len(a.Data) }

// Stride is the number of elements per leading index.
func (a *Array) Stride() int {
	if len(a.Shape) == 0 {
		return 1
	}
	return size(a.Shape[1:])
}

// Row returns the b-th leading slice, sharing storage.
func (a *Array) Row(b int) []complex128 {
	st := a.Stride()
	return a.Data[b*st : (b+1)*st]
}

func (a *Array) Clone() *Array {
	c := &Array{
		Shape: append([]int(nil), a.Shape...),
		Data:  make([]complex128, len(a.Data)),
		Real:  a.Real,
	}
	copy(c.Data, a.Data)
	return c
}

// Broadcast repeats a single sample along a new leading batch dimension.
func (a *Array) Broadcast(batch int) *Array {
	out := &Array{
		Shape: append([]int{batch}, a.Shape...),
		Data:  make([]complex128, batch*len(a.Data)),
		Real:  a.Real,
	}
	for b := 0; b < batch; b++ {
		copy(out.Data[b*len(a.Data):], a.Data)
	}
	return out
}

// SameShape reports whether a and o have identical shapes.
func (a *Array) SameShape(o *Array) bool {
	if len(a.Shape) != len(o.Shape) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return true
}

// IsFinite reports whether every element is free of NaN and Inf.
func (a *Array) IsFinite() bool {
	for _, v := range a.Data {
		if math.IsNaN(real(v)) || math.IsNaN(imag(v)) || math.IsInf(real(v), 0) || math.IsInf(imag(v), 0) {
			return false
		}
	}
	return true
}

// Vector is the named container threaded through recipes as both the
// parameter and the state of a batch.
type Vector struct {
	Seeds   []int
	fields  map[string]*Array
	scalars map[string]float64
}

func NewVector(seeds []int) *Vector {
	return &Vector{
		Seeds:   append([]int(nil), seeds...),
		fields:  make(map[string]*Array),
		scalars: make(map[string]float64),
	}
}

// BatchSize is the number of trajectories carried by the vector.
func (v *Vector) BatchSize() int { return len(v.Seeds) }

func (v *Vector) Set(name string, a *Array) { v.fields[name] = a }

func (v *Vector) Get(name string) (*Array, bool) {
	a, ok := v.fields[name]
	return a, ok
}

// Field is Get with an error naming the missing field.
func (v *Vector) Field(name string) (*Array, error) {
	a, ok := v.fields[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	return a, nil
}

func (v *Vector) Delete(name string) { delete(v.fields, name) }

func (v *Vector) SetScalar(name string, x float64) { v.scalars[name] = x }

func (v *Vector) Scalar(name string) (float64, bool) {
	x, ok := v.scalars[name]
	return x, ok
}

func (v *Vector) Names() []string {
	names := make([]string, 0, len(v.fields))
	for k := range v.fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (v *Vector) Clone() *Vector {
	c := NewVector(v.Seeds)
	for k, a := range v.fields {
		c.fields[k] = a.Clone()
	}
	for k, x := range v.scalars {
		c.scalars[k] = x
	}
	return c
}
