// Package settings provides the reactive key/value container behind
// algorithm settings, model constants and simulation settings.
//
// A Container starts in a construction phase where assignments are stored
// verbatim. Once MarkComplete is called every Set stores the value and then
// runs the owner's recalculation callback, which re-derives whatever depends
// on primary inputs:
//
//	c := settings.New(nil)
//	c.Set("w", 0.5)
//	c.SetCallback(func() error { return c.Set("w2", c.Get("w", 0.0).(float64)*2) })
//	c.MarkComplete()
//	c.Set("w", 1.0) // callback runs once, w2 == 2
//
// Assignments made by the callback itself are stored directly, so a callback
// may freely write derived keys. A Container is not safe for concurrent
// mutation.
package settings

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrMissingKey = errors.New("setting not found")
	ErrWrongType  = errors.New("setting has wrong type")
	ErrUnknownKey = errors.New("unrecognized setting")
)

// Callback recomputes derived settings after a mutation.
type Callback func() error

type Container struct {
	values     map[string]any
	onChange   Callback
	complete   bool
	inCallback bool
}

func New(onChange Callback) *Container {
	return &Container{
		values:   make(map[string]any),
		onChange: onChange,
	}
}

// FromMap builds a container populated with values; the marker is not set.
func FromMap(values map[string]any, onChange Callback) *Container {
	c := New(onChange)
	for k, v := range values {
		c.values[k] = v
	}
	return c
}

func (c *Container) SetCallback(fn Callback) { c.onChange = fn }

// MarkComplete ends the construction phase. It does not run the callback;
// owners invoke it explicitly once after marking.
func (c *Container) MarkComplete() { c.complete = true }

func (c *Container) Complete() bool { return c.complete }

// Get returns the stored value or def when the key is absent.
func (c *Container) Get(key string, def any) any {
	if v, ok := c.values[key]; ok {
		return v
	}
	return def
}

func (c *Container) Has(key string) bool {
	_, ok := c.values[key]
	return ok
}

// Set stores v under key. After MarkComplete it runs the callback and
// returns its error.
func (c *Container) Set(key string, v any) error {
	c.values[key] = v
	if !c.complete || c.inCallback || c.onChange == nil {
		return nil
	}
	return c.Recalculate()
}

// Recalculate runs the callback once, independent of any mutation.
func (c *Container) Recalculate() error {
	if c.onChange == nil || c.inCallback {
		return nil
	}
	c.inCallback = true
	defer func() { c.inCallback = false }()
	return c.onChange()
}

func (c *Container) Delete(key string) { delete(c.values, key) }

func (c *Container) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a shallow copy of the stored values.
func (c *Container) Snapshot() map[string]any {
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

func (c *Container) lookup(key string) (any, error) {
	v, ok := c.values[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingKey, key)
	}
	return v, nil
}

func (c *Container) Float(key string) (float64, error) {
	v, err := c.lookup(key)
	if err != nil {
		return 0, err
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("%w: %s is %T, want number", ErrWrongType, key, v)
	}
	return f, nil
}

// Int accepts integer values and floats with no fractional part, since yaml
// and json decoders do not agree on numeric types.
func (c *Container) Int(key string) (int, error) {
	v, err := c.lookup(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case int32:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n == math.Trunc(n) {
			return int(n), nil
		}
	}
	return 0, fmt.Errorf("%w: %s is %v (%T), want integer", ErrWrongType, key, v, v)
}

func (c *Container) String(key string) (string, error) {
	v, err := c.lookup(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %T, want string", ErrWrongType, key, v)
	}
	return s, nil
}

// Floats returns a copy of a numeric list setting.
func (c *Container) Floats(key string) ([]float64, error) {
	v, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	switch xs := v.(type) {
	case []float64:
		out := make([]float64, len(xs))
		copy(out, xs)
		return out, nil
	case []int:
		out := make([]float64, len(xs))
		for i, x := range xs {
			out[i] = float64(x)
		}
		return out, nil
	case []any:
		out := make([]float64, len(xs))
		for i, x := range xs {
			f, ok := toFloat(x)
			if !ok {
				return nil, fmt.Errorf("%w: %s[%d] is %T, want number", ErrWrongType, key, i, x)
			}
			out[i] = f
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %s is %T, want number list", ErrWrongType, key, v)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Merge overlays overrides onto defaults. With strict set, an override key
// that has no default is rejected.
func Merge(defaults, overrides map[string]any, strict bool) (map[string]any, error) {
	out := make(map[string]any, len(defaults)+len(overrides))
	for k, v := range defaults {
		out[k] = v
	}
	unknown := make([]string, 0)
	for k, v := range overrides {
		if _, ok := defaults[k]; strict && !ok {
			unknown = append(unknown, k)
			continue
		}
		out[k] = v
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %v", ErrUnknownKey, unknown)
	}
	return out, nil
}
