package settings

import (
	"errors"
	"testing"
)

func TestCallbackFiresOnlyAfterComplete(t *testing.T) {
	calls := 0
	c := New(func() error {
		calls++
		return nil
	})

	c.Set("a", 1.0)
	c.Set("b", 2.0)
	if calls != 0 {
		t.Fatalf("callback ran %d times before MarkComplete", calls)
	}

	c.MarkComplete()
	if calls != 0 {
		t.Fatalf("MarkComplete must not run the callback, got %d calls", calls)
	}

	for i := 0; i < 3; i++ {
		if err := c.Set("a", float64(i)); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	if calls != 3 {
		t.Errorf("expected 3 callback calls, got %d", calls)
	}
}

func TestCallbackDerivedWritesDoNotRecurse(t *testing.T) {
	calls := 0
	var c *Container
	c = New(func() error {
		calls++
		w, err := c.Float("w")
		if err != nil {
			return err
		}
		return c.Set("w2", 2*w)
	})
	c.Set("w", 1.5)
	c.MarkComplete()

	if err := c.Set("w", 4.0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly one callback per mutation, got %d", calls)
	}
	if got := c.Get("w2", 0.0).(float64); got != 8 {
		t.Errorf("w2 = %v, want 8", got)
	}
}

func TestSetPropagatesCallbackError(t *testing.T) {
	boom := errors.New("boom")
	c := New(func() error { return boom })
	c.MarkComplete()
	if err := c.Set("x", 1); !errors.Is(err, boom) {
		t.Errorf("Set error = %v, want %v", err, boom)
	}
}

func TestGetDefault(t *testing.T) {
	c := New(nil)
	if got := c.Get("missing", 42); got != 42 {
		t.Errorf("Get default = %v, want 42", got)
	}
}

func TestTypedAccessors(t *testing.T) {
	c := FromMap(map[string]any{
		"f":     2.5,
		"i":     3,
		"fi":    4.0,
		"frac":  4.5,
		"list":  []any{1, 2.5},
		"name":  "spin",
		"slice": []float64{1, 2},
	}, nil)

	if f, err := c.Float("i"); err != nil || f != 3 {
		t.Errorf("Float(i) = %v, %v", f, err)
	}
	if n, err := c.Int("fi"); err != nil || n != 4 {
		t.Errorf("Int(fi) = %v, %v", n, err)
	}
	if _, err := c.Int("frac"); !errors.Is(err, ErrWrongType) {
		t.Errorf("Int(frac) error = %v, want ErrWrongType", err)
	}
	if _, err := c.Float("nope"); !errors.Is(err, ErrMissingKey) {
		t.Errorf("Float(nope) error = %v, want ErrMissingKey", err)
	}
	if xs, err := c.Floats("list"); err != nil || len(xs) != 2 || xs[1] != 2.5 {
		t.Errorf("Floats(list) = %v, %v", xs, err)
	}
	if s, err := c.String("name"); err != nil || s != "spin" {
		t.Errorf("String(name) = %v, %v", s, err)
	}

	xs, _ := c.Floats("slice")
	xs[0] = 99
	if again, _ := c.Floats("slice"); again[0] != 1 {
		t.Error("Floats must return a copy")
	}
}

func TestMerge(t *testing.T) {
	defaults := map[string]any{"a": 1, "b": 2}

	got, err := Merge(defaults, map[string]any{"b": 3}, true)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if got["a"] != 1 || got["b"] != 3 {
		t.Errorf("Merge = %v", got)
	}

	if _, err := Merge(defaults, map[string]any{"c": 1}, true); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("strict Merge error = %v, want ErrUnknownKey", err)
	}

	if got, err := Merge(defaults, map[string]any{"c": 1}, false); err != nil || got["c"] != 1 {
		t.Errorf("lenient Merge = %v, %v", got, err)
	}
}
