package tui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/qclab/internal/driver"
	"github.com/san-kum/qclab/internal/dynamo"
	"github.com/san-kum/qclab/internal/tasks"
)

func TestModelProgress(t *testing.T) {
	cancelled := false
	var m tea.Model = newModel("spin_boson", 4, func() { cancelled = true })

	m, _ = m.Update(BatchMsg(driver.Progress{Rank: 0, Batch: 0, Done: 1, Total: 4}))
	m, _ = m.Update(BatchMsg(driver.Progress{Rank: 1, Batch: 2, Done: 3, Total: 4}))
	m, _ = m.Update(BatchMsg(driver.Progress{Rank: 0, Batch: 1, Done: 2, Total: 4}))

	got := m.(model)
	if got.done != 3 {
		t.Errorf("done should never go backwards, got %d", got.done)
	}
	if got.perRank[0] != 2 || got.perRank[1] != 1 {
		t.Errorf("unexpected per-rank counts %v", got.perRank)
	}
	view := got.View()
	if !strings.Contains(view, "3/4 batches") {
		t.Errorf("view lacks batch count:\n%s", view)
	}
	if !strings.Contains(view, "r1") {
		t.Errorf("view lacks rank breakdown:\n%s", view)
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !cancelled {
		t.Error("quitting a running view should cancel the run")
	}
	if cmd == nil {
		t.Error("expected quit command")
	}
}

func TestModelDone(t *testing.T) {
	d := dynamo.NewData()
	if err := d.Begin([]int{0}, []float64{0, 1}); err != nil {
		t.Fatal(err)
	}
	for k, p := range []float64{1, 0.25} {
		dm := dynamo.NewArray(1, 2, 2)
		dm.Data[0] = complex(p, 0)
		dm.Data[3] = complex(1-p, 0)
		if err := d.Record(k, tasks.FieldDmDb, dm); err != nil {
			t.Fatal(err)
		}
	}

	var m tea.Model = newModel("spin_boson", 1, nil)
	m, _ = m.Update(DoneMsg{Data: d})
	got := m.(model)
	if !got.finished || len(got.pops) != 2 {
		t.Fatalf("expected finished view with populations, got %+v", got)
	}
	view := got.View()
	if !strings.Contains(view, "0.2500") || !strings.Contains(view, "0.7500") {
		t.Errorf("view lacks final populations:\n%s", view)
	}

	m, _ = newModel("fmo", 2, nil).Update(DoneMsg{Err: errors.New("batch exploded")})
	if view := m.View(); !strings.Contains(view, "batch exploded") {
		t.Errorf("view lacks error:\n%s", view)
	}
}

func TestLineRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := NewLineRenderer(&buf, "mean_field", 1)
	r.OnBatch(driver.Progress{Done: 1, Total: 2})
	r.OnBatch(driver.Progress{Done: 2, Total: 2})

	out := buf.String()
	if !strings.Contains(out, "1/2") {
		t.Errorf("first frame missing: %q", out)
	}
	if !strings.Contains(out, "2/2") || !strings.HasSuffix(out, "\n") {
		t.Errorf("final frame must always render and end the line: %q", out)
	}
	if !strings.Contains(out, "["+strings.Repeat("#", 40)+"]") {
		t.Errorf("final bar should be full: %q", out)
	}
}

func TestSparkline(t *testing.T) {
	if got := sparkline(nil, 10); got != "" {
		t.Errorf("expected empty sparkline, got %q", got)
	}
	got := []rune(sparkline([]float64{0, 1, 2, 3, 4, 5, 6, 7}, 8))
	if len(got) != 8 || got[0] != '▁' || got[7] != '█' {
		t.Errorf("unexpected sparkline %q", string(got))
	}
}
