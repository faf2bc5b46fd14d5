package batch

import (
	"errors"
	"reflect"
	"testing"
)

func TestPartitionCounts(t *testing.T) {
	tests := []struct {
		n, size  int
		batches  int
		lastSize int
	}{
		{200, 50, 4, 50},
		{10, 3, 4, 1},
		{7, 7, 1, 7},
		{1, 5, 1, 1},
		{11, 2, 6, 1},
	}
	for _, tt := range tests {
		got, err := Partition(Seeds(tt.n, 0), tt.size)
		if err != nil {
			t.Fatalf("Partition(%d, %d): %v", tt.n, tt.size, err)
		}
		if len(got) != tt.batches {
			t.Errorf("Partition(%d, %d) gave %d batches, want %d", tt.n, tt.size, len(got), tt.batches)
			continue
		}
		total := 0
		for i, b := range got {
			if b.Index != i || b.Size != len(b.Seeds) {
				t.Errorf("batch %d: index %d size %d len %d", i, b.Index, b.Size, len(b.Seeds))
			}
			total += b.Size
		}
		if total != tt.n {
			t.Errorf("Partition(%d, %d) covers %d seeds", tt.n, tt.size, total)
		}
		if last := got[len(got)-1].Size; last != tt.lastSize {
			t.Errorf("Partition(%d, %d) last batch size %d, want %d", tt.n, tt.size, last, tt.lastSize)
		}
	}
}

func TestGridPadding(t *testing.T) {
	grid, err := Grid([]int{5, 6, 7, 8, 9}, 2)
	if err != nil {
		t.Fatalf("Grid: %v", err)
	}
	want := [][]int{{5, 6}, {7, 8}, {9, Sentinel}}
	if !reflect.DeepEqual(grid, want) {
		t.Errorf("Grid = %v, want %v", grid, want)
	}

	grid, _ = Grid(Seeds(200, 0), 50)
	for _, row := range grid {
		for _, s := range row {
			if s == Sentinel {
				t.Fatal("200/50 grid should have no padding")
			}
		}
	}
}

func TestPartitionErrors(t *testing.T) {
	tests := []struct {
		name  string
		seeds []int
		size  int
		want  error
	}{
		{"zero size", Seeds(3, 0), 0, ErrBatchSize},
		{"negative size", Seeds(3, 0), -2, ErrBatchSize},
		{"no seeds", nil, 4, ErrNoSeeds},
		{"negative seed", []int{0, -3}, 4, ErrNegativeSeed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Partition(tt.seeds, tt.size); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSeeds(t *testing.T) {
	if got := Seeds(3, 10); !reflect.DeepEqual(got, []int{10, 11, 12}) {
		t.Errorf("Seeds(3, 10) = %v", got)
	}
	if got := Seeds(0, 4); len(got) != 0 {
		t.Errorf("Seeds(0, 4) = %v", got)
	}
}

func TestSpanCoversAllBatches(t *testing.T) {
	tests := []struct {
		n, workers int
		spans      [][2]int
	}{
		{5, 2, [][2]int{{0, 3}, {3, 5}}},
		{4, 4, [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 4}}},
		{4, 3, [][2]int{{0, 2}, {2, 4}, {4, 4}}},
		{2, 4, [][2]int{{0, 1}, {1, 2}, {2, 2}, {2, 2}}},
		{7, 1, [][2]int{{0, 7}}},
	}
	for _, tt := range tests {
		covered := 0
		for r := 0; r < tt.workers; r++ {
			lo, hi, err := Span(tt.n, tt.workers, r)
			if err != nil {
				t.Fatalf("Span: %v", err)
			}
			if lo != tt.spans[r][0] || hi != tt.spans[r][1] {
				t.Errorf("Span(%d, %d, %d) = [%d, %d), want %v", tt.n, tt.workers, r, lo, hi, tt.spans[r])
			}
			covered += hi - lo
		}
		if covered != tt.n {
			t.Errorf("Span(%d, %d) covers %d batches", tt.n, tt.workers, covered)
		}
	}
	if _, _, err := Span(3, 0, 0); !errors.Is(err, ErrWorkerCount) {
		t.Errorf("expected ErrWorkerCount, got %v", err)
	}
}
