package driver

import (
	"context"
	"fmt"
	"sync"

	"github.com/san-kum/qclab/internal/dynamo"
)

// Comm is the collective facility ranks of a parallel run share.
type Comm interface {
	Rank() int
	Size() int
	// Barrier blocks until every rank has called it.
	Barrier(ctx context.Context) error
	// Gather collects one value per rank at root, ordered by rank. Other
	// ranks receive nil.
	Gather(ctx context.Context, data *dynamo.Data, root int) ([]*dynamo.Data, error)
}

// World is an in-process communicator of a fixed number of ranks, each
// driven by its own goroutine. A world whose collective was cancelled must
// not be reused.
type World struct {
	size int

	mu      sync.Mutex
	arrived int
	release chan struct{}
	slots   []*dynamo.Data
}

func NewWorld(size int) *World {
	return &World{
		size:    size,
		release: make(chan struct{}),
		slots:   make([]*dynamo.Data, size),
	}
}

func (w *World) Size() int { return w.size }

// Comm returns the communicator of one rank.
func (w *World) Comm(rank int) Comm {
	return &worldComm{world: w, rank: rank}
}

func (w *World) barrier(ctx context.Context) error {
	w.mu.Lock()
	ch := w.release
	w.arrived++
	if w.arrived == w.size {
		w.arrived = 0
		w.release = make(chan struct{})
		w.mu.Unlock()
		close(ch)
		return nil
	}
	w.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type worldComm struct {
	world *World
	rank  int
}

func (c *worldComm) Rank() int { return c.rank }

func (c *worldComm) Size() int { return c.world.size }

func (c *worldComm) Barrier(ctx context.Context) error { return c.world.barrier(ctx) }

func (c *worldComm) Gather(ctx context.Context, data *dynamo.Data, root int) ([]*dynamo.Data, error) {
	w := c.world
	if root < 0 || root >= w.size {
		return nil, fmt.Errorf("driver: gather root %d outside world of %d", root, w.size)
	}
	w.mu.Lock()
	w.slots[c.rank] = data
	w.mu.Unlock()

	if err := w.barrier(ctx); err != nil {
		return nil, err
	}
	var out []*dynamo.Data
	if c.rank == root {
		w.mu.Lock()
		out = make([]*dynamo.Data, w.size)
		copy(out, w.slots)
		w.mu.Unlock()
	}
	// Slots stay untouched until root has read them.
	if err := w.barrier(ctx); err != nil {
		return nil, err
	}
	return out, nil
}
