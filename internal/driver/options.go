package driver

import (
	"github.com/san-kum/qclab/internal/dynamics"
	"github.com/san-kum/qclab/internal/dynamo"
	"github.com/san-kum/qclab/internal/logging"
	"github.com/san-kum/qclab/internal/observability"
)

// Progress reports one finished batch.
type Progress struct {
	Rank  int
	Batch int
	Done  int // batches finished across all ranks
	Total int
}

type options struct {
	seeds      []int
	seedsSet   bool
	data       *dynamo.Data
	workers    int
	logger     logging.Logger
	collector  *observability.DriverCollector
	progress   func(Progress)
	integrator dynamics.Integrator
}

// Option configures an ensemble run.
type Option func(*options)

// WithSeeds runs exactly these seeds, overriding num_trajs. An empty list
// is an error, not a request for generated seeds.
func WithSeeds(seeds []int) Option {
	return func(o *options) {
		o.seeds = append([]int{}, seeds...)
		o.seedsSet = true
	}
}

// WithData merges new trajectories into prior results. Generated seeds
// start after the largest seed it holds.
func WithData(d *dynamo.Data) Option {
	return func(o *options) { o.data = d }
}

// WithWorkers sets the number of in-process ranks used by Parallel.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCollector records batch metrics.
func WithCollector(c *observability.DriverCollector) Option {
	return func(o *options) { o.collector = c }
}

// WithProgress calls fn after every batch. fn is called from every rank's
// goroutine and must be safe for concurrent use.
func WithProgress(fn func(Progress)) Option {
	return func(o *options) { o.progress = fn }
}

// WithIntegrator replaces dynamics.Run as the per-batch integrator.
func WithIntegrator(fn dynamics.Integrator) Option {
	return func(o *options) { o.integrator = fn }
}

func buildOptions(opts []Option) *options {
	o := &options{
		logger:     logging.Default(),
		integrator: dynamics.Run,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
