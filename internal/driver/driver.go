package driver

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/qclab/internal/batch"
	"github.com/san-kum/qclab/internal/dynamo"
	"github.com/san-kum/qclab/internal/logging"
	"github.com/san-kum/qclab/internal/observability"
)

// plan is the seed and batch layout shared by every rank of one run.
type plan struct {
	seeds   []int
	prior   []int
	batches []batch.Batch
	done    atomic.Int64
}

// resolve fixes the seeds of a run. Explicit seeds override num_trajs on
// the simulation; otherwise num_trajs seeds are generated past any seed
// already present in the prior data.
func resolve(ctx context.Context, sim *dynamo.Simulation, o *options) (*plan, error) {
	if err := sim.Validate(); err != nil {
		return nil, err
	}
	p := &plan{}
	if o.data != nil {
		p.prior = o.data.Seeds()
	}

	if o.seedsSet {
		held := make(map[int]struct{}, len(p.prior))
		for _, sd := range p.prior {
			held[sd] = struct{}{}
		}
		seen := make(map[int]struct{}, len(o.seeds))
		for _, sd := range o.seeds {
			if _, dup := seen[sd]; dup {
				return nil, &dynamo.ConfigError{Owner: "driver", Key: "seeds", Err: fmt.Errorf("seed %d repeated", sd)}
			}
			if _, dup := held[sd]; dup {
				return nil, &dynamo.ConfigError{Owner: "driver", Key: "seeds", Err: fmt.Errorf("%w: %d", dynamo.ErrSeedOverlap, sd)}
			}
			seen[sd] = struct{}{}
		}
		p.seeds = append([]int{}, o.seeds...)
	} else {
		offset := 0
		if o.data != nil {
			if hi, ok := o.data.MaxSeed(); ok {
				offset = hi + 1
			}
		}
		p.seeds = batch.Seeds(sim.NumTrajs(), offset)
	}

	batches, err := batch.Partition(p.seeds, sim.BatchSize())
	if err != nil {
		key := "seeds"
		if errors.Is(err, batch.ErrBatchSize) {
			key = "batch_size"
		}
		return nil, &dynamo.ConfigError{Owner: "simulation", Key: key, Err: err}
	}

	if o.seedsSet {
		o.logger.Warn(ctx, "explicit seeds override num_trajs",
			logging.Int("num_trajs", sim.NumTrajs()),
			logging.Int("seeds", len(p.seeds)),
		)
		if len(p.seeds) != sim.NumTrajs() {
			if err := sim.Settings.Set("num_trajs", len(p.seeds)); err != nil {
				return nil, err
			}
		}
	}
	p.batches = batches
	return p, nil
}

// Serial integrates every batch on the calling goroutine.
func Serial(ctx context.Context, sim *dynamo.Simulation, opts ...Option) (*dynamo.Data, error) {
	return Run(ctx, NewWorld(1).Comm(0), sim, opts...)
}

// Run is called once per rank of comm. Each rank integrates a contiguous
// chunk of ceil(batches/size) batches, then the chunks are gathered at rank
// 0, which returns the merged data; other ranks return nil.
//
// Run may write num_trajs when explicit seeds are given, so ranks sharing a
// simulation in one process should use Parallel.
func Run(ctx context.Context, comm Comm, sim *dynamo.Simulation, opts ...Option) (*dynamo.Data, error) {
	if err := checkComm(comm); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	p, err := resolve(ctx, sim, o)
	if err != nil {
		return nil, err
	}
	return runRank(ctx, comm, sim, p, o)
}

// Parallel runs the ensemble over an in-process world. The worker count is
// WithWorkers, else num_tasks, else GOMAXPROCS.
func Parallel(ctx context.Context, sim *dynamo.Simulation, opts ...Option) (*dynamo.Data, error) {
	o := buildOptions(opts)
	p, err := resolve(ctx, sim, o)
	if err != nil {
		return nil, err
	}

	workers := o.workers
	if workers <= 0 {
		workers = sim.NumTasks()
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	world := NewWorld(workers)

	ctx, span := observability.StartSpan(ctx, "qclab.parallel",
		attribute.Int("workers", workers),
		attribute.Int("trajectories", len(p.seeds)),
	)
	defer span.End()

	var result *dynamo.Data
	g, gctx := errgroup.WithContext(ctx)
	for r := 0; r < workers; r++ {
		comm := world.Comm(r)
		g.Go(func() error {
			d, err := runRank(gctx, comm, sim, p, o)
			if comm.Rank() == 0 {
				result = d
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return result, nil
}

func checkComm(comm Comm) error {
	if comm == nil {
		return &dynamo.EnvironmentError{Facility: "communicator", Err: dynamo.ErrNoCommunicator}
	}
	if comm.Size() < 1 {
		return &dynamo.EnvironmentError{Facility: "communicator", Err: fmt.Errorf("%w: world size %d", dynamo.ErrNoCommunicator, comm.Size())}
	}
	return nil
}

func runRank(ctx context.Context, comm Comm, sim *dynamo.Simulation, p *plan, o *options) (*dynamo.Data, error) {
	if err := checkComm(comm); err != nil {
		return nil, err
	}
	rank, size := comm.Rank(), comm.Size()
	lo, hi, err := batch.Span(len(p.batches), size, rank)
	if err != nil {
		return nil, &dynamo.EnvironmentError{Facility: "communicator", Err: err}
	}

	ctx, span := observability.StartSpan(ctx, "qclab.rank",
		attribute.Int("rank", rank),
		attribute.Int("size", size),
		attribute.Int("batches", hi-lo),
	)
	defer span.End()

	log := o.logger.With(logging.Int("rank", rank))
	if rank == 0 {
		log.Info(ctx, "ensemble run started",
			logging.String("model", sim.Model.Name),
			logging.String("algorithm", sim.Algorithm.Name),
			logging.Int("trajectories", len(p.seeds)),
			logging.Int("batches", len(p.batches)),
			logging.Int("ranks", size),
		)
	}
	start := time.Now()

	local, err := integrateChunk(ctx, sim, p.batches[lo:hi], rank, p, o, log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := comm.Barrier(ctx); err != nil {
		return nil, &dynamo.EnvironmentError{Facility: "barrier", Err: err}
	}
	parts, err := comm.Gather(ctx, local, 0)
	if err != nil {
		return nil, &dynamo.EnvironmentError{Facility: "gather", Err: err}
	}
	if rank != 0 {
		return nil, nil
	}

	// The prior data is written only after every part has merged.
	result := dynamo.NewData()
	for r, part := range parts {
		if err := result.Merge(part); err != nil {
			return nil, fmt.Errorf("merge rank %d: %w", r, err)
		}
	}
	if err := result.SetSeeds(p.seeds); err != nil {
		return nil, err
	}
	if o.data != nil {
		if err := o.data.Merge(result); err != nil {
			return nil, fmt.Errorf("merge prior data: %w", err)
		}
		if err := o.data.SetSeeds(append(append([]int(nil), p.prior...), p.seeds...)); err != nil {
			return nil, err
		}
		result = o.data
	}
	log.Info(ctx, "ensemble run completed",
		logging.Int("trajectories", result.Len()),
		logging.String("elapsed", time.Since(start).String()),
	)
	return result, nil
}

func integrateChunk(ctx context.Context, sim *dynamo.Simulation, chunk []batch.Batch, rank int, p *plan, o *options, log logging.Logger) (*dynamo.Data, error) {
	o.collector.WorkerStarted()
	defer o.collector.WorkerStopped()

	local := dynamo.NewData()
	for _, b := range chunk {
		bctx, span := observability.StartSpan(ctx, "qclab.batch",
			attribute.Int("rank", rank),
			attribute.Int("batch", b.Index),
			attribute.Int("size", b.Size),
		)
		started := time.Now()
		next, err := o.integrator(bctx, sim, b, local)
		elapsed := time.Since(started)
		o.collector.BatchDone(rank, b.Size, elapsed, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			log.Error(ctx, "batch failed", logging.Int("batch", b.Index), logging.Err(err))
			return nil, fmt.Errorf("rank %d batch %d: %w", rank, b.Index, err)
		}
		span.End()
		local = next

		done := int(p.done.Add(1))
		log.Debug(ctx, "batch completed",
			logging.Int("batch", b.Index),
			logging.Int("size", b.Size),
			logging.String("elapsed", elapsed.String()),
		)
		if o.progress != nil {
			o.progress(Progress{Rank: rank, Batch: b.Index, Done: done, Total: len(p.batches)})
		}
	}
	return local, nil
}
