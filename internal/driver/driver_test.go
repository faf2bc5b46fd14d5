package driver_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/san-kum/qclab/internal/algorithms"
	"github.com/san-kum/qclab/internal/batch"
	"github.com/san-kum/qclab/internal/driver"
	"github.com/san-kum/qclab/internal/dynamics"
	"github.com/san-kum/qclab/internal/dynamo"
	"github.com/san-kum/qclab/internal/logging"
	"github.com/san-kum/qclab/internal/models"
	"github.com/san-kum/qclab/internal/observability"
	"github.com/san-kum/qclab/internal/tasks"
)

func newSim(settings, constants map[string]any) *dynamo.Simulation {
	base := map[string]any{"tmax": 0.2, "dt": 0.01, "dt_output": 0.05}
	for k, v := range settings {
		base[k] = v
	}
	sim, err := dynamo.NewSimulation(base)
	Expect(err).NotTo(HaveOccurred())
	if constants == nil {
		constants = map[string]any{"A": 3}
	}
	sim.Model, err = models.NewSpinBoson(constants, dynamo.WithModelLogger(logging.Noop()))
	Expect(err).NotTo(HaveOccurred())
	sim.Algorithm, err = algorithms.NewMeanField(nil)
	Expect(err).NotTo(HaveOccurred())
	wf := dynamo.NewArray(2)
	wf.Data[0] = 1
	sim.SetInitialState(tasks.FieldWfDb, wf)
	return sim
}

func expectIdentical(a, b *dynamo.Data) {
	Expect(b.Seeds()).To(Equal(a.Seeds()))
	Expect(b.Times()).To(Equal(a.Times()))
	Expect(b.Names()).To(Equal(a.Names()))
	for _, name := range a.Names() {
		for _, seed := range a.Seeds() {
			ra, _ := a.Trajectory(name, seed)
			rb, _ := b.Trajectory(name, seed)
			Expect(rb).To(Equal(ra), "variable %s seed %d", name, seed)
		}
	}
}

// countingIntegrator wraps dynamics.Run and records which batches ran.
type countingIntegrator struct {
	mu      sync.Mutex
	batches []int
	fail    int
}

func (c *countingIntegrator) run(ctx context.Context, sim *dynamo.Simulation, b batch.Batch, d *dynamo.Data) (*dynamo.Data, error) {
	c.mu.Lock()
	c.batches = append(c.batches, b.Index)
	c.mu.Unlock()
	if c.fail >= 0 && b.Index == c.fail {
		return nil, errBatch
	}
	return dynamics.Run(ctx, sim, b, d)
}

var errBatch = errors.New("batch exploded")

var _ = Describe("Ensemble drivers", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("determinism", func() {
		It("gives identical per-seed output serially and on 1, 2 and 3 workers", func() {
			sim := newSim(map[string]any{"num_trajs": 10, "batch_size": 3}, nil)
			serial, err := driver.Serial(ctx, sim, driver.WithLogger(logging.Noop()))
			Expect(err).NotTo(HaveOccurred())
			Expect(serial.Len()).To(Equal(10))

			for _, workers := range []int{1, 2, 3} {
				par, err := driver.Parallel(ctx, sim, driver.WithWorkers(workers), driver.WithLogger(logging.Noop()))
				Expect(err).NotTo(HaveOccurred(), "workers=%d", workers)
				expectIdentical(serial, par)
			}
		})

		It("records seeds in generation order", func() {
			sim := newSim(map[string]any{"num_trajs": 3, "batch_size": 2}, nil)
			data, err := driver.Parallel(ctx, sim,
				driver.WithSeeds([]int{9, 3, 5}),
				driver.WithWorkers(2),
				driver.WithLogger(logging.Noop()),
			)
			Expect(err).NotTo(HaveOccurred())
			Expect(data.Seeds()).To(Equal([]int{9, 3, 5}))
		})
	})

	Describe("chunking", func() {
		It("processes every batch when chunks are uneven", func() {
			sim := newSim(map[string]any{"num_trajs": 10, "batch_size": 2}, nil)
			counter := &countingIntegrator{fail: -1}
			data, err := driver.Parallel(ctx, sim,
				driver.WithWorkers(2),
				driver.WithIntegrator(counter.run),
				driver.WithLogger(logging.Noop()),
			)
			Expect(err).NotTo(HaveOccurred())
			sort.Ints(counter.batches)
			Expect(counter.batches).To(Equal([]int{0, 1, 2, 3, 4}))
			Expect(data.Seeds()).To(Equal(batch.Seeds(10, 0)))
		})

		It("tolerates more workers than batches", func() {
			sim := newSim(map[string]any{"num_trajs": 2, "batch_size": 1}, nil)
			data, err := driver.Parallel(ctx, sim, driver.WithWorkers(5), driver.WithLogger(logging.Noop()))
			Expect(err).NotTo(HaveOccurred())
			Expect(data.Len()).To(Equal(2))
		})

		It("takes the worker count from num_tasks", func() {
			sim := newSim(map[string]any{"num_trajs": 6, "batch_size": 1, "num_tasks": 3}, nil)
			var mu sync.Mutex
			ranks := map[int]bool{}
			_, err := driver.Parallel(ctx, sim,
				driver.WithLogger(logging.Noop()),
				driver.WithProgress(func(p driver.Progress) {
					mu.Lock()
					ranks[p.Rank] = true
					mu.Unlock()
				}),
			)
			Expect(err).NotTo(HaveOccurred())
			Expect(ranks).To(HaveLen(3))
		})
	})

	Describe("seeds", func() {
		It("lets explicit seeds override num_trajs", func() {
			sim := newSim(map[string]any{"num_trajs": 8, "batch_size": 2}, nil)
			data, err := driver.Serial(ctx, sim, driver.WithSeeds([]int{10, 11, 12}), driver.WithLogger(logging.Noop()))
			Expect(err).NotTo(HaveOccurred())
			Expect(sim.NumTrajs()).To(Equal(3))
			Expect(data.Seeds()).To(Equal([]int{10, 11, 12}))
		})

		It("offsets generated seeds past prior data", func() {
			sim := newSim(map[string]any{"num_trajs": 4, "batch_size": 2}, nil)
			first, err := driver.Serial(ctx, sim, driver.WithLogger(logging.Noop()))
			Expect(err).NotTo(HaveOccurred())

			both, err := driver.Parallel(ctx, sim,
				driver.WithData(first),
				driver.WithWorkers(2),
				driver.WithLogger(logging.Noop()),
			)
			Expect(err).NotTo(HaveOccurred())
			Expect(both.Seeds()).To(Equal(batch.Seeds(8, 0)))

			fresh, err := driver.Serial(ctx, sim, driver.WithSeeds(batch.Seeds(8, 0)), driver.WithLogger(logging.Noop()))
			Expect(err).NotTo(HaveOccurred())
			expectIdentical(fresh, both)
		})

		It("rejects explicit seeds already held by prior data and leaves it untouched", func() {
			sim := newSim(map[string]any{"num_trajs": 2, "batch_size": 1}, nil)
			prior, err := driver.Serial(ctx, sim, driver.WithLogger(logging.Noop()))
			Expect(err).NotTo(HaveOccurred())
			Expect(prior.Seeds()).To(Equal([]int{0, 1}))

			var calls countingIntegrator
			calls.fail = -1
			_, err = driver.Parallel(ctx, sim,
				driver.WithData(prior),
				driver.WithSeeds([]int{10, 11, 1, 12}),
				driver.WithWorkers(2),
				driver.WithIntegrator(calls.run),
				driver.WithLogger(logging.Noop()),
			)
			var ce *dynamo.ConfigError
			Expect(errors.As(err, &ce)).To(BeTrue())
			Expect(errors.Is(err, dynamo.ErrSeedOverlap)).To(BeTrue())
			Expect(calls.batches).To(BeEmpty())
			Expect(prior.Seeds()).To(Equal([]int{0, 1}))
			Expect(prior.Len()).To(Equal(2))
		})

		It("keeps prior data unchanged when a batch fails", func() {
			sim := newSim(map[string]any{"num_trajs": 2, "batch_size": 1}, nil)
			prior, err := driver.Serial(ctx, sim, driver.WithLogger(logging.Noop()))
			Expect(err).NotTo(HaveOccurred())

			calls := countingIntegrator{fail: 3}
			_, err = driver.Parallel(ctx, sim,
				driver.WithData(prior),
				driver.WithSeeds([]int{10, 11, 12, 13}),
				driver.WithWorkers(2),
				driver.WithIntegrator(calls.run),
				driver.WithLogger(logging.Noop()),
			)
			Expect(errors.Is(err, errBatch)).To(BeTrue())
			Expect(prior.Seeds()).To(Equal([]int{0, 1}))
		})

		It("treats an empty explicit seed list as an error", func() {
			sim := newSim(map[string]any{"num_trajs": 4}, nil)
			_, err := driver.Serial(ctx, sim, driver.WithSeeds([]int{}), driver.WithLogger(logging.Noop()))
			Expect(errors.Is(err, batch.ErrNoSeeds)).To(BeTrue())
			Expect(sim.NumTrajs()).To(Equal(4))
		})

		It("rejects repeated and negative seeds", func() {
			sim := newSim(nil, nil)
			_, err := driver.Serial(ctx, sim, driver.WithSeeds([]int{1, 1}), driver.WithLogger(logging.Noop()))
			var ce *dynamo.ConfigError
			Expect(errors.As(err, &ce)).To(BeTrue())

			_, err = driver.Serial(ctx, sim, driver.WithSeeds([]int{-1}), driver.WithLogger(logging.Noop()))
			Expect(errors.Is(err, batch.ErrNegativeSeed)).To(BeTrue())
		})
	})

	Describe("failures", func() {
		It("reports a missing communicator as an environment error", func() {
			sim := newSim(nil, nil)
			_, err := driver.Run(ctx, nil, sim)
			var env *dynamo.EnvironmentError
			Expect(errors.As(err, &env)).To(BeTrue())
			Expect(errors.Is(err, dynamo.ErrNoCommunicator)).To(BeTrue())
		})

		It("rejects an empty world", func() {
			sim := newSim(nil, nil)
			_, err := driver.Run(ctx, driver.NewWorld(0).Comm(0), sim)
			Expect(errors.Is(err, dynamo.ErrNoCommunicator)).To(BeTrue())
		})

		It("fails the run when a batch fails", func() {
			sim := newSim(map[string]any{"num_trajs": 8, "batch_size": 2}, nil)
			counter := &countingIntegrator{fail: 2}
			data, err := driver.Parallel(ctx, sim,
				driver.WithWorkers(2),
				driver.WithIntegrator(counter.run),
				driver.WithLogger(logging.Noop()),
			)
			Expect(errors.Is(err, errBatch)).To(BeTrue())
			Expect(data).To(BeNil())
		})

		It("stops on cancellation", func() {
			sim := newSim(map[string]any{"num_trajs": 4, "batch_size": 1}, nil)
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := driver.Parallel(cctx, sim, driver.WithWorkers(2), driver.WithLogger(logging.Noop()))
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		})

		It("refuses a simulation without an algorithm", func() {
			sim := newSim(nil, nil)
			sim.Algorithm = nil
			_, err := driver.Serial(ctx, sim)
			var ce *dynamo.ConfigError
			Expect(errors.As(err, &ce)).To(BeTrue())
		})
	})

	Describe("observability", func() {
		It("counts batches, trajectories and progress", func() {
			collector, err := observability.NewDriverCollector(prometheus.NewRegistry())
			Expect(err).NotTo(HaveOccurred())
			var calls, last, badTotals atomic.Int32

			sim := newSim(map[string]any{"num_trajs": 7, "batch_size": 2}, nil)
			_, err = driver.Parallel(ctx, sim,
				driver.WithWorkers(3),
				driver.WithCollector(collector),
				driver.WithLogger(logging.Noop()),
				driver.WithProgress(func(p driver.Progress) {
					calls.Add(1)
					if p.Total != 4 {
						badTotals.Add(1)
					}
					for {
						cur := last.Load()
						if int32(p.Done) <= cur || last.CompareAndSwap(cur, int32(p.Done)) {
							break
						}
					}
				}),
			)
			Expect(err).NotTo(HaveOccurred())
			Expect(calls.Load()).To(Equal(int32(4)))
			Expect(badTotals.Load()).To(BeZero())
			Expect(last.Load()).To(Equal(int32(4)))
			Expect(testutil.ToFloat64(collector.Batches.WithLabelValues(observability.StatusOK))).To(Equal(4.0))
			Expect(testutil.ToFloat64(collector.Trajectories)).To(Equal(7.0))
			Expect(testutil.ToFloat64(collector.ActiveWorkers)).To(Equal(0.0))
		})
	})

	Describe("the spin-boson scenario", func() {
		It("runs 200 trajectories in batches of 50 identically on every driver", func() {
			sim := newSim(map[string]any{"num_trajs": 200, "batch_size": 50, "tmax": 1.0, "dt": 0.01, "dt_output": 0.1},
				map[string]any{"V": 0.5, "E": 0.5, "A": 100, "W": 0.1, "l_reorg": 0.005, "boson_mass": 1.0, "kBT": 1.0})

			grid, err := batch.Grid(batch.Seeds(200, 0), 50)
			Expect(err).NotTo(HaveOccurred())
			Expect(grid).To(HaveLen(4))

			serial, err := driver.Serial(ctx, sim, driver.WithLogger(logging.Noop()))
			Expect(err).NotTo(HaveOccurred())
			par, err := driver.Parallel(ctx, sim, driver.WithWorkers(4), driver.WithLogger(logging.Noop()))
			Expect(err).NotTo(HaveOccurred())
			expectIdentical(serial, par)

			pop, err := serial.MeanReal(tasks.FieldDmDb)
			Expect(err).NotTo(HaveOccurred())
			Expect(pop[0]).To(BeNumerically("~", 1.0, 1e-12))
			Expect(pop[0] + pop[3]).To(BeNumerically("~", 1.0, 1e-9))
		})
	})
})

var _ = Describe("World", func() {
	It("gathers values at root in rank order", func() {
		world := driver.NewWorld(3)
		results := make([][]*dynamo.Data, 3)
		var wg sync.WaitGroup
		for r := 0; r < 3; r++ {
			wg.Add(1)
			go func(r int) {
				defer GinkgoRecover()
				defer wg.Done()
				d := dynamo.NewData()
				Expect(d.Begin([]int{r}, []float64{0})).To(Succeed())
				comm := world.Comm(r)
				Expect(comm.Barrier(context.Background())).To(Succeed())
				out, err := comm.Gather(context.Background(), d, 0)
				Expect(err).NotTo(HaveOccurred())
				results[r] = out
			}(r)
		}
		wg.Wait()

		Expect(results[1]).To(BeNil())
		Expect(results[2]).To(BeNil())
		Expect(results[0]).To(HaveLen(3))
		for r, d := range results[0] {
			Expect(d.Seeds()).To(Equal([]int{r}))
		}
	})

	It("releases a barrier waiter on cancellation", func() {
		world := driver.NewWorld(2)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		Expect(world.Comm(0).Barrier(ctx)).To(MatchError(context.Canceled))
	})

	It("rejects a gather root outside the world", func() {
		_, err := driver.NewWorld(1).Comm(0).Gather(context.Background(), nil, 4)
		Expect(err).To(HaveOccurred())
	})
})
