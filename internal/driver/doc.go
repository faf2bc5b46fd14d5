// Package driver runs ensembles of trajectories: it resolves seeds,
// partitions them into batches, spreads the batches over parallel ranks and
// reassembles the results.
//
// # Example
//
//	sim, _ := experiment.Build(cfg)
//	data, err := driver.Parallel(ctx, sim, driver.WithWorkers(4))
//
// Every rank of a communicator calls [Run]; [Parallel] does that for an
// in-process [World] and [Serial] for a world of one, so the three produce
// identical per-seed results.
//
// # Thread Safety
//
// The simulation handle is read-only while batches run. Seed resolution may
// write num_trajs, which is why [Parallel] resolves seeds once before
// starting any rank.
package driver
