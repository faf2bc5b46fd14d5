package optim

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/qclab/internal/experiment"
	"github.com/san-kum/qclab/internal/metrics"
)

// GridSearch minimizes one ensemble metric over the cartesian product of
// parameter values.
type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// Builder returns a ready experiment for one grid point.
type Builder func(params map[string]float64) (*experiment.Experiment, error)

// Search evaluates every grid point and returns the one with the smallest
// value of metric, computed from ms.
func (g *GridSearch) Search(ctx context.Context, build Builder, metric string, ms ...metrics.Metric) (map[string]float64, float64, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, 0, fmt.Errorf("%d parameters but %d ranges", len(g.paramNames), len(g.ranges))
	}

	best := math.Inf(1)
	var bestParams map[string]float64

	err := g.searchRecursive(ctx, 0, make(map[string]float64), build, metric, ms, &best, &bestParams)
	if err != nil {
		return nil, 0, err
	}
	if bestParams == nil {
		return nil, 0, fmt.Errorf("metric %s not reported at any grid point", metric)
	}
	return bestParams, best, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	build Builder,
	metric string,
	ms []metrics.Metric,
	best *float64,
	bestParams *map[string]float64,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(g.paramNames) {
		exp, err := build(current)
		if err != nil {
			return fmt.Errorf("build %v: %w", current, err)
		}

		data, err := exp.Run(ctx)
		if err != nil {
			return fmt.Errorf("run %v: %w", current, err)
		}

		summary, err := metrics.Summary(data, ms...)
		if err != nil {
			return err
		}
		val, ok := summary[metric]
		if ok && val < *best {
			*best = val
			*bestParams = make(map[string]float64)
			for k, v := range current {
				(*bestParams)[k] = v
			}
		}
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, build, metric, ms, best, bestParams); err != nil {
			return err
		}
	}
	return nil
}
