// Package dispatch implements the dispatch engine (spec.md §4.9): running
// a compiled workload stage by stage, with a strict happens-before edge
// between stages and concurrent invocation within a stage.
package dispatch

import (
	"context"
	"fmt"
	"log"

	"github.com/eeks-rt/eeks"
	"github.com/eeks-rt/eeks/internal/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// Engine dispatches workloads against a single shared world.
type Engine struct {
	World  eeks.World
	Logger *log.Logger

	// MaxConcurrency bounds how many systems of one stage run at once.
	// 0 means unbounded (every system in the stage is launched at once),
	// matching the "systems within a stage are independent by
	// construction" guarantee spec.md §4.9 describes.
	MaxConcurrency int
}

// New returns an Engine dispatching against world. maxConcurrency <= 0
// means unbounded.
func New(world eeks.World, logger *log.Logger, maxConcurrency int) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{World: world, Logger: logger, MaxConcurrency: maxConcurrency}
}

// Run executes every stage of wl in order, invoking all systems of a stage
// concurrently and waiting for the whole stage to finish before starting
// the next (spec.md §5, "Scheduling model"). The first error from any
// system aborts the remaining systems of that stage (via errgroup's
// context cancellation) and the stages after it.
func (e *Engine) Run(ctx context.Context, wl *eeks.Workload) error {
	for stageIdx, stage := range wl.Stages {
		if len(stage) == 0 {
			continue
		}
		stageEvent := trace.Event(fmt.Sprintf("%s/stage%d", wl.Group, stageIdx), 0)
		if err := e.runStage(ctx, wl, stage); err != nil {
			stageEvent.Done()
			return xerrors.Errorf("workload %q stage %d: %w", wl.Group, stageIdx, err)
		}
		stageEvent.Done()
	}
	return nil
}

func (e *Engine) runStage(ctx context.Context, wl *eeks.Workload, stage []int) error {
	eg, ctx := errgroup.WithContext(ctx)

	var sem chan struct{}
	if e.MaxConcurrency > 0 {
		sem = make(chan struct{}, e.MaxConcurrency)
	}

	for i, idx := range stage {
		desc := wl.Systems[idx].Descriptor
		tid := i
		eg.Go(func() error {
			if sem != nil {
				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					return ctx.Err()
				}
				defer func() { <-sem }()
			}
			ev := trace.Event(desc.ID, tid)
			defer ev.Done()
			if err := desc.Invoke(ctx, e.World); err != nil {
				return xerrors.Errorf("system %s/%s: %w", desc.Group, desc.ID, err)
			}
			return nil
		})
	}
	return eg.Wait()
}
