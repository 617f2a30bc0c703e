// Package scheduler implements the Parallel Stage Assembly section of the SQP loop
// (spec.md §4.C): a fixed pool of worker goroutines, each holding its own cloned copy of
// every provider, claims stage indices from a shared atomic counter and writes its
// transcribed StagePayload into a disjoint slice index.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/msqp/logging"
	"go.viam.com/msqp/mpctypes"
	"go.viam.com/msqp/msqperrors"
	"go.viam.com/msqp/providers"
	"go.viam.com/msqp/transcription"
)

// ProviderSet bundles every provider interface an assembly worker needs, so a single Clone
// call produces a fully independent worker-local copy (spec.md §9, "Per-worker state without
// locks").
type ProviderSet struct {
	Dynamics           providers.Dynamics
	Cost               providers.Cost
	Constraint         providers.Constraint
	EventDynamics      providers.EventDynamics
	EventCost          providers.TerminalCost
	EventConstraint    providers.EventConstraint
	TerminalCost       providers.TerminalCost
	TerminalConstraint providers.EventConstraint
}

// Clone deep-clones every provider in the set.
func (p ProviderSet) Clone() ProviderSet {
	return ProviderSet{
		Dynamics:           p.Dynamics.Clone(),
		Cost:               p.Cost.Clone(),
		Constraint:         p.Constraint.Clone(),
		EventDynamics:      p.EventDynamics.Clone(),
		EventCost:          p.EventCost.Clone(),
		EventConstraint:    p.EventConstraint.Clone(),
		TerminalCost:       p.TerminalCost.Clone(),
		TerminalConstraint: p.TerminalConstraint.Clone(),
	}
}

// Result is the output of one AssembleStages call.
type Result struct {
	// Stages holds one StagePayload per dynamics interval, indices 0..len(grid)-2.
	Stages []mpctypes.StagePayload
	// Terminal is the payload at the final grid node.
	Terminal mpctypes.StagePayload
	// Performance is the PerformanceIndex summed across every stage in stage-index order
	// after all workers finish, so it does not depend on which worker assembled which stage.
	Performance mpctypes.PerformanceIndex
}

// AssembleStages runs the parallel assembly pass over a discretized grid. states must have
// len(grid) entries; inputs must have len(grid)-1 entries, one per dynamics interval (an
// interval whose leading node is a PreEvent splice ignores its inputs entry). nThreads is
// clamped to at least 1.
func AssembleStages(
	ctx context.Context,
	logger logging.Logger,
	nThreads int,
	grid []mpctypes.AnnotatedTime,
	base ProviderSet,
	desired providers.CostDesiredTrajectories,
	sensitivity providers.SensitivityDiscretizer,
	opts transcription.Options,
	states, inputs []*mat.VecDense,
) (Result, error) {
	if nThreads < 1 {
		nThreads = 1
	}
	n := len(grid) - 1 // number of dynamics intervals
	total := n + 1      // + the terminal node

	stages := make([]mpctypes.StagePayload, n)
	stagePerf := make([]mpctypes.PerformanceIndex, total)
	var terminal mpctypes.StagePayload

	var counter atomic.Int64
	var errOnce sync.Once
	var firstErr error
	setErr := func(err error) { errOnce.Do(func() { firstErr = err }) }

	workers := nThreads
	if workers > total {
		workers = total
	}
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		local := base.Clone()
		utils.PanicCapturingGo(func() {
			defer wg.Done()
			runWorker(ctx, &counter, total, n, local, desired, sensitivity, opts, grid, states, inputs, stages, stagePerf, &terminal, setErr)
		})
	}
	wg.Wait()

	var perf mpctypes.PerformanceIndex
	for _, p := range stagePerf {
		perf.Add(p)
	}
	if firstErr != nil {
		return Result{}, firstErr
	}
	if !perf.IsFinite() {
		logger.Warnw("non-finite performance index after stage assembly", "totalCost", perf.TotalCost)
	}
	return Result{Stages: stages, Terminal: terminal, Performance: perf}, nil
}

func runWorker(
	ctx context.Context,
	counter *atomic.Int64,
	total, n int,
	local ProviderSet,
	desired providers.CostDesiredTrajectories,
	sensitivity providers.SensitivityDiscretizer,
	opts transcription.Options,
	grid []mpctypes.AnnotatedTime,
	states, inputs []*mat.VecDense,
	stages []mpctypes.StagePayload,
	stagePerf []mpctypes.PerformanceIndex,
	terminal *mpctypes.StagePayload,
	setErr func(error),
) {
	idx := -1
	defer func() {
		if r := recover(); r != nil {
			setErr(msqperrors.ProviderError(idx, errors.Errorf("panic: %v", r)))
		}
	}()
	for {
		idx = int(counter.Add(1)) - 1
		if idx >= total {
			return
		}
		if err := ctx.Err(); err != nil {
			setErr(err)
			return
		}
		if idx < n {
			payload, perf, err := assembleStage(ctx, local, desired, sensitivity, opts, grid, idx, states, inputs)
			if err != nil {
				setErr(err)
				continue
			}
			stages[idx] = payload
			stagePerf[idx] = perf
			continue
		}
		payload, perf, err := transcription.SetupTerminalNode(
			local.TerminalCost, local.TerminalConstraint, desired, idx, grid[n].Time, states[n],
		)
		if err != nil {
			setErr(err)
			continue
		}
		*terminal = payload
		stagePerf[idx] = perf
	}
}

// assembleStage dispatches one dynamics interval to SetupEventNode (when it begins at a
// PreEvent splice) or SetupIntermediateNode otherwise.
func assembleStage(
	ctx context.Context,
	local ProviderSet,
	desired providers.CostDesiredTrajectories,
	sensitivity providers.SensitivityDiscretizer,
	opts transcription.Options,
	grid []mpctypes.AnnotatedTime,
	idx int,
	states, inputs []*mat.VecDense,
) (mpctypes.StagePayload, mpctypes.PerformanceIndex, error) {
	if grid[idx].Event == mpctypes.PreEvent {
		return transcription.SetupEventNode(
			local.EventDynamics, local.EventCost, local.EventConstraint, desired, idx,
			grid[idx].Time, states[idx], states[idx+1],
		)
	}
	dt := grid[idx+1].Time - grid[idx].Time
	return transcription.SetupIntermediateNode(
		ctx, local.Dynamics, sensitivity, local.Cost, local.Constraint, desired, opts, idx,
		grid[idx].Time, dt, states[idx], states[idx+1], inputs[idx],
	)
}
