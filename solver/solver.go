// Package solver implements the MultipleShootingSolver orchestrator: the top-level SQP
// outer loop of spec.md §3/§4.E, tying together discretization, parallel stage assembly,
// the structured QP back-end, the filter line search, and controller synthesis.
package solver

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/msqp/discretization"
	"go.viam.com/msqp/linesearch"
	"go.viam.com/msqp/logging"
	"go.viam.com/msqp/mpctypes"
	"go.viam.com/msqp/msqperrors"
	"go.viam.com/msqp/msqpsettings"
	"go.viam.com/msqp/providers"
	"go.viam.com/msqp/scheduler"
	"go.viam.com/msqp/solution"
	"go.viam.com/msqp/transcription"
)

// Config collects everything a Solver needs for the lifetime of its Run calls. Providers and
// OperatingTrajectories are cloned once at construction time (spec.md §3, "Ownership"); the
// caller retains ownership of its own copy and may keep mutating it freely afterward.
type Config struct {
	Providers             scheduler.ProviderSet
	OperatingTrajectories providers.OperatingTrajectories
	ModeSchedule          providers.ModeScheduleSource
	Desired               providers.CostDesiredTrajectories
	Integrator            providers.IntegratorSelector
	QPBackend             providers.Backend
	Settings              msqpsettings.Settings
	Logger                logging.Logger
}

// IterationRecord captures one SQP iteration's diagnostics, available after Run via
// IterationLog (spec.md §9, "Supplemented" iteration log).
type IterationRecord struct {
	Iteration           int
	Merit               float64
	ConstraintViolation float64
	DeltaXNorm          float64
	DeltaUNorm          float64
	Alpha               float64
	Accepted            bool
	Converged           bool
	QPStatus            providers.QPStatus
}

// Solver is the MultipleShootingSolver of spec.md §3: a long-lived object holding cloned
// providers and the QP back-end, driven repeatedly by Run over a receding horizon.
type Solver struct {
	cfg    Config
	nx, nu int

	solution *mpctypes.PrimalSolution
	log      []IterationRecord
	hasRun   bool
}

// New constructs a Solver. nx and nu are the state and (maximum, per-interval) input
// dimensions of the underlying dynamics, used to size the QP back-end and seed warm-start
// defaults. Providers and OperatingTrajectories are cloned immediately, so the caller's
// originals are never touched by a Run call.
func New(cfg Config, nx, nu int) *Solver {
	cfg.Providers = cfg.Providers.Clone()
	if cfg.OperatingTrajectories != nil {
		cfg.OperatingTrajectories = cfg.OperatingTrajectories.Clone()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger("msqp.solver", logging.INFO)
	}
	return &Solver{cfg: cfg, nx: nx, nu: nu}
}

// Run executes one full SQP solve over [t0,tf] starting from initState, warm-starting from
// the previous Run's solution (if any), and returns the resulting PrimalSolution. On a QP
// back-end failure the error is returned and the Solver's stored solution/log are left
// untouched, so IterationLog and Solution still reflect the last successful Run.
func (s *Solver) Run(ctx context.Context, t0, tf float64, initState *mat.VecDense) (*mpctypes.PrimalSolution, error) {
	settings := s.cfg.Settings
	var eventTimes []float64
	var modeSchedule interface{}
	if s.cfg.ModeSchedule != nil {
		eventTimes = s.cfg.ModeSchedule.EventTimes()
		modeSchedule = s.cfg.ModeSchedule.ModeSchedule()
	}
	grid := discretization.Discretize(t0, tf, settings.Dt, eventTimes)
	n := discretization.Stages(grid)

	_, sensitivity, err := s.cfg.Integrator(string(settings.IntegratorType))
	if err != nil {
		return nil, errors.Wrap(err, "selecting integrator")
	}

	var prev *mpctypes.PrimalSolution
	var prevController *mpctypes.Controller
	if s.hasRun {
		prev = s.solution
		prevController = s.solution.Controller
	}
	x := solution.InitStates(grid, initState, prev)
	u, err := solution.InitInputs(ctx, grid, x, prevController, s.cfg.OperatingTrajectories, s.nu)
	if err != nil {
		return nil, errors.Wrap(err, "seeding input trajectory")
	}

	opts := transcription.Options{
		ProjectEquality:           settings.ProjectStateInputEqualityConstraints,
		InequalityConstraintMu:    settings.InequalityConstraintMu,
		InequalityConstraintDelta: settings.InequalityConstraintDelta,
	}

	var record []IterationRecord
	var lastResult scheduler.Result

	for iter := 0; iter < settings.SQPIteration; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := scheduler.AssembleStages(
			ctx, s.cfg.Logger, settings.NThreads, grid, s.cfg.Providers, s.cfg.Desired, sensitivity, opts, x, u,
		)
		if err != nil {
			return nil, errors.Wrapf(err, "assembling stages at iteration %d", iter)
		}
		lastResult = result

		sizes := stageSizesFromPayload(result.Stages, result.Terminal)
		if err := s.cfg.QPBackend.Resize(sizes); err != nil {
			return nil, errors.Wrap(err, "resizing qp back-end")
		}

		dynamics := make([]mpctypes.LinearApproximation, n)
		cost := make([]mpctypes.QuadraticApproximation, n+1)
		constraints := make([]mpctypes.StageConstraintSpec, n+1)
		for i, stage := range result.Stages {
			dynamics[i] = stage.Dynamics
			cost[i] = stage.Cost
			constraints[i] = mpctypes.FromStagePayload(stage)
		}
		cost[n] = result.Terminal.Cost
		constraints[n] = mpctypes.FromStagePayload(result.Terminal)

		deltaX0 := mat.NewVecDense(s.nx, nil) // x_0 is pinned to the measured state already
		step, err := s.cfg.QPBackend.Solve(ctx, deltaX0, dynamics, cost, constraints)
		if err != nil {
			return nil, errors.Wrapf(err, "qp solve at iteration %d", iter)
		}
		if step.Status != providers.QPSuccess {
			return nil, msqperrors.QPFailure(step.Status.String(), nil)
		}

		deltaU := solution.RemapDeltaU(result.Stages, step.DeltaX, step.DeltaU)
		deltaXNorm := stepNorms(step.DeltaX)
		deltaUNorm := stepNorms(deltaU)

		baseline := result.Performance
		trial := func(ctx context.Context, alpha float64) (mpctypes.PerformanceIndex, error) {
			tx, tu := solution.ApplyStep(x, u, step.DeltaX, deltaU, alpha)
			res, err := scheduler.AssembleStages(
				ctx, s.cfg.Logger, settings.NThreads, grid, s.cfg.Providers, s.cfg.Desired, sensitivity, opts, tx, tu,
			)
			if err != nil {
				return mpctypes.PerformanceIndex{}, err
			}
			return res.Performance, nil
		}

		lsParams := linesearch.ParamsFromSettings(settings)
		lsResult, err := linesearch.Search(ctx, s.cfg.Logger, lsParams, baseline, deltaXNorm, deltaUNorm, trial, settings.PrintLinesearch)
		if err != nil {
			return nil, errors.Wrapf(err, "line search at iteration %d", iter)
		}

		rec := IterationRecord{
			Iteration:           iter,
			Merit:               lsResult.Trial.Merit(),
			ConstraintViolation: lsResult.Trial.ConstraintViolation(),
			DeltaXNorm:          deltaXNorm,
			DeltaUNorm:          deltaUNorm,
			Alpha:               lsResult.Alpha,
			Accepted:            lsResult.Accepted,
			Converged:           lsResult.Converged,
			QPStatus:            step.Status,
		}
		record = append(record, rec)
		if settings.PrintSolverStatus {
			s.cfg.Logger.Infow("sqp iteration",
				"iteration", iter, "merit", rec.Merit, "violation", rec.ConstraintViolation,
				"alpha", rec.Alpha, "accepted", rec.Accepted)
		}

		if lsResult.Accepted {
			x, u = solution.ApplyStep(x, u, step.DeltaX, deltaU, lsResult.Alpha)
		}
		if lsResult.Converged {
			break
		}
	}

	k, err := s.cfg.QPBackend.RiccatiFeedback()
	useFeedback := settings.UseFeedbackPolicy
	if err != nil {
		s.cfg.Logger.Warnw("riccati feedback unavailable, degrading to feedforward-only controller", "cause", err)
		useFeedback = false
		k = nil
	}
	controller := solution.BuildController(grid, lastResult.Stages, x, u, k, useFeedback)
	primal := solution.Build(grid, x, u, controller, modeSchedule)

	s.solution = &primal
	s.log = record
	s.hasRun = true
	return &primal, nil
}

// IterationLog returns the diagnostics recorded by the most recent Run call.
func (s *Solver) IterationLog() ([]IterationRecord, error) {
	if !s.hasRun {
		return nil, msqperrors.UsageErrorf("IterationLog called before any Run")
	}
	return s.log, nil
}

// Solution returns the PrimalSolution produced by the most recent Run call.
func (s *Solver) Solution() (*mpctypes.PrimalSolution, error) {
	if !s.hasRun {
		return nil, msqperrors.UsageErrorf("Solution called before any Run")
	}
	return s.solution, nil
}

// stageSizesFromPayload derives the per-stage {Nx,Nu,Ng} sizes the QP back-end needs to
// Resize from the transcribed stage payloads.
func stageSizesFromPayload(stages []mpctypes.StagePayload, terminal mpctypes.StagePayload) []providers.StageSizes {
	out := make([]providers.StageSizes, len(stages)+1)
	for i, stage := range stages {
		out[i] = providers.StageSizes{
			Nx: stage.Cost.DfDx.Len(),
			Nu: stage.Dynamics.InputCols(),
			Ng: stage.Constraints.Rows(),
		}
	}
	out[len(stages)] = providers.StageSizes{
		Nx: terminal.Cost.DfDx.Len(),
		Nu: 0,
		Ng: terminal.Constraints.Rows(),
	}
	return out
}

// stepNorms returns the Euclidean norm of the stacked components of vs, computed as the
// root-sum-square of each vector's own L2 norm.
func stepNorms(vs []*mat.VecDense) float64 {
	sumSq := 0.0
	for _, v := range vs {
		if v == nil || v.Len() == 0 {
			continue
		}
		n := floats.Norm(v.RawVector().Data, 2)
		sumSq += n * n
	}
	return math.Sqrt(sumSq)
}
