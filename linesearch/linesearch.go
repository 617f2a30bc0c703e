// Package linesearch implements the Wächter-Biegler filter line search of spec.md §4.E:
// given a baseline performance index and a sequence of shrinking trial steps, it accepts
// the first step that improves either the merit or the constraint violation (with a small
// mixing constant to prevent cycling) and declares convergence per the step/cost
// tolerances.
package linesearch

import (
	"context"
	"math"

	"go.viam.com/msqp/logging"
	"go.viam.com/msqp/mpctypes"
	"go.viam.com/msqp/msqpsettings"
)

// Params are the filter line-search tunables of spec.md §6.
type Params struct {
	AlphaDecay float64
	AlphaMin   float64
	GammaC     float64
	GMax       float64
	GMin       float64
	CostTol    float64
	DeltaTol   float64
}

// ParamsFromSettings extracts the line-search tunables from a decoded msqpsettings.Settings.
func ParamsFromSettings(s msqpsettings.Settings) Params {
	return Params{
		AlphaDecay: s.AlphaDecay,
		AlphaMin:   s.AlphaMin,
		GammaC:     s.GammaC,
		GMax:       s.GMax,
		GMin:       s.GMin,
		CostTol:    s.CostTol,
		DeltaTol:   s.DeltaTol,
	}
}

// Accept implements the filter acceptance rule of spec.md §4.E-3: a trial is accepted if
// its violation is small and its merit improves, or if its violation is merely moderate and
// either its merit or its violation improves by the gamma_c margin; it is rejected
// unconditionally once the violation exceeds g_max, and whenever the trial carries a
// non-finite performance index.
func Accept(p Params, baseline, trial mpctypes.PerformanceIndex) bool {
	if !trial.IsFinite() {
		return false
	}
	theta := trial.ConstraintViolation()
	if theta > p.GMax {
		return false
	}
	merit := trial.Merit()
	baseMerit := baseline.Merit()
	if theta <= p.GMin {
		return merit < baseMerit
	}
	thetaBase := baseline.ConstraintViolation()
	return merit < baseMerit-p.GammaC*thetaBase || theta < (1-p.GammaC)*thetaBase
}

// TrialFunc recomputes the performance index of the candidate trajectory at step size
// alpha. Search reads only the returned PerformanceIndex; the solver's closure obtains it by
// re-running the full parallel stage assembly at the trial point, linearization included,
// and there is no separate evaluation-only pass.
type TrialFunc func(ctx context.Context, alpha float64) (mpctypes.PerformanceIndex, error)

// Result is the outcome of one Search call.
type Result struct {
	Alpha     float64
	Trial     mpctypes.PerformanceIndex
	Accepted  bool
	Converged bool
}

// Search runs the alpha-decay loop of spec.md §4.E starting at alpha=1, evaluating trial at
// each candidate step size, until a step is accepted, step norms fall below DeltaTol, or
// alpha decays at or below AlphaMin (in which case convergence is declared with no descent
// found, per §4.E-6). deltaXNorm/deltaUNorm are the *unscaled* (alpha=1) step norms; the
// convergence check scales them by the current alpha as spec.md §4.E-4/5 requires.
func Search(
	ctx context.Context,
	logger logging.Logger,
	p Params,
	baseline mpctypes.PerformanceIndex,
	deltaXNorm, deltaUNorm float64,
	trial TrialFunc,
	printLinesearch bool,
) (Result, error) {
	alpha := 1.0
	for {
		candidate, err := trial(ctx, alpha)
		if err != nil {
			return Result{}, err
		}
		accepted := Accept(p, baseline, candidate)
		if printLinesearch {
			logger.Infow("linesearch trial",
				"alpha", alpha, "accepted", accepted,
				"merit", candidate.Merit(), "violation", candidate.ConstraintViolation())
		}
		stepsSmall := alpha*deltaXNorm < p.DeltaTol && alpha*deltaUNorm < p.DeltaTol
		if accepted {
			converged := stepsSmall || (math.Abs(candidate.Merit()-baseline.Merit()) < p.CostTol && candidate.ConstraintViolation() < p.GMin)
			return Result{Alpha: alpha, Trial: candidate, Accepted: true, Converged: converged}, nil
		}
		if stepsSmall {
			return Result{Alpha: alpha, Trial: candidate, Accepted: false, Converged: true}, nil
		}
		triedAlpha := alpha
		alpha *= p.AlphaDecay
		if alpha <= p.AlphaMin {
			return Result{Alpha: triedAlpha, Trial: candidate, Accepted: false, Converged: true}, nil
		}
	}
}
